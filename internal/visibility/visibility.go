// Package visibility reports when the operator application moves between
// background and foreground.
package visibility

import "sync"

// State is a visibility transition.
type State string

const (
	Foreground State = "foreground"
	Background State = "background"
)

// Source delivers visibility transitions to subscribers.
type Source interface {
	// Subscribe registers fn and returns a func that removes it.
	Subscribe(fn func(State)) (unsubscribe func())
}

// Manual is a Source driven by explicit Set calls. The operator CLI feeds it
// from signals; tests feed it directly.
type Manual struct {
	mu   sync.Mutex
	next int
	subs map[int]func(State)
}

var _ Source = (*Manual)(nil)

// NewManual returns a source with no subscribers.
func NewManual() *Manual {
	return &Manual{subs: make(map[int]func(State))}
}

// Subscribe implements Source.
func (m *Manual) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs == nil {
		m.subs = make(map[int]func(State))
	}
	id := m.next
	m.next++
	m.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
		})
	}
}

// Set notifies every subscriber of s.
func (m *Manual) Set(s State) {
	m.mu.Lock()
	fns := make([]func(State), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Subscribers returns the number of registered subscribers.
func (m *Manual) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Merge fans several sources into one.
func Merge(sources ...Source) Source {
	return merged(sources)
}

type merged []Source

func (ms merged) Subscribe(fn func(State)) func() {
	unsubs := make([]func(), 0, len(ms))
	for _, s := range ms {
		if s != nil {
			unsubs = append(unsubs, s.Subscribe(fn))
		}
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
