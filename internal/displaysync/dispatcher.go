package displaysync

import (
	"encoding/json"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/actor"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/recovery"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
	"github.com/linolucci78-omnily/omnilypro-sub002/pkg/logger"
)

// Dispatcher is the call surface the rest of the application uses to push
// state to the customer display. Calls never block and never fail: delivery
// problems only show up in logs and metrics.
type Dispatcher struct {
	enqueue func(actor.Input) error
	clock   actor.Clock
}

// Update pushes env. When the display is connected it is sent right away;
// otherwise it is held, recovery starts, and it is sent once after the new
// surface has been welcomed.
func (d Dispatcher) Update(env wire.Envelope) {
	if err := env.Validate(); err != nil {
		logger.Warnf("display: rejected update: %v", err)
		return
	}
	if err := d.enqueue(recovery.Update(env, d.clock.Now().UnixMilli())); err != nil {
		logger.Debugf("display: update %s not queued: %v", env.ID, err)
	}
}

// UpdateScreen builds a state update for screen and pushes it.
func (d Dispatcher) UpdateScreen(screen wire.Screen, data json.RawMessage) {
	env, err := wire.NewStateUpdate(screen, data)
	if err != nil {
		logger.Warnf("display: build %s update: %v", screen, err)
		return
	}
	d.Update(env)
}
