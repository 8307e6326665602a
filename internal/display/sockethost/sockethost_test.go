package sockethost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/display"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
	"github.com/stretchr/testify/require"
)

type sent struct {
	event   string
	payload any
}

type fakeConn struct {
	mu        sync.Mutex
	connected bool
	emits     []sent
	reply     func(event string, payload any) ([]any, error)
	closed    bool
}

func (c *fakeConn) Emit(event string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emits = append(c.emits, sent{event: event, payload: payload})
}

func (c *fakeConn) Request(_ context.Context, event string, payload any) ([]any, error) {
	return c.reply(event, payload)
}

func (c *fakeConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) events(name string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []any
	for _, e := range c.emits {
		if e.event == name {
			out = append(out, e.payload)
		}
	}
	return out
}

func acceptingConn() *fakeConn {
	return &fakeConn{
		connected: true,
		reply: func(_ string, payload any) ([]any, error) {
			req := payload.(wire.SurfaceOpenRequest)
			return []any{map[string]any{"ok": true, "surfaceId": req.SurfaceID}}, nil
		},
	}
}

func newTestHost(conn Conn) *Host {
	h := NewHost(conn)
	n := 0
	h.newID = func() string {
		n++
		return "surface-" + string(rune('0'+n))
	}
	return h
}

func TestHostOpenAndPost(t *testing.T) {
	conn := acceptingConn()
	h := newTestHost(conn)

	s, err := h.OpenSurface(context.Background(), display.Geometry{Width: 1024, Height: 600, Chromeless: true})
	require.NoError(t, err)
	require.Equal(t, "surface-1", s.ID())
	require.False(t, s.Closed())

	require.NoError(t, s.Post(context.Background(), wire.NewPing()))
	msgs := conn.events(wire.EventEnvelope)
	require.Len(t, msgs, 1)
	require.Equal(t, "surface-1", msgs[0].(wire.EnvelopeMessage).SurfaceID)
}

func TestHostRefusesWhenDisconnected(t *testing.T) {
	h := newTestHost(&fakeConn{})
	_, err := h.OpenSurface(context.Background(), display.Geometry{})
	require.True(t, display.IsRefused(err))
	require.ErrorIs(t, err, ErrHubDisconnected)
}

func TestHostRefusedByDisplay(t *testing.T) {
	conn := &fakeConn{
		connected: true,
		reply: func(string, any) ([]any, error) {
			return []any{map[string]any{"ok": false, "reason": "no display attached"}}, nil
		},
	}
	h := newTestHost(conn)
	_, err := h.OpenSurface(context.Background(), display.Geometry{})
	require.True(t, display.IsRefused(err))
	require.Contains(t, err.Error(), "no display attached")
}

func TestHostAbandonedOpenIsClosed(t *testing.T) {
	conn := &fakeConn{
		connected: true,
		reply: func(string, any) ([]any, error) {
			return nil, context.DeadlineExceeded
		},
	}
	h := newTestHost(conn)
	_, err := h.OpenSurface(context.Background(), display.Geometry{})
	require.True(t, display.IsRefused(err))
	require.True(t, errors.Is(err, display.ErrSessionCreationRefused))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	closes := conn.events(wire.EventSurfaceClose)
	require.Len(t, closes, 1)
	require.Equal(t, "surface-1", closes[0].(wire.SurfaceRef).SurfaceID)
}

func TestHostSurfaceClosedByHub(t *testing.T) {
	conn := acceptingConn()
	h := newTestHost(conn)
	s, err := h.OpenSurface(context.Background(), display.Geometry{})
	require.NoError(t, err)

	h.SurfaceClosed(wire.SurfaceRef{SurfaceID: s.ID(), Reason: "window closed"})
	require.True(t, s.Closed())
	require.ErrorIs(t, s.Post(context.Background(), wire.NewPing()), display.ErrSurfaceClosed)
}

func TestHostDisconnectClosesAllSurfaces(t *testing.T) {
	conn := acceptingConn()
	h := newTestHost(conn)
	a, err := h.OpenSurface(context.Background(), display.Geometry{})
	require.NoError(t, err)
	b, err := h.OpenSurface(context.Background(), display.Geometry{})
	require.NoError(t, err)

	h.Disconnected("transport close")
	require.True(t, a.Closed())
	require.True(t, b.Closed())
}

func TestSurfaceCloseIsIdempotent(t *testing.T) {
	conn := acceptingConn()
	h := newTestHost(conn)
	s, err := h.OpenSurface(context.Background(), display.Geometry{})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Len(t, conn.events(wire.EventSurfaceClose), 1)
}

type recordingRenderer struct {
	opened   []string
	rendered []wire.Envelope
	closed   []string
	refuse   error
}

func (r *recordingRenderer) Open(id string, _ wire.SurfaceGeometry) error {
	if r.refuse != nil {
		return r.refuse
	}
	r.opened = append(r.opened, id)
	return nil
}

func (r *recordingRenderer) Render(_ string, env wire.Envelope) {
	r.rendered = append(r.rendered, env)
}

func (r *recordingRenderer) Close(id string, _ string) {
	r.closed = append(r.closed, id)
}

func stateUpdate(t *testing.T, seq uint64) wire.Envelope {
	t.Helper()
	env, err := wire.NewStateUpdate(wire.ScreenSalePreview, json.RawMessage(`{"total":10}`))
	require.NoError(t, err)
	return env.WithSeq(seq)
}

func TestAgentDropsStaleUpdates(t *testing.T) {
	conn := &fakeConn{connected: true}
	r := &recordingRenderer{}
	a := NewAgent(conn, r)

	ack := a.HandleOpen(wire.SurfaceOpenRequest{SurfaceID: "s-1"})
	require.True(t, ack.OK)

	welcome, err := wire.NewWelcome(wire.WelcomePayload{DisplayName: "Bar Centrale"})
	require.NoError(t, err)
	a.HandleEnvelope(wire.EnvelopeMessage{SurfaceID: "s-1", Envelope: welcome.WithSeq(3)})
	a.HandleEnvelope(wire.EnvelopeMessage{SurfaceID: "s-1", Envelope: stateUpdate(t, 2)})
	a.HandleEnvelope(wire.EnvelopeMessage{SurfaceID: "s-1", Envelope: stateUpdate(t, 4)})
	a.HandleEnvelope(wire.EnvelopeMessage{SurfaceID: "s-1", Envelope: stateUpdate(t, 4)})
	a.HandleEnvelope(wire.EnvelopeMessage{SurfaceID: "s-1", Envelope: wire.NewPing()})

	require.Len(t, r.rendered, 2)
	require.Equal(t, wire.KindWelcome, r.rendered[0].Kind)
	require.EqualValues(t, 4, r.rendered[1].Seq)
}

func TestAgentUnknownSurfaceReportsClosed(t *testing.T) {
	conn := &fakeConn{connected: true}
	a := NewAgent(conn, &recordingRenderer{})

	a.HandleEnvelope(wire.EnvelopeMessage{SurfaceID: "ghost", Envelope: wire.NewPing()})
	closed := conn.events(wire.EventSurfaceClosed)
	require.Len(t, closed, 1)
	require.Equal(t, "ghost", closed[0].(wire.SurfaceRef).SurfaceID)
}

func TestAgentRefusesWhenRendererFails(t *testing.T) {
	a := NewAgent(&fakeConn{connected: true}, &recordingRenderer{refuse: errors.New("screen off")})
	ack := a.HandleOpen(wire.SurfaceOpenRequest{SurfaceID: "s-1"})
	require.False(t, ack.OK)
	require.Equal(t, "screen off", ack.Reason)
	require.Empty(t, a.Surfaces())
}

func TestAgentLocalCloseNotifiesHub(t *testing.T) {
	conn := &fakeConn{connected: true}
	r := &recordingRenderer{}
	a := NewAgent(conn, r)
	require.True(t, a.HandleOpen(wire.SurfaceOpenRequest{SurfaceID: "s-1"}).OK)

	a.CloseSurface("s-1", "window closed")
	a.CloseSurface("s-1", "window closed")
	require.Equal(t, []string{"s-1"}, r.closed)
	require.Len(t, conn.events(wire.EventSurfaceClosed), 1)

	// Operator-initiated close does not echo back.
	require.True(t, a.HandleOpen(wire.SurfaceOpenRequest{SurfaceID: "s-2"}).OK)
	a.HandleClose(wire.SurfaceRef{SurfaceID: "s-2"})
	require.Len(t, conn.events(wire.EventSurfaceClosed), 1)
}

func TestWriterRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := NewWriterRenderer(&buf)
	require.NoError(t, r.Open("s-1", wire.SurfaceGeometry{Width: 1024, Height: 600, Chromeless: true}))
	r.Render("s-1", stateUpdate(t, 7))
	r.Close("s-1", "bye")

	out := buf.String()
	require.Contains(t, out, "[s-1] open 1024x600+0+0 chromeless=true")
	require.Contains(t, out, `[s-1] #7 SALE_PREVIEW {"total":10}`)
	require.Contains(t, out, "[s-1] closed: bye")
}

func TestSplitAck(t *testing.T) {
	var got []any
	payload, ack := splitAck([]any{"x", func(args []any, err error) { got = args }})
	require.Equal(t, "x", payload)
	require.NotNil(t, ack)
	ack("ok")
	require.Equal(t, []any{"ok"}, got)

	payload, ack = splitAck([]any{"y"})
	require.Equal(t, "y", payload)
	require.Nil(t, ack)
}
