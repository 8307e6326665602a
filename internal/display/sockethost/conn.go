// Package sockethost connects display sessions to the display hub.
//
// The operator side implements display.Host: every surface is a window on
// the display agent attached to the same terminal. The display side (Agent)
// accepts surfaces from the hub and hands envelopes to a Renderer.
package sockethost

import (
	"context"
	"encoding/json"
	"fmt"

	socket "github.com/zishang520/socket.io/clients/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
	"github.com/linolucci78-omnily/omnilypro-sub002/pkg/logger"
)

// Conn is the hub connection used by Host and Agent.
type Conn interface {
	Emit(event string, payload any)
	// Request emits event and waits for its ack.
	Request(ctx context.Context, event string, payload any) ([]any, error)
	Connected() bool
	Close()
}

// DialConfig configures a hub connection.
type DialConfig struct {
	// URL is the hub base URL, e.g. http://127.0.0.1:3005.
	URL string
	// Token is a join token issued by the hub.
	Token string
}

// socketConn adapts a Socket.IO client socket to Conn.
type socketConn struct {
	sock *socket.Socket
}

// dial connects to the hub and registers handlers for events. The client
// reconnects on its own; callers observe connectivity through Connected.
func dial(cfg DialConfig, handlers map[string]func(args ...any)) (*socketConn, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("missing hub url")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("missing hub token")
	}

	opts := socket.DefaultOptions()
	opts.SetPath(wire.SocketPath)
	opts.SetTransports(types.NewSet(socket.Polling, socket.WebSocket))
	opts.SetAuth(map[string]any{"token": cfg.Token})

	sock, err := socket.Connect(cfg.URL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	sock.On(types.EventName("connect"), func(args ...any) {
		logger.Infof("Hub connected: %s", sock.Id())
	})
	sock.On(types.EventName("connect_error"), func(args ...any) {
		if len(args) > 0 {
			logger.Warnf("Hub connection error: %v", args[0])
		}
	})
	sock.On(types.EventName("error"), func(args ...any) {
		if len(args) > 0 {
			logger.Warnf("Hub error: %v", args[0])
		}
	})
	for name, fn := range handlers {
		sock.On(types.EventName(name), fn)
	}
	return &socketConn{sock: sock}, nil
}

func (c *socketConn) Emit(event string, payload any) {
	c.sock.Emit(event, payload)
}

func (c *socketConn) Request(ctx context.Context, event string, payload any) ([]any, error) {
	type result struct {
		args []any
		err  error
	}
	ch := make(chan result, 1)
	c.sock.Emit(event, payload, func(args []any, err error) {
		ch <- result{args: args, err: err}
	})
	select {
	case r := <-ch:
		return r.args, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *socketConn) Connected() bool { return c.sock.Connected() }

func (c *socketConn) Close() { c.sock.Disconnect() }

func decodeAny(input any, out any) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// splitAck separates a trailing ack callback from event arguments.
func splitAck(args []any) (any, func(...any)) {
	if len(args) == 0 {
		return nil, nil
	}
	var ack func(...any)
	switch cb := args[len(args)-1].(type) {
	case func(...any):
		ack = cb
		args = args[:len(args)-1]
	case func([]any, error):
		ack = func(resp ...any) { cb(resp, nil) }
		args = args[:len(args)-1]
	}
	if len(args) == 0 {
		return nil, ack
	}
	return args[0], ack
}

func disconnectReason(args []any) string {
	if len(args) > 0 {
		if r, ok := args[0].(string); ok {
			return r
		}
	}
	return "disconnected"
}
