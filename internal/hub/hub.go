// Package hub relays display traffic between POS operator terminals and
// the customer-facing display agents attached to them.
//
// Operators and displays connect over Socket.IO with a join token naming
// their role and terminal. The hub forwards surface:open requests to the
// terminal's display, relays envelopes for surfaces the operator owns and
// reports surfaces that vanish so the operator side can recover.
package hub

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/crypto"
	"github.com/linolucci78-omnily/omnilypro-sub002/pkg/logger"
	"github.com/uber-go/tally"
)

const shutdownTimeout = 5 * time.Second

// Config configures a Hub.
type Config struct {
	// Secret derives the token signing key and guards /v1/pair.
	Secret string
	// OpenTimeout bounds display acks for surface:open.
	OpenTimeout time.Duration
	Stats       tally.Scope
}

// Hub is the relay server.
type Hub struct {
	registry *Registry
	sio      *SocketIOServer
	router   *gin.Engine
}

// New creates a hub.
func New(cfg Config) (*Hub, error) {
	jwtManager, err := crypto.NewJWTManager(cfg.Secret)
	if err != nil {
		return nil, err
	}
	stats := cfg.Stats
	if stats == nil {
		stats = tally.NoopScope
	}
	registry := NewRegistry(stats.SubScope("hub"), cfg.OpenTimeout)
	sio := NewSocketIOServer(jwtManager, registry)
	return &Hub{
		registry: registry,
		sio:      sio,
		router:   NewRouter(registry, jwtManager, cfg.Secret, sio.HandleSocketIO()),
	}, nil
}

// Handler returns the HTTP handler serving REST and Socket.IO traffic.
func (h *Hub) Handler() http.Handler { return h.router }

// Registry exposes the connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Run serves on addr until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Display hub listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		h.sio.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	h.sio.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
