package cli

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/config"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/hub"
	"github.com/linolucci78-omnily/omnilypro-sub002/pkg/logger"
)

// HubCommand runs the relay until ctx is cancelled.
func HubCommand(ctx context.Context, args []string, stdio IO) error {
	var common commonFlags
	var addr string
	fs := pflag.NewFlagSet("hub", pflag.ContinueOnError)
	common.register(fs)
	fs.StringVar(&addr, "addr", "", "listen address (default :3005)")

	cfg, err := parse(fs, &common, args, stdio, func(o *config.Overrides) {
		if fs.Changed("addr") {
			o.HubAddr = &addr
		}
	})
	if err != nil || cfg == nil {
		return err
	}

	if logger.Enabled(logger.LevelDebug) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = logger.Writer(logger.LevelDebug)
	gin.DefaultErrorWriter = logger.Writer(logger.LevelError)

	stats, closer := rootScope("posdisplay-hub")
	defer closer.Close()

	h, err := hub.New(hub.Config{
		Secret:      cfg.Secret,
		OpenTimeout: cfg.OpenTimeout,
		Stats:       stats,
	})
	if err != nil {
		return err
	}
	return h.Run(ctx, cfg.HubAddr)
}
