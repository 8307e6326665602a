package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/display/sockethost"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
	"github.com/linolucci78-omnily/omnilypro-sub002/pkg/logger"
)

// DisplayCommand runs a display agent rendering to stdout. Typing
// "close" on stdin closes every open surface as if its window was closed
// by hand.
func DisplayCommand(ctx context.Context, args []string, stdio IO) error {
	var common commonFlags
	fs := pflag.NewFlagSet("display", pflag.ContinueOnError)
	common.register(fs)

	cfg, err := parse(fs, &common, args, stdio, nil)
	if err != nil || cfg == nil {
		return err
	}

	terminal, err := terminalID(cfg)
	if err != nil {
		return err
	}
	token, err := joinToken(cfg, wire.RoleDisplay, terminal)
	if err != nil {
		return err
	}

	agent, err := sockethost.DialAgent(sockethost.DialConfig{URL: cfg.HubURL, Token: token}, sockethost.NewWriterRenderer(stdio.Out))
	if err != nil {
		return err
	}
	defer agent.Close()
	logger.Infof("Display agent running for terminal %s (hub %s)", terminal, cfg.HubURL)

	done := make(chan error, 1)
	go func() {
		done <- runDisplayInput(agent, stdio.In, stdio.Out)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-done:
		if err != nil {
			return err
		}
		// stdin closed; keep rendering until cancelled.
		<-ctx.Done()
		return nil
	}
}

type surfaceCloser interface {
	Surfaces() []string
	CloseSurface(id, reason string)
}

func runDisplayInput(agent surfaceCloser, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "":
		case "close":
			for _, id := range agent.Surfaces() {
				agent.CloseSurface(id, "window closed")
			}
		case "list":
			for _, id := range agent.Surfaces() {
				fmt.Fprintln(out, id)
			}
		default:
			fmt.Fprintln(out, "commands: close, list")
		}
	}
	return scanner.Err()
}
