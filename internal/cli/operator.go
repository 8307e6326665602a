package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/actor"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/config"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/display/sockethost"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/displaysync"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/storage"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/visibility"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
	"github.com/linolucci78-omnily/omnilypro-sub002/pkg/logger"
)

const jobControlInterval = time.Second

// OperatorCommand runs the operator side of a terminal. Screen updates are
// read from stdin. SIGUSR1 and SIGUSR2 mark the terminal backgrounded and
// foregrounded; shell job control and host suspend are detected as well.
func OperatorCommand(ctx context.Context, args []string, stdio IO) error {
	var common commonFlags
	var backend, displayName string
	fs := pflag.NewFlagSet("operator", pflag.ContinueOnError)
	common.register(fs)
	fs.StringVar(&backend, "backend", "", "snapshot backend: file, sqlite or memory")
	fs.StringVar(&displayName, "display-name", "", "name shown on the welcome screen")

	cfg, err := parse(fs, &common, args, stdio, func(o *config.Overrides) {
		if fs.Changed("backend") {
			o.Backend = &backend
		}
		if fs.Changed("display-name") {
			o.DisplayName = &displayName
		}
	})
	if err != nil || cfg == nil {
		return err
	}

	terminal, err := terminalID(cfg)
	if err != nil {
		return err
	}
	token, err := joinToken(cfg, wire.RoleOperator, terminal)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(cfg, terminal)
	if err != nil {
		return err
	}
	defer closeStore()

	host, err := sockethost.DialHost(sockethost.DialConfig{URL: cfg.HubURL, Token: token})
	if err != nil {
		return err
	}
	defer host.Close()

	stats, closer := rootScope("posdisplay-operator")
	defer closer.Close()

	manual := visibility.NewManual()
	detector := visibility.NewSuspendDetector(visibility.DefaultMinGap, visibility.SystemReading)
	jobs := visibility.NewJobControl()

	opts := cfg.DisplayOptions()
	opts.AutoOpen = true
	dc, err := displaysync.New(displaysync.Deps{
		Host:       host,
		Store:      store,
		Visibility: visibility.Merge(manual, detector, jobs),
		Stats:      stats,
	}, opts)
	if err != nil {
		return err
	}
	defer dc.Dispose()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := dc.Start(); err != nil {
		return err
	}
	stopDetector := detector.Run(ctx, actor.RealClock{}, cfg.ProbeInterval)
	defer stopDetector()
	stopJobs := jobs.Run(ctx, actor.RealClock{}, jobControlInterval)
	defer stopJobs()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigs)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				if sig == syscall.SIGUSR1 {
					manual.Set(visibility.Background)
				} else {
					manual.Set(visibility.Foreground)
				}
			}
		}
	}()

	logger.Infof("Operator running for terminal %s (hub %s)", terminal, cfg.HubURL)

	lines := make(chan error, 1)
	go func() {
		lines <- feedOperator(dc, opts, stdio.In, stdio.Out)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-lines:
		return err
	}
}

// operatorTarget is the part of displaysync.Context driven by stdin.
type operatorTarget interface {
	UpdateScreen(screen wire.Screen, data json.RawMessage)
	RequestSession()
	CloseDisplay()
	Foreground()
	Background()
	Status() displaysync.Status
	SetDisplayName(name string)
}

type contextTarget struct {
	*displaysync.Context
	opts displaysync.Options
}

func (t contextTarget) SetDisplayName(name string) {
	dc := t.opts.DisplayContext
	dc.DisplayName = name
	t.Context.SetDisplayContext(dc)
}

func feedOperator(dc *displaysync.Context, opts displaysync.Options, in io.Reader, out io.Writer) error {
	return runOperatorInput(contextTarget{Context: dc, opts: opts}, in, out)
}

// runOperatorInput applies stdin lines to target until EOF.
func runOperatorInput(target operatorTarget, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line, ok, err := parseOperatorLine(scanner.Text())
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if !ok {
			continue
		}
		switch line.Command {
		case "":
			target.UpdateScreen(line.Screen, line.Data)
		case "open":
			target.RequestSession()
		case "close":
			target.CloseDisplay()
		case "fg":
			target.Foreground()
		case "bg":
			target.Background()
		case "name":
			target.SetDisplayName(line.Arg)
		case "status":
			st := target.Status()
			fmt.Fprintf(out, "%s surface=%s pending=%d reconnects=%d dropped=%d\n",
				st.Summary(), st.SurfaceID, st.Pending, st.Reconnects, st.Dropped)
		}
	}
	return scanner.Err()
}

// openStore opens the configured snapshot backend.
func openStore(cfg *config.Config, terminal string) (storage.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemoryStore(), func() {}, nil
	case config.BackendSQLite:
		db, err := storage.OpenDB(cfg.DatabasePath)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewSQLiteStore(db, terminal), func() { _ = db.Close() }, nil
	default:
		store, err := storage.NewFileStore(cfg.Home, terminal)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}
