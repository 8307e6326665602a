// Package cli implements the posdisplay subcommands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"
	"github.com/uber-go/tally"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/config"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/crypto"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/storage"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/version"
	"github.com/linolucci78-omnily/omnilypro-sub002/pkg/logger"
)

// IO bundles the streams a command talks to.
type IO struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Run dispatches args[0] to a subcommand.
func Run(ctx context.Context, args []string, stdio IO) error {
	if len(args) == 0 {
		printUsage(stdio.Err)
		return errors.New("missing command")
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "hub":
		return HubCommand(ctx, rest, stdio)
	case "operator":
		return OperatorCommand(ctx, rest, stdio)
	case "display":
		return DisplayCommand(ctx, rest, stdio)
	case "pair":
		return PairCommand(ctx, rest, stdio)
	case "status":
		return StatusCommand(ctx, rest, stdio)
	case "help", "--help", "-h":
		printUsage(stdio.Out)
		return nil
	case "version", "--version", "-v":
		fmt.Fprintf(stdio.Out, "posdisplay %s\n", version.RichVersion())
		return nil
	default:
		printUsage(stdio.Err)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `posdisplay keeps a customer-facing display in sync with a POS terminal.

Usage:
  posdisplay <command> [flags]

Commands:
  hub       run the relay between operator terminals and displays
  operator  run the operator side; reads screen updates as JSON lines on stdin
  display   run a display agent that renders surfaces to stdout
  pair      issue a display join token and print it as a QR code
  status    show what is attached to a terminal on the hub
  version   print the version

Run "posdisplay <command> --help" for command flags.
`)
}

// commonFlags are accepted by every command.
type commonFlags struct {
	configFile string
	home       string
	terminal   string
	logLevel   string
	hubURL     string
	token      string
	secret     string
}

func (f *commonFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.configFile, "config", "", "YAML config file (default $POSDISPLAY_CONFIG)")
	fs.StringVar(&f.home, "home", "", "state directory (default ~/.posdisplay)")
	fs.StringVar(&f.terminal, "terminal", "", "terminal id (default: generated under --home)")
	fs.StringVar(&f.logLevel, "log-level", "", "trace, debug, info, warn or error")
	fs.StringVar(&f.hubURL, "hub-url", "", "hub base URL")
	fs.StringVar(&f.token, "token", "", "hub join token")
	fs.StringVar(&f.secret, "secret", "", "hub shared secret")
}

// overrides returns only the flags the user set explicitly.
func (f *commonFlags) overrides(fs *pflag.FlagSet) config.Overrides {
	var o config.Overrides
	set := func(name string, v string) *string {
		if fs.Changed(name) {
			return &v
		}
		return nil
	}
	o.ConfigFile = set("config", f.configFile)
	o.Home = set("home", f.home)
	o.TerminalID = set("terminal", f.terminal)
	o.LogLevel = set("log-level", f.logLevel)
	o.HubURL = set("hub-url", f.hubURL)
	o.HubToken = set("token", f.token)
	o.Secret = set("secret", f.secret)
	return o
}

// parse parses flags and loads configuration. It returns (nil, nil) when
// help was requested.
func parse(fs *pflag.FlagSet, common *commonFlags, args []string, stdio IO, extra func(*config.Overrides)) (*config.Config, error) {
	fs.SetOutput(stdio.Err)
	fs.BoolP("help", "h", false, "show help")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, nil
		}
		return nil, err
	}
	if help, _ := fs.GetBool("help"); help {
		fs.SetOutput(stdio.Out)
		fs.PrintDefaults()
		return nil, nil
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	o := common.overrides(fs)
	if extra != nil {
		extra(&o)
	}
	cfg, err := config.Load(o)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

// terminalID resolves the configured terminal id, generating a persistent
// one on first use.
func terminalID(cfg *config.Config) (string, error) {
	if cfg.TerminalID != "" {
		return cfg.TerminalID, nil
	}
	return storage.GetOrCreateTerminalID(cfg.Home)
}

// joinToken returns the configured token, or mints one locally when the
// shared secret is known.
func joinToken(cfg *config.Config, role, terminal string) (string, error) {
	if cfg.HubToken != "" {
		return cfg.HubToken, nil
	}
	if cfg.Secret == "" {
		return "", fmt.Errorf("no hub token: pass --token or --secret (or run `posdisplay pair`)")
	}
	jwtManager, err := crypto.NewJWTManager(cfg.Secret)
	if err != nil {
		return "", err
	}
	return jwtManager.CreateToken(role, terminal, 0)
}

// rootScope creates the process metrics scope.
func rootScope(service string) (tally.Scope, io.Closer) {
	return tally.NewRootScope(tally.ScopeOptions{
		Prefix: "posdisplay",
		Tags: map[string]string{
			"service": service,
		},
	}, 1*time.Second)
}
