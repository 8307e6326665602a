package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/pflag"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/config"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{"POSDISPLAY_CONFIG", "POSDISPLAY_HOME", "POSDISPLAY_TERMINAL_ID",
		"POSDISPLAY_HUB_TOKEN", "POSDISPLAY_SECRET", "POSDISPLAY_LOG_LEVEL", "POSDISPLAY_BACKEND"} {
		t.Setenv(k, "")
	}
}

func parseForTest(t *testing.T, args []string) (*config.Config, error) {
	t.Helper()
	var common commonFlags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	common.register(fs)
	var buf bytes.Buffer
	return parse(fs, &common, args, IO{Out: &buf, Err: &buf}, nil)
}
