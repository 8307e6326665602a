package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
)

// operatorLine is one parsed line of operator input.
//
// Lines starting with ':' are commands (:open, :close, :status, :fg, :bg,
// :name <display name>). Anything else is a JSON screen update:
//
//	{"screen":"SALE_PREVIEW","data":{"total":12.5}}
type operatorLine struct {
	Command string
	Arg     string
	Screen  wire.Screen
	Data    json.RawMessage
}

var operatorCommands = map[string]bool{
	"open":   true,
	"close":  true,
	"status": true,
	"fg":     true,
	"bg":     true,
	"name":   true,
}

func parseOperatorLine(raw string) (operatorLine, bool, error) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return operatorLine{}, false, nil
	}

	if strings.HasPrefix(line, ":") {
		cmd, arg, _ := strings.Cut(line[1:], " ")
		if !operatorCommands[cmd] {
			return operatorLine{}, false, fmt.Errorf("unknown command %q", cmd)
		}
		return operatorLine{Command: cmd, Arg: strings.TrimSpace(arg)}, true, nil
	}

	var upd wire.StateUpdatePayload
	if err := json.Unmarshal([]byte(line), &upd); err != nil {
		return operatorLine{}, false, fmt.Errorf("invalid update: %w", err)
	}
	if upd.Screen == "" {
		return operatorLine{}, false, fmt.Errorf("invalid update: missing screen")
	}
	return operatorLine{Screen: upd.Screen, Data: upd.Data}, true, nil
}
