package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/pflag"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/hub"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
	"github.com/linolucci78-omnily/omnilypro-sub002/pkg/logger"
)

const httpTimeout = 5 * time.Second

// PairCommand asks the hub for a display join token and prints it together
// with a QR code the display device can scan.
func PairCommand(ctx context.Context, args []string, stdio IO) error {
	var common commonFlags
	var role string
	fs := pflag.NewFlagSet("pair", pflag.ContinueOnError)
	common.register(fs)
	fs.StringVar(&role, "role", wire.RoleDisplay, "role of the token: display or operator")

	cfg, err := parse(fs, &common, args, stdio, nil)
	if err != nil || cfg == nil {
		return err
	}
	if cfg.Secret == "" {
		return fmt.Errorf("pairing requires the hub secret (--secret or POSDISPLAY_SECRET)")
	}
	terminal, err := terminalID(cfg)
	if err != nil {
		return err
	}

	resp, err := requestPair(ctx, cfg.HubURL, cfg.Secret, hub.PairRequest{Terminal: terminal, Role: role})
	if err != nil {
		return err
	}

	link := joinLink(cfg.HubURL, resp)
	printQRCode(stdio.Out, link)
	fmt.Fprintf(stdio.Out, "Terminal: %s\nRole:     %s\nToken:    %s\n", resp.Terminal, resp.Role, resp.Token)
	return nil
}

func requestPair(ctx context.Context, hubURL, secret string, req hub.PairRequest) (hub.PairResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return hub.PairResponse{}, err
	}
	endpoint := strings.TrimRight(hubURL, "/") + "/v1/pair"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return hub.PairResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(hub.PairSecretHeader, secret)

	client := &http.Client{Timeout: httpTimeout}
	httpResp, err := client.Do(httpReq)
	if err != nil {
		return hub.PairResponse{}, fmt.Errorf("pair request failed: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return hub.PairResponse{}, err
	}
	if httpResp.StatusCode != http.StatusOK {
		return hub.PairResponse{}, fmt.Errorf("pair request failed: %s: %s", httpResp.Status, strings.TrimSpace(string(data)))
	}
	var resp hub.PairResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return hub.PairResponse{}, fmt.Errorf("invalid pair response: %w", err)
	}
	return resp, nil
}

// joinLink encodes what a display needs to join the hub.
func joinLink(hubURL string, resp hub.PairResponse) string {
	q := url.Values{}
	q.Set("hub", hubURL)
	q.Set("terminal", resp.Terminal)
	q.Set("token", resp.Token)
	return "posdisplay://join?" + q.Encode()
}

func printQRCode(w io.Writer, data string) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		logger.Warnf("Failed to generate QR code: %v", err)
		fmt.Fprintf(w, "Join link: %s\n", data)
		return
	}
	fmt.Fprintln(w, qr.ToSmallString(false))
}

// StatusCommand prints what the hub knows about this terminal.
func StatusCommand(ctx context.Context, args []string, stdio IO) error {
	var common commonFlags
	fs := pflag.NewFlagSet("status", pflag.ContinueOnError)
	common.register(fs)

	cfg, err := parse(fs, &common, args, stdio, nil)
	if err != nil || cfg == nil {
		return err
	}
	terminal, err := terminalID(cfg)
	if err != nil {
		return err
	}

	st, err := fetchStatus(ctx, cfg.HubURL, terminal)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdio.Out, "terminal %s: display=%t operators=%d surfaces=%v\n",
		st.Terminal, st.DisplayAttached, st.Operators, st.Surfaces)
	return nil
}

func fetchStatus(ctx context.Context, hubURL, terminal string) (hub.TerminalStatus, error) {
	endpoint := fmt.Sprintf("%s/v1/terminals/%s/status", strings.TrimRight(hubURL, "/"), url.PathEscape(terminal))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return hub.TerminalStatus{}, err
	}
	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return hub.TerminalStatus{}, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return hub.TerminalStatus{}, fmt.Errorf("status request failed: %s", resp.Status)
	}
	var st hub.TerminalStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return hub.TerminalStatus{}, fmt.Errorf("invalid status response: %w", err)
	}
	return st, nil
}
