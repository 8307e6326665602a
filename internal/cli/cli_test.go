package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"

	"github.com/linolucci78-omnily/omnilypro-sub002/internal/crypto"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/displaysync"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/hub"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/version"
	"github.com/linolucci78-omnily/omnilypro-sub002/internal/wire"
)

func TestParseOperatorLine(t *testing.T) {
	line, ok, err := parseOperatorLine(`{"screen":"SALE_PREVIEW","data":{"total":12.5}}`)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, wire.ScreenSalePreview, line.Screen)
	require.JSONEq(t, `{"total":12.5}`, string(line.Data))

	line, ok, err = parseOperatorLine(":name  Bar Centrale ")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "name", line.Command)
	require.Equal(t, "Bar Centrale", line.Arg)

	_, ok, err = parseOperatorLine("   # comment")
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = parseOperatorLine(":reboot")
	require.Error(t, err)
	_, _, err = parseOperatorLine(`{"data":{}}`)
	require.Error(t, err)
	_, _, err = parseOperatorLine(`{not json`)
	require.Error(t, err)
}

type fakeTarget struct {
	updates []wire.Screen
	calls   []string
	name    string
}

func (f *fakeTarget) UpdateScreen(screen wire.Screen, _ json.RawMessage) {
	f.updates = append(f.updates, screen)
}
func (f *fakeTarget) RequestSession() { f.calls = append(f.calls, "open") }
func (f *fakeTarget) CloseDisplay()   { f.calls = append(f.calls, "close") }
func (f *fakeTarget) Foreground()     { f.calls = append(f.calls, "fg") }
func (f *fakeTarget) Background()     { f.calls = append(f.calls, "bg") }
func (f *fakeTarget) Status() displaysync.Status {
	return displaysync.Status{Connected: true, SurfaceID: "s-1", Pending: 2}
}
func (f *fakeTarget) SetDisplayName(name string) { f.name = name }

func TestRunOperatorInput(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		`{"screen":"IDLE"}`,
		`:open`,
		`:bg`,
		`:fg`,
		`garbage`,
		`:name Bar Centrale`,
		`{"screen":"SALE_PROCESSING","data":{"step":"card"}}`,
		`:status`,
		`:close`,
	}, "\n"))
	var out bytes.Buffer
	target := &fakeTarget{}

	require.NoError(t, runOperatorInput(target, in, &out))
	require.Equal(t, []wire.Screen{wire.ScreenIdle, wire.ScreenSaleProcessing}, target.updates)
	require.Equal(t, []string{"open", "bg", "fg", "close"}, target.calls)
	require.Equal(t, "Bar Centrale", target.name)
	require.Contains(t, out.String(), "error: invalid update")
	require.Contains(t, out.String(), "surface=s-1 pending=2")
}

type fakeCloser struct {
	surfaces []string
	closed   []string
}

func (f *fakeCloser) Surfaces() []string { return f.surfaces }
func (f *fakeCloser) CloseSurface(id, _ string) {
	f.closed = append(f.closed, id)
}

func TestRunDisplayInput(t *testing.T) {
	agent := &fakeCloser{surfaces: []string{"s-1", "s-2"}}
	var out bytes.Buffer
	require.NoError(t, runDisplayInput(agent, strings.NewReader("list\nclose\nwhat\n"), &out))
	require.Equal(t, []string{"s-1", "s-2"}, agent.closed)
	require.Contains(t, out.String(), "s-1\ns-2\n")
	require.Contains(t, out.String(), "commands: close, list")
}

func newHubServer(t *testing.T, secret string) (*httptest.Server, *hub.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	jwtManager, err := crypto.NewJWTManager(secret)
	require.NoError(t, err)
	registry := hub.NewRegistry(tally.NoopScope, time.Second)
	srv := httptest.NewServer(hub.NewRouter(registry, jwtManager, secret, nil))
	t.Cleanup(srv.Close)
	return srv, registry
}

func TestRequestPair(t *testing.T) {
	srv, _ := newHubServer(t, "s3cret")

	resp, err := requestPair(context.Background(), srv.URL, "s3cret", hub.PairRequest{Terminal: "T1"})
	require.NoError(t, err)
	require.Equal(t, "T1", resp.Terminal)
	require.Equal(t, wire.RoleDisplay, resp.Role)
	require.NotEmpty(t, resp.Token)

	_, err = requestPair(context.Background(), srv.URL, "nope", hub.PairRequest{Terminal: "T1"})
	require.ErrorContains(t, err, "401")
}

func TestFetchStatus(t *testing.T) {
	srv, _ := newHubServer(t, "s3cret")
	st, err := fetchStatus(context.Background(), srv.URL+"/", "T9")
	require.NoError(t, err)
	require.Equal(t, "T9", st.Terminal)
	require.False(t, st.DisplayAttached)
}

func TestJoinLink(t *testing.T) {
	link := joinLink("http://hub.local:3005", hub.PairResponse{Terminal: "T1", Token: "abc"})
	u, err := url.Parse(link)
	require.NoError(t, err)
	require.Equal(t, "posdisplay", u.Scheme)
	require.Equal(t, "http://hub.local:3005", u.Query().Get("hub"))
	require.Equal(t, "abc", u.Query().Get("token"))

	var out bytes.Buffer
	printQRCode(&out, link)
	require.NotEmpty(t, out.String())
}

func TestJoinTokenMintsFromSecret(t *testing.T) {
	isolateEnv(t)
	secret := "s3cret"
	cfg, err := parseForTest(t, []string{"--secret", secret, "--terminal", "T1"})
	require.NoError(t, err)

	token, err := joinToken(cfg, wire.RoleOperator, "T1")
	require.NoError(t, err)
	jwtManager, err := crypto.NewJWTManager(secret)
	require.NoError(t, err)
	claims, err := jwtManager.VerifyToken(token)
	require.NoError(t, err)
	require.Equal(t, wire.RoleOperator, claims.Role)

	cfg.Secret = ""
	_, err = joinToken(cfg, wire.RoleOperator, "T1")
	require.Error(t, err)
}

func TestRunDispatch(t *testing.T) {
	var out, errOut bytes.Buffer
	stdio := IO{In: strings.NewReader(""), Out: &out, Err: &errOut}

	require.NoError(t, Run(context.Background(), []string{"version"}, stdio))
	require.Contains(t, out.String(), "posdisplay "+version.Version())

	require.Error(t, Run(context.Background(), []string{"frobnicate"}, stdio))
	require.Error(t, Run(context.Background(), nil, stdio))
	require.Contains(t, errOut.String(), "Commands:")
}

func TestHelpFlagDoesNotRun(t *testing.T) {
	isolateEnv(t)
	var out bytes.Buffer
	stdio := IO{In: strings.NewReader(""), Out: &out, Err: &out}
	require.NoError(t, Run(context.Background(), []string{"operator", "--help"}, stdio))
	require.Contains(t, out.String(), "--backend")
}
