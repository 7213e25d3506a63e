package health

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remoteds/hostingctl/internal/config"
	"github.com/remoteds/hostingctl/internal/types"
)

type fakeRunner struct {
	outputs map[string]string
}

func (f *fakeRunner) Run(ctx context.Context, command string) error { return nil }

func (f *fakeRunner) Output(ctx context.Context, command string) (string, error) {
	for needle, out := range f.outputs {
		if strings.Contains(command, needle) {
			return out, nil
		}
	}
	return "", nil
}

func (f *fakeRunner) WriteFile(ctx context.Context, path, content string) error { return nil }

func (f *fakeRunner) Host() string { return "test-host" }

type fakeStore struct {
	app *types.App
}

func (f *fakeStore) GetApp(ctx context.Context, appKey string) (*types.App, error) {
	if f.app == nil {
		return nil, types.ErrNotFound
	}
	return f.app, nil
}

func testApp() *types.App {
	return &types.App{
		AppKey:           "inventory",
		Domain:           "example.com",
		Subdomain:        "inventory",
		SourceRepository: "git@example.com:apps/inventory.git",
		DeployPath:       "/srv/apps/inventory",
		DatabaseName:     "inventory_production",
		DatabaseUsername: "inventory",
		DatabasePassword: "db-pass",
		SecretKeyBase:    "key-base",
		APIToken:         "sekret-token",
		Port:             3001,
		Runtime:          types.RuntimeRails,
		Enabled:          true,
	}
}

func healthyRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string]string{
		"is-active": "active",
		"bash -c":   "__db_ok__",
	}}
}

// healthyHandler serves the route conventions of a working app.
type healthyHandler struct {
	authBroken    bool
	errorPageBody string
	apiBody       string
}

func (h *healthyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/up":
		if h.errorPageBody != "" {
			fmt.Fprint(w, h.errorPageBody)
			return
		}
		fmt.Fprint(w, "ok")
	case r.URL.Path == "/users/sign_in":
		fmt.Fprint(w, `<form><input name="user[email]"><input type="password" name="user[password]"></form>`)
	case strings.HasPrefix(r.URL.Path, "/api/inventory/"):
		w.Header().Set("Content-Type", "application/json")
		if h.apiBody != "" {
			fmt.Fprint(w, h.apiBody)
			return
		}
		fmt.Fprint(w, `{"inventorys": []}`)
	case r.URL.Path == "/":
		if h.authBroken {
			fmt.Fprint(w, "<h1>Dashboard</h1>")
			return
		}
		http.Redirect(w, r, "/users/sign_in", http.StatusFound)
	default:
		http.NotFound(w, r)
	}
}

func newTestVerifier(t *testing.T, runner *fakeRunner, app *types.App, handler http.Handler) *Verifier {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{HealthTimeout: config.Duration(5 * time.Second), DeployUser: "deploy"}
	v := NewVerifier(runner, &fakeStore{app: app}, cfg, zerolog.Nop())
	v.BaseURL = server.URL
	return v
}

func checkByName(t *testing.T, report *types.HealthReport, name string) types.CheckResult {
	t.Helper()
	for _, c := range report.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("report is missing check %q", name)
	return types.CheckResult{}
}

func TestHealthCheckAllPassing(t *testing.T) {
	v := newTestVerifier(t, healthyRunner(), testApp(), &healthyHandler{})

	report, err := v.HealthCheck(context.Background(), "inventory")
	require.NoError(t, err)

	require.Len(t, report.Checks, 5)
	assert.True(t, report.Healthy())
	assert.Empty(t, report.Errors)
	assert.NotEmpty(t, report.RunID)

	for _, name := range []string{
		types.CheckServiceActive,
		types.CheckHTTPReachable,
		types.CheckAuthEnforced,
		types.CheckDBConnected,
		types.CheckAPIContract,
	} {
		c := checkByName(t, report, name)
		assert.True(t, c.Applicable, name)
		assert.True(t, c.Passed, "%s: %s", name, c.Detail)
	}
}

func TestHealthCheckAuthRegressionFails(t *testing.T) {
	// A protected route serving 200 without credentials must fail the report
	// even though the app is otherwise up.
	v := newTestVerifier(t, healthyRunner(), testApp(), &healthyHandler{authBroken: true})

	report, err := v.HealthCheck(context.Background(), "inventory")
	require.NoError(t, err)

	assert.False(t, report.Healthy())
	c := checkByName(t, report, types.CheckAuthEnforced)
	assert.False(t, c.Passed)
	assert.Contains(t, c.Detail, "without authentication")

	// The failure never short-circuits the rest of the report.
	assert.Len(t, report.Checks, 5)
	assert.True(t, checkByName(t, report, types.CheckHTTPReachable).Passed)
}

func TestHealthCheckDetectsRailsErrorPage(t *testing.T) {
	handler := &healthyHandler{
		errorPageBody: `<html><h1>We're sorry, but something went wrong</h1></html>`,
	}
	v := newTestVerifier(t, healthyRunner(), testApp(), handler)

	report, err := v.HealthCheck(context.Background(), "inventory")
	require.NoError(t, err)

	c := checkByName(t, report, types.CheckHTTPReachable)
	assert.False(t, c.Passed)
	assert.Contains(t, c.Detail, "error page")
}

func TestHealthCheckInactiveService(t *testing.T) {
	runner := healthyRunner()
	runner.outputs["is-active"] = "inactive"
	v := newTestVerifier(t, runner, testApp(), &healthyHandler{})

	report, err := v.HealthCheck(context.Background(), "inventory")
	require.NoError(t, err)

	c := checkByName(t, report, types.CheckServiceActive)
	assert.False(t, c.Passed)
	assert.Contains(t, c.Detail, `"inactive"`)
	assert.False(t, report.Healthy())
}

func TestHealthCheckDBProbeFailure(t *testing.T) {
	runner := healthyRunner()
	runner.outputs["bash -c"] = "could not connect to server"
	v := newTestVerifier(t, runner, testApp(), &healthyHandler{})

	report, err := v.HealthCheck(context.Background(), "inventory")
	require.NoError(t, err)

	c := checkByName(t, report, types.CheckDBConnected)
	assert.False(t, c.Passed)
}

func TestHealthCheckAPIContractViolations(t *testing.T) {
	cases := map[string]string{
		"not json":    "<html>login</html>",
		"wrong shape": `{"items": []}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			v := newTestVerifier(t, healthyRunner(), testApp(), &healthyHandler{apiBody: body})

			report, err := v.HealthCheck(context.Background(), "inventory")
			require.NoError(t, err)

			c := checkByName(t, report, types.CheckAPIContract)
			assert.True(t, c.Applicable)
			assert.False(t, c.Passed)
		})
	}
}

func TestHealthCheckAPINotApplicableWithoutToken(t *testing.T) {
	app := testApp()
	app.APIToken = ""
	v := newTestVerifier(t, healthyRunner(), app, &healthyHandler{})

	report, err := v.HealthCheck(context.Background(), "inventory")
	require.NoError(t, err)

	c := checkByName(t, report, types.CheckAPIContract)
	assert.False(t, c.Applicable)
	assert.True(t, report.Healthy(), "inapplicable checks never fail the report")
}

func TestHealthCheckUnknownApp(t *testing.T) {
	cfg := &config.Config{HealthTimeout: config.Duration(time.Second), DeployUser: "deploy"}
	v := NewVerifier(&fakeRunner{}, &fakeStore{}, cfg, zerolog.Nop())

	_, err := v.HealthCheck(context.Background(), "ghost")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestDetectRailsError(t *testing.T) {
	isErr, msg := detectRailsError(200, "<h1>NoMethodError in Pages#index</h1> undefined method")
	assert.True(t, isErr)
	assert.Equal(t, "NoMethodError in Pages#index", msg)

	isErr, _ = detectRailsError(500, "whatever")
	assert.True(t, isErr)

	isErr, _ = detectRailsError(200, "<h1>Welcome</h1>")
	assert.False(t, isErr)
}
