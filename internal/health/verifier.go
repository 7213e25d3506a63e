package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/remoteds/hostingctl/internal/config"
	"github.com/remoteds/hostingctl/internal/manager"
	"github.com/remoteds/hostingctl/internal/ssh"
	"github.com/remoteds/hostingctl/internal/types"
)

// Application route conventions shared by every managed Rails app.
const (
	healthPath    = "/up"
	loginPath     = "/users/sign_in"
	protectedPath = "/"
	apiPathPrefix = "/api/inventory/"
)

// Store is the read-only slice of the secret store the verifier needs.
type Store interface {
	GetApp(ctx context.Context, appKey string) (*types.App, error)
}

// Verifier independently confirms a deployment actually serves traffic.
// "The orchestrator exited 0" proves the mechanics ran, not that the app
// works; the two are deliberately separate concerns.
type Verifier struct {
	runner ssh.Runner
	store  Store
	client *http.Client
	log    zerolog.Logger

	deployUser string

	// BaseURL overrides the app's public URL. Used by tests to point probes
	// at a local server.
	BaseURL string
}

func NewVerifier(runner ssh.Runner, store Store, cfg *config.Config, log zerolog.Logger) *Verifier {
	return &Verifier{
		runner: runner,
		store:  store,
		client: &http.Client{
			Timeout: cfg.HealthTimeout.Std(),
			// Redirects carry signal: redirect-to-login is how auth
			// enforcement is detected, so never follow them.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log:        log.With().Str("component", "health").Logger(),
		deployUser: cfg.DeployUser,
	}
}

// HealthCheck runs all applicable checks and always returns the full
// five-category report; checks never short-circuit each other.
func (v *Verifier) HealthCheck(ctx context.Context, appKey string) (*types.HealthReport, error) {
	app, err := v.store.GetApp(ctx, appKey)
	if err != nil {
		return nil, err
	}

	report := &types.HealthReport{
		RunID:  uuid.NewString(),
		AppKey: appKey,
	}

	checks := []struct {
		name string
		run  func(ctx context.Context, app *types.App) types.CheckResult
	}{
		{types.CheckServiceActive, v.checkServiceActive},
		{types.CheckHTTPReachable, v.checkHTTPReachable},
		{types.CheckAuthEnforced, v.checkAuthEnforced},
		{types.CheckDBConnected, v.checkDBConnected},
		{types.CheckAPIContract, v.checkAPIContract},
	}

	for _, c := range checks {
		result := c.run(ctx, app)
		report.Checks = append(report.Checks, result)
		if result.Applicable && !result.Passed {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", result.Name, result.Detail))
		}
	}

	v.log.Info().
		Str("run_id", report.RunID).
		Str("app", appKey).
		Bool("healthy", report.Healthy()).
		Int("failing", len(report.Failing())).
		Msg("health check complete")

	return report, nil
}

func (v *Verifier) baseURL(app *types.App) string {
	if v.BaseURL != "" {
		return v.BaseURL
	}
	return app.PublicURL()
}

func (v *Verifier) checkServiceActive(ctx context.Context, app *types.App) types.CheckResult {
	result := types.CheckResult{Name: types.CheckServiceActive, Applicable: true}

	out, err := v.runner.Output(ctx, fmt.Sprintf("systemctl is-active %s || true", app.UnitName()))
	state := strings.TrimSpace(out)
	if err != nil && state == "" {
		result.Detail = fmt.Sprintf("failed to query service state: %v", err)
		return result
	}

	if state == "active" {
		result.Passed = true
		result.Detail = "service is active"
	} else {
		result.Detail = fmt.Sprintf("service state is %q, expected \"active\"", state)
	}
	return result
}

func (v *Verifier) checkHTTPReachable(ctx context.Context, app *types.App) types.CheckResult {
	result := types.CheckResult{Name: types.CheckHTTPReachable, Applicable: true}

	status, body, err := v.get(ctx, v.baseURL(app)+healthPath)
	if err != nil {
		result.Detail = fmt.Sprintf("request failed: %v", err)
		return result
	}

	// 302 is acceptable: a redirect to login still proves the process
	// serves traffic.
	if status != http.StatusOK && status != http.StatusFound {
		result.Detail = fmt.Sprintf("expected 200 or 302 from %s, got %d", healthPath, status)
		return result
	}

	if isError, msg := detectRailsError(status, body); isError {
		result.Detail = fmt.Sprintf("application error page served: %s", msg)
		return result
	}

	result.Passed = true
	result.Detail = fmt.Sprintf("responding with %d", status)
	return result
}

func (v *Verifier) checkAuthEnforced(ctx context.Context, app *types.App) types.CheckResult {
	result := types.CheckResult{Name: types.CheckAuthEnforced, Applicable: true}

	status, _, err := v.get(ctx, v.baseURL(app)+protectedPath)
	if err != nil {
		result.Detail = fmt.Sprintf("request failed: %v", err)
		return result
	}

	// A 200 on a protected route without credentials is a security
	// regression; it must fail loudly, never slip through as "reachable".
	if status == http.StatusOK {
		result.Detail = "protected route served content without authentication"
		return result
	}
	if status != http.StatusFound && status != http.StatusSeeOther {
		result.Detail = fmt.Sprintf("expected redirect to login from protected route, got %d", status)
		return result
	}

	loginStatus, loginBody, err := v.get(ctx, v.baseURL(app)+loginPath)
	if err != nil {
		result.Detail = fmt.Sprintf("login page request failed: %v", err)
		return result
	}
	if loginStatus != http.StatusOK {
		result.Detail = fmt.Sprintf("login page returned %d", loginStatus)
		return result
	}

	lower := strings.ToLower(loginBody)
	if !strings.Contains(lower, "email") || !strings.Contains(lower, "password") {
		result.Detail = "login page loaded but is missing its form fields"
		return result
	}

	result.Passed = true
	result.Detail = "unauthenticated access redirects to a working login page"
	return result
}

func (v *Verifier) checkDBConnected(ctx context.Context, app *types.App) types.CheckResult {
	result := types.CheckResult{Name: types.CheckDBConnected, Applicable: true}

	// The query runs through the application's own runtime so it validates
	// the app's configuration wiring, not just network reachability.
	const sentinel = "__db_ok__"
	var script string
	switch app.Runtime {
	case types.RuntimePython:
		script = fmt.Sprintf(`cd %s && %s .venv/bin/alembic current > /dev/null && echo %s`,
			app.DeployPath, manager.EnvPrefix(app), sentinel)
	default:
		script = fmt.Sprintf(`cd %s && %s RAILS_ENV=production bundle exec rails runner 'ActiveRecord::Base.connection.execute("SELECT 1")' > /dev/null && echo %s`,
			app.DeployPath, manager.EnvPrefix(app), sentinel)
	}

	out, err := v.runner.Output(ctx, fmt.Sprintf("sudo -u %s bash -c %s", v.deployUser, quote(script)))
	if err != nil {
		result.Detail = fmt.Sprintf("runtime database probe failed: %v", err)
		return result
	}
	if !strings.Contains(out, sentinel) {
		result.Detail = "runtime database probe produced no confirmation"
		return result
	}

	result.Passed = true
	result.Detail = "application can query its database"
	return result
}

func (v *Verifier) checkAPIContract(ctx context.Context, app *types.App) types.CheckResult {
	result := types.CheckResult{Name: types.CheckAPIContract}

	if app.APIToken == "" {
		result.Detail = "app exposes no token-authenticated API"
		return result
	}
	result.Applicable = true

	status, body, err := v.get(ctx, v.baseURL(app)+apiPathPrefix+app.APIToken)
	if err != nil {
		result.Detail = fmt.Sprintf("request failed: %v", err)
		return result
	}
	if status != http.StatusOK {
		result.Detail = fmt.Sprintf("expected 200 with a valid token, got %d", status)
		return result
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		result.Detail = fmt.Sprintf("response is not a JSON object: %v", err)
		return result
	}

	expectedKey := app.AppKey + "s"
	if _, ok := payload[expectedKey]; !ok {
		result.Detail = fmt.Sprintf("response is missing expected top-level key %q", expectedKey)
		return result
	}

	result.Passed = true
	result.Detail = fmt.Sprintf("API returned well-formed JSON with %q", expectedKey)
	return result
}

func (v *Verifier) get(ctx context.Context, url string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", err
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, "", err
	}

	return resp.StatusCode, string(body), nil
}

// Rails error pages can hide behind a 200: scan the body for the telltale
// indicators and pull the heading when present.
var railsErrorIndicators = []string{
	"We're sorry, but something went wrong",
	"ActionController::RoutingError",
	"NoMethodError",
	"undefined method",
	"ActiveRecord::RecordNotFound",
	"Couldn't find",
	"uninitialized constant",
}

var headingPattern = regexp.MustCompile(`<h1[^>]*>([^<]+)</h1>`)

func detectRailsError(status int, body string) (bool, string) {
	if status >= http.StatusInternalServerError {
		return true, fmt.Sprintf("HTTP %d server error", status)
	}

	for _, indicator := range railsErrorIndicators {
		if strings.Contains(body, indicator) {
			if match := headingPattern.FindStringSubmatch(body); match != nil {
				return true, strings.TrimSpace(match[1])
			}
			return true, indicator
		}
	}

	return false, ""
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
