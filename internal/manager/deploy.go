package manager

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/remoteds/hostingctl/internal/config"
	"github.com/remoteds/hostingctl/internal/secrets"
	"github.com/remoteds/hostingctl/internal/ssh"
	"github.com/remoteds/hostingctl/internal/types"
)

// Store is the slice of the secret store the orchestrator needs.
type Store interface {
	GetApp(ctx context.Context, appKey string) (*types.App, error)
	AcquireDeployLock(ctx context.Context, appKey string) (bool, error)
	ReleaseDeployLock(ctx context.Context, appKey string) error
}

// Reporter receives step progress as it happens. Output must be emitted
// line by line, unbuffered; a silent run that fails with exit 255 and no
// message is the exact failure mode this tool exists to avoid.
type Reporter interface {
	StartStep(name string)
	FinishStep(result types.StepResult)
}

// Canonical step names. Tests assert their relative order, and operators see
// them verbatim in failure reports.
const (
	StepEnsureDirectories  = "ensure_remote_directories"
	StepProvisionDBUser    = "provision_db_user"
	StepFetchSource        = "fetch_source"
	StepInstallDeps        = "install_dependencies"
	StepMaterializeSecrets = "materialize_secrets"
	StepCreateDatabase     = "create_database"
	StepMigrateDatabase    = "migrate_database"
	StepBuildAssets        = "build_assets"
	StepWriteProxyConfig   = "write_proxy_config"
	StepIssueCertificate   = "issue_certificate"
	StepReloadAndRestart   = "reload_and_restart"
)

// DeploymentManager drives one application from "not deployed" or "stale" to
// "running latest code with correct configuration", one blocking remote
// command at a time. There is no automatic retry: a failing step halts the
// run, the operator diagnoses, fixes and redeploys.
type DeploymentManager struct {
	runner   ssh.Runner
	store    Store
	deployer *secrets.Deployer
	cfg      *config.Config
	reporter Reporter
	log      zerolog.Logger
}

func NewDeploymentManager(runner ssh.Runner, store Store, deployer *secrets.Deployer, cfg *config.Config, reporter Reporter, log zerolog.Logger) *DeploymentManager {
	return &DeploymentManager{
		runner:   runner,
		store:    store,
		deployer: deployer,
		cfg:      cfg,
		reporter: reporter,
		log:      log.With().Str("component", "deploy").Logger(),
	}
}

type step struct {
	name  string
	modes []types.DeployMode
	run   func(ctx context.Context, app *types.App) error
}

func (s step) runsIn(mode types.DeployMode) bool {
	for _, m := range s.modes {
		if m == mode {
			return true
		}
	}
	return false
}

var allModes = []types.DeployMode{types.ModeFirstTime, types.ModeCodeAndMigrate, types.ModeMigrateOnly}
var codeModes = []types.DeployMode{types.ModeFirstTime, types.ModeCodeAndMigrate}
var firstTimeOnly = []types.DeployMode{types.ModeFirstTime}

// steps returns the full ordered step list. Ordering is load-bearing:
// provision_db_user must precede materialize_secrets, which must precede
// create_database, and reload_and_restart is always last so new code and new
// secrets take effect together.
func (m *DeploymentManager) steps() []step {
	return []step{
		{StepEnsureDirectories, codeModes, m.ensureDirectories},
		{StepProvisionDBUser, firstTimeOnly, m.provisionDBUser},
		{StepFetchSource, codeModes, m.fetchSource},
		{StepInstallDeps, allModes, m.installDependencies},
		{StepMaterializeSecrets, allModes, m.materializeSecrets},
		{StepCreateDatabase, firstTimeOnly, m.createDatabase},
		{StepMigrateDatabase, allModes, m.migrateDatabase},
		{StepBuildAssets, codeModes, m.buildAssets},
		{StepWriteProxyConfig, codeModes, m.writeProxyConfig},
		{StepIssueCertificate, firstTimeOnly, m.issueCertificate},
		{StepReloadAndRestart, allModes, m.reloadAndRestart},
	}
}

// plan filters the ordered list down to the steps a mode executes.
func (m *DeploymentManager) plan(app *types.App, mode types.DeployMode) []step {
	var out []step
	for _, s := range m.steps() {
		if !s.runsIn(mode) {
			continue
		}
		// Asset builds only exist for the Rails web tier.
		if s.name == StepBuildAssets && app.Runtime != types.RuntimeRails {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Deploy runs the ordered step sequence for one application. It returns the
// results of every executed step; on failure the error names the failing
// step and the remaining steps are not attempted. Completed steps' effects
// stay on the host — there is no rollback.
func (m *DeploymentManager) Deploy(ctx context.Context, appKey string, mode types.DeployMode) ([]types.StepResult, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown deploy mode %q", mode)
	}

	app, err := m.store.GetApp(ctx, appKey)
	if err != nil {
		return nil, err
	}

	acquired, err := m.store.AcquireDeployLock(ctx, appKey)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("another deployment of %q is in progress", appKey)
	}
	defer func() {
		if err := m.store.ReleaseDeployLock(context.WithoutCancel(ctx), appKey); err != nil {
			m.log.Warn().Err(err).Str("app", appKey).Msg("failed to release deploy lock")
		}
	}()

	runID := uuid.NewString()
	logger := m.log.With().Str("run_id", runID).Str("app", appKey).Str("mode", string(mode)).Logger()
	logger.Info().Msg("deployment started")

	var results []types.StepResult
	for _, s := range m.plan(app, mode) {
		m.reporter.StartStep(s.name)
		started := time.Now()

		err := s.run(ctx, app)
		result := types.StepResult{
			Step:    s.name,
			OK:      err == nil,
			Elapsed: time.Since(started),
		}
		if err != nil {
			result.Detail = err.Error()
		}
		m.reporter.FinishStep(result)
		results = append(results, result)

		if err != nil {
			logger.Error().Str("step", s.name).Dur("elapsed", result.Elapsed).Msg("step failed")
			return results, &types.StepError{Step: s.name, Detail: excerpt(err.Error()), Err: err}
		}
		logger.Info().Str("step", s.name).Dur("elapsed", result.Elapsed).Msg("step succeeded")
	}

	logger.Info().Msg("deployment finished; run health-check before calling it done")
	return results, nil
}

func (m *DeploymentManager) ensureDirectories(ctx context.Context, app *types.App) error {
	commands := []string{
		fmt.Sprintf("sudo mkdir -p %s", app.DeployPath),
		fmt.Sprintf("sudo mkdir -p %s/%s", m.cfg.Paths.BackupDir, app.AppKey),
		fmt.Sprintf("sudo chown -R %s:%s %s", m.cfg.DeployUser, m.cfg.DeployUser, app.DeployPath),
	}

	for _, cmd := range commands {
		if err := m.runner.Run(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (m *DeploymentManager) provisionDBUser(ctx context.Context, app *types.App) error {
	exists, err := m.runner.Output(ctx, psqlScalar(fmt.Sprintf(
		"SELECT 1 FROM pg_roles WHERE rolname=%s", SQLLiteral(app.DatabaseUsername))))
	if err != nil {
		return err
	}
	if strings.TrimSpace(exists) == "1" {
		// Re-running first_time setup is a no-op here, not an error.
		return nil
	}

	create := PsqlCommand(fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD %s CREATEDB",
		app.DatabaseUsername, SQLLiteral(app.DatabasePassword)))
	return m.runner.Run(ctx, create)
}

func (m *DeploymentManager) fetchSource(ctx context.Context, app *types.App) error {
	// Clone if absent, otherwise fetch and hard-reset to the branch tip. The
	// repository URL uses an authenticated transport so private repositories
	// work with the deploy user's key.
	branch := app.Branch
	if branch == "" {
		branch = "main"
	}
	script := fmt.Sprintf(
		`if [ -d %s/.git ]; then git -C %s fetch origin && git -C %s reset --hard origin/%s; else git clone -b %s %s %s; fi`,
		app.DeployPath, app.DeployPath, app.DeployPath, branch, branch, app.SourceRepository, app.DeployPath)

	return m.runner.Run(ctx, m.asDeployUser(script))
}

func (m *DeploymentManager) installDependencies(ctx context.Context, app *types.App) error {
	var script string
	switch app.Runtime {
	case types.RuntimePython:
		script = fmt.Sprintf(
			`cd %s && python3 -m venv .venv && .venv/bin/pip install --quiet -r requirements.txt`,
			app.DeployPath)
	default:
		// Production-only install: a debugging gem leaking into production
		// has taken an app down before.
		script = fmt.Sprintf(
			`cd %s && bundle config set --local without 'development test' && bundle install --quiet`,
			app.DeployPath)
	}

	return m.runner.Run(ctx, m.asDeployUser(script))
}

func (m *DeploymentManager) materializeSecrets(ctx context.Context, app *types.App) error {
	// No restart here; the final step restarts once so code and secrets land
	// together.
	return m.deployer.DeployAppSecrets(ctx, app, secrets.Options{Restart: false})
}

func (m *DeploymentManager) createDatabase(ctx context.Context, app *types.App) error {
	exists, err := m.runner.Output(ctx, psqlScalar(fmt.Sprintf(
		"SELECT 1 FROM pg_database WHERE datname=%s", SQLLiteral(app.DatabaseName))))
	if err != nil {
		return err
	}
	if strings.TrimSpace(exists) == "1" {
		return nil
	}

	return m.runner.Run(ctx, fmt.Sprintf("sudo -u postgres createdb -O %s %s", app.DatabaseUsername, app.DatabaseName))
}

func (m *DeploymentManager) migrateDatabase(ctx context.Context, app *types.App) error {
	var script string
	switch app.Runtime {
	case types.RuntimePython:
		script = fmt.Sprintf(`cd %s && %s .venv/bin/alembic upgrade head`, app.DeployPath, EnvPrefix(app))
	default:
		// Applied migrations are no-ops, so this is always safe to run.
		script = fmt.Sprintf(`cd %s && %s RAILS_ENV=production bundle exec rails db:migrate`, app.DeployPath, EnvPrefix(app))
	}

	return m.runner.Run(ctx, m.asDeployUser(script))
}

func (m *DeploymentManager) buildAssets(ctx context.Context, app *types.App) error {
	script := fmt.Sprintf(`cd %s && %s RAILS_ENV=production bundle exec rails assets:precompile`,
		app.DeployPath, EnvPrefix(app))
	return m.runner.Run(ctx, m.asDeployUser(script))
}

func (m *DeploymentManager) writeProxyConfig(ctx context.Context, app *types.App) error {
	conf := renderServerBlock(app)
	confPath := fmt.Sprintf("%s/%s.conf", m.cfg.Paths.NginxAvailable, app.AppKey)

	if err := m.runner.WriteFile(ctx, confPath, conf); err != nil {
		return err
	}

	link := fmt.Sprintf("sudo ln -sf %s %s/%s.conf", confPath, m.cfg.Paths.NginxEnabled, app.AppKey)
	if err := m.runner.Run(ctx, link); err != nil {
		return err
	}

	return m.runner.Run(ctx, "sudo nginx -t")
}

func (m *DeploymentManager) issueCertificate(ctx context.Context, app *types.App) error {
	check := fmt.Sprintf("sudo test -d %s/%s && echo present || echo absent", m.cfg.Paths.LetsEncryptDir, app.Hostname())
	out, err := m.runner.Output(ctx, check)
	if err != nil {
		return err
	}
	if strings.TrimSpace(out) == "present" {
		return nil
	}

	issue := fmt.Sprintf("sudo %s --nginx -d %s --non-interactive --agree-tos -m %s",
		m.cfg.Paths.CertbotBin, app.Hostname(), m.cfg.AdminEmail)
	return m.runner.Run(ctx, issue)
}

func (m *DeploymentManager) reloadAndRestart(ctx context.Context, app *types.App) error {
	commands := []string{
		"sudo systemctl reload nginx",
		fmt.Sprintf("sudo systemctl enable %s", app.UnitName()),
		fmt.Sprintf("sudo systemctl restart %s", app.UnitName()),
	}

	for _, cmd := range commands {
		if err := m.runner.Run(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (m *DeploymentManager) asDeployUser(script string) string {
	return fmt.Sprintf("sudo -u %s bash -c %s", m.cfg.DeployUser, shellQuote(script))
}

// EnvPrefix renders the app's credentials as inline environment assignments
// for commands that run outside the service unit (migrations, asset builds,
// runtime database probes). Order is sorted for stable command strings.
// Command text is never logged.
func EnvPrefix(app *types.App) string {
	values := app.SecretMap()

	fields := make([]string, 0, len(values))
	for field := range values {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s=%s", strings.ToUpper(field), shellQuote(values[field])))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// PsqlCommand wraps a statement for execution as the postgres superuser. The
// statement travels through the remote shell single-quoted, so generated
// passwords containing $, backticks, or quotes reach the server byte for byte.
func PsqlCommand(statement string) string {
	return "sudo -u postgres psql -c " + shellQuote(statement)
}

func psqlScalar(statement string) string {
	return "sudo -u postgres psql -tAc " + shellQuote(statement)
}

// SQLLiteral renders s as a Postgres escape string literal. The E form escapes
// backslashes explicitly, so the result is the same regardless of the
// server's standard_conforming_strings setting.
func SQLLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "E'" + s + "'"
}

// excerpt trims a long failure message to the tail the operator needs.
func excerpt(msg string) string {
	const limit = 300
	if len(msg) <= limit {
		return msg
	}
	return "..." + msg[len(msg)-limit:]
}
