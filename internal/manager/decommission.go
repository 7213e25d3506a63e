package manager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/remoteds/hostingctl/internal/config"
	"github.com/remoteds/hostingctl/internal/ssh"
	"github.com/remoteds/hostingctl/internal/types"
)

// DecommissionStore needs the row regardless of the enabled flag: apps are
// usually disabled before they are torn down.
type DecommissionStore interface {
	GetAppAnyState(ctx context.Context, appKey string) (*types.App, error)
	AcquireDeployLock(ctx context.Context, appKey string) (bool, error)
	ReleaseDeployLock(ctx context.Context, appKey string) error
}

// Decommission step names, in execution order. The service stops before
// files are removed so nothing serves from a half-deleted tree, and the
// database drop comes last so an aborted run never loses data early.
const (
	StepStopService       = "stop_service"
	StepKillStrays        = "kill_stray_processes"
	StepRemoveServiceUnit = "remove_service_unit"
	StepRemoveProxyConfig = "remove_proxy_config"
	StepRemoveCertificate = "remove_certificate"
	StepRemoveFiles       = "remove_deployed_files"
	StepDropDatabase      = "drop_database_and_role"
)

// Decommissioner removes one application's remote footprint. Backup archives
// under the app-keyed backup directory are never touched, and the apps row
// itself survives so the app can be redeployed later.
type Decommissioner struct {
	runner   ssh.Runner
	store    DecommissionStore
	cfg      *config.Config
	reporter Reporter
	log      zerolog.Logger
}

func NewDecommissioner(runner ssh.Runner, store DecommissionStore, cfg *config.Config, reporter Reporter, log zerolog.Logger) *Decommissioner {
	return &Decommissioner{
		runner:   runner,
		store:    store,
		cfg:      cfg,
		reporter: reporter,
		log:      log.With().Str("component", "decommission").Logger(),
	}
}

// Decommission tears the app down. Without force it refuses before touching
// anything — the single confirmation gate in the whole tool.
func (d *Decommissioner) Decommission(ctx context.Context, appKey string, force bool) ([]types.StepResult, error) {
	if !force {
		return nil, &types.ConfirmationRequiredError{Operation: "decommission", AppKey: appKey}
	}

	app, err := d.store.GetAppAnyState(ctx, appKey)
	if err != nil {
		return nil, err
	}

	if err := d.guardPaths(app); err != nil {
		return nil, err
	}

	acquired, err := d.store.AcquireDeployLock(ctx, appKey)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("another operation on %q is in progress", appKey)
	}
	defer func() {
		if err := d.store.ReleaseDeployLock(context.WithoutCancel(ctx), appKey); err != nil {
			d.log.Warn().Err(err).Str("app", appKey).Msg("failed to release lock")
		}
	}()

	runID := uuid.NewString()
	logger := d.log.With().Str("run_id", runID).Str("app", appKey).Logger()
	logger.Info().Msg("decommission started")

	steps := []struct {
		name string
		run  func(ctx context.Context, app *types.App) error
	}{
		{StepStopService, d.stopService},
		{StepKillStrays, d.killStrays},
		{StepRemoveServiceUnit, d.removeServiceUnit},
		{StepRemoveProxyConfig, d.removeProxyConfig},
		{StepRemoveCertificate, d.removeCertificate},
		{StepRemoveFiles, d.removeFiles},
		{StepDropDatabase, d.dropDatabase},
	}

	var results []types.StepResult
	for _, s := range steps {
		d.reporter.StartStep(s.name)
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
		d.reporter.FinishStep(result)
		results = append(results, result)

		if err != nil {
			logger.Error().Str("step", s.name).Msg("step failed")
			return results, &types.StepError{Step: s.name, Detail: excerpt(err.Error()), Err: err}
		}
		logger.Info().Str("step", s.name).Msg("step succeeded")
	}

	logger.Info().Msg("decommission finished; backups preserved")
	return results, nil
}

// guardPaths rejects rows whose paths could make rm -rf destructive beyond
// the app's own tree.
func (d *Decommissioner) guardPaths(app *types.App) error {
	path := strings.TrimSpace(app.DeployPath)
	if path == "" || path == "/" || !strings.HasPrefix(path, "/") {
		return fmt.Errorf("refusing decommission: suspicious deploy path %q", app.DeployPath)
	}
	if strings.HasPrefix(path, d.cfg.Paths.BackupDir) {
		return fmt.Errorf("refusing decommission: deploy path %q is inside the backup directory", app.DeployPath)
	}
	return nil
}

func (d *Decommissioner) stopService(ctx context.Context, app *types.App) error {
	// The unit may already be gone on a re-run.
	return d.runner.Run(ctx, fmt.Sprintf("sudo systemctl stop %s 2>/dev/null || true", app.UnitName()))
}

func (d *Decommissioner) killStrays(ctx context.Context, app *types.App) error {
	// pkill exits 1 when nothing matched; that is success here.
	return d.runner.Run(ctx, fmt.Sprintf("sudo pkill -f %s || true", shellQuote(app.DeployPath)))
}

func (d *Decommissioner) removeServiceUnit(ctx context.Context, app *types.App) error {
	commands := []string{
		fmt.Sprintf("sudo systemctl disable %s 2>/dev/null || true", app.UnitName()),
		fmt.Sprintf("sudo rm -f %s/%s", d.cfg.Paths.SystemdDir, app.UnitName()),
		"sudo systemctl daemon-reload",
	}
	for _, cmd := range commands {
		if err := d.runner.Run(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (d *Decommissioner) removeProxyConfig(ctx context.Context, app *types.App) error {
	commands := []string{
		fmt.Sprintf("sudo rm -f %s/%s.conf", d.cfg.Paths.NginxEnabled, app.AppKey),
		fmt.Sprintf("sudo rm -f %s/%s.conf", d.cfg.Paths.NginxAvailable, app.AppKey),
		"sudo systemctl reload nginx",
	}
	for _, cmd := range commands {
		if err := d.runner.Run(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (d *Decommissioner) removeCertificate(ctx context.Context, app *types.App) error {
	return d.runner.Run(ctx, fmt.Sprintf("sudo %s delete --cert-name %s --non-interactive 2>/dev/null || true",
		d.cfg.Paths.CertbotBin, app.Hostname()))
}

func (d *Decommissioner) removeFiles(ctx context.Context, app *types.App) error {
	// Deploy tree only. Backup archives under Paths.BackupDir/<app_key> stay.
	return d.runner.Run(ctx, fmt.Sprintf("sudo rm -rf %s", app.DeployPath))
}

func (d *Decommissioner) dropDatabase(ctx context.Context, app *types.App) error {
	commands := []string{
		PsqlCommand(fmt.Sprintf("DROP DATABASE IF EXISTS %s", app.DatabaseName)),
		PsqlCommand(fmt.Sprintf("DROP ROLE IF EXISTS %s", app.DatabaseUsername)),
	}
	for _, cmd := range commands {
		if err := d.runner.Run(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}
