package secrets

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/remoteds/hostingctl/internal/config"
	"github.com/remoteds/hostingctl/internal/ssh"
	"github.com/remoteds/hostingctl/internal/types"
)

// Managed-section markers. Everything between them belongs to hostingctl;
// everything outside is preserved byte for byte.
const (
	markerBegin = "# --- BEGIN HOSTINGCTL MANAGED SECRETS ---"
	markerEnd   = "# --- END HOSTINGCTL MANAGED SECRETS ---"
)

// Required secret fields per unit kind; checked before any remote command
// runs so an incomplete row never half-writes a unit file.
var requiredAppFields = []string{
	"database_name",
	"database_username",
	"database_password",
	"secret_key_base",
}

var requiredHMSFields = []string{
	"database_url",
	"jwt_secret",
	"deploy_path",
	"port",
}

// Deployer materializes credentials as systemd environment assignments on
// the managed host. Secrets only ever exist in the unit file's managed
// section, never as standalone files on the target.
type Deployer struct {
	runner     ssh.Runner
	systemdDir string
	deployUser string
	log        zerolog.Logger
}

type Options struct {
	// Restart the service after the reload. Skipped when secrets are staged
	// ahead of a code deploy; the orchestrator restarts once at the end so
	// new code and new secrets take effect together.
	Restart bool
}

func NewDeployer(runner ssh.Runner, cfg *config.Config, log zerolog.Logger) *Deployer {
	return &Deployer{
		runner:     runner,
		systemdDir: cfg.Paths.SystemdDir,
		deployUser: cfg.DeployUser,
		log:        log.With().Str("component", "secrets").Logger(),
	}
}

// DeployAppSecrets rewrites the managed section of one application's unit
// file. Re-running with unchanged secrets produces a byte-identical file.
func (d *Deployer) DeployAppSecrets(ctx context.Context, app *types.App, opts Options) error {
	values := app.SecretMap()

	for _, field := range requiredAppFields {
		if values[field] == "" {
			return &types.IncompleteSecretError{AppKey: app.AppKey, Field: field}
		}
	}

	section := RenderEnvironmentSection(values)

	var fresh string
	switch app.Runtime {
	case types.RuntimePython:
		fresh = d.renderPythonUnit(app, section)
	default:
		fresh = d.renderRailsUnit(app, section)
	}

	return d.installUnit(ctx, app.UnitName(), fresh, section, opts)
}

// DeployHMSSecrets does the same for the management system's own service,
// driven by the hms_config key set instead of an apps row.
func (d *Deployer) DeployHMSSecrets(ctx context.Context, values map[string]string, opts Options) error {
	for _, field := range requiredHMSFields {
		if values[field] == "" {
			return &types.IncompleteSecretError{AppKey: "hms", Field: field}
		}
	}

	secretValues := make(map[string]string, len(values))
	for k, v := range values {
		// deploy_path and port shape the unit itself, they are not secrets.
		if k == "deploy_path" || k == "port" {
			continue
		}
		secretValues[k] = v
	}

	section := RenderEnvironmentSection(secretValues)
	fresh := d.renderHMSUnit(values["deploy_path"], values["port"], section)

	return d.installUnit(ctx, "hms.service", fresh, section, opts)
}

func (d *Deployer) installUnit(ctx context.Context, unitName, fresh, section string, opts Options) error {
	unitPath := d.systemdDir + "/" + unitName

	existing, err := d.runner.Output(ctx, fmt.Sprintf("sudo cat %s 2>/dev/null || true", unitPath))
	if err != nil {
		return fmt.Errorf("failed to read unit %s: %w", unitName, err)
	}

	content := fresh
	if strings.TrimSpace(existing) != "" {
		content, err = ReplaceManagedSection(existing, section)
		if err != nil {
			return fmt.Errorf("unit %s: %w", unitName, err)
		}
	}

	if content == existing {
		d.log.Debug().Str("unit", unitName).Msg("unit file unchanged, skipping write")
	} else {
		if err := d.runner.WriteFile(ctx, unitPath, content); err != nil {
			return err
		}
	}

	if err := d.runner.Run(ctx, "sudo systemctl daemon-reload"); err != nil {
		return fmt.Errorf("daemon-reload failed: %w", err)
	}

	if opts.Restart {
		if err := d.runner.Run(ctx, fmt.Sprintf("sudo systemctl restart %s", unitName)); err != nil {
			return fmt.Errorf("restart of %s failed: %w", unitName, err)
		}
	}

	d.log.Info().Str("unit", unitName).Bool("restarted", opts.Restart).Msg("secrets materialized")
	return nil
}

// RenderEnvironmentSection renders the managed block: one Environment line
// per field, sorted by name so repeat runs diff clean.
func RenderEnvironmentSection(values map[string]string) string {
	fields := make([]string, 0, len(values))
	for field := range values {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString(markerBegin)
	b.WriteString("\n")
	for _, field := range fields {
		b.WriteString(fmt.Sprintf("Environment=\"%s=%s\"\n", envName(field), escapeUnitValue(values[field])))
	}
	b.WriteString(markerEnd)
	return b.String()
}

// ReplaceManagedSection swaps only the delimited block, preserving every
// other directive in the file.
func ReplaceManagedSection(unit, section string) (string, error) {
	begin := strings.Index(unit, markerBegin)
	end := strings.Index(unit, markerEnd)

	if begin == -1 || end == -1 || end < begin {
		return "", fmt.Errorf("no managed secrets section found; refusing to modify hand-edited unit")
	}

	return unit[:begin] + section + unit[end+len(markerEnd):], nil
}

func envName(field string) string {
	return strings.ToUpper(field)
}

// systemd Environment= values are double quoted; escape the two characters
// that would break out of the quoting.
func escapeUnitValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return v
}

func (d *Deployer) renderRailsUnit(app *types.App, section string) string {
	return fmt.Sprintf(`[Unit]
Description=%s management system
After=network.target postgresql.service

[Service]
Type=simple
User=%s
WorkingDirectory=%s
Environment=RAILS_ENV=production
%s
ExecStart=/usr/bin/env bundle exec puma -p %d -e production
Restart=always
RestartSec=5

[Install]
WantedBy=multi-user.target
`, app.AppKey, d.deployUser, app.DeployPath, section, app.Port)
}

func (d *Deployer) renderPythonUnit(app *types.App, section string) string {
	return fmt.Sprintf(`[Unit]
Description=%s service
After=network.target postgresql.service

[Service]
Type=simple
User=%s
WorkingDirectory=%s
%s
ExecStart=%s/.venv/bin/uvicorn main:app --host 127.0.0.1 --port %d
Restart=always
RestartSec=5

[Install]
WantedBy=multi-user.target
`, app.AppKey, d.deployUser, app.DeployPath, section, app.DeployPath, app.Port)
}

func (d *Deployer) renderHMSUnit(deployPath, port, section string) string {
	return fmt.Sprintf(`[Unit]
Description=hosting management system
After=network.target postgresql.service

[Service]
Type=simple
User=%s
WorkingDirectory=%s
%s
ExecStart=%s/.venv/bin/uvicorn main:app --host 127.0.0.1 --port %s
Restart=always
RestartSec=5

[Install]
WantedBy=multi-user.target
`, d.deployUser, deployPath, section, deployPath, port)
}
