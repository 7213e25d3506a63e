package types

import "time"

type Runtime string

const (
	RuntimeRails  Runtime = "rails"
	RuntimePython Runtime = "python"
)

// App is one row of the apps table: the routing identity, source location
// and credentials of a single managed application. Rows are never deleted;
// decommissioning only removes remote artifacts so the app can be redeployed.
type App struct {
	AppKey           string    `db:"app_key" validate:"required"`
	Domain           string    `db:"domain" validate:"required,fqdn"`
	Subdomain        string    `db:"subdomain"`
	SourceRepository string    `db:"source_repository" validate:"required"`
	Branch           string    `db:"branch"`
	DeployPath       string    `db:"deploy_path" validate:"required"`
	DatabaseName     string    `db:"database_name" validate:"required"`
	DatabaseUsername string    `db:"database_username" validate:"required"`
	DatabasePassword string    `db:"database_password" validate:"required"`
	SecretKeyBase    string    `db:"secret_key_base" validate:"required"`
	APIToken         string    `db:"api_token"`
	FDCAPIKey        string    `db:"fdc_api_key"`
	SMTPPassword     string    `db:"smtp_password"`
	Port             int       `db:"port" validate:"required,min=1024,max=65535"`
	Runtime          Runtime   `db:"runtime" validate:"required,oneof=rails python"`
	Enabled          bool      `db:"enabled"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// PublicURL is the address the reverse proxy serves this app on.
func (a *App) PublicURL() string {
	host := a.Domain
	if a.Subdomain != "" {
		host = a.Subdomain + "." + a.Domain
	}
	return "https://" + host
}

// Hostname is the FQDN used for the proxy server block and the certificate.
func (a *App) Hostname() string {
	if a.Subdomain != "" {
		return a.Subdomain + "." + a.Domain
	}
	return a.Domain
}

// UnitName is the systemd service this app runs under on the managed host.
func (a *App) UnitName() string {
	return a.AppKey + "-management.service"
}

// SecretMap flattens the row to its credential fields keyed by column name.
// Empty optional fields are omitted so they never render as NAME= lines.
func (a *App) SecretMap() map[string]string {
	secrets := map[string]string{
		"database_name":     a.DatabaseName,
		"database_username": a.DatabaseUsername,
		"database_password": a.DatabasePassword,
		"secret_key_base":   a.SecretKeyBase,
	}
	if a.APIToken != "" {
		secrets["api_token"] = a.APIToken
	}
	if a.FDCAPIKey != "" {
		secrets["fdc_api_key"] = a.FDCAPIKey
	}
	if a.SMTPPassword != "" {
		secrets["smtp_password"] = a.SMTPPassword
	}
	return secrets
}

type DeployMode string

const (
	ModeFirstTime      DeployMode = "first_time"
	ModeCodeAndMigrate DeployMode = "code_and_migrate"
	ModeMigrateOnly    DeployMode = "migrate_only"
)

func (m DeployMode) Valid() bool {
	switch m {
	case ModeFirstTime, ModeCodeAndMigrate, ModeMigrateOnly:
		return true
	}
	return false
}

// StepResult is the outcome of one ordered deployment or decommission step.
// Components exchange these instead of opaque errors so the CLI can always
// name the step that failed.
type StepResult struct {
	Step    string
	OK      bool
	Detail  string
	Elapsed time.Duration
}
