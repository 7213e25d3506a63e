package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration parses human-friendly values like "30s" or "10m" from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the operator-side configuration for hostingctl. It describes the
// single managed host, where the hosting database lives and the remote paths
// the orchestrator is allowed to touch. Application credentials never live
// here; they come from the secret store.
type Config struct {
	// DatabaseURL is the hosting database connection string. Exactly one of
	// DatabaseURL and EncryptedDatabaseURL must be set; the encrypted form is
	// decrypted with a key fetched from Infisical at startup.
	DatabaseURL          string `yaml:"database_url" validate:"required_without=EncryptedDatabaseURL"`
	EncryptedDatabaseURL string `yaml:"encrypted_database_url"`

	Infisical Infisical  `yaml:"infisical"`
	Remote    RemoteHost `yaml:"remote" validate:"required"`
	Paths     Paths      `yaml:"paths"`

	// AdminEmail is handed to certbot for certificate registration.
	AdminEmail string `yaml:"admin_email" validate:"omitempty,email"`

	// DeployUser owns deployed trees and runs application services.
	DeployUser string `yaml:"deploy_user"`

	// HealthTimeout bounds each HTTP probe of the health verifier.
	HealthTimeout Duration `yaml:"health_timeout"`

	LogLevel string `yaml:"log_level"`
	NoColor  bool   `yaml:"no_color"`
}

type Infisical struct {
	SiteURL     string `yaml:"site_url"`
	ProjectID   string `yaml:"project_id"`
	Environment string `yaml:"environment"`
	// KeyName is the Infisical secret holding the AES key for
	// EncryptedDatabaseURL.
	KeyName string `yaml:"key_name"`
}

type RemoteHost struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"min=0,max=65535"`
	Username string `yaml:"username" validate:"required"`
	KeyPath  string `yaml:"key_path" validate:"required"`
	// CommandTimeout bounds the wall clock of every remote command. Quoted
	// SSH invocations have hung indefinitely before; a timed-out step fails
	// instead of blocking the run.
	CommandTimeout Duration `yaml:"command_timeout"`
}

type Paths struct {
	NginxAvailable string `yaml:"nginx_available"`
	NginxEnabled   string `yaml:"nginx_enabled"`
	SystemdDir     string `yaml:"systemd_dir"`
	// BackupDir holds app-keyed database backup archives. The decommissioner
	// must never touch anything under it.
	BackupDir      string `yaml:"backup_dir"`
	CertbotBin     string `yaml:"certbot_bin"`
	LetsEncryptDir string `yaml:"letsencrypt_dir"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Remote.Port == 0 {
		c.Remote.Port = 22
	}
	if c.Remote.CommandTimeout == 0 {
		c.Remote.CommandTimeout = Duration(10 * time.Minute)
	}
	if c.HealthTimeout == 0 {
		c.HealthTimeout = Duration(10 * time.Second)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DeployUser == "" {
		c.DeployUser = "deploy"
	}
	if c.Infisical.SiteURL == "" {
		c.Infisical.SiteURL = "https://app.infisical.com"
	}
	if c.Infisical.Environment == "" {
		c.Infisical.Environment = "prod"
	}
	if c.Infisical.KeyName == "" {
		c.Infisical.KeyName = "HOSTING_DB_DECRYPTION_KEY"
	}
	if c.Paths.NginxAvailable == "" {
		c.Paths.NginxAvailable = "/etc/nginx/sites-available"
	}
	if c.Paths.NginxEnabled == "" {
		c.Paths.NginxEnabled = "/etc/nginx/sites-enabled"
	}
	if c.Paths.SystemdDir == "" {
		c.Paths.SystemdDir = "/etc/systemd/system"
	}
	if c.Paths.BackupDir == "" {
		c.Paths.BackupDir = "/var/backups/apps"
	}
	if c.Paths.CertbotBin == "" {
		c.Paths.CertbotBin = "certbot"
	}
	if c.Paths.LetsEncryptDir == "" {
		c.Paths.LetsEncryptDir = "/etc/letsencrypt/live"
	}
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.EncryptedDatabaseURL != "" && c.Infisical.ProjectID == "" {
		return fmt.Errorf("invalid config: encrypted_database_url requires infisical.project_id")
	}
	return nil
}
