package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/remoteds/hostingctl/internal/types"
)

// PostgresDB is the secret store: the apps and hms_config tables are the
// single source of truth for every credential the orchestrator materializes.
// Nothing read here is cached beyond one deployment run.
type PostgresDB struct {
	db *sql.DB
}

type Config struct {
	URI string
}

func NewPostgresDB(config Config) (*PostgresDB, error) {
	db, err := sql.Open("postgres", config.URI)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error pinging database: %w", err)
	}

	return &PostgresDB{db: db}, nil
}

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

const appColumns = `
    app_key, domain, subdomain, source_repository, branch, deploy_path,
    database_name, database_username, database_password,
    secret_key_base, api_token, fdc_api_key, smtp_password,
    port, runtime, enabled, created_at, updated_at
`

func scanApp(row interface{ Scan(...any) error }) (*types.App, error) {
	var app types.App
	var subdomain, apiToken, fdcKey, smtpPassword sql.NullString

	err := row.Scan(
		&app.AppKey,
		&app.Domain,
		&subdomain,
		&app.SourceRepository,
		&app.Branch,
		&app.DeployPath,
		&app.DatabaseName,
		&app.DatabaseUsername,
		&app.DatabasePassword,
		&app.SecretKeyBase,
		&apiToken,
		&fdcKey,
		&smtpPassword,
		&app.Port,
		&app.Runtime,
		&app.Enabled,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	app.Subdomain = subdomain.String
	app.APIToken = apiToken.String
	app.FDCAPIKey = fdcKey.String
	app.SMTPPassword = smtpPassword.String

	return &app, nil
}

// GetApp returns an enabled application row. Disabled or unknown keys both
// surface as ErrNotFound so callers cannot act on a row the operator parked.
func (p *PostgresDB) GetApp(ctx context.Context, appKey string) (*types.App, error) {
	query := `SELECT ` + appColumns + ` FROM apps WHERE app_key = $1 AND enabled = true`

	app, err := scanApp(p.db.QueryRowContext(ctx, query, appKey))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("app %q: %w", appKey, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error querying app %q: %w", appKey, err)
	}

	return app, nil
}

// GetAppAnyState ignores the enabled flag. Decommissioning usually targets a
// row the operator already disabled.
func (p *PostgresDB) GetAppAnyState(ctx context.Context, appKey string) (*types.App, error) {
	query := `SELECT ` + appColumns + ` FROM apps WHERE app_key = $1`

	app, err := scanApp(p.db.QueryRowContext(ctx, query, appKey))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("app %q: %w", appKey, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error querying app %q: %w", appKey, err)
	}

	return app, nil
}

func (p *PostgresDB) ListApps(ctx context.Context) ([]types.App, error) {
	query := `SELECT ` + appColumns + ` FROM apps ORDER BY app_key ASC`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying apps: %w", err)
	}
	defer rows.Close()

	var apps []types.App
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning app row: %w", err)
		}
		apps = append(apps, *app)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating app rows: %w", err)
	}

	return apps, nil
}

// GetAppSecrets returns the credential fields of one enabled app keyed by
// column name. Values are never logged by any caller.
func (p *PostgresDB) GetAppSecrets(ctx context.Context, appKey string) (map[string]string, error) {
	app, err := p.GetApp(ctx, appKey)
	if err != nil {
		return nil, err
	}

	return app.SecretMap(), nil
}

// GetHMSSecrets returns the management system's own credential set from the
// keyed hms_config table.
func (p *PostgresDB) GetHMSSecrets(ctx context.Context) (map[string]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT key, value FROM hms_config`)
	if err != nil {
		return nil, fmt.Errorf("error querying hms_config: %w", err)
	}
	defer rows.Close()

	secrets := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("error scanning hms_config row: %w", err)
		}
		secrets[key] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hms_config rows: %w", err)
	}

	if len(secrets) == 0 {
		return nil, fmt.Errorf("hms_config: %w", types.ErrNotFound)
	}

	return secrets, nil
}

// secretColumns is the allowlist for UpdateAppSecret. Routing identity and
// path fields are deliberately not updatable through the rotation path.
var secretColumns = map[string]bool{
	"database_password": true,
	"secret_key_base":   true,
	"api_token":         true,
	"fdc_api_key":       true,
	"smtp_password":     true,
}

// UpdateAppSecret rotates exactly one secret field transactionally.
func (p *PostgresDB) UpdateAppSecret(ctx context.Context, appKey, field, value string) error {
	if !secretColumns[field] {
		return fmt.Errorf("field %q is not a rotatable secret column", field)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	// field is allowlisted above, safe to interpolate.
	query := fmt.Sprintf(`UPDATE apps SET %s = $1, updated_at = NOW() WHERE app_key = $2`, field)

	res, err := tx.ExecContext(ctx, query, value, appKey)
	if err != nil {
		return fmt.Errorf("error updating %s for app %q: %w", field, appKey, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("app %q: %w", appKey, types.ErrNotFound)
	}

	return tx.Commit()
}

// IsSecretColumn reports whether field is allowed through the rotation path.
func IsSecretColumn(field string) bool {
	return secretColumns[field]
}
