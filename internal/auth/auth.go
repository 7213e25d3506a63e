package auth

import (
	"context"
	"fmt"
	"os"

	infisical "github.com/infisical/go-sdk"

	"github.com/remoteds/hostingctl/internal/config"
)

// InitializeInfisical authenticates against Infisical with universal auth.
// Client credentials come from the environment so they never live in the
// config file next to the encrypted database URL they unlock.
func InitializeInfisical(ctx context.Context, siteURL string) (infisical.InfisicalClientInterface, error) {
	clientID := os.Getenv("INFISICAL_CLIENT_ID")
	clientSecret := os.Getenv("INFISICAL_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("INFISICAL_CLIENT_ID and INFISICAL_CLIENT_SECRET must be set")
	}

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          siteURL,
		AutoTokenRefresh: true,
		SilentMode:       true,
	})

	_, err := client.Auth().UniversalAuthLogin(clientID, clientSecret)
	return client, err
}

// ResolveDatabaseURL returns the connection string for the secret store.
// A plaintext database_url in the config wins; otherwise the decryption key
// is fetched from Infisical and applied to encrypted_database_url.
func ResolveDatabaseURL(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.DatabaseURL != "" {
		return cfg.DatabaseURL, nil
	}

	client, err := InitializeInfisical(ctx, cfg.Infisical.SiteURL)
	if err != nil {
		return "", fmt.Errorf("authentication failed: %v", err)
	}

	keySecret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
		SecretKey:   cfg.Infisical.KeyName,
		Environment: cfg.Infisical.Environment,
		ProjectID:   cfg.Infisical.ProjectID,
		SecretPath:  "/",
	})
	if err != nil {
		return "", fmt.Errorf("error retrieving decryption key: %v", err)
	}

	dbURL, err := Decrypt(cfg.EncryptedDatabaseURL, keySecret.SecretValue)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt database URL: %v", err)
	}
	return dbURL, nil
}
