package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockKeyStable(t *testing.T) {
	assert.Equal(t, LockKey("inventory"), LockKey("inventory"))
	assert.NotEqual(t, LockKey("inventory"), LockKey("shop"))
}

func TestIsSecretColumn(t *testing.T) {
	for _, field := range []string{
		"database_password", "secret_key_base", "api_token", "fdc_api_key", "smtp_password",
	} {
		assert.True(t, IsSecretColumn(field), field)
	}

	// Identity and routing columns are not updatable through the secret path.
	for _, field := range []string{"app_key", "domain", "port", "deploy_path", "enabled", ""} {
		assert.False(t, IsSecretColumn(field), field)
	}
}
