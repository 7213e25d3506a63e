package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePassword(t *testing.T) {
	pw, err := GeneratePassword(32)
	require.NoError(t, err)
	assert.Len(t, pw, 32)

	for _, c := range pw {
		assert.True(t, strings.ContainsRune(passwordChars, c), "unexpected character %q", c)
	}
}

func TestGeneratePasswordRejectsShortLengths(t *testing.T) {
	_, err := GeneratePassword(8)
	assert.Error(t, err)
}

func TestGeneratePasswordUnique(t *testing.T) {
	a, err := GeneratePassword(32)
	require.NoError(t, err)
	b, err := GeneratePassword(32)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
