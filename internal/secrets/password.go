package secrets

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// passwordChars matches what the rotation tooling has always generated:
// letters, digits and a small set of shell-safe specials.
const passwordChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*"

// GeneratePassword returns a cryptographically secure random password for
// secret rotation.
func GeneratePassword(length int) (string, error) {
	if length < 16 {
		return "", fmt.Errorf("refusing to generate a password shorter than 16 characters")
	}

	out := make([]byte, length)
	max := big.NewInt(int64(len(passwordChars)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		out[i] = passwordChars[n.Int64()]
	}

	return string(out), nil
}
