package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateKey produces a fresh AES-256 key, base64-encoded for storage in
// Infisical. Encrypt and Decrypt accept the encoded form directly.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate key: %v", err)
	}

	return base64.StdEncoding.EncodeToString(key), nil
}

// keyBytes accepts either 32 raw bytes or the base64 encoding of 32 bytes,
// the form GenerateKey emits.
func keyBytes(key string) ([]byte, error) {
	if len(key) == 32 {
		return []byte(key), nil
	}
	raw, err := base64.StdEncoding.DecodeString(key)
	if err == nil && len(raw) == 32 {
		return raw, nil
	}
	return nil, fmt.Errorf("key must be 32 bytes, raw or base64-encoded")
}

// Decrypt reverses the AES-256-CBC encryption applied to stored connection
// strings. The IV is prepended to the ciphertext before base64 encoding.
func Decrypt(encrypted string, key string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", err
	}
	if len(data) < aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext is not a whole number of blocks")
	}

	raw, err := keyBytes(key)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return "", err
	}

	iv := data[:aes.BlockSize]
	data = data[aes.BlockSize:]

	mode := cipher.NewCBCDecrypter(block, iv)
	decrypted := make([]byte, len(data))
	mode.CryptBlocks(decrypted, data)

	paddingLen := int(decrypted[len(decrypted)-1])
	if paddingLen < 1 || paddingLen > aes.BlockSize || paddingLen > len(decrypted) {
		return "", fmt.Errorf("invalid padding")
	}
	return string(decrypted[:len(decrypted)-paddingLen]), nil
}

// Encrypt is the inverse of Decrypt, used when seeding or rotating the
// encrypted database URL.
func Encrypt(plaintext string, key string) (string, error) {
	raw, err := keyBytes(key)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return "", err
	}

	paddingLen := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := make([]byte, len(plaintext)+paddingLen)
	copy(padded, plaintext)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(paddingLen)
	}

	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(out[aes.BlockSize:], padded)

	return base64.StdEncoding.EncodeToString(out), nil
}
