package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// Two-factor secrets are stored sealed with AES-256-GCM. The owning account
// id is bound as additional data, so a value copied onto another account
// does not open.

var (
	ErrEncryptionNotConfigured = errors.New("encryption not configured")
	ErrSealedSecretMalformed   = errors.New("sealed secret is malformed")
)

const (
	sealKeySalt = "basic-login-secret-seal"
	sealKeyInfo = "totp-secret"
	sealPrefix  = "v1."
)

var sealKey []byte

// ConfigureEncryption derives the sealing key from secret. An empty secret
// leaves the current key in place.
func ConfigureEncryption(secret string) {
	if secret == "" {
		return
	}
	key := make([]byte, 32)
	reader := hkdf.New(sha256.New, []byte(secret), []byte(sealKeySalt), []byte(sealKeyInfo))
	if _, err := io.ReadFull(reader, key); err != nil {
		panic(fmt.Sprintf("failed to derive sealing key: %v", err))
	}
	sealKey = key
}

func sealer() (cipher.AEAD, error) {
	if sealKey == nil {
		return nil, ErrEncryptionNotConfigured
	}
	block, err := aes.NewCipher(sealKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// SealSecret encrypts plaintext for owner.
func SealSecret(owner uuid.UUID, plaintext string) (string, error) {
	aead, err := sealer()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), owner[:])
	return sealPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// OpenSecret reverses SealSecret. It fails when the value was sealed for a
// different owner or under a different key.
func OpenSecret(owner uuid.UUID, sealed string) (string, error) {
	aead, err := sealer()
	if err != nil {
		return "", err
	}
	encoded, ok := strings.CutPrefix(sealed, sealPrefix)
	if !ok {
		return "", ErrSealedSecretMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil || len(raw) < aead.NonceSize() {
		return "", ErrSealedSecretMalformed
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, owner[:])
	if err != nil {
		return "", fmt.Errorf("open sealed secret: %w", err)
	}
	return string(plaintext), nil
}
