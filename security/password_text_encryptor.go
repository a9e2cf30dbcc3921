package security

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	passwordIterations = 1024
	passwordKeyLength  = 32
)

// PasswordTextEncryptor derives an AES-256 key from a password and a hex
// salt with PBKDF2-SHA1, then seals values with AES-GCM. Output is the hex
// encoding of nonce followed by ciphertext.
type PasswordTextEncryptor struct {
	key []byte
}

func NewPasswordTextEncryptor(password string, salt string) (*PasswordTextEncryptor, error) {
	if password == "" {
		return nil, fmt.Errorf("security: password is required")
	}
	decodedSalt, err := hex.DecodeString(strings.TrimSpace(salt))
	if err != nil {
		return nil, fmt.Errorf("security: salt must be hex encoded: %w", err)
	}
	if len(decodedSalt) == 0 {
		return nil, fmt.Errorf("security: salt is required")
	}
	return &PasswordTextEncryptor{
		key: pbkdf2.Key([]byte(password), decodedSalt, passwordIterations, passwordKeyLength, sha1.New),
	}, nil
}

// GenerateSalt returns a random 8 byte salt in hex.
func GenerateSalt() (string, error) {
	salt := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("security: salt generation failed: %w", err)
	}
	return hex.EncodeToString(salt), nil
}

func (e *PasswordTextEncryptor) Encrypt(_ context.Context, plaintext string) (string, error) {
	if e == nil {
		return "", fmt.Errorf("security: text encryptor is nil")
	}
	gcm, err := newGCM(e.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("security: nonce generation failed: %w", err)
	}
	return hex.EncodeToString(gcm.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

func (e *PasswordTextEncryptor) Decrypt(_ context.Context, ciphertext string) (string, error) {
	if e == nil {
		return "", fmt.Errorf("security: text encryptor is nil")
	}
	raw, err := hex.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return "", fmt.Errorf("security: ciphertext must be hex encoded: %w", err)
	}
	gcm, err := newGCM(e.key)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("security: ciphertext is too short")
	}
	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("security: decrypt payload: %w", err)
	}
	return string(plaintext), nil
}
