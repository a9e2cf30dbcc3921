package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

type Option func(*AppKeyTextEncryptor)

// AppKeyTextEncryptor seals secrets with AES-GCM under an application key.
// Output is a prefixed envelope that records the key id and version.
type AppKeyTextEncryptor struct {
	key     []byte
	keyID   string
	version int
}

func WithKeyID(id string) Option {
	return func(e *AppKeyTextEncryptor) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			e.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(e *AppKeyTextEncryptor) {
		if version > 0 {
			e.version = version
		}
	}
}

// NewAppKeyTextEncryptor accepts a raw AES key of 16, 24 or 32 bytes. Any
// other material is hashed down to a 32 byte key.
func NewAppKeyTextEncryptor(keyMaterial []byte, opts ...Option) (*AppKeyTextEncryptor, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	encryptor := &AppKeyTextEncryptor{
		key:     normalizeKey(key),
		keyID:   "app-key",
		version: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(encryptor)
		}
	}
	return encryptor, nil
}

func NewAppKeyTextEncryptorFromString(key string, opts ...Option) (*AppKeyTextEncryptor, error) {
	return NewAppKeyTextEncryptor([]byte(key), opts...)
}

func (e *AppKeyTextEncryptor) Encrypt(_ context.Context, plaintext string) (string, error) {
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
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return encodeEnvelope(envelope{
		KeyID:      e.keyID,
		Version:    e.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	})
}

func (e *AppKeyTextEncryptor) Decrypt(_ context.Context, ciphertext string) (string, error) {
	if e == nil {
		return "", fmt.Errorf("security: text encryptor is nil")
	}
	parsed, err := decodeEnvelope(ciphertext)
	if err != nil {
		return "", err
	}
	if parsed.KeyID != "" && parsed.KeyID != e.keyID {
		return "", fmt.Errorf("security: key id mismatch: got %q want %q", parsed.KeyID, e.keyID)
	}
	if parsed.Version > 0 && parsed.Version != e.version {
		return "", fmt.Errorf("security: key version mismatch: got %d want %d", parsed.Version, e.version)
	}
	nonce, err := decodePayload("nonce", parsed.Nonce)
	if err != nil {
		return "", err
	}
	sealed, err := decodePayload("ciphertext payload", parsed.Ciphertext)
	if err != nil {
		return "", err
	}
	gcm, err := newGCM(e.key)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("security: invalid nonce size %d", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("security: decrypt payload: %w", err)
	}
	return string(plaintext), nil
}

func (e *AppKeyTextEncryptor) KeyID() string {
	if e == nil {
		return ""
	}
	return e.keyID
}

func (e *AppKeyTextEncryptor) Version() int {
	if e == nil {
		return 0
	}
	return e.version
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	return sum[:]
}
