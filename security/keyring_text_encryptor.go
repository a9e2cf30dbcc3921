package security

import (
	"context"
	"fmt"
	"time"
)

// KeyRotationWindow gates when a retired key may still decrypt.
type KeyRotationWindow struct {
	NotBefore time.Time
	NotAfter  time.Time
}

func (w KeyRotationWindow) Allows(at time.Time) bool {
	ts := at.UTC()
	if !w.NotBefore.IsZero() && ts.Before(w.NotBefore.UTC()) {
		return false
	}
	if !w.NotAfter.IsZero() && ts.After(w.NotAfter.UTC()) {
		return false
	}
	return true
}

type KeyringDiagnostic struct {
	OccurredAt time.Time
	Operation  string
	KeyID      string
	Version    int
	Outcome    string
}

type KeyringOption func(*KeyringTextEncryptor)

type retiredKey struct {
	encryptor *AppKeyTextEncryptor
	window    KeyRotationWindow
}

// KeyringTextEncryptor encrypts with the active key and decrypts with
// whichever configured key produced the envelope, so stored secrets survive
// key rotation.
type KeyringTextEncryptor struct {
	active  *AppKeyTextEncryptor
	retired map[string]retiredKey
	hook    func(KeyringDiagnostic)
	now     func() time.Time
}

func NewKeyringTextEncryptor(active *AppKeyTextEncryptor, opts ...KeyringOption) (*KeyringTextEncryptor, error) {
	if active == nil {
		return nil, fmt.Errorf("security: active text encryptor is required")
	}
	keyring := &KeyringTextEncryptor{
		active:  active,
		retired: map[string]retiredKey{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(keyring)
		}
	}
	if _, clash := keyring.retired[keyringSlot(active.KeyID(), active.Version())]; clash {
		return nil, fmt.Errorf("security: active key %s v%d is also retired", active.KeyID(), active.Version())
	}
	return keyring, nil
}

// WithRetiredKey keeps encryptor available for decryption inside window.
func WithRetiredKey(encryptor *AppKeyTextEncryptor, window KeyRotationWindow) KeyringOption {
	return func(k *KeyringTextEncryptor) {
		if encryptor == nil {
			return
		}
		k.retired[keyringSlot(encryptor.KeyID(), encryptor.Version())] = retiredKey{encryptor: encryptor, window: window}
	}
}

func WithKeyringDiagnostics(hook func(KeyringDiagnostic)) KeyringOption {
	return func(k *KeyringTextEncryptor) {
		k.hook = hook
	}
}

func WithKeyringClock(now func() time.Time) KeyringOption {
	return func(k *KeyringTextEncryptor) {
		if now != nil {
			k.now = now
		}
	}
}

func (k *KeyringTextEncryptor) Encrypt(ctx context.Context, plaintext string) (string, error) {
	if k == nil {
		return "", fmt.Errorf("security: text encryptor is nil")
	}
	return k.active.Encrypt(ctx, plaintext)
}

func (k *KeyringTextEncryptor) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	if k == nil {
		return "", fmt.Errorf("security: text encryptor is nil")
	}
	meta, err := ParseEnvelopeMetadata(ciphertext)
	if err != nil {
		return "", err
	}
	if meta.KeyID == k.active.KeyID() && meta.Version == k.active.Version() {
		return k.active.Decrypt(ctx, ciphertext)
	}
	retired, ok := k.retired[keyringSlot(meta.KeyID, meta.Version)]
	if !ok {
		k.emit("decrypt", meta, "unknown_key")
		return "", fmt.Errorf("security: no key for %s v%d", meta.KeyID, meta.Version)
	}
	if !retired.window.Allows(k.now()) {
		k.emit("decrypt", meta, "outside_window")
		return "", fmt.Errorf("security: key %s v%d is outside its rotation window", meta.KeyID, meta.Version)
	}
	k.emit("decrypt", meta, "retired_key")
	return retired.encryptor.Decrypt(ctx, ciphertext)
}

// NeedsRotation reports whether ciphertext was sealed by a key other than
// the active one.
func (k *KeyringTextEncryptor) NeedsRotation(ciphertext string) bool {
	meta, err := ParseEnvelopeMetadata(ciphertext)
	if err != nil || k == nil {
		return false
	}
	return meta.KeyID != k.active.KeyID() || meta.Version != k.active.Version()
}

func (k *KeyringTextEncryptor) emit(operation string, meta EnvelopeMetadata, outcome string) {
	if k.hook == nil {
		return
	}
	k.hook(KeyringDiagnostic{
		OccurredAt: k.now(),
		Operation:  operation,
		KeyID:      meta.KeyID,
		Version:    meta.Version,
		Outcome:    outcome,
	})
}

func keyringSlot(keyID string, version int) string {
	return fmt.Sprintf("%s@%d", keyID, version)
}
