package security

import "context"

// NoOpTextEncryptor stores secrets as given. Development and tests only.
type NoOpTextEncryptor struct{}

func (NoOpTextEncryptor) Encrypt(_ context.Context, plaintext string) (string, error) {
	return plaintext, nil
}

func (NoOpTextEncryptor) Decrypt(_ context.Context, ciphertext string) (string, error) {
	return ciphertext, nil
}
