package security

import "github.com/goliatone/go-connections/core"

var (
	_ core.TextEncryptor = (*AppKeyTextEncryptor)(nil)
	_ core.TextEncryptor = (*PasswordTextEncryptor)(nil)
	_ core.TextEncryptor = (*KeyringTextEncryptor)(nil)
	_ core.TextEncryptor = NoOpTextEncryptor{}
)
