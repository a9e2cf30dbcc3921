package core

import (
	"context"
	"fmt"

	"github.com/goliatone/go-connections/datastore"
)

const (
	PropertyProviderID     = "providerId"
	PropertyProviderUserID = "providerUserId"
	PropertyRank           = "rank"
	PropertyDisplayName    = "displayName"
	PropertyProfileURL     = "profileUrl"
	PropertyImageURL       = "imageUrl"
	PropertyAccessToken    = "accessToken"
	PropertySecret         = "secret"
	PropertyRefreshToken   = "refreshToken"
	PropertyExpireTime     = "expireTime"
)

// PrimaryRank is the rank of the first connection added for a provider.
const PrimaryRank int64 = 1

// ConnectionCodec converts between ConnectionData and persisted records.
// Only accessToken, secret and refreshToken are encrypted; nil secrets are
// stored as nil and never reach the encryptor.
type ConnectionCodec struct {
	encryptor TextEncryptor
	locator   ProviderLocator
}

func NewConnectionCodec(encryptor TextEncryptor, locator ProviderLocator) *ConnectionCodec {
	return &ConnectionCodec{encryptor: encryptor, locator: locator}
}

// ToProperties renders every persisted property of data at the given rank.
func (c *ConnectionCodec) ToProperties(ctx context.Context, data ConnectionData, rank int64) (map[string]any, error) {
	if c == nil || c.encryptor == nil {
		return nil, fmt.Errorf("core: connection codec is not configured")
	}
	accessToken, err := c.encrypt(ctx, data.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("core: encrypt access token: %w", err)
	}
	secret, err := c.encrypt(ctx, data.Secret)
	if err != nil {
		return nil, fmt.Errorf("core: encrypt secret: %w", err)
	}
	refreshToken, err := c.encrypt(ctx, data.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("core: encrypt refresh token: %w", err)
	}
	return map[string]any{
		PropertyProviderID:     data.ProviderID,
		PropertyProviderUserID: data.ProviderUserID,
		PropertyRank:           rank,
		PropertyDisplayName:    optionalValue(data.DisplayName),
		PropertyProfileURL:     optionalValue(data.ProfileURL),
		PropertyImageURL:       optionalValue(data.ImageURL),
		PropertyAccessToken:    optionalValue(accessToken),
		PropertySecret:         optionalValue(secret),
		PropertyRefreshToken:   optionalValue(refreshToken),
		PropertyExpireTime:     optionalInt(data.ExpireTime),
	}, nil
}

// NewRecord builds a complete record entity for data at key.
func (c *ConnectionCodec) NewRecord(ctx context.Context, key *datastore.Key, data ConnectionData, rank int64) (*datastore.Entity, error) {
	props, err := c.ToProperties(ctx, data, rank)
	if err != nil {
		return nil, err
	}
	entity := datastore.NewEntity(key)
	for name, value := range props {
		entity.Set(name, value)
	}
	return entity, nil
}

func (c *ConnectionCodec) ToData(ctx context.Context, entity *datastore.Entity) (ConnectionData, error) {
	if c == nil || c.encryptor == nil {
		return ConnectionData{}, fmt.Errorf("core: connection codec is not configured")
	}
	if entity == nil {
		return ConnectionData{}, fmt.Errorf("core: connection record is nil")
	}
	accessToken, err := c.decrypt(ctx, entity.OptionalString(PropertyAccessToken))
	if err != nil {
		return ConnectionData{}, fmt.Errorf("core: decrypt access token: %w", err)
	}
	secret, err := c.decrypt(ctx, entity.OptionalString(PropertySecret))
	if err != nil {
		return ConnectionData{}, fmt.Errorf("core: decrypt secret: %w", err)
	}
	refreshToken, err := c.decrypt(ctx, entity.OptionalString(PropertyRefreshToken))
	if err != nil {
		return ConnectionData{}, fmt.Errorf("core: decrypt refresh token: %w", err)
	}
	return ConnectionData{
		ProviderID:     entity.String(PropertyProviderID),
		ProviderUserID: entity.String(PropertyProviderUserID),
		DisplayName:    entity.OptionalString(PropertyDisplayName),
		ProfileURL:     entity.OptionalString(PropertyProfileURL),
		ImageURL:       entity.OptionalString(PropertyImageURL),
		AccessToken:    accessToken,
		Secret:         secret,
		RefreshToken:   refreshToken,
		ExpireTime:     entity.OptionalInt64(PropertyExpireTime),
	}, nil
}

// ToConnection decodes a record and builds a live connection through the
// factory registered for its provider.
func (c *ConnectionCodec) ToConnection(ctx context.Context, entity *datastore.Entity) (Connection, error) {
	if c == nil || c.locator == nil {
		return nil, fmt.Errorf("core: connection codec is not configured")
	}
	data, err := c.ToData(ctx, entity)
	if err != nil {
		return nil, err
	}
	factory, err := c.locator.FactoryFor(data.ProviderID)
	if err != nil {
		return nil, err
	}
	return factory.CreateConnection(data)
}

// Mapper adapts ToConnection to the query helpers.
func (c *ConnectionCodec) Mapper() datastore.EntityMapper[Connection] {
	return func(ctx context.Context, entity *datastore.Entity) (Connection, error) {
		return c.ToConnection(ctx, entity)
	}
}

func (c *ConnectionCodec) encrypt(ctx context.Context, value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	encrypted, err := c.encryptor.Encrypt(ctx, *value)
	if err != nil {
		return nil, err
	}
	return &encrypted, nil
}

func (c *ConnectionCodec) decrypt(ctx context.Context, value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	decrypted, err := c.encryptor.Decrypt(ctx, *value)
	if err != nil {
		return nil, err
	}
	return &decrypted, nil
}

func optionalValue(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func optionalInt(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}
