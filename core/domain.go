package core

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-connections/datastore"
)

// Capability tags the provider API a connection speaks. Interceptors are
// dispatched on an exact tag match.
type Capability string

func (c Capability) String() string {
	return string(c)
}

// ConnectionKey identifies a remote identity.
type ConnectionKey struct {
	ProviderID     string `json:"provider_id"`
	ProviderUserID string `json:"provider_user_id"`
}

func NewConnectionKey(providerID string, providerUserID string) ConnectionKey {
	return ConnectionKey{
		ProviderID:     strings.TrimSpace(providerID),
		ProviderUserID: strings.TrimSpace(providerUserID),
	}
}

func (k ConnectionKey) Validate() error {
	if strings.TrimSpace(k.ProviderID) == "" {
		return invalidArgument("provider_id", "provider id is required")
	}
	if strings.TrimSpace(k.ProviderUserID) == "" {
		return invalidArgument("provider_user_id", "provider user id is required")
	}
	return nil
}

func (k ConnectionKey) String() string {
	return k.ProviderID + ":" + k.ProviderUserID
}

// ConnectionData is the provider agnostic snapshot of a connection. Secrets
// are plaintext in memory and nil when absent.
type ConnectionData struct {
	ProviderID     string  `json:"provider_id"`
	ProviderUserID string  `json:"provider_user_id"`
	DisplayName    *string `json:"display_name,omitempty"`
	ProfileURL     *string `json:"profile_url,omitempty"`
	ImageURL       *string `json:"image_url,omitempty"`
	AccessToken    *string `json:"access_token,omitempty"`
	Secret         *string `json:"secret,omitempty"`
	RefreshToken   *string `json:"refresh_token,omitempty"`
	ExpireTime     *int64  `json:"expire_time,omitempty"`
}

func (d ConnectionData) Key() ConnectionKey {
	return ConnectionKey{ProviderID: d.ProviderID, ProviderUserID: d.ProviderUserID}
}

// Equal compares values, not pointer identity.
func (d ConnectionData) Equal(other ConnectionData) bool {
	return d.ProviderID == other.ProviderID &&
		d.ProviderUserID == other.ProviderUserID &&
		equalString(d.DisplayName, other.DisplayName) &&
		equalString(d.ProfileURL, other.ProfileURL) &&
		equalString(d.ImageURL, other.ImageURL) &&
		equalString(d.AccessToken, other.AccessToken) &&
		equalString(d.Secret, other.Secret) &&
		equalString(d.RefreshToken, other.RefreshToken) &&
		equalInt64(d.ExpireTime, other.ExpireTime)
}

// Clone detaches every optional field from the receiver.
func (d ConnectionData) Clone() ConnectionData {
	return ConnectionData{
		ProviderID:     d.ProviderID,
		ProviderUserID: d.ProviderUserID,
		DisplayName:    cloneString(d.DisplayName),
		ProfileURL:     cloneString(d.ProfileURL),
		ImageURL:       cloneString(d.ImageURL),
		AccessToken:    cloneString(d.AccessToken),
		Secret:         cloneString(d.Secret),
		RefreshToken:   cloneString(d.RefreshToken),
		ExpireTime:     cloneInt64(d.ExpireTime),
	}
}

// Connection is a live, provider-bound credential and profile.
type Connection interface {
	Key() ConnectionKey
	Capability() Capability
	Data() ConnectionData
}

// DataConnection is the default Connection backed by a data snapshot.
type DataConnection struct {
	capability Capability
	data       ConnectionData
}

func NewDataConnection(capability Capability, data ConnectionData) *DataConnection {
	return &DataConnection{capability: capability, data: data.Clone()}
}

func (c *DataConnection) Key() ConnectionKey {
	if c == nil {
		return ConnectionKey{}
	}
	return c.data.Key()
}

func (c *DataConnection) Capability() Capability {
	if c == nil {
		return ""
	}
	return c.capability
}

func (c *DataConnection) Data() ConnectionData {
	if c == nil {
		return ConnectionData{}
	}
	return c.data.Clone()
}

// ConnectionID is the composite identity of a persisted connection record.
type ConnectionID struct {
	UserID         string
	ProviderID     string
	ProviderUserID string
}

func NewConnectionID(userID string, key ConnectionKey) ConnectionID {
	return ConnectionID{UserID: userID, ProviderID: key.ProviderID, ProviderUserID: key.ProviderUserID}
}

func (id ConnectionID) ConnectionKey() ConnectionKey {
	return ConnectionKey{ProviderID: id.ProviderID, ProviderUserID: id.ProviderUserID}
}

// Name renders userId-providerId-providerUserId. Components are escaped so a
// separator inside an id cannot collide with another triple.
func (id ConnectionID) Name() string {
	return escapeIDComponent(id.UserID) + "-" +
		escapeIDComponent(id.ProviderID) + "-" +
		escapeIDComponent(id.ProviderUserID)
}

func (id ConnectionID) String() string {
	return id.Name()
}

// DatastoreKey builds the record key parented by the owning user's key.
func (id ConnectionID) DatastoreKey(kinds KindNames) *datastore.Key {
	return datastore.NewKey(kinds.Connection, id.Name(), kinds.UserKey(id.UserID))
}

func ParseConnectionID(name string) (ConnectionID, error) {
	parts := strings.Split(name, "-")
	if len(parts) != 3 {
		return ConnectionID{}, invalidArgument("connection_id", fmt.Sprintf("malformed connection id %q", name))
	}
	out := make([]string, 0, 3)
	for _, part := range parts {
		value, err := unescapeIDComponent(part)
		if err != nil {
			return ConnectionID{}, invalidArgument("connection_id", err.Error())
		}
		out = append(out, value)
	}
	return ConnectionID{UserID: out[0], ProviderID: out[1], ProviderUserID: out[2]}, nil
}

// KindNames holds the record kinds, including any tenant prefix.
type KindNames struct {
	User       string
	Connection string
}

func (k KindNames) UserKey(userID string) *datastore.Key {
	return datastore.NewKey(k.User, userID, nil)
}

var idEscaper = strings.NewReplacer("%", "%25", "-", "%2D")

func escapeIDComponent(value string) string {
	return idEscaper.Replace(value)
}

func unescapeIDComponent(value string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		if value[i] != '%' {
			b.WriteByte(value[i])
			continue
		}
		if i+2 >= len(value) {
			return "", fmt.Errorf("truncated escape in %q", value)
		}
		switch value[i+1 : i+3] {
		case "25":
			b.WriteByte('%')
		case "2D", "2d":
			b.WriteByte('-')
		default:
			return "", fmt.Errorf("unknown escape %q in %q", value[i:i+3], value)
		}
		i += 2
	}
	return b.String(), nil
}

func StringPtr(value string) *string {
	return &value
}

func Int64Ptr(value int64) *int64 {
	return &value
}

func equalString(a *string, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalInt64(a *int64, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func cloneInt64(value *int64) *int64 {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
