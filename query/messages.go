package query

import (
	"strings"

	"github.com/goliatone/go-connections/core"
)

const (
	TypeFindAllConnections        = "connections.query.find_all"
	TypeFindConnections           = "connections.query.find"
	TypeGetConnection             = "connections.query.get"
	TypeFindPrimaryConnection     = "connections.query.primary"
	TypeFindConnectionsToUsers    = "connections.query.to_users"
	TypeFindUserIDsWithConnection = "connections.query.owners.with_connection"
	TypeFindUserIDsConnectedTo    = "connections.query.owners.connected_to"
)

type FindAllConnectionsMessage struct {
	UserID string
}

func (FindAllConnectionsMessage) Type() string { return TypeFindAllConnections }

func (m FindAllConnectionsMessage) Validate() error {
	return validateUserID(m.UserID)
}

type FindConnectionsMessage struct {
	UserID     string
	ProviderID string
}

func (FindConnectionsMessage) Type() string { return TypeFindConnections }

func (m FindConnectionsMessage) Validate() error {
	if err := validateUserID(m.UserID); err != nil {
		return err
	}
	return validateProviderID(m.ProviderID)
}

type GetConnectionMessage struct {
	UserID string
	Key    core.ConnectionKey
}

func (GetConnectionMessage) Type() string { return TypeGetConnection }

func (m GetConnectionMessage) Validate() error {
	if err := validateUserID(m.UserID); err != nil {
		return err
	}
	if err := validateProviderID(m.Key.ProviderID); err != nil {
		return err
	}
	if strings.TrimSpace(m.Key.ProviderUserID) == "" {
		return queryValidationError("provider_user_id", "provider user id is required")
	}
	return nil
}

// FindPrimaryConnectionMessage selects the primary connection by provider id,
// or by capability when ProviderID is empty.
type FindPrimaryConnectionMessage struct {
	UserID     string
	ProviderID string
	Capability core.Capability
}

func (FindPrimaryConnectionMessage) Type() string { return TypeFindPrimaryConnection }

func (m FindPrimaryConnectionMessage) Validate() error {
	if err := validateUserID(m.UserID); err != nil {
		return err
	}
	if strings.TrimSpace(m.ProviderID) == "" && strings.TrimSpace(string(m.Capability)) == "" {
		return queryValidationError("provider_id", "provider id or capability is required")
	}
	return nil
}

type PrimaryConnection struct {
	Connection core.Connection
	Found      bool
}

type FindConnectionsToUsersMessage struct {
	UserID          string
	ProviderUserIDs map[string][]string
}

func (FindConnectionsToUsersMessage) Type() string { return TypeFindConnectionsToUsers }

func (m FindConnectionsToUsersMessage) Validate() error {
	if err := validateUserID(m.UserID); err != nil {
		return err
	}
	if len(m.ProviderUserIDs) == 0 {
		return queryValidationError("provider_user_ids", "at least one provider user id is required")
	}
	return nil
}

type FindUserIDsWithConnectionMessage struct {
	Connection core.Connection
}

func (FindUserIDsWithConnectionMessage) Type() string { return TypeFindUserIDsWithConnection }

func (m FindUserIDsWithConnectionMessage) Validate() error {
	if m.Connection == nil {
		return queryValidationError("connection", "connection is required")
	}
	return nil
}

type FindUserIDsConnectedToMessage struct {
	ProviderID      string
	ProviderUserIDs []string
}

func (FindUserIDsConnectedToMessage) Type() string { return TypeFindUserIDsConnectedTo }

func (m FindUserIDsConnectedToMessage) Validate() error {
	if err := validateProviderID(m.ProviderID); err != nil {
		return err
	}
	if len(m.ProviderUserIDs) == 0 {
		return queryValidationError("provider_user_ids", "at least one provider user id is required")
	}
	return nil
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return queryValidationError("user_id", "user id is required")
	}
	return nil
}

func validateProviderID(providerID string) error {
	if strings.TrimSpace(providerID) == "" {
		return queryValidationError("provider_id", "provider id is required")
	}
	return nil
}
