package command

import (
	"strings"

	"github.com/goliatone/go-connections/core"
)

const (
	TypeAddConnection     = "connections.command.add"
	TypeUpdateConnection  = "connections.command.update"
	TypeRemoveConnection  = "connections.command.remove"
	TypeRemoveConnections = "connections.command.remove_all"
	TypeCompleteSignIn    = "connections.command.signin.complete"
)

type AddConnectionMessage struct {
	UserID     string
	Connection core.Connection
}

func (AddConnectionMessage) Type() string { return TypeAddConnection }

func (m AddConnectionMessage) Validate() error {
	if err := validateUserID(m.UserID); err != nil {
		return err
	}
	return validateConnection(m.Connection)
}

type UpdateConnectionMessage struct {
	UserID     string
	Connection core.Connection
}

func (UpdateConnectionMessage) Type() string { return TypeUpdateConnection }

func (m UpdateConnectionMessage) Validate() error {
	if err := validateUserID(m.UserID); err != nil {
		return err
	}
	return validateConnection(m.Connection)
}

type RemoveConnectionMessage struct {
	UserID string
	Key    core.ConnectionKey
}

func (RemoveConnectionMessage) Type() string { return TypeRemoveConnection }

func (m RemoveConnectionMessage) Validate() error {
	if err := validateUserID(m.UserID); err != nil {
		return err
	}
	if strings.TrimSpace(m.Key.ProviderID) == "" {
		return commandValidationError("provider_id", "provider id is required")
	}
	if strings.TrimSpace(m.Key.ProviderUserID) == "" {
		return commandValidationError("provider_user_id", "provider user id is required")
	}
	return nil
}

type RemoveConnectionsMessage struct {
	UserID     string
	ProviderID string
}

func (RemoveConnectionsMessage) Type() string { return TypeRemoveConnections }

func (m RemoveConnectionsMessage) Validate() error {
	if err := validateUserID(m.UserID); err != nil {
		return err
	}
	if strings.TrimSpace(m.ProviderID) == "" {
		return commandValidationError("provider_id", "provider id is required")
	}
	return nil
}

// CompleteSignInMessage attaches the connection of a failed provider sign-in
// to UserID once the user has signed up or signed in locally.
type CompleteSignInMessage struct {
	UserID  string
	Attempt *core.ProviderSignInAttempt
}

func (CompleteSignInMessage) Type() string { return TypeCompleteSignIn }

func (m CompleteSignInMessage) Validate() error {
	if err := validateUserID(m.UserID); err != nil {
		return err
	}
	if m.Attempt == nil {
		return commandValidationError("attempt", "sign-in attempt is required")
	}
	return nil
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return commandValidationError("user_id", "user id is required")
	}
	return nil
}

func validateConnection(connection core.Connection) error {
	if connection == nil {
		return commandValidationError("connection", "connection is required")
	}
	key := connection.Key()
	if strings.TrimSpace(key.ProviderID) == "" {
		return commandValidationError("provider_id", "provider id is required")
	}
	if strings.TrimSpace(key.ProviderUserID) == "" {
		return commandValidationError("provider_user_id", "provider user id is required")
	}
	return nil
}
