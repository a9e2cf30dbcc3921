package command

import (
	"context"

	"github.com/goliatone/go-connections/core"
)

// Directory resolves per-user repositories. *core.Service satisfies it.
type Directory interface {
	core.UsersConnectionRepository
}

type AddConnectionCommand struct {
	directory Directory
}

func NewAddConnectionCommand(directory Directory) *AddConnectionCommand {
	return &AddConnectionCommand{directory: directory}
}

func (c *AddConnectionCommand) Execute(ctx context.Context, msg AddConnectionMessage) error {
	if c == nil || c.directory == nil {
		return commandDependencyError("command: connection directory is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	repo, err := c.directory.CreateConnectionRepository(msg.UserID)
	if err != nil {
		return err
	}
	return repo.AddConnection(ctx, msg.Connection)
}

type UpdateConnectionCommand struct {
	directory Directory
}

func NewUpdateConnectionCommand(directory Directory) *UpdateConnectionCommand {
	return &UpdateConnectionCommand{directory: directory}
}

func (c *UpdateConnectionCommand) Execute(ctx context.Context, msg UpdateConnectionMessage) error {
	if c == nil || c.directory == nil {
		return commandDependencyError("command: connection directory is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	repo, err := c.directory.CreateConnectionRepository(msg.UserID)
	if err != nil {
		return err
	}
	return repo.UpdateConnection(ctx, msg.Connection)
}

type RemoveConnectionCommand struct {
	directory Directory
}

func NewRemoveConnectionCommand(directory Directory) *RemoveConnectionCommand {
	return &RemoveConnectionCommand{directory: directory}
}

func (c *RemoveConnectionCommand) Execute(ctx context.Context, msg RemoveConnectionMessage) error {
	if c == nil || c.directory == nil {
		return commandDependencyError("command: connection directory is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	repo, err := c.directory.CreateConnectionRepository(msg.UserID)
	if err != nil {
		return err
	}
	return repo.RemoveConnection(ctx, msg.Key)
}

type RemoveConnectionsCommand struct {
	directory Directory
}

func NewRemoveConnectionsCommand(directory Directory) *RemoveConnectionsCommand {
	return &RemoveConnectionsCommand{directory: directory}
}

func (c *RemoveConnectionsCommand) Execute(ctx context.Context, msg RemoveConnectionsMessage) error {
	if c == nil || c.directory == nil {
		return commandDependencyError("command: connection directory is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	repo, err := c.directory.CreateConnectionRepository(msg.UserID)
	if err != nil {
		return err
	}
	return repo.RemoveConnections(ctx, msg.ProviderID)
}

type CompleteSignInCommand struct {
	directory Directory
}

func NewCompleteSignInCommand(directory Directory) *CompleteSignInCommand {
	return &CompleteSignInCommand{directory: directory}
}

func (c *CompleteSignInCommand) Execute(ctx context.Context, msg CompleteSignInMessage) error {
	if c == nil || c.directory == nil {
		return commandDependencyError("command: connection directory is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return msg.Attempt.AddConnection(ctx, c.directory, msg.UserID)
}
