package connections

import (
	"fmt"

	connectionscommand "github.com/goliatone/go-connections/command"
	"github.com/goliatone/go-connections/core"
	connectionsquery "github.com/goliatone/go-connections/query"
)

// Directory is the cross-user repository the facade handlers share.
type Directory interface {
	core.UsersConnectionRepository
}

type Commands struct {
	AddConnection     *connectionscommand.AddConnectionCommand
	UpdateConnection  *connectionscommand.UpdateConnectionCommand
	RemoveConnection  *connectionscommand.RemoveConnectionCommand
	RemoveConnections *connectionscommand.RemoveConnectionsCommand
	CompleteSignIn    *connectionscommand.CompleteSignInCommand
}

type Queries struct {
	FindAllConnections        *connectionsquery.FindAllConnectionsQuery
	FindConnections           *connectionsquery.FindConnectionsQuery
	GetConnection             *connectionsquery.GetConnectionQuery
	FindPrimaryConnection     *connectionsquery.FindPrimaryConnectionQuery
	FindConnectionsToUsers    *connectionsquery.FindConnectionsToUsersQuery
	FindUserIDsWithConnection *connectionsquery.FindUserIDsWithConnectionQuery
	FindUserIDsConnectedTo    *connectionsquery.FindUserIDsConnectedToQuery
}

// Facade bundles every command and query handler over one directory.
type Facade struct {
	directory Directory
	commands  Commands
	queries   Queries
}

func NewFacade(directory Directory) (*Facade, error) {
	if directory == nil {
		return nil, fmt.Errorf("connections: directory is required")
	}
	facade := &Facade{directory: directory}
	facade.commands = Commands{
		AddConnection:     connectionscommand.NewAddConnectionCommand(directory),
		UpdateConnection:  connectionscommand.NewUpdateConnectionCommand(directory),
		RemoveConnection:  connectionscommand.NewRemoveConnectionCommand(directory),
		RemoveConnections: connectionscommand.NewRemoveConnectionsCommand(directory),
		CompleteSignIn:    connectionscommand.NewCompleteSignInCommand(directory),
	}
	facade.queries = Queries{
		FindAllConnections:        connectionsquery.NewFindAllConnectionsQuery(directory),
		FindConnections:           connectionsquery.NewFindConnectionsQuery(directory),
		GetConnection:             connectionsquery.NewGetConnectionQuery(directory),
		FindPrimaryConnection:     connectionsquery.NewFindPrimaryConnectionQuery(directory),
		FindConnectionsToUsers:    connectionsquery.NewFindConnectionsToUsersQuery(directory),
		FindUserIDsWithConnection: connectionsquery.NewFindUserIDsWithConnectionQuery(directory),
		FindUserIDsConnectedTo:    connectionsquery.NewFindUserIDsConnectedToQuery(directory),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Directory() Directory {
	if f == nil {
		return nil
	}
	return f.directory
}
