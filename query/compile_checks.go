package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-connections/core"
)

var (
	_ gocmd.Querier[FindAllConnectionsMessage, map[string][]core.Connection]     = (*FindAllConnectionsQuery)(nil)
	_ gocmd.Querier[FindConnectionsMessage, []core.Connection]                   = (*FindConnectionsQuery)(nil)
	_ gocmd.Querier[GetConnectionMessage, core.Connection]                       = (*GetConnectionQuery)(nil)
	_ gocmd.Querier[FindPrimaryConnectionMessage, PrimaryConnection]             = (*FindPrimaryConnectionQuery)(nil)
	_ gocmd.Querier[FindConnectionsToUsersMessage, map[string][]core.Connection] = (*FindConnectionsToUsersQuery)(nil)
	_ gocmd.Querier[FindUserIDsWithConnectionMessage, []string]                  = (*FindUserIDsWithConnectionQuery)(nil)
	_ gocmd.Querier[FindUserIDsConnectedToMessage, []string]                     = (*FindUserIDsConnectedToQuery)(nil)
)
