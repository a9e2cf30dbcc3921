package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[AddConnectionMessage]     = (*AddConnectionCommand)(nil)
	_ gocmd.Commander[UpdateConnectionMessage]  = (*UpdateConnectionCommand)(nil)
	_ gocmd.Commander[RemoveConnectionMessage]  = (*RemoveConnectionCommand)(nil)
	_ gocmd.Commander[RemoveConnectionsMessage] = (*RemoveConnectionsCommand)(nil)
	_ gocmd.Commander[CompleteSignInMessage]    = (*CompleteSignInCommand)(nil)
)
