package mongostore

import "github.com/goliatone/go-connections/datastore"

var (
	_ datastore.Datastore   = (*Datastore)(nil)
	_ datastore.Transaction = (*transaction)(nil)
)
