package datastore

import "errors"

var (
	ErrNoSuchEntity           = errors.New("datastore: no such entity")
	ErrConcurrentModification = errors.New("datastore: concurrent modification")
	ErrTooManyEntityGroups    = errors.New("datastore: transaction touches too many entity groups")
	ErrTransactionClosed      = errors.New("datastore: transaction is not active")
	ErrInvalidKey             = errors.New("datastore: invalid key")
	ErrInvalidQuery           = errors.New("datastore: invalid query")
)
