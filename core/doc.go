// Package core holds the connection domain: the per-user repository, the
// cross-user directory, interceptor dispatch and the record codec. Storage
// engines implement the datastore package contract and are injected; core
// must not depend on them.
package core
