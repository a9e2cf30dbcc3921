package connections

import (
	"context"
	"testing"

	connectionscommand "github.com/goliatone/go-connections/command"
	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/datastore/memory"
	connectionsquery "github.com/goliatone/go-connections/query"
	"github.com/goliatone/go-connections/security"
)

func newFacadeService(t *testing.T) *Service {
	t.Helper()
	registry, err := NewProviderRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	svc, err := NewService(DefaultConfig(),
		WithDatastore(memory.New()),
		WithProviderLocator(registry),
		WithTextEncryptor(security.NoOpTextEncryptor{}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewFacade_WiresCommandsAndQueries(t *testing.T) {
	facade, err := NewFacade(newFacadeService(t))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	commands := facade.Commands()
	if commands.AddConnection == nil || commands.RemoveConnections == nil || commands.CompleteSignIn == nil {
		t.Fatalf("expected command handlers to be wired")
	}
	queries := facade.Queries()
	if queries.FindAllConnections == nil || queries.FindPrimaryConnection == nil || queries.FindUserIDsConnectedTo == nil {
		t.Fatalf("expected query handlers to be wired")
	}
	if facade.Directory() == nil {
		t.Fatalf("expected directory to be retained")
	}
}

func TestNewFacade_RequiresDirectory(t *testing.T) {
	if _, err := NewFacade(nil); err == nil {
		t.Fatalf("expected missing directory error")
	}
	var facade *Facade
	if facade.Commands().AddConnection != nil || facade.Directory() != nil {
		t.Fatalf("expected nil facade to return zero values")
	}
}

func TestFacade_CommandAndQueryDelegation(t *testing.T) {
	ctx := context.Background()
	facade, err := NewFacade(newFacadeService(t))
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	factory, err := ProviderFactory("github")
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	connection, err := factory.CreateConnection(core.ConnectionData{ProviderUserID: "octocat"})
	if err != nil {
		t.Fatalf("create connection: %v", err)
	}
	if err := facade.Commands().AddConnection.Execute(ctx, connectionscommand.AddConnectionMessage{
		UserID:     "alice",
		Connection: connection,
	}); err != nil {
		t.Fatalf("execute add command: %v", err)
	}

	primary, err := facade.Queries().FindPrimaryConnection.Query(ctx, connectionsquery.FindPrimaryConnectionMessage{
		UserID:     "alice",
		Capability: "github.api",
	})
	if err != nil {
		t.Fatalf("query primary: %v", err)
	}
	if !primary.Found || primary.Connection.Key() != connection.Key() {
		t.Fatalf("unexpected primary connection result: %#v", primary)
	}

	if err := facade.Commands().RemoveConnection.Execute(ctx, connectionscommand.RemoveConnectionMessage{
		UserID: "alice",
		Key:    connection.Key(),
	}); err != nil {
		t.Fatalf("execute remove command: %v", err)
	}
	owners, err := facade.Queries().FindUserIDsConnectedTo.Query(ctx, connectionsquery.FindUserIDsConnectedToMessage{
		ProviderID:      "github",
		ProviderUserIDs: []string{"octocat"},
	})
	if err != nil {
		t.Fatalf("query owners: %v", err)
	}
	if len(owners) != 0 {
		t.Fatalf("expected no owners after removal, got %v", owners)
	}
}
