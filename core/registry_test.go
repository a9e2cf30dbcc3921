package core

import (
	"reflect"
	"testing"
)

func TestProviderRegistry_LookupByIDAndCapability(t *testing.T) {
	registry := testRegistry(t)

	providerID, err := registry.ProviderIDFor(testTwitter)
	if err != nil || providerID != "twitter" {
		t.Fatalf("expected twitter for %s, got %q err=%v", testTwitter, providerID, err)
	}
	factory, err := registry.FactoryFor("facebook")
	if err != nil || factory.Capability() != testFacebook {
		t.Fatalf("expected facebook factory, got %#v err=%v", factory, err)
	}
	if got := registry.RegisteredProviderIDs(); !reflect.DeepEqual(got, []string{"facebook", "twitter"}) {
		t.Fatalf("expected sorted ids, got %v", got)
	}
	if _, err := registry.FactoryFor("myspace"); err == nil {
		t.Fatalf("expected unknown provider to fail")
	}
	if _, err := registry.ProviderIDFor("myspace.api"); err == nil {
		t.Fatalf("expected unknown capability to fail")
	}
}

func TestProviderRegistry_RejectsDuplicates(t *testing.T) {
	registry := testRegistry(t)
	if err := registry.Register(NewStaticConnectionFactory("facebook", "other.api")); err == nil {
		t.Fatalf("expected duplicate provider id to fail")
	}
	if err := registry.Register(NewStaticConnectionFactory("fb2", testFacebook)); err == nil {
		t.Fatalf("expected duplicate capability to fail")
	}
	if err := registry.Register(NewStaticConnectionFactory(" ", "blank.api")); err == nil {
		t.Fatalf("expected blank provider id to fail")
	}
}

func TestStaticConnectionFactory_RejectsForeignData(t *testing.T) {
	factory := NewStaticConnectionFactory("facebook", testFacebook)
	if _, err := factory.CreateConnection(ConnectionData{ProviderID: "twitter", ProviderUserID: "x"}); err == nil {
		t.Fatalf("expected mismatched provider to fail")
	}
	connection, err := factory.CreateConnection(ConnectionData{ProviderID: "facebook", ProviderUserID: "x"})
	if err != nil {
		t.Fatalf("create connection: %v", err)
	}
	if connection.Capability() != testFacebook || connection.Key() != NewConnectionKey("facebook", "x") {
		t.Fatalf("unexpected connection %#v", connection)
	}
}
