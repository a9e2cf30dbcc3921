package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-connections/datastore/memory"
)

const (
	testFacebook Capability = "facebook.api"
	testTwitter  Capability = "twitter.api"
)

type testEncryptor struct {
	mu       sync.Mutex
	fail     bool
	calls    int
	decrypts int
}

func (e *testEncryptor) Encrypt(_ context.Context, plaintext string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.fail {
		return "", fmt.Errorf("test encryptor: forced failure")
	}
	return "enc:" + base64.StdEncoding.EncodeToString([]byte(plaintext)), nil
}

func (e *testEncryptor) Decrypt(_ context.Context, ciphertext string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.decrypts++
	if !strings.HasPrefix(ciphertext, "enc:") {
		return "", fmt.Errorf("test encryptor: invalid ciphertext")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, "enc:"))
	if err != nil {
		return "", fmt.Errorf("test encryptor: decode ciphertext: %w", err)
	}
	return string(decoded), nil
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	return l.values, nil
}

type interceptorCall struct {
	phase string
	user  string
	keys  []ConnectionKey
}

type recordingInterceptor struct {
	mu    sync.Mutex
	name  string
	calls []interceptorCall
	fail  map[string]error
}

func newRecordingInterceptor(name string) *recordingInterceptor {
	return &recordingInterceptor{name: name, fail: map[string]error{}}
}

func (r *recordingInterceptor) Name() string { return r.name }

func (r *recordingInterceptor) record(phase string, userID string, connections ...Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]ConnectionKey, 0, len(connections))
	for _, connection := range connections {
		keys = append(keys, connection.Key())
	}
	r.calls = append(r.calls, interceptorCall{phase: phase, user: userID, keys: keys})
	return r.fail[phase]
}

func (r *recordingInterceptor) BeforeCreate(_ context.Context, userID string, connection Connection) error {
	return r.record("before_create", userID, connection)
}

func (r *recordingInterceptor) AfterCreate(_ context.Context, userID string, connection Connection) error {
	return r.record("after_create", userID, connection)
}

func (r *recordingInterceptor) BeforeUpdate(_ context.Context, userID string, connection Connection) error {
	return r.record("before_update", userID, connection)
}

func (r *recordingInterceptor) AfterUpdate(_ context.Context, userID string, connection Connection) error {
	return r.record("after_update", userID, connection)
}

func (r *recordingInterceptor) BeforeRemove(_ context.Context, userID string, connections []Connection) error {
	return r.record("before_remove", userID, connections...)
}

func (r *recordingInterceptor) AfterRemove(_ context.Context, userID string, connections []Connection) error {
	return r.record("after_remove", userID, connections...)
}

func (r *recordingInterceptor) phases() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, call := range r.calls {
		out = append(out, call.phase)
	}
	return out
}

func (r *recordingInterceptor) callsFor(phase string) []interceptorCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []interceptorCall{}
	for _, call := range r.calls {
		if call.phase == phase {
			out = append(out, call)
		}
	}
	return out
}

func testRegistry(t *testing.T) *ProviderRegistry {
	t.Helper()
	registry, err := NewProviderRegistry(
		NewStaticConnectionFactory("facebook", testFacebook),
		NewStaticConnectionFactory("twitter", testTwitter),
	)
	if err != nil {
		t.Fatalf("new provider registry: %v", err)
	}
	return registry
}

type testEnv struct {
	store     *memory.Store
	encryptor *testEncryptor
	registry  *ProviderRegistry
	service   *Service
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		store:     memory.New(),
		encryptor: &testEncryptor{},
		registry:  testRegistry(t),
	}
	base := []Option{
		WithDatastore(env.store),
		WithProviderLocator(env.registry),
		WithTextEncryptor(env.encryptor),
		WithLogger(stubLogger{}),
	}
	svc, err := NewService(DefaultConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	env.service = svc
	return env
}

func (e *testEnv) repository(t *testing.T, userID string) *Repository {
	t.Helper()
	repo, err := e.service.Repository(userID)
	if err != nil {
		t.Fatalf("repository for %s: %v", userID, err)
	}
	return repo
}

func newTestConnection(capability Capability, providerID string, providerUserID string) *DataConnection {
	return NewDataConnection(capability, ConnectionData{
		ProviderID:     providerID,
		ProviderUserID: providerUserID,
		DisplayName:    StringPtr("user " + providerUserID),
		ProfileURL:     StringPtr("https://example.com/" + providerUserID),
		AccessToken:    StringPtr("token-" + providerUserID),
		Secret:         StringPtr("secret-" + providerUserID),
		ExpireTime:     Int64Ptr(1700000000),
	})
}

func facebookConnection(providerUserID string) *DataConnection {
	return newTestConnection(testFacebook, "facebook", providerUserID)
}

func twitterConnection(providerUserID string) *DataConnection {
	return newTestConnection(testTwitter, "twitter", providerUserID)
}

func mustAdd(t *testing.T, repo *Repository, connections ...Connection) {
	t.Helper()
	for _, connection := range connections {
		if err := repo.AddConnection(context.Background(), connection); err != nil {
			t.Fatalf("add connection %s: %v", connection.Key(), err)
		}
	}
}

func providerUserIDs(connections []Connection) []string {
	out := make([]string, 0, len(connections))
	for _, connection := range connections {
		if connection == nil {
			out = append(out, "")
			continue
		}
		out = append(out, connection.Key().ProviderUserID)
	}
	return out
}
