package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type cliResult struct {
	stdout string
	stderr string
	app    *app
}

func execute(t *testing.T, env map[string]string, args ...string) (cliResult, error) {
	t.Helper()
	a := newApp(func(key string) string { return env[key] })
	root := newRootCommand(a)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	if closeErr := a.shutdown(context.Background(), &stdout); err == nil {
		err = closeErr
	}
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), app: a}, err
}

func mustExecute(t *testing.T, env map[string]string, args ...string) cliResult {
	t.Helper()
	result, err := execute(t, env, args...)
	if err != nil {
		t.Fatalf("connections %s: %v\nstderr: %s", strings.Join(args, " "), err, result.stderr)
	}
	return result
}

func sqliteEnv(t *testing.T) map[string]string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "connections.db")
	return map[string]string{
		envStorage: "sqlite",
		envDSN:     "file:" + path + "?_foreign_keys=on",
		envAppKey:  "test-application-key",
		envUser:    "alice",
	}
}

func TestCLI_AddListPrimaryOwnersRemoveOverSQLite(t *testing.T) {
	env := sqliteEnv(t)

	added := mustExecute(t, env, "add", "--provider", "GitHub", "--provider-user-id", "octocat",
		"--display-name", "The Octocat", "--access-token", "gho_1")
	if !strings.Contains(added.stdout, "octocat") || !strings.Contains(added.stdout, "github.api") {
		t.Fatalf("expected added connection in output, got %q", added.stdout)
	}
	mustExecute(t, env, "add", "--provider", "github", "--provider-user-id", "hubot")
	mustExecute(t, env, "add", "--provider", "twitter", "--provider-user-id", "jack", "--secret", "s3cret")

	listed := mustExecute(t, env, "list", "-o", "json")
	var views []connectionView
	if err := json.Unmarshal([]byte(listed.stdout), &views); err != nil {
		t.Fatalf("decode list output: %v\n%s", err, listed.stdout)
	}
	if len(views) != 3 {
		t.Fatalf("expected 3 connections, got %d: %#v", len(views), views)
	}
	if views[0].ProviderUserID != "octocat" || views[1].ProviderUserID != "hubot" || views[2].ProviderID != "twitter" {
		t.Fatalf("expected github by rank then twitter, got %#v", views)
	}
	if !views[0].HasAccessToken || !views[2].HasSecret {
		t.Fatalf("expected secrets to round trip through the encrypted store: %#v", views)
	}
	if strings.Contains(listed.stdout, "gho_1") || strings.Contains(listed.stdout, "s3cret") {
		t.Fatalf("secrets must not be printed: %s", listed.stdout)
	}

	primary := mustExecute(t, env, "primary", "--capability", "github.api")
	if !strings.Contains(primary.stdout, "octocat") || strings.Contains(primary.stdout, "hubot") {
		t.Fatalf("expected octocat as primary, got %q", primary.stdout)
	}

	owners := mustExecute(t, env, "owners", "--provider", "github", "octocat", "nobody")
	if strings.TrimSpace(owners.stdout) != "alice" {
		t.Fatalf("expected alice as owner, got %q", owners.stdout)
	}

	mustExecute(t, env, "remove", "--provider", "github", "--provider-user-id", "octocat")
	if _, err := execute(t, env, "primary", "--provider", "github"); err == nil {
		t.Fatalf("expected no primary once the rank 1 connection is removed")
	}
	listed = mustExecute(t, env, "list", "--provider", "github")
	if !strings.Contains(listed.stdout, "hubot") {
		t.Fatalf("expected hubot to remain connected, got %q", listed.stdout)
	}

	mustExecute(t, env, "remove-all", "--provider", "github")
	listed = mustExecute(t, env, "list", "--provider", "github")
	if strings.TrimSpace(listed.stdout) != "no connections" {
		t.Fatalf("expected no github connections, got %q", listed.stdout)
	}
	if _, err := execute(t, env, "primary", "--provider", "github"); err == nil {
		t.Fatalf("expected missing primary to fail")
	}
}

func TestCLI_DuplicateAddFails(t *testing.T) {
	env := sqliteEnv(t)
	mustExecute(t, env, "add", "--provider", "github", "--provider-user-id", "octocat")
	if _, err := execute(t, env, "add", "--provider", "github", "--provider-user-id", "octocat"); err == nil {
		t.Fatalf("expected duplicate connection error")
	}
}

func TestCLI_RequiresKeyForPersistentStorage(t *testing.T) {
	env := sqliteEnv(t)
	delete(env, envAppKey)
	_, err := execute(t, env, "list")
	if err == nil || !strings.Contains(err.Error(), envAppKey) {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestCLI_RequiresUser(t *testing.T) {
	_, err := execute(t, map[string]string{}, "list")
	if err == nil || !strings.Contains(err.Error(), envUser) {
		t.Fatalf("expected missing user error, got %v", err)
	}
}

func TestCLI_UnknownProviderAndStorage(t *testing.T) {
	env := map[string]string{envUser: "alice"}
	if _, err := execute(t, env, "add", "--provider", "myspace", "--provider-user-id", "tom"); err == nil {
		t.Fatalf("expected unknown provider error")
	}
	if _, err := execute(t, env, "--storage", "cassandra", "list"); err == nil {
		t.Fatalf("expected unsupported storage error")
	}
}

func TestCLI_MetricsFlagPrintsCounters(t *testing.T) {
	result := mustExecute(t, map[string]string{envUser: "alice"}, "--metrics", "add",
		"--provider", "github", "--provider-user-id", "octocat")
	if !strings.Contains(result.stdout, "connections_add_connection_total{") {
		t.Fatalf("expected add counter in output, got %q", result.stdout)
	}
	if !strings.Contains(result.stdout, `provider_id="github"`) {
		t.Fatalf("expected provider label in output, got %q", result.stdout)
	}
}

func TestCLI_ConfigFileFeedsServiceConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.yaml")
	content := "connections:\n  service_name: ops\n  kind_prefix: Test\nstorage:\n  driver: memory\nlog_level: error\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	result := mustExecute(t, map[string]string{envUser: "alice"}, "--config", path, "list", "-o", "yaml")
	cfg := result.app.service.Config()
	if cfg.ServiceName != "ops" || cfg.KindPrefix != "Test" {
		t.Fatalf("expected file config to apply, got %#v", cfg)
	}
	if got := result.app.service.Kinds().Connection; got != "TestUserConnection" {
		t.Fatalf("expected prefixed connection kind, got %q", got)
	}
	if result.app.settings.LogLevel != "error" || result.app.settings.Storage != "memory" {
		t.Fatalf("unexpected settings %#v", result.app.settings)
	}
	if strings.TrimSpace(result.stdout) != "[]" {
		t.Fatalf("expected empty yaml list, got %q", result.stdout)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", " env ", "file"); got != "env" {
		t.Fatalf("expected env, got %q", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
