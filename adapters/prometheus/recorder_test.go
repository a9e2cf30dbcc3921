package prometheus

import (
	"context"
	"strings"
	"testing"

	"github.com/goliatone/go-connections/core"
	"github.com/goliatone/go-connections/datastore/memory"
	"github.com/goliatone/go-connections/security"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_CountersAndHistograms(t *testing.T) {
	ctx := context.Background()
	registry := prom.NewRegistry()
	recorder := NewRecorder(registry, WithNamespace("app"))

	tags := map[string]string{"operation": "add_connection", "status": "success", "provider_id": "github"}
	recorder.IncCounter(ctx, "connections.add_connection.total", 1, tags)
	recorder.IncCounter(ctx, "connections.add_connection.total", 2, tags)
	recorder.IncCounter(ctx, "connections.add_connection.total", 1, map[string]string{
		"operation": "add_connection", "status": "failure",
	})
	recorder.ObserveHistogram(ctx, "connections.add_connection.duration_ms", 12, tags)

	counter := recorder.counters["connections_add_connection_total"]
	require.NotNil(t, counter)
	assert.Equal(t, []string{"operation", "provider_id", "status"}, counter.labels)
	assert.Equal(t, 3.0, testutil.ToFloat64(counter.collector.WithLabelValues("add_connection", "github", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(counter.collector.WithLabelValues("add_connection", "", "failure")))

	count, err := testutil.GatherAndCount(registry, "app_connections_add_connection_duration_ms")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecorder_IgnoresNegativeCounts(t *testing.T) {
	registry := prom.NewRegistry()
	recorder := NewRecorder(registry)
	recorder.IncCounter(context.Background(), "connections.remove.total", -1, nil)
	assert.Empty(t, recorder.counters)
}

func TestRecorder_WiredIntoService(t *testing.T) {
	ctx := context.Background()
	registry := prom.NewRegistry()
	recorder := NewRecorder(registry)

	locator, err := core.NewProviderRegistry(core.NewStaticConnectionFactory("github", "github.api"))
	require.NoError(t, err)
	svc, err := core.NewService(core.DefaultConfig(),
		core.WithDatastore(memory.New()),
		core.WithProviderLocator(locator),
		core.WithTextEncryptor(security.NoOpTextEncryptor{}),
		core.WithMetricsRecorder(recorder),
	)
	require.NoError(t, err)
	repo, err := svc.Repository("alice")
	require.NoError(t, err)
	require.NoError(t, repo.AddConnection(ctx, core.NewDataConnection("github.api", core.ConnectionData{
		ProviderID:     "github",
		ProviderUserID: "octocat",
	})))

	families, err := registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, family := range families {
		names = append(names, family.GetName())
	}
	joined := strings.Join(names, ",")
	assert.Contains(t, joined, "_total")
	assert.Contains(t, joined, "duration_ms")
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "connections_find_all_total", sanitize("connections.find-all.total"))
	assert.Equal(t, "_9lives", sanitize("9lives"))
}
