// Package prometheus records connection repository metrics with
// client_golang collectors.
package prometheus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-connections/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// Recorder implements core.MetricsRecorder. Each metric name gets one vector
// whose label names are fixed by its first observation; later observations
// fill missing labels with "" and drop unknown ones.
type Recorder struct {
	registerer prom.Registerer
	namespace  string
	buckets    []float64

	mu         sync.Mutex
	counters   map[string]*vec[*prom.CounterVec]
	histograms map[string]*vec[*prom.HistogramVec]
}

type vec[T any] struct {
	collector T
	labels    []string
}

type Option func(*Recorder)

func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		r.namespace = sanitize(namespace)
	}
}

func WithBuckets(buckets ...float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

// DurationBuckets cover the millisecond durations the repository reports.
var DurationBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

func NewRecorder(registerer prom.Registerer, opts ...Option) *Recorder {
	if registerer == nil {
		registerer = prom.DefaultRegisterer
	}
	r := &Recorder{
		registerer: registerer,
		buckets:    DurationBuckets,
		counters:   make(map[string]*vec[*prom.CounterVec]),
		histograms: make(map[string]*vec[*prom.HistogramVec]),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	counter, err := r.counter(name, tags)
	if err != nil {
		return
	}
	counter.collector.WithLabelValues(labelValues(counter.labels, tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	histogram, err := r.histogram(name, tags)
	if err != nil {
		return
	}
	histogram.collector.WithLabelValues(labelValues(histogram.labels, tags)...).Observe(value)
}

// MetricName is the exported name for a repository metric name.
func (r *Recorder) MetricName(name string) string {
	return sanitize(name)
}

func (r *Recorder) counter(name string, tags map[string]string) (*vec[*prom.CounterVec], error) {
	metric := sanitize(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.counters[metric]; ok {
		return existing, nil
	}
	labels := labelNames(tags)
	collector := prom.NewCounterVec(prom.CounterOpts{
		Namespace: r.namespace,
		Name:      metric,
		Help:      fmt.Sprintf("Connection repository counter %s.", name),
	}, labels)
	if err := register(r.registerer, collector); err != nil {
		return nil, err
	}
	entry := &vec[*prom.CounterVec]{collector: collector, labels: labels}
	r.counters[metric] = entry
	return entry, nil
}

func (r *Recorder) histogram(name string, tags map[string]string) (*vec[*prom.HistogramVec], error) {
	metric := sanitize(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.histograms[metric]; ok {
		return existing, nil
	}
	labels := labelNames(tags)
	collector := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: r.namespace,
		Name:      metric,
		Help:      fmt.Sprintf("Connection repository histogram %s.", name),
		Buckets:   r.buckets,
	}, labels)
	if err := register(r.registerer, collector); err != nil {
		return nil, err
	}
	entry := &vec[*prom.HistogramVec]{collector: collector, labels: labels}
	r.histograms[metric] = entry
	return entry, nil
}

func register(registerer prom.Registerer, collector prom.Collector) error {
	err := registerer.Register(collector)
	var already prom.AlreadyRegisteredError
	if errors.As(err, &already) {
		return fmt.Errorf("prometheus: collector already registered by another recorder: %w", err)
	}
	return err
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for key := range tags {
		if label := sanitize(key); label != "" {
			names = append(names, label)
		}
	}
	sort.Strings(names)
	return names
}

func labelValues(labels []string, tags map[string]string) []string {
	normalized := make(map[string]string, len(tags))
	for key, value := range tags {
		normalized[sanitize(key)] = value
	}
	values := make([]string, len(labels))
	for i, label := range labels {
		values[i] = normalized[label]
	}
	return values
}

func sanitize(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ core.MetricsRecorder = (*Recorder)(nil)
