package core

import "context"

// Tags attached to every connections.<operation>.* metric.
const (
	MetricTagOperation  = "operation"
	MetricTagStatus     = "status"
	MetricTagProviderID = "provider_id"

	MetricStatusSuccess = "success"
	MetricStatusFailure = "failure"
)

// NopMetricsRecorder drops every measurement. It is the default recorder.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// OperationCounterName is the counter incremented once per repository or
// directory operation, e.g. connections.add_connection.total.
func OperationCounterName(operation string) string {
	return metricPrefix + operation + ".total"
}

// OperationDurationName is the histogram of operation latency in milliseconds.
func OperationDurationName(operation string) string {
	return metricPrefix + operation + ".duration_ms"
}

// operationTags always carries provider_id, empty for operations that span
// providers, so recorders see a fixed label set per metric.
func operationTags(operation string, err error, providerID string) map[string]string {
	status := MetricStatusSuccess
	if err != nil {
		status = MetricStatusFailure
	}
	return map[string]string{
		MetricTagOperation:  operation,
		MetricTagStatus:     status,
		MetricTagProviderID: providerID,
	}
}

func cloneTags(tags map[string]string) map[string]string {
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
