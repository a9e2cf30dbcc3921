package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-connections/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	JobIDRemoveConnections = "connections.remove_all"
	JobIDSyncProfile       = "connections.profile.sync"
)

// RetryPolicy bounds how often a failed connection job is requeued.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt applies the policy to the nack options for attempt.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// RemoveConnectionsMessage builds the job that removes every connection
// userID holds to providerID.
func RemoveConnectionsMessage(userID string, providerID string) *job.ExecutionMessage {
	userID = strings.TrimSpace(userID)
	providerID = strings.TrimSpace(providerID)
	return &job.ExecutionMessage{
		JobID:          JobIDRemoveConnections,
		ScriptPath:     JobIDRemoveConnections,
		Parameters:     map[string]any{"user_id": userID, "provider_id": providerID},
		IdempotencyKey: JobIDRemoveConnections + ":" + userID + ":" + providerID,
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}
}

// SyncProfileMessage builds the job that refreshes the display fields of one
// connection.
func SyncProfileMessage(userID string, key core.ConnectionKey) *job.ExecutionMessage {
	userID = strings.TrimSpace(userID)
	return &job.ExecutionMessage{
		JobID:      JobIDSyncProfile,
		ScriptPath: JobIDSyncProfile,
		Parameters: map[string]any{
			"user_id":          userID,
			"provider_id":      key.ProviderID,
			"provider_user_id": key.ProviderUserID,
		},
		IdempotencyKey: JobIDSyncProfile + ":" + userID + ":" + key.String(),
		DedupPolicy:    job.DeduplicationPolicy("merge"),
	}
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer}
}

func (a *EnqueuerAdapter) EnqueueRemoveConnections(ctx context.Context, userID string, providerID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(providerID) == "" {
		return fmt.Errorf("gojob: user id and provider id are required")
	}
	return a.enqueue(ctx, RemoveConnectionsMessage(userID, providerID))
}

func (a *EnqueuerAdapter) EnqueueSyncProfile(ctx context.Context, userID string, key core.ConnectionKey) error {
	if strings.TrimSpace(userID) == "" || key.ProviderID == "" || key.ProviderUserID == "" {
		return fmt.Errorf("gojob: user id and connection key are required")
	}
	return a.enqueue(ctx, SyncProfileMessage(userID, key))
}

func (a *EnqueuerAdapter) enqueue(ctx context.Context, msg *job.ExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	return a.enqueuer.Enqueue(ctx, msg)
}

// ProfileSyncer is satisfied by *providers.Syncer.
type ProfileSyncer interface {
	Sync(ctx context.Context, repo core.ConnectionRepository, connection core.Connection) (core.Connection, error)
}

// Processor runs connection jobs taken from a go-job queue.
type Processor struct {
	directory core.UsersConnectionRepository
	syncer    ProfileSyncer
	policy    RetryPolicy
}

func NewProcessor(directory core.UsersConnectionRepository, syncer ProfileSyncer, policy RetryPolicy) *Processor {
	return &Processor{directory: directory, syncer: syncer, policy: policy}
}

// Process runs the job carried by delivery. Success acks the delivery; a
// failure nacks it under the retry policy and returns the job error.
func (p *Processor) Process(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if p == nil || p.directory == nil {
		return fmt.Errorf("gojob: processor is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	runErr := p.run(ctx, delivery.Message())
	if runErr == nil {
		return delivery.Ack(ctx)
	}
	opts := p.policy.NormalizeAttempt(queue.NackOptions{
		Delay:   time.Duration(attempt) * time.Second,
		Requeue: true,
		Reason:  runErr.Error(),
	}, attempt)
	if err := delivery.Nack(ctx, opts); err != nil {
		return err
	}
	return runErr
}

// Dequeue takes one delivery from dequeuer and processes it.
func (p *Processor) Dequeue(ctx context.Context, dequeuer queue.Dequeuer, attempt int) error {
	if dequeuer == nil {
		return fmt.Errorf("gojob: dequeuer is required")
	}
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	return p.Process(ctx, delivery, attempt)
}

func (p *Processor) run(ctx context.Context, msg *job.ExecutionMessage) error {
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	userID := stringParam(msg.Parameters, "user_id")
	repo, err := p.directory.CreateConnectionRepository(userID)
	if err != nil {
		return err
	}
	switch strings.TrimSpace(msg.JobID) {
	case JobIDRemoveConnections:
		return repo.RemoveConnections(ctx, stringParam(msg.Parameters, "provider_id"))
	case JobIDSyncProfile:
		if p.syncer == nil {
			return fmt.Errorf("gojob: profile syncer is not configured")
		}
		connection, err := repo.GetConnection(ctx, core.ConnectionKey{
			ProviderID:     stringParam(msg.Parameters, "provider_id"),
			ProviderUserID: stringParam(msg.Parameters, "provider_user_id"),
		})
		if err != nil {
			return err
		}
		_, err = p.syncer.Sync(ctx, repo, connection)
		return err
	default:
		return fmt.Errorf("gojob: unknown job %q", msg.JobID)
	}
}

// LoggingHook reports worker events for connection jobs through glog.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(logger glog.Logger) *LoggingHook {
	return &LoggingHook{logger: glog.Ensure(logger)}
}

func (h *LoggingHook) OnStart(ctx context.Context, event worker.Event) {
	h.log(ctx, "debug", "connection job started", event)
}

func (h *LoggingHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.log(ctx, "info", "connection job succeeded", event)
}

func (h *LoggingHook) OnFailure(ctx context.Context, event worker.Event) {
	h.log(ctx, "error", "connection job failed", event)
}

func (h *LoggingHook) OnRetry(ctx context.Context, event worker.Event) {
	h.log(ctx, "warn", "connection job retrying", event)
}

func (h *LoggingHook) log(ctx context.Context, level string, message string, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	msg := event.Message
	if msg == nil && event.Delivery != nil {
		msg = event.Delivery.Message()
	}
	args := []any{"attempt", event.Attempt, "duration", event.Duration}
	if msg != nil {
		args = append(args, "job_id", msg.JobID, "idempotency_key", msg.IdempotencyKey)
	}
	if event.Delay > 0 {
		args = append(args, "delay", event.Delay)
	}
	if event.Err != nil {
		args = append(args, "error", event.Err)
	}
	logger := h.logger.WithContext(ctx)
	switch level {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func stringParam(params map[string]any, name string) string {
	value, _ := params[name].(string)
	return strings.TrimSpace(value)
}

var _ worker.Hook = (*LoggingHook)(nil)
