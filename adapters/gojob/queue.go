package gojob

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/goliatone/go-adconnect/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const (
	JobIDReverify        = "adconnect.reverify"
	JobIDEnsureConnected = "adconnect.ensure_connected"
)

// ErrNoDelivery is returned by Source when the queue had nothing to hand out.
var ErrNoDelivery = errors.New("gojob: no delivery available")

func isConnectionJob(jobID string) bool {
	return jobID == JobIDReverify || jobID == JobIDEnsureConnected
}

// RetryPolicy caps how often a failing connection job comes back. A zero
// MaxAttempts never gives up.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, MaxDelay: 10 * time.Minute, DeadLetterOnMax: true}
}

// Bound shapes a nack for the given delivery attempt. A dead lettered job is
// never requeued. Once MaxAttempts is reached the job is dead lettered when
// DeadLetterOnMax is set and dropped otherwise.
func (p RetryPolicy) Bound(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	opts.Reason = strings.TrimSpace(opts.Reason)
	opts.Delay = max(opts.Delay, 0)
	if p.MaxDelay > 0 {
		opts.Delay = min(opts.Delay, p.MaxDelay)
	}
	exhausted := p.MaxAttempts > 0 && attempt >= p.MaxAttempts

	switch {
	case opts.DeadLetter:
		opts.Requeue = false
	case exhausted:
		opts.Requeue = false
		opts.DeadLetter = p.DeadLetterOnMax
		opts.Reason = strings.TrimSpace(fmt.Sprintf("%s (gave up after %d attempts)", opts.Reason, attempt))
	default:
		opts.Requeue = true
	}
	return opts
}

func toQueueMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     cloneParams(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func fromQueueMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     cloneParams(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

// Scheduler puts connection jobs on a go-job queue.
type Scheduler struct {
	enqueuer queue.Enqueuer
}

func NewScheduler(enqueuer queue.Enqueuer) (*Scheduler, error) {
	if enqueuer == nil {
		return nil, fmt.Errorf("gojob: enqueuer is required")
	}
	return &Scheduler{enqueuer: enqueuer}, nil
}

// Enqueue accepts only the jobs JobHandler knows how to run.
func (s *Scheduler) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if s == nil || s.enqueuer == nil {
		return fmt.Errorf("gojob: scheduler is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	if jobID := strings.TrimSpace(msg.JobID); !isConnectionJob(jobID) {
		return fmt.Errorf("gojob: unsupported job %q", jobID)
	}
	return s.enqueuer.Enqueue(ctx, toQueueMessage(msg))
}

func (s *Scheduler) ScheduleReverify(ctx context.Context, opts core.SweepOptions, idempotencyKey string) error {
	return s.Enqueue(ctx, NewReverifyMessage(opts, idempotencyKey))
}

func (s *Scheduler) ScheduleEnsureConnected(ctx context.Context, tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return fmt.Errorf("gojob: tenant id is required")
	}
	return s.Enqueue(ctx, NewEnsureConnectedMessage(tenantID))
}

// Source hands out go-job deliveries as core.JobDelivery values.
type Source struct {
	dequeuer queue.Dequeuer
}

func NewSource(dequeuer queue.Dequeuer) (*Source, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	return &Source{dequeuer: dequeuer}, nil
}

func (s *Source) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if s == nil || s.dequeuer == nil {
		return nil, fmt.Errorf("gojob: source is not configured")
	}
	delivery, err := s.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	if delivery == nil {
		return nil, ErrNoDelivery
	}
	return queueDelivery{delivery: delivery}, nil
}

// queueDelivery forwards nacks as given; JobHandler has already bounded them.
type queueDelivery struct {
	delivery queue.Delivery
}

func (d queueDelivery) Message() *core.JobExecutionMessage {
	return fromQueueMessage(d.delivery.Message())
}

func (d queueDelivery) Ack(ctx context.Context) error {
	return d.delivery.Ack(ctx)
}

func (d queueDelivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	return d.delivery.Nack(ctx, queue.NackOptions{
		Delay:      opts.Delay,
		Requeue:    opts.Requeue,
		DeadLetter: opts.DeadLetter,
		Reason:     opts.Reason,
	})
}

func cloneParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	maps.Copy(out, in)
	return out
}

var (
	_ core.JobEnqueuer = (*Scheduler)(nil)
	_ core.JobDequeuer = (*Source)(nil)
	_ core.JobDelivery = queueDelivery{}
)
