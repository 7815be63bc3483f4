package gojob

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-adconnect/core"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	ParamLimit       = "limit"
	ParamLeadSeconds = "lead_seconds"
	ParamTenantID    = "tenant_id"

	defaultRetryDelay   = 30 * time.Second
	defaultPollInterval = time.Second
)

// GateRunner is the part of the connection gate that background jobs drive.
type GateRunner interface {
	EnsureConnected(ctx context.Context, tenantID string) (core.ValidatedCredential, error)
	ReverifyStale(ctx context.Context, opts core.SweepOptions) (core.SweepResult, error)
}

// NewReverifyMessage builds the queue message for one re-verification sweep.
// Sweeps sharing an idempotency key are collapsed by the queue.
func NewReverifyMessage(opts core.SweepOptions, idempotencyKey string) *core.JobExecutionMessage {
	params := map[string]any{}
	if opts.Limit > 0 {
		params[ParamLimit] = opts.Limit
	}
	if opts.Lead > 0 {
		params[ParamLeadSeconds] = int(opts.Lead / time.Second)
	}
	return &core.JobExecutionMessage{
		JobID:          JobIDReverify,
		ScriptPath:     JobIDReverify,
		Parameters:     params,
		IdempotencyKey: strings.TrimSpace(idempotencyKey),
		DedupPolicy:    "drop",
	}
}

// NewEnsureConnectedMessage builds the queue message that re-checks one tenant.
func NewEnsureConnectedMessage(tenantID string) *core.JobExecutionMessage {
	tenantID = strings.TrimSpace(tenantID)
	return &core.JobExecutionMessage{
		JobID:          JobIDEnsureConnected,
		ScriptPath:     JobIDEnsureConnected,
		Parameters:     map[string]any{ParamTenantID: tenantID},
		IdempotencyKey: JobIDEnsureConnected + ":" + tenantID,
		DedupPolicy:    "drop",
	}
}

type HandlerOption func(*JobHandler)

func WithRetryPolicy(policy RetryPolicy) HandlerOption {
	return func(h *JobHandler) {
		h.policy = policy
	}
}

func WithRetryDelay(delay time.Duration) HandlerOption {
	return func(h *JobHandler) {
		if delay > 0 {
			h.retryDelay = delay
		}
	}
}

// WithPollInterval sets how long Run waits after an empty or failed dequeue.
func WithPollInterval(interval time.Duration) HandlerOption {
	return func(h *JobHandler) {
		if interval > 0 {
			h.pollInterval = interval
		}
	}
}

func WithHandlerLogger(logger glog.Logger) HandlerOption {
	return func(h *JobHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// JobHandler executes connection jobs pulled from a go-job queue. A
// delivery is acked when the gate reached a decision and nacked when the
// provider was unreachable or the job itself failed.
type JobHandler struct {
	gate         GateRunner
	policy       RetryPolicy
	retryDelay   time.Duration
	pollInterval time.Duration
	logger       glog.Logger
}

func NewJobHandler(gate GateRunner, opts ...HandlerOption) (*JobHandler, error) {
	if gate == nil {
		return nil, fmt.Errorf("gojob: connection gate is required")
	}
	handler := &JobHandler{
		gate:         gate,
		policy:       DefaultRetryPolicy(),
		retryDelay:   defaultRetryDelay,
		pollInterval: defaultPollInterval,
		logger:       glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}
	return handler, nil
}

// Run pulls connection jobs from source until ctx is done. Redeliveries are
// counted per idempotency key, falling back to the job id, so RetryPolicy
// sees the attempt number. Counts live in this process only.
func (h *JobHandler) Run(ctx context.Context, source core.JobDequeuer) error {
	if h == nil || h.gate == nil {
		return fmt.Errorf("gojob: job handler is not configured")
	}
	if source == nil {
		return fmt.Errorf("gojob: job source is required")
	}
	attempts := map[string]int{}
	for ctx.Err() == nil {
		delivery, err := source.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if !errors.Is(err, ErrNoDelivery) {
				h.logger.Warn("dequeue connection job failed", "error", err)
			}
			h.wait(ctx)
			continue
		}

		key := attemptKey(delivery.Message())
		attempts[key]++
		tracked := &trackedDelivery{JobDelivery: delivery}
		if err := h.Handle(ctx, tracked, attempts[key]); err != nil {
			h.logger.Warn("settle connection job failed", "job_key", key, "attempt", attempts[key], "error", err)
		}
		if !tracked.requeued {
			delete(attempts, key)
		}
	}
	return nil
}

func (h *JobHandler) wait(ctx context.Context) {
	timer := time.NewTimer(h.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func attemptKey(msg *core.JobExecutionMessage) string {
	if msg == nil {
		return ""
	}
	if msg.IdempotencyKey != "" {
		return msg.IdempotencyKey
	}
	return msg.JobID
}

// trackedDelivery remembers whether the job is coming back.
type trackedDelivery struct {
	core.JobDelivery
	requeued bool
}

func (d *trackedDelivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	d.requeued = opts.Requeue
	return d.JobDelivery.Nack(ctx, opts)
}

func (h *JobHandler) Handle(ctx context.Context, delivery core.JobDelivery, attempt int) error {
	if h == nil || h.gate == nil {
		return fmt.Errorf("gojob: job handler is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	if msg == nil {
		return h.nack(ctx, delivery, attempt, core.JobNackOptions{DeadLetter: true, Reason: "missing execution message"})
	}

	switch msg.JobID {
	case JobIDReverify:
		return h.handleReverify(ctx, delivery, msg, attempt)
	case JobIDEnsureConnected:
		return h.handleEnsureConnected(ctx, delivery, msg, attempt)
	default:
		return h.nack(ctx, delivery, attempt, core.JobNackOptions{
			DeadLetter: true,
			Reason:     fmt.Sprintf("unsupported job %q", msg.JobID),
		})
	}
}

func (h *JobHandler) handleReverify(ctx context.Context, delivery core.JobDelivery, msg *core.JobExecutionMessage, attempt int) error {
	opts, err := sweepOptionsFrom(msg.Parameters)
	if err != nil {
		return h.nack(ctx, delivery, attempt, core.JobNackOptions{DeadLetter: true, Reason: err.Error()})
	}
	result, err := h.gate.ReverifyStale(ctx, opts)
	if err != nil {
		h.logger.Warn("reverify job failed", "job_id", msg.JobID, "attempt", attempt, "error", err)
		return h.nack(ctx, delivery, attempt, core.JobNackOptions{
			Requeue: true,
			Delay:   h.retryDelay,
			Reason:  err.Error(),
		})
	}
	h.logger.Info("reverify job completed",
		"job_id", msg.JobID,
		"scanned", result.Scanned,
		"connected", result.Connected,
		"expired", result.Expired,
		"invalid", result.Invalid,
		"unreachable", result.Unreachable,
		"failed", result.Failed,
	)
	return delivery.Ack(ctx)
}

func (h *JobHandler) handleEnsureConnected(ctx context.Context, delivery core.JobDelivery, msg *core.JobExecutionMessage, attempt int) error {
	tenantID := strings.TrimSpace(fmt.Sprint(msg.Parameters[ParamTenantID]))
	if msg.Parameters[ParamTenantID] == nil || tenantID == "" {
		return h.nack(ctx, delivery, attempt, core.JobNackOptions{DeadLetter: true, Reason: "tenant_id parameter is required"})
	}
	_, err := h.gate.EnsureConnected(ctx, tenantID)
	switch {
	case err == nil:
		return delivery.Ack(ctx)
	case errors.Is(err, core.ErrUnreachable):
		h.logger.Warn("ensure connected job deferred", "tenant_id", tenantID, "attempt", attempt, "error", err)
		return h.nack(ctx, delivery, attempt, core.JobNackOptions{
			Requeue: true,
			Delay:   h.retryDelay,
			Reason:  err.Error(),
		})
	case errors.Is(err, core.ErrNotConnected), errors.Is(err, core.ErrExpired), errors.Is(err, core.ErrInvalid):
		// the tenant must authenticate again; nothing a retry can fix
		h.logger.Info("ensure connected job settled", "tenant_id", tenantID, "error", err)
		return delivery.Ack(ctx)
	default:
		h.logger.Warn("ensure connected job failed", "tenant_id", tenantID, "attempt", attempt, "error", err)
		return h.nack(ctx, delivery, attempt, core.JobNackOptions{
			Requeue: true,
			Delay:   h.retryDelay,
			Reason:  err.Error(),
		})
	}
}

func (h *JobHandler) nack(ctx context.Context, delivery core.JobDelivery, attempt int, opts core.JobNackOptions) error {
	return delivery.Nack(ctx, h.policy.Bound(opts, attempt))
}

func sweepOptionsFrom(params map[string]any) (core.SweepOptions, error) {
	opts := core.SweepOptions{}
	if raw, ok := params[ParamLimit]; ok {
		limit, err := intParam(ParamLimit, raw)
		if err != nil {
			return core.SweepOptions{}, err
		}
		opts.Limit = limit
	}
	if raw, ok := params[ParamLeadSeconds]; ok {
		lead, err := intParam(ParamLeadSeconds, raw)
		if err != nil {
			return core.SweepOptions{}, err
		}
		opts.Lead = time.Duration(lead) * time.Second
	}
	return opts, nil
}

// intParam accepts the shapes a JSON round trip through a queue produces.
func intParam(name string, raw any) (int, error) {
	var value int
	switch typed := raw.(type) {
	case int:
		value = typed
	case int64:
		value = int(typed)
	case float64:
		if typed != math.Trunc(typed) {
			return 0, fmt.Errorf("gojob: %s must be a whole number", name)
		}
		value = int(typed)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return 0, fmt.Errorf("gojob: %s must be an integer: %w", name, err)
		}
		value = parsed
	default:
		return 0, fmt.Errorf("gojob: %s has unsupported type %T", name, raw)
	}
	if value < 0 {
		return 0, fmt.Errorf("gojob: %s must be >= 0", name)
	}
	return value, nil
}

var _ GateRunner = (core.ConnectionGate)(nil)
