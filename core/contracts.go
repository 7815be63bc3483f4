package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// ConnectionRecordStore persists one ConnectionRecord per tenant.
//
// Read returns NewDisconnectedRecord for unknown tenants and never reports
// "not found". CompareAndSwap is the only mutation path: it stores next with
// Version expectedVersion+1 when the stored version equals expectedVersion and
// returns ErrVersionConflict otherwise. A tenant without a stored row has
// version 0.
//
// A row whose token cannot be decrypted is returned without the token and
// with an error wrapping ErrCredentialUnreadable.
type ConnectionRecordStore interface {
	Read(ctx context.Context, tenantID string) (ConnectionRecord, error)
	CompareAndSwap(ctx context.Context, tenantID string, expectedVersion int64, next ConnectionRecord) (ConnectionRecord, error)
}

type StaleRecordFilter struct {
	Status         ConnectionStatus
	VerifiedBefore time.Time
	Limit          int
}

// RecordLister is an optional store capability used by the re-verification sweep.
type RecordLister interface {
	ListStale(ctx context.Context, filter StaleRecordFilter) ([]ConnectionRecord, error)
}

// Verifier performs one authoritative remote check of an access token. It
// never retries and reports transport trouble as an Unreachable outcome.
type Verifier interface {
	Verify(ctx context.Context, accessToken string) VerificationOutcome
}

type VerifierFunc func(ctx context.Context, accessToken string) VerificationOutcome

func (f VerifierFunc) Verify(ctx context.Context, accessToken string) VerificationOutcome {
	if f == nil {
		return UnreachableOutcome("verifier is not configured")
	}
	return f(ctx, accessToken)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// SecretMetadataProvider exposes the key identity a SecretProvider seals with.
type SecretMetadataProvider interface {
	Metadata() (keyID string, version int)
}

type StoreProvider interface {
	RecordStore() ConnectionRecordStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any, secrets SecretProvider) (StoreProvider, error)
}

type LifecycleHooks interface {
	OnStatusChanged(ctx context.Context, change StatusChange) error
}

type LifecycleHookFunc func(ctx context.Context, change StatusChange) error

func (f LifecycleHookFunc) OnStatusChanged(ctx context.Context, change StatusChange) error {
	if f == nil {
		return nil
	}
	return f(ctx, change)
}

type Clock func() time.Time

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type ConnectRequest struct {
	TenantID    string
	AccessToken string
	ExpiresAt   *time.Time
}

type SweepOptions struct {
	Limit int
	Lead  time.Duration
}

type SweepResult struct {
	Scanned     int
	Connected   int
	Expired     int
	Invalid     int
	Unreachable int
	Failed      int
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

// ConnectionGate is the surface advertising operations and outer adapters
// depend on.
type ConnectionGate interface {
	EnsureConnected(ctx context.Context, tenantID string) (ValidatedCredential, error)
	Connect(ctx context.Context, req ConnectRequest) (ValidatedCredential, error)
	Disconnect(ctx context.Context, tenantID string, reason string) error
	SelectPrimaryAccount(ctx context.Context, tenantID string, accountID string) (ConnectionStatusView, error)
	GetConnectionStatus(ctx context.Context, tenantID string) (ConnectionStatusView, error)
	ReverifyStale(ctx context.Context, opts SweepOptions) (SweepResult, error)
}
