package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type testSecretProvider struct{}

func (testSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("test secret provider: plaintext is required")
	}
	encoded := base64.StdEncoding.EncodeToString(plaintext)
	return []byte("enc:" + encoded), nil
}

func (testSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	value := strings.TrimSpace(string(ciphertext))
	if value == "" || !strings.HasPrefix(value, "enc:") {
		return nil, fmt.Errorf("test secret provider: invalid ciphertext")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "enc:"))
	if err != nil {
		return nil, fmt.Errorf("test secret provider: decode ciphertext: %w", err)
	}
	return decoded, nil
}

func (testSecretProvider) Metadata() (string, int) {
	return "test-key", 1
}

// countingVerifier returns a scripted outcome per call and records how many
// remote checks were made.
type countingVerifier struct {
	mu       sync.Mutex
	calls    atomic.Int64
	outcomes []VerificationOutcome
	fallback VerificationOutcome
	tokens   []string
	onVerify func(call int64)
}

func newCountingVerifier(outcomes ...VerificationOutcome) *countingVerifier {
	fallback := ValidOutcome([]string{"act_1"}, "act_1")
	if len(outcomes) > 0 {
		fallback = outcomes[len(outcomes)-1]
	}
	return &countingVerifier{outcomes: outcomes, fallback: fallback}
}

func (v *countingVerifier) Verify(_ context.Context, accessToken string) VerificationOutcome {
	call := v.calls.Add(1)
	if v.onVerify != nil {
		v.onVerify(call)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tokens = append(v.tokens, accessToken)
	if int(call) <= len(v.outcomes) {
		return v.outcomes[call-1]
	}
	return v.fallback
}

func (v *countingVerifier) count() int64 {
	return v.calls.Load()
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(now time.Time) *manualClock {
	return &manualClock{now: now.UTC()}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(delta time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(delta)
}

// conflictingStore wraps a MemoryRecordStore and bumps the stored version
// right before the next conflicts CompareAndSwap calls, simulating writers
// racing the caller.
type conflictingStore struct {
	*MemoryRecordStore
	mu        sync.Mutex
	conflicts int
	casCalls  int
}

func newConflictingStore(conflicts int) *conflictingStore {
	return &conflictingStore{MemoryRecordStore: NewMemoryRecordStore(), conflicts: conflicts}
}

func (s *conflictingStore) CompareAndSwap(
	ctx context.Context,
	tenantID string,
	expectedVersion int64,
	next ConnectionRecord,
) (ConnectionRecord, error) {
	s.mu.Lock()
	s.casCalls++
	inject := s.conflicts > 0
	if inject {
		s.conflicts--
	}
	s.mu.Unlock()
	if inject {
		current, err := s.MemoryRecordStore.Read(ctx, tenantID)
		if err != nil {
			return ConnectionRecord{}, err
		}
		if _, err := s.MemoryRecordStore.CompareAndSwap(ctx, tenantID, current.Version, current); err != nil {
			return ConnectionRecord{}, err
		}
	}
	return s.MemoryRecordStore.CompareAndSwap(ctx, tenantID, expectedVersion, next)
}

func (s *conflictingStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.casCalls
}

// unreadableStore reports a tenant's token as undecryptable until the next
// successful write seals a new one.
type unreadableStore struct {
	*MemoryRecordStore
	mu         sync.Mutex
	unreadable map[string]bool
}

func newUnreadableStore() *unreadableStore {
	return &unreadableStore{MemoryRecordStore: NewMemoryRecordStore(), unreadable: map[string]bool{}}
}

func (s *unreadableStore) markUnreadable(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unreadable[tenantID] = true
}

func (s *unreadableStore) Read(ctx context.Context, tenantID string) (ConnectionRecord, error) {
	record, err := s.MemoryRecordStore.Read(ctx, tenantID)
	if err != nil {
		return ConnectionRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unreadable[tenantID] {
		return record, nil
	}
	record.AccessToken = ""
	return record, fmt.Errorf("%w: tenant %q", ErrCredentialUnreadable, tenantID)
}

func (s *unreadableStore) CompareAndSwap(
	ctx context.Context,
	tenantID string,
	expectedVersion int64,
	next ConnectionRecord,
) (ConnectionRecord, error) {
	stored, err := s.MemoryRecordStore.CompareAndSwap(ctx, tenantID, expectedVersion, next)
	if err != nil {
		return ConnectionRecord{}, err
	}
	s.mu.Lock()
	delete(s.unreadable, tenantID)
	s.mu.Unlock()
	return stored, nil
}

type failingStore struct {
	readErr  error
	writeErr error
}

func (s failingStore) Read(_ context.Context, tenantID string) (ConnectionRecord, error) {
	if s.readErr != nil {
		return ConnectionRecord{}, s.readErr
	}
	return NewDisconnectedRecord(tenantID), nil
}

func (s failingStore) CompareAndSwap(context.Context, string, int64, ConnectionRecord) (ConnectionRecord, error) {
	return ConnectionRecord{}, s.writeErr
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
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

type gateFixture struct {
	svc      *Service
	store    *MemoryRecordStore
	verifier *countingVerifier
	clock    *manualClock
}

var fixtureEpoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newGateFixture(verifier *countingVerifier, opts ...Option) (*gateFixture, error) {
	if verifier == nil {
		verifier = newCountingVerifier()
	}
	store := NewMemoryRecordStore()
	clock := newManualClock(fixtureEpoch)
	options := []Option{
		WithRecordStore(store),
		WithVerifier(verifier),
		WithClock(clock.Now),
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
	}
	options = append(options, opts...)
	svc, err := NewService(DefaultConfig(), options...)
	if err != nil {
		return nil, err
	}
	return &gateFixture{svc: svc, store: store, verifier: verifier, clock: clock}, nil
}

// seed writes record for its tenant directly through the store.
func (f *gateFixture) seed(record ConnectionRecord) ConnectionRecord {
	current, err := f.store.Read(context.Background(), record.TenantID)
	if err != nil {
		panic(err)
	}
	stored, err := f.store.CompareAndSwap(context.Background(), record.TenantID, current.Version, record)
	if err != nil {
		panic(err)
	}
	return stored
}

func connectedRecord(tenantID string, verifiedAt time.Time, expiresAt *time.Time) ConnectionRecord {
	verified := verifiedAt.UTC()
	return ConnectionRecord{
		TenantID:         tenantID,
		AccessToken:      "token-" + tenantID,
		ExpiresAt:        expiresAt,
		Status:           ConnectionStatusConnected,
		LinkedAccounts:   []string{"act_1", "act_2"},
		PrimaryAccountID: "act_1",
		LastVerifiedAt:   &verified,
	}
}

func timePtr(value time.Time) *time.Time {
	return &value
}
