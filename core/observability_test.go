package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFieldMap(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFieldMap(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFieldMap(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

func cloneFieldMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

func TestServiceObservability_EnsureConnectedCacheHit(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	fixture, err := newGateFixture(nil,
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new fixture: %v", err)
	}
	fixture.seed(connectedRecord("tenant_1", fixtureEpoch, nil))

	if _, err := fixture.svc.EnsureConnected(context.Background(), "tenant_1"); err != nil {
		t.Fatalf("ensure connected: %v", err)
	}

	if !hasCounter(metrics.counters, "adconnect.ensure_connected.total", "success") {
		t.Fatalf("expected adconnect.ensure_connected.total success counter")
	}
	if !hasHistogram(metrics.histograms, "adconnect.ensure_connected.duration_ms", "success") {
		t.Fatalf("expected adconnect.ensure_connected.duration_ms histogram")
	}
	if metrics.counters[len(metrics.counters)-1].tags["cache_hit"] != "true" {
		t.Fatalf("expected cache_hit tag, got %#v", metrics.counters[len(metrics.counters)-1].tags)
	}
	if !hasLog(logger.snapshot(), "info", "ensure_connected succeeded", "ensure_connected") {
		t.Fatalf("expected ensure_connected succeeded structured log")
	}
}

func TestServiceObservability_GateFailureIsTagged(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	fixture, err := newGateFixture(newCountingVerifier(UnreachableOutcome("503")),
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new fixture: %v", err)
	}
	fixture.seed(connectedRecord("tenant_1", fixtureEpoch.Add(-time.Hour), nil))

	if _, err := fixture.svc.EnsureConnected(context.Background(), "tenant_1"); err == nil {
		t.Fatalf("expected unreachable error")
	}
	if !hasCounter(metrics.counters, "adconnect.ensure_connected.total", "failure") {
		t.Fatalf("expected ensure_connected failure counter")
	}
	last := metrics.counters[len(metrics.counters)-1]
	if last.tags["gate_error"] != string(GateUnreachable) || last.tags["outcome"] != string(VerificationUnreachable) {
		t.Fatalf("expected gate_error and outcome tags, got %#v", last.tags)
	}
	if !hasLog(logger.snapshot(), "error", "ensure_connected failed", "ensure_connected") {
		t.Fatalf("expected ensure_connected failure log")
	}
}

func TestServiceObservability_NeverLogsAccessToken(t *testing.T) {
	logger := newCaptureLogger()
	fixture, err := newGateFixture(nil,
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new fixture: %v", err)
	}
	if _, err := fixture.svc.Connect(context.Background(), ConnectRequest{TenantID: "tenant_1", AccessToken: "super-secret"}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	for _, record := range logger.snapshot() {
		for key, value := range record.fields {
			if strings.Contains(fmt.Sprint(value), "super-secret") {
				t.Fatalf("access token leaked through log field %q", key)
			}
		}
	}
}

func TestServiceObservability_EnrichesStructuredErrorFields(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	svc, err := NewService(DefaultConfig(),
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	richErr := goerrors.New("provider timeout", goerrors.CategoryExternal).
		WithCode(502).
		WithTextCode(ServiceErrorExternalFailure).
		WithMetadata(map[string]any{
			"request_id":   "req_123",
			"access_token": "secret_token",
		})
	svc.observeOperation(
		context.Background(),
		time.Now().UTC().Add(-100*time.Millisecond),
		"ensure_connected",
		richErr,
		map[string]any{"tenant_id": "tenant_1"},
	)

	records := logger.snapshot()
	if len(records) == 0 {
		t.Fatalf("expected logs to be emitted")
	}
	last := records[len(records)-1]
	if last.fields["error_text_code"] != ServiceErrorExternalFailure {
		t.Fatalf("expected error_text_code %q, got %#v", ServiceErrorExternalFailure, last.fields["error_text_code"])
	}
	if last.fields["tenant_id"] != "tenant_1" {
		t.Fatalf("expected tenant_id to stay visible, got %#v", last.fields["tenant_id"])
	}
	metadata, ok := last.fields["error_metadata"].(map[string]any)
	if !ok {
		t.Fatalf("expected redacted error_metadata map, got %#v", last.fields["error_metadata"])
	}
	if metadata["access_token"] != RedactedValue {
		t.Fatalf("expected access_token to be redacted, got %#v", metadata["access_token"])
	}
	if metadata["request_id"] != "req_123" {
		t.Fatalf("expected request_id to stay visible, got %#v", metadata["request_id"])
	}
}

func hasCounter(items []capturedCounter, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasHistogram(items []capturedHistogram, name string, status string) bool {
	for _, item := range items {
		if item.name == name && item.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasLog(items []capturedLog, level string, message string, eventType string) bool {
	for _, item := range items {
		if item.level != level {
			continue
		}
		if item.msg != message {
			continue
		}
		if item.fields["event_type"] == eventType {
			return true
		}
	}
	return false
}
