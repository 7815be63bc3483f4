package prommetrics

import (
	"context"
	"strings"
	"testing"

	"github.com/goliatone/go-adconnect/core"
	"github.com/prometheus/client_golang/prometheus"
)

func TestRecorderCountsByLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder, err := NewRecorder(registry)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()
	tags := map[string]string{"operation": "ensure_connected", "status": "success", "cache_hit": "true", "tenant_id": "dropped"}

	recorder.IncCounter(ctx, "adconnect.ensure_connected.total", 1, tags)
	recorder.IncCounter(ctx, "adconnect.ensure_connected.total", 2, tags)
	recorder.IncCounter(ctx, "adconnect.ensure_connected.total", 1, map[string]string{"operation": "ensure_connected", "status": "error"})

	name := "adconnect_ensure_connected_total"
	if got := counterValue(t, registry, name, map[string]string{"status": "success", "cache_hit": "true"}); got != 3 {
		t.Fatalf("expected 3 successful cache hits, got %v", got)
	}
	if got := counterValue(t, registry, name, map[string]string{"status": "error", "cache_hit": ""}); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if got := seriesCount(t, registry, name); got != 2 {
		t.Fatalf("expected 2 series, got %d", got)
	}
}

func TestRecorderObservesHistogram(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder, err := NewRecorder(registry, WithNamespace("svc"), WithBuckets(10, 100))
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	recorder.ObserveHistogram(context.Background(), "adconnect.connect.duration_ms", 42, map[string]string{"operation": "connect"})

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 1 || families[0].GetName() != "svc_adconnect_connect_duration_ms" {
		t.Fatalf("unexpected families: %v", families)
	}
	histogram := families[0].GetMetric()[0].GetHistogram()
	if histogram.GetSampleCount() != 1 || histogram.GetSampleSum() != 42 {
		t.Fatalf("unexpected histogram: %v", histogram)
	}
}

func TestRecorderReusesCollectorsAcrossInstances(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, _ := NewRecorder(registry)
	second, _ := NewRecorder(registry)
	ctx := context.Background()
	tags := map[string]string{"operation": "disconnect", "status": "success"}

	first.IncCounter(ctx, "adconnect.disconnect.total", 1, tags)
	second.IncCounter(ctx, "adconnect.disconnect.total", 1, tags)

	if got := counterValue(t, registry, "adconnect_disconnect_total", map[string]string{"operation": "disconnect"}); got != 2 {
		t.Fatalf("expected shared collector, got %v", got)
	}
}

func TestRecorderReportsRegistrationConflicts(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder, _ := NewRecorder(registry)
	var reported []string
	recorder.OnError(func(name string, err error) {
		reported = append(reported, name)
	})

	ctx := context.Background()
	recorder.IncCounter(ctx, "adconnect.sweep", 1, nil)
	recorder.ObserveHistogram(ctx, "adconnect.sweep", 1, nil)
	recorder.IncCounter(ctx, " ", 1, nil)
	recorder.IncCounter(ctx, "adconnect.sweep", -1, nil)

	if len(reported) != 2 {
		t.Fatalf("expected histogram clash and empty name to be reported, got %v", reported)
	}
}

func TestRecorderWithLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder, _ := NewRecorder(registry, WithLabels("operation", " ", "gate-error"))
	if strings.Join(recorder.labels, ",") != "operation,gate_error" {
		t.Fatalf("unexpected labels: %v", recorder.labels)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"adconnect.ensure_connected.total": "adconnect_ensure_connected_total",
		" 9lives ":                         "_9lives",
		"a-b c":                            "a_b_c",
	}
	for input, want := range tests {
		if got := sanitizeName(input); got != want {
			t.Fatalf("sanitizeName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNewRecorderRequiresRegisterer(t *testing.T) {
	if _, err := NewRecorder(nil); err == nil {
		t.Fatalf("expected missing registerer error")
	}
}

func TestRecorderBacksGateMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder, _ := NewRecorder(registry)
	service, err := core.NewService(
		core.DefaultConfig(),
		core.WithRecordStore(core.NewMemoryRecordStore()),
		core.WithVerifier(core.VerifierFunc(func(context.Context, string) core.VerificationOutcome {
			return core.ValidOutcome(nil, "")
		})),
		core.WithMetricsRecorder(recorder),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := service.GetConnectionStatus(context.Background(), "tenant_1"); err != nil {
		t.Fatalf("get connection status: %v", err)
	}
	if got := counterValue(t, registry, "adconnect_get_connection_status_total", map[string]string{"status": "success"}); got != 1 {
		t.Fatalf("expected one recorded status read, got %v", got)
	}
}

// counterValue sums the counter series of name whose labels match want.
func counterValue(t *testing.T, registry *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	total := 0.0
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			matched := true
			for key, value := range want {
				if labels[key] != value {
					matched = false
					break
				}
			}
			if matched {
				total += metric.GetCounter().GetValue()
			}
		}
	}
	return total
}

func seriesCount(t *testing.T, registry *prometheus.Registry, name string) int {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() == name {
			return len(family.GetMetric())
		}
	}
	return 0
}
