// Package prommetrics exposes connection gate metrics through a Prometheus
// registerer.
package prommetrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-adconnect/core"
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultLabels are the tag keys the gate attaches to operation metrics.
// Tags outside the label set are dropped and missing tags export as "".
var DefaultLabels = []string{"operation", "status", "outcome", "cache_hit", "gate_error"}

// DefaultBuckets suit gate latencies in milliseconds: cache hits sit in the
// first buckets and remote verification in the upper ones.
var DefaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

type Option func(*Recorder)

func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		r.namespace = sanitizeName(namespace)
	}
}

func WithLabels(labels ...string) Option {
	return func(r *Recorder) {
		out := make([]string, 0, len(labels))
		for _, label := range labels {
			if label = sanitizeName(label); label != "" {
				out = append(out, label)
			}
		}
		if len(out) > 0 {
			r.labels = out
		}
	}
}

func WithBuckets(buckets ...float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = append([]float64(nil), buckets...)
		}
	}
}

// Recorder implements core.MetricsRecorder. Vectors are created and
// registered on first use of a metric name.
type Recorder struct {
	registerer prometheus.Registerer
	namespace  string
	labels     []string
	buckets    []float64

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	onError    func(name string, err error)
}

func NewRecorder(registerer prometheus.Registerer, opts ...Option) (*Recorder, error) {
	if registerer == nil {
		return nil, fmt.Errorf("prommetrics: registerer is required")
	}
	recorder := &Recorder{
		registerer: registerer,
		labels:     append([]string(nil), DefaultLabels...),
		buckets:    append([]float64(nil), DefaultBuckets...),
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
		onError:    func(string, error) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	return recorder, nil
}

// OnError sets the callback for metrics that could not be registered.
func (r *Recorder) OnError(fn func(name string, err error)) {
	if r == nil || fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = fn
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	vec, err := r.counter(name)
	if err != nil {
		r.reportError(name, err)
		return
	}
	vec.WithLabelValues(r.labelValues(tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	vec, err := r.histogram(name)
	if err != nil {
		r.reportError(name, err)
		return
	}
	vec.WithLabelValues(r.labelValues(tags)...).Observe(value)
}

func (r *Recorder) counter(name string) (*prometheus.CounterVec, error) {
	metricName := sanitizeName(name)
	if metricName == "" {
		return nil, fmt.Errorf("prommetrics: metric name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.counters[metricName]; ok {
		return vec, nil
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      metricName,
		Help:      "Connection gate counter " + strings.TrimSpace(name) + ".",
	}, r.labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		vec = existing
	}
	r.counters[metricName] = vec
	return vec, nil
}

func (r *Recorder) histogram(name string) (*prometheus.HistogramVec, error) {
	metricName := sanitizeName(name)
	if metricName == "" {
		return nil, fmt.Errorf("prommetrics: metric name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.histograms[metricName]; ok {
		return vec, nil
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Name:      metricName,
		Help:      "Connection gate histogram " + strings.TrimSpace(name) + ".",
		Buckets:   r.buckets,
	}, r.labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, err
		}
		vec = existing
	}
	r.histograms[metricName] = vec
	return vec, nil
}

func (r *Recorder) labelValues(tags map[string]string) []string {
	values := make([]string, len(r.labels))
	for i, label := range r.labels {
		values[i] = strings.TrimSpace(tags[label])
	}
	return values
}

func (r *Recorder) reportError(name string, err error) {
	r.mu.Lock()
	fn := r.onError
	r.mu.Unlock()
	fn(name, err)
}

// sanitizeName maps dotted gate metric names onto the Prometheus charset,
// so adconnect.ensure_connected.total becomes adconnect_ensure_connected_total.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	b.Grow(len(name))
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
