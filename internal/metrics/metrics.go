// Package metrics provides the metrics sink used by the classifier, the input
// selector and the load orchestration.
//
// The Metrics interface supports gauges, counters and histograms. NoopMetrics
// is the default everywhere; LogMetrics reports through slog; Collection fans
// out to several sinks.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Metrics defines the interface for collecting SDK metrics.
type Metrics interface {
	// Initialize prepares the metrics system for data collection.
	Initialize(ctx context.Context) error

	// Flush sends any buffered metrics data.
	Flush(ctx context.Context) error

	// Shutdown releases the sink.
	Shutdown(ctx context.Context) error

	// UpdateGauge sets a gauge metric to the specified value.
	UpdateGauge(ctx context.Context, name string, value float64) error

	// IncrementCounter increments a counter metric by the specified value.
	IncrementCounter(ctx context.Context, name string, value uint64) error

	// RecordHistogram records a value in a histogram metric.
	RecordHistogram(ctx context.Context, name string, value float64) error
}

// Collection delegates every call to all of its members, stopping at the
// first error.
type Collection struct {
	metrics []Metrics
	mu      sync.RWMutex
}

// NewCollection creates a new Collection with the given metrics implementations.
func NewCollection(metrics ...Metrics) *Collection {
	return &Collection{
		metrics: metrics,
	}
}

// Add adds a new Metrics implementation to the collection.
func (c *Collection) Add(m Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = append(c.metrics, m)
}

// Len returns the number of members.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.metrics)
}

func (c *Collection) each(fn func(Metrics) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, m := range c.metrics {
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collection) Initialize(ctx context.Context) error {
	return c.each(func(m Metrics) error { return m.Initialize(ctx) })
}

func (c *Collection) Flush(ctx context.Context) error {
	return c.each(func(m Metrics) error { return m.Flush(ctx) })
}

func (c *Collection) Shutdown(ctx context.Context) error {
	return c.each(func(m Metrics) error { return m.Shutdown(ctx) })
}

func (c *Collection) UpdateGauge(ctx context.Context, name string, value float64) error {
	return c.each(func(m Metrics) error { return m.UpdateGauge(ctx, name, value) })
}

func (c *Collection) IncrementCounter(ctx context.Context, name string, value uint64) error {
	return c.each(func(m Metrics) error { return m.IncrementCounter(ctx, name, value) })
}

func (c *Collection) RecordHistogram(ctx context.Context, name string, value float64) error {
	return c.each(func(m Metrics) error { return m.RecordHistogram(ctx, name, value) })
}

// NoopMetrics is a Metrics implementation that does nothing.
type NoopMetrics struct{}

// NewNoopMetrics creates a new NoopMetrics.
func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) Initialize(ctx context.Context) error                              { return nil }
func (n *NoopMetrics) Flush(ctx context.Context) error                                   { return nil }
func (n *NoopMetrics) Shutdown(ctx context.Context) error                                { return nil }
func (n *NoopMetrics) UpdateGauge(ctx context.Context, name string, value float64) error { return nil }
func (n *NoopMetrics) IncrementCounter(ctx context.Context, name string, value uint64) error {
	return nil
}
func (n *NoopMetrics) RecordHistogram(ctx context.Context, name string, value float64) error {
	return nil
}

// LogMetrics keeps counters and gauges in memory and reports them through slog.
type LogMetrics struct {
	logger     *slog.Logger
	mu         sync.RWMutex
	gauges     map[string]float64
	counters   map[string]uint64
	histograms map[string][]float64
}

// NewLogMetrics creates a new LogMetrics with the given logger.
// If logger is nil, the default logger is used.
func NewLogMetrics(logger *slog.Logger) *LogMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMetrics{
		logger:     logger,
		gauges:     make(map[string]float64),
		counters:   make(map[string]uint64),
		histograms: make(map[string][]float64),
	}
}

func (l *LogMetrics) Initialize(ctx context.Context) error {
	l.logger.Debug("metrics initialized")
	return nil
}

// Flush logs every metric and a count/sum summary per histogram.
func (l *LogMetrics) Flush(ctx context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	summaries := make(map[string]map[string]float64, len(l.histograms))
	for name, values := range l.histograms {
		var sum float64
		for _, v := range values {
			sum += v
		}
		summaries[name] = map[string]float64{"count": float64(len(values)), "sum": sum}
	}

	l.logger.Info("metrics flush",
		"gauges", l.gauges,
		"counters", l.counters,
		"histograms", summaries,
	)
	return nil
}

func (l *LogMetrics) Shutdown(ctx context.Context) error {
	return l.Flush(ctx)
}

func (l *LogMetrics) UpdateGauge(ctx context.Context, name string, value float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.gauges[name] = value
	return nil
}

func (l *LogMetrics) IncrementCounter(ctx context.Context, name string, value uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counters[name] += value
	return nil
}

func (l *LogMetrics) RecordHistogram(ctx context.Context, name string, value float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.histograms[name] = append(l.histograms[name], value)
	return nil
}

// Counter returns the current value of a counter.
func (l *LogMetrics) Counter(name string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counters[name]
}

// Gauge returns the current value of a gauge.
func (l *LogMetrics) Gauge(name string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.gauges[name]
}

// Observations returns the recorded values of a histogram.
func (l *LogMetrics) Observations(name string) []float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]float64(nil), l.histograms[name]...)
}

// ObserveSince records the milliseconds elapsed since start. Errors from the
// sink are dropped; metrics never fail an operation.
func ObserveSince(ctx context.Context, m Metrics, name string, start time.Time) {
	_ = m.RecordHistogram(ctx, name, float64(time.Since(start).Microseconds())/1000)
}

// Inc increments a counter by one, dropping sink errors.
func Inc(ctx context.Context, m Metrics, name string) {
	_ = m.IncrementCounter(ctx, name, 1)
}

// Metric names.
const (
	MetricClassifyCalls         = "classify_calls"
	MetricClassifyNotFound      = "classify_not_found"
	MetricClassifyCheckFailures = "classify_check_failures"
	MetricClassifySources       = "classify_sources"
	MetricClassifyMilliseconds  = "classify_milliseconds"
	MetricSelectCalls           = "select_calls"
	MetricSelectInsufficient    = "select_insufficient_balance"
	MetricSelectInputs          = "select_inputs"
	MetricLoadCalls             = "load_calls"
	MetricLoadBatches           = "load_batches"
	MetricLoadAlreadyLoaded     = "load_already_loaded"
	MetricLoadMilliseconds      = "load_milliseconds"
	MetricProofRequests         = "proof_requests"
	MetricTransactionsSubmitted = "transactions_submitted"
	MetricTransactionsFailed    = "transactions_failed"
	MetricEstimatedComputeUnits = "estimated_compute_units"
)
