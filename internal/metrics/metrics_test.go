package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingMetrics struct {
	NoopMetrics
}

func (f *failingMetrics) IncrementCounter(ctx context.Context, name string, value uint64) error {
	return errors.New("sink down")
}

func TestLogMetricsAccumulates(t *testing.T) {
	ctx := context.Background()
	m := NewLogMetrics(nil)

	require.NoError(t, m.IncrementCounter(ctx, MetricClassifyCalls, 1))
	require.NoError(t, m.IncrementCounter(ctx, MetricClassifyCalls, 2))
	require.NoError(t, m.UpdateGauge(ctx, MetricEstimatedComputeUnits, 180_000))
	require.NoError(t, m.RecordHistogram(ctx, MetricLoadMilliseconds, 12.5))

	assert.Equal(t, uint64(3), m.Counter(MetricClassifyCalls))
	assert.Equal(t, float64(180_000), m.Gauge(MetricEstimatedComputeUnits))
	assert.Equal(t, []float64{12.5}, m.Observations(MetricLoadMilliseconds))
	assert.NoError(t, m.Flush(ctx))
}

func TestCollectionFansOut(t *testing.T) {
	ctx := context.Background()
	a := NewLogMetrics(nil)
	b := NewLogMetrics(nil)
	c := NewCollection(a)
	c.Add(b)

	require.Equal(t, 2, c.Len())
	require.NoError(t, c.IncrementCounter(ctx, MetricSelectCalls, 1))

	assert.Equal(t, uint64(1), a.Counter(MetricSelectCalls))
	assert.Equal(t, uint64(1), b.Counter(MetricSelectCalls))
}

func TestCollectionStopsOnError(t *testing.T) {
	ctx := context.Background()
	after := NewLogMetrics(nil)
	c := NewCollection(&failingMetrics{}, after)

	assert.Error(t, c.IncrementCounter(ctx, MetricSelectCalls, 1))
	assert.Equal(t, uint64(0), after.Counter(MetricSelectCalls))
}

func TestHelpersSwallowErrors(t *testing.T) {
	ctx := context.Background()
	Inc(ctx, &failingMetrics{}, MetricLoadCalls)

	m := NewLogMetrics(nil)
	ObserveSince(ctx, m, MetricClassifyMilliseconds, time.Now().Add(-time.Millisecond))
	obs := m.Observations(MetricClassifyMilliseconds)
	require.Len(t, obs, 1)
	assert.GreaterOrEqual(t, obs[0], 1.0)
}
