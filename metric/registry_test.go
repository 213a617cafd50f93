package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eventrouter/errors"
)

func testCounter(name string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "eventrouter",
		Name:      name,
		Help:      "test counter",
	})
}

func TestRegistry_RegisterAndUnregister(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NoError(t, registry.Register("bridge", "test_total", testCounter("test_total")))

	// Same key is rejected as invalid input
	err := registry.Register("bridge", "test_total", testCounter("test_total"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	assert.True(t, registry.Unregister("bridge", "test_total"))
	assert.False(t, registry.Unregister("bridge", "test_total"))

	// Re-registration works after unregister
	assert.NoError(t, registry.Register("bridge", "test_total", testCounter("test_total")))
}

func TestRegistry_PrometheusConflict(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NoError(t, registry.Register("bridge", "shared_total", testCounter("shared_total")))

	// Different key, identical collector descriptor
	err := registry.Register("sweeper", "shared_total", testCounter("shared_total"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestRegistry_CoreMetricsRegistered(t *testing.T) {
	registry := NewMetricsRegistry()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	registry.CoreMetrics().EventsReceived.WithLabelValues("bridge").Inc()
	assert.NotNil(t, registry.Metrics.ServiceStatus)
	assert.NotEmpty(t, families) // go runtime collectors at minimum
}
