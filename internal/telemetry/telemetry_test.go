package telemetry_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/mobilille/mobilille/internal/snapshot"
	"github.com/mobilille/mobilille/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()

	provider, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "mobilille-api",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
	})

	require.NoError(t, err)
	assert.NotNil(t, provider)
	assert.NotNil(t, provider.Tracer)
	assert.NotNil(t, provider.Meter)

	// Noop provider should have nil TracerProvider and MeterProvider
	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)

	assert.NoError(t, provider.Shutdown(ctx))
}

func TestProvider_Shutdown_NilProviders(t *testing.T) {
	provider := &telemetry.Provider{}
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestObserveSnapshots(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	store := snapshot.NewStore("vlille", "parking")
	require.NoError(t, store.Set("vlille", json.RawMessage(`[]`), now.Add(-45*time.Second)))

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	reg, err := telemetry.ObserveSnapshots(mp.Meter("test"), store, func() time.Time { return now })
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Unregister() })

	data := collect(t, reader)

	age, ok := data["source.snapshot.age"].(metricdata.Gauge[float64])
	require.True(t, ok)
	ages := make(map[string]float64)
	for _, dp := range age.DataPoints {
		name, _ := dp.Attributes.Value(attribute.Key("source"))
		ages[name.AsString()] = dp.Value
	}
	assert.InDelta(t, 45.0, ages["vlille"], 0.001)
	assert.Zero(t, ages["parking"])

	ready, ok := data["source.snapshot.ready"].(metricdata.Gauge[int64])
	require.True(t, ok)
	readiness := make(map[string]int64)
	for _, dp := range ready.DataPoints {
		name, _ := dp.Attributes.Value(attribute.Key("source"))
		readiness[name.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"vlille": 1, "parking": 0}, readiness)
}
