package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotledger/internal/core"
	"lotledger/pkg/domain"
)

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	ctx := context.Background()
	rec.Observe(ctx, "convert", true, 3*time.Millisecond)
	rec.Observe(ctx, "convert", false, time.Millisecond)
	rec.Observe(ctx, "convert", true, time.Millisecond)
	rec.ObserveContention(ctx, "convert")

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.operations.WithLabelValues("convert", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.operations.WithLabelValues("convert", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.contention.WithLabelValues("convert")))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.duration))
}

func TestPrometheusRecorderDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)
	_, err = NewPrometheusRecorder(reg)
	require.Error(t, err)
}

func TestPrometheusRecorderWiredIntoService(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)
	svc := core.NewInMemoryService(nil, core.WithMetricsRecorder(rec))

	ctx := context.Background()
	_, err = svc.IntakeSeeds(ctx, core.IntakeRequest{Quantity: 10, Member: "member-1"})
	require.NoError(t, err)
	_, err = svc.IntakeSeeds(ctx, core.IntakeRequest{Quantity: 0, Member: "member-1"})
	require.ErrorIs(t, err, domain.ErrValidation)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.operations.WithLabelValues("intake_seeds", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.operations.WithLabelValues("intake_seeds", "failure")))
}
