package pipeline

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsMonitor(t *testing.T) {
	f := newFixture(t, chipArticles()...)
	reg := prometheus.NewRegistry()
	metrics, err := NewMetricsMonitor(reg)
	require.NoError(t, err)

	rec := &recordingMonitor{}
	o := f.orchestrator(t, WithMonitor(Monitors{metrics, rec}))

	_, err = o.Run(context.Background(), Request{
		Session:  "s1",
		Keywords: []string{"chip"},
		Stages:   []Stage{StageSearch, StageStore, StageVectorize},
	})
	require.NoError(t, err)
	_, err = o.Run(context.Background(), Request{
		Session:  "s1",
		Keywords: []string{"bananas"},
		Stages:   []Stage{StageSearch},
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("false")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.stages.WithLabelValues("search", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.stages.WithLabelValues("store", "skipped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.stages.WithLabelValues("memory_update", "skipped")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.found))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.processed))
	assert.Positive(t, testutil.ToFloat64(metrics.vectors))
	assert.Zero(t, testutil.ToFloat64(metrics.cards))

	assert.Equal(t, 2, rec.runs)
	assert.Equal(t, 3, testutil.CollectAndCount(metrics.stageDuration))
}

func TestNewMetricsMonitor_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetricsMonitor(reg)
	require.NoError(t, err)

	_, err = NewMetricsMonitor(reg)
	assert.Error(t, err)
}
