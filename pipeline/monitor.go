package pipeline

import (
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Monitor observes the state transitions of pipeline runs. Calls for one
// run come from a single goroutine; a monitor shared between concurrent
// runs must be safe for concurrent use.
type Monitor interface {
	RunStarted(runID uuid.UUID, req *Request)
	StageStarted(runID uuid.UUID, stage Stage)
	StageFinished(runID uuid.UUID, result *StageResult)
	RunFinished(resp *Response)
}

type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) RunStarted(uuid.UUID, *Request)        {}
func (n *noopMonitor) StageStarted(uuid.UUID, Stage)         {}
func (n *noopMonitor) StageFinished(uuid.UUID, *StageResult) {}
func (n *noopMonitor) RunFinished(*Response)                 {}

// MetricsMonitor exports run and stage metrics to Prometheus.
type MetricsMonitor struct {
	runs          *prometheus.CounterVec
	stages        *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	found         prometheus.Counter
	processed     prometheus.Counter
	vectors       prometheus.Counter
	cards         prometheus.Counter
}

var _ Monitor = (*MetricsMonitor)(nil)

// NewMetricsMonitor creates the collectors and registers them with reg.
func NewMetricsMonitor(reg prometheus.Registerer) (*MetricsMonitor, error) {
	m := &MetricsMonitor{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newsdesk",
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"success"}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newsdesk",
			Name:      "pipeline_stage_results_total",
			Help:      "Stage results by stage and status.",
		}, []string{"stage", "status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "newsdesk",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Time spent in each executed stage.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"stage"}),
		found: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "newsdesk",
			Name:      "articles_found_total",
			Help:      "Articles returned by the search provider.",
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "newsdesk",
			Name:      "articles_processed_total",
			Help:      "Articles stored, new or merged.",
		}),
		vectors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "newsdesk",
			Name:      "vectors_created_total",
			Help:      "Chunk vectors written to session indexes.",
		}),
		cards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "newsdesk",
			Name:      "cards_generated_total",
			Help:      "Article cards generated.",
		}),
	}

	for _, c := range []prometheus.Collector{m.runs, m.stages, m.stageDuration, m.found, m.processed, m.vectors, m.cards} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *MetricsMonitor) RunStarted(uuid.UUID, *Request) {}

func (m *MetricsMonitor) StageStarted(uuid.UUID, Stage) {}

func (m *MetricsMonitor) StageFinished(_ uuid.UUID, result *StageResult) {
	m.stages.WithLabelValues(string(result.Stage), string(result.Status)).Inc()
	if result.Status != StatusSkipped {
		m.stageDuration.WithLabelValues(string(result.Stage)).Observe(result.Elapsed.Seconds())
	}
}

func (m *MetricsMonitor) RunFinished(resp *Response) {
	success := "false"
	if resp.Success {
		success = "true"
	}
	m.runs.WithLabelValues(success).Inc()
	m.found.Add(float64(resp.TotalFound))
	m.processed.Add(float64(resp.ProcessedCount))
	m.vectors.Add(float64(resp.VectorsCreated))
	m.cards.Add(float64(resp.CardsGenerated))
}

// Monitors fans every callback out to each monitor in order.
type Monitors []Monitor

var _ Monitor = Monitors(nil)

func (ms Monitors) RunStarted(runID uuid.UUID, req *Request) {
	for _, m := range ms {
		m.RunStarted(runID, req)
	}
}

func (ms Monitors) StageStarted(runID uuid.UUID, stage Stage) {
	for _, m := range ms {
		m.StageStarted(runID, stage)
	}
}

func (ms Monitors) StageFinished(runID uuid.UUID, result *StageResult) {
	for _, m := range ms {
		m.StageFinished(runID, result)
	}
}

func (ms Monitors) RunFinished(resp *Response) {
	for _, m := range ms {
		m.RunFinished(resp)
	}
}
