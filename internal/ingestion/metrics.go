package ingestion

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for documentsTotal.
const (
	outcomeUpserted = "upserted"
	outcomeSkipped  = "skipped"
	outcomeFailed   = "failed"
)

// Metrics holds the Prometheus metrics owned by the ingestion pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// documentsTotal counts documents handled, partitioned by collection and
	// outcome: "upserted", "skipped" or "failed".
	documentsTotal *prometheus.CounterVec

	// batchDurationSeconds records how long each embed+upsert batch took.
	batchDurationSeconds *prometheus.HistogramVec
}

// NewMetrics registers the ingestion metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		documentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notion_llm",
			Subsystem: "ingestion",
			Name:      "documents_total",
			Help:      "Documents handled by the ingestion pipeline, partitioned by collection and outcome.",
		}, []string{"collection", "outcome"}),

		batchDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "notion_llm",
			Subsystem: "ingestion",
			Name:      "batch_duration_seconds",
			Help:      "Wall-clock duration of one embed and upsert batch.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"collection"}),
	}
}

func (m *Metrics) observeDocuments(collection, outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.documentsTotal.WithLabelValues(collection, outcome).Add(float64(n))
}

func (m *Metrics) observeBatch(collection string, d time.Duration) {
	if m == nil {
		return
	}
	m.batchDurationSeconds.WithLabelValues(collection).Observe(d.Seconds())
}
