package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsCollector struct {
	registry             *prometheus.Registry
	batchesScreened      prometheus.Counter
	batchesRejected      prometheus.Counter
	batchDuration        prometheus.Histogram
	transactionsScreened prometheus.Counter
	transactionsFlagged  prometheus.Counter
	malformedRows        prometheus.Counter
	ruleHits             *prometheus.CounterVec
	logger               *slog.Logger
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	collector := &MetricsCollector{
		registry: registry,
		batchesScreened: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "batches_screened_total",
			Help: "Total number of screened batches",
		}),
		batchesRejected: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "batches_rejected_total",
			Help: "Total number of batches rejected before screening",
		}),
		batchDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "batch_screening_duration_seconds",
			Help:    "Time taken to screen a batch",
			Buckets: prometheus.DefBuckets,
		}),
		transactionsScreened: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "transactions_screened_total",
			Help: "Total number of screened transactions",
		}),
		transactionsFlagged: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "transactions_flagged_total",
			Help: "Total number of flagged transactions",
		}),
		malformedRows: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "malformed_rows_total",
			Help: "Total number of rows dropped during normalization",
		}),
		ruleHits: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "rule_hits_total",
			Help: "Flagged transactions per rule",
		}, []string{"rule"}),
		logger: logger,
	}

	return collector
}

// RecordBatch records the outcome of one screened batch.
func (m *MetricsCollector) RecordBatch(duration time.Duration, batchSize, flagged, malformed int) {
	m.batchesScreened.Inc()
	m.batchDuration.Observe(duration.Seconds())
	m.transactionsScreened.Add(float64(batchSize))
	m.transactionsFlagged.Add(float64(flagged))
	m.malformedRows.Add(float64(malformed))
}

// RecordBatchRejected counts a batch that never reached the rules.
func (m *MetricsCollector) RecordBatchRejected() {
	m.batchesRejected.Inc()
}

func (m *MetricsCollector) RecordRuleHits(rule string, hits int) {
	if hits == 0 {
		return
	}
	m.ruleHits.WithLabelValues(rule).Add(float64(hits))
}

func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsCollector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.GetHandler())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		m.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}

func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	m.logger.Info("Metrics collector shutdown complete")
	return nil
}
