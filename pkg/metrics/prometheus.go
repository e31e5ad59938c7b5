package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsCollector struct {
	registry             *prometheus.Registry
	invoicesSubmitted    prometheus.Counter
	invoicesFailed       prometheus.Counter
	submissionDuration   prometheus.Histogram
	fraudVerdicts        *prometheus.CounterVec
	notarizations        *prometheus.CounterVec
	fingerprintAlgorithm *prometheus.GaugeVec
	mu                   sync.RWMutex
	logger               *slog.Logger
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	collector := &MetricsCollector{
		registry: registry,
		invoicesSubmitted: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "invoices_submitted_total",
			Help: "Total number of invoices accepted",
		}),
		invoicesFailed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "invoices_failed_total",
			Help: "Total number of invoice submissions that failed",
		}),
		submissionDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "invoice_submission_duration_seconds",
			Help:    "Time taken to process an invoice submission",
			Buckets: prometheus.DefBuckets,
		}),
		fraudVerdicts: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "invoice_fraud_verdicts_total",
			Help: "Fraud verdicts by severity",
		}, []string{"severity"}),
		notarizations: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "invoice_notarizations_total",
			Help: "Notarization attempts by mode and outcome",
		}, []string{"mode", "outcome"}),
		fingerprintAlgorithm: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "invoice_fingerprint_algorithm",
			Help: "Set to 1 for the digest algorithm in use",
		}, []string{"algorithm"}),
		logger: logger,
	}

	return collector
}

func (m *MetricsCollector) RecordSubmission(duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if success {
		m.invoicesSubmitted.Inc()
	} else {
		m.invoicesFailed.Inc()
	}

	m.submissionDuration.Observe(duration.Seconds())
}

func (m *MetricsCollector) RecordVerdict(severity string) {
	m.fraudVerdicts.WithLabelValues(severity).Inc()
}

// RecordNotarization counts one attempt. Outcome is confirmed, pending or failed.
func (m *MetricsCollector) RecordNotarization(mode, outcome string) {
	m.notarizations.WithLabelValues(mode, outcome).Inc()
}

func (m *MetricsCollector) SetFingerprintAlgorithm(algorithm string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fingerprintAlgorithm.Reset()
	m.fingerprintAlgorithm.WithLabelValues(algorithm).Set(1)
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
