package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"bank_ledger/internal/domain"
	"bank_ledger/internal/ledger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

var _ ledger.Observer = (*MetricsCollector)(nil)

type MetricsCollector struct {
	registry           *prometheus.Registry
	operationsRecorded *prometheus.CounterVec
	operationsRejected *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	accountBalance     *prometheus.GaugeVec
	accountsOpen       *prometheus.GaugeVec
	batchRuns          *prometheus.CounterVec
	batchDuration      prometheus.Histogram
	batchAdjustments   *prometheus.CounterVec
	lastBatchTimestamp prometheus.Gauge
	mu                 sync.RWMutex
	server             *http.Server
	logger             *slog.Logger
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	collector := &MetricsCollector{
		registry: registry,
		operationsRecorded: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_recorded_total",
			Help: "Operations that produced an audit record, by outcome",
		}, []string{"operation", "status"}),
		operationsRejected: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_rejected_total",
			Help: "Operations rejected before any record was written",
		}, []string{"operation", "reason"}),
		operationDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Time taken to apply a ledger operation",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		accountBalance: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledger_account_balance",
			Help: "Current account balance",
		}, []string{"account_number", "account_type"}),
		accountsOpen: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledger_accounts_open",
			Help: "Number of ACTIVE accounts",
		}, []string{"account_type"}),
		batchRuns: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_monthly_batch_runs_total",
			Help: "Monthly processing runs, by outcome",
		}, []string{"result"}),
		batchDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_monthly_batch_duration_seconds",
			Help:    "Time taken by a monthly processing run",
			Buckets: prometheus.DefBuckets,
		}),
		batchAdjustments: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_monthly_adjustments_total",
			Help: "Sum of fees charged and interest credited by the monthly batch",
		}, []string{"type"}),
		lastBatchTimestamp: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "ledger_monthly_batch_last_success_timestamp_seconds",
			Help: "Unix time of the last successful monthly run",
		}),
		logger: logger,
	}

	return collector
}

func (m *MetricsCollector) OperationRecorded(op ledger.Operation, status domain.TransactionStatus, duration time.Duration) {
	m.operationsRecorded.WithLabelValues(string(op), string(status)).Inc()
	m.operationDuration.WithLabelValues(string(op)).Observe(duration.Seconds())
}

func (m *MetricsCollector) OperationRejected(op ledger.Operation, err error) {
	m.operationsRejected.WithLabelValues(string(op), rejectionReason(err)).Inc()
}

func (m *MetricsCollector) BalanceChanged(accountNumber string, accountType domain.AccountType, balance decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accountBalance.WithLabelValues(accountNumber, string(accountType)).Set(balance.InexactFloat64())
}

func (m *MetricsCollector) AccountOpened(accountType domain.AccountType) {
	m.accountsOpen.WithLabelValues(string(accountType)).Inc()
}

// AccountClosed drops the balance series of the account so closed accounts
// do not accumulate in the registry.
func (m *MetricsCollector) AccountClosed(accountNumber string, accountType domain.AccountType) {
	m.accountsOpen.WithLabelValues(string(accountType)).Dec()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.accountBalance.DeleteLabelValues(accountNumber, string(accountType))
}

func (m *MetricsCollector) BatchCompleted(report ledger.BatchReport, duration time.Duration, err error) {
	m.batchDuration.Observe(duration.Seconds())
	if err != nil {
		m.batchRuns.WithLabelValues("failed").Inc()
		return
	}

	m.batchRuns.WithLabelValues("success").Inc()
	m.batchAdjustments.WithLabelValues(string(domain.TypeFee)).Add(report.FeesCharged.InexactFloat64())
	m.batchAdjustments.WithLabelValues(string(domain.TypeInterest)).Add(report.InterestCredited.InexactFloat64())
	m.lastBatchTimestamp.Set(float64(report.StartedAt.Unix()))
}

// rejectionReason keeps the reason label to a fixed set of values.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrAccountClosed):
		return "closed"
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, domain.ErrSameAccount):
		return "same_account"
	case errors.Is(err, domain.ErrAccountOpen):
		return "open_rejected"
	default:
		return "other"
	}
}

func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
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

	m.mu.Lock()
	m.server = server
	m.mu.Unlock()

	go func() {
		m.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}

func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	server := m.server
	m.mu.RUnlock()

	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			return err
		}
	}

	m.logger.Info("Metrics collector shutdown complete")
	return nil
}
