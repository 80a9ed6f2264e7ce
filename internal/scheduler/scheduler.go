// Package scheduler triggers the ledger's monthly processing on a fixed
// interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"bank_ledger/internal/ledger"
)

var ErrAlreadyStarted = errors.New("scheduler already started")

type MonthlyProcessor interface {
	ApplyMonthlyProcessing(ctx context.Context) (ledger.BatchReport, error)
}

// ReportHandler receives every successful run, e.g. to notify customers.
type ReportHandler func(ctx context.Context, report ledger.BatchReport)

type Scheduler struct {
	processor MonthlyProcessor
	interval  time.Duration
	onReport  ReportHandler
	logger    *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	runs    int
	lastErr error
}

func New(processor MonthlyProcessor, interval time.Duration, onReport ReportHandler, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		processor: processor,
		interval:  interval,
		onReport:  onReport,
		logger:    logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)

	s.logger.Info("Monthly scheduler started", slog.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce applies monthly processing immediately. A failed run is logged and
// retried on the next tick; the ledger guarantees it changed nothing.
func (s *Scheduler) RunOnce(ctx context.Context) (ledger.BatchReport, error) {
	report, err := s.processor.ApplyMonthlyProcessing(ctx)

	s.mu.Lock()
	s.runs++
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.ErrorContext(ctx, "Scheduled monthly processing failed", slog.String("error", err.Error()))
		return report, err
	}

	s.logger.InfoContext(ctx, "Scheduled monthly processing finished",
		slog.Int("accounts", report.AccountsProcessed))
	if s.onReport != nil {
		s.onReport(ctx, report)
	}
	return report, nil
}

// Stats returns how many runs happened and the error of the latest one.
func (s *Scheduler) Stats() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.lastErr
}

func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		s.logger.Info("Monthly scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
