package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"bank_ledger/internal/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	calls atomic.Int32
	err   error
}

func (f *fakeProcessor) ApplyMonthlyProcessing(ctx context.Context) (ledger.BatchReport, error) {
	n := f.calls.Add(1)
	if f.err != nil {
		return ledger.BatchReport{}, f.err
	}
	return ledger.BatchReport{AccountsProcessed: int(n)}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestRunOnce_CallsHandler(t *testing.T) {
	proc := &fakeProcessor{}
	var handled ledger.BatchReport
	s := New(proc, time.Hour, func(ctx context.Context, r ledger.BatchReport) { handled = r }, quietLogger())

	report, err := s.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.AccountsProcessed)
	assert.Equal(t, report, handled)
	runs, lastErr := s.Stats()
	assert.Equal(t, 1, runs)
	assert.NoError(t, lastErr)
}

func TestRunOnce_FailureSkipsHandler(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("aborted")}
	called := false
	s := New(proc, time.Hour, func(context.Context, ledger.BatchReport) { called = true }, quietLogger())

	_, err := s.RunOnce(context.Background())

	assert.Error(t, err)
	assert.False(t, called)
	_, lastErr := s.Stats()
	assert.EqualError(t, lastErr, "aborted")
}

func TestStart_TicksUntilShutdown(t *testing.T) {
	proc := &fakeProcessor{}
	s := New(proc, 5*time.Millisecond, nil, quietLogger())

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)

	assert.Eventually(t, func() bool { return proc.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	after := proc.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, proc.calls.Load(), "no runs after shutdown")
}

func TestShutdown_NotStarted(t *testing.T) {
	s := New(&fakeProcessor{}, time.Hour, nil, quietLogger())

	assert.NoError(t, s.Shutdown(context.Background()))
}
