package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (r *countingRefresher) RefreshSummaries(ctx context.Context) error {
	r.calls.Add(1)
	return r.err
}

func TestSummaryWorker_RefreshesOnInterval(t *testing.T) {
	refresher := &countingRefresher{}
	w := NewSummaryWorker(SummaryWorkerConfig{RefreshInterval: 5 * time.Millisecond}, refresher, zap.NewNop())

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()), "second start must fail")

	assert.Eventually(t, func() bool { return refresher.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop())

	stats := w.Stats()
	assert.False(t, stats.IsRunning)
	assert.GreaterOrEqual(t, stats.Refreshes, 2)
	assert.Zero(t, stats.Failures)

	calls := refresher.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, refresher.calls.Load(), "no refresh after stop")
}

func TestSummaryWorker_RecordsFailures(t *testing.T) {
	refresher := &countingRefresher{err: errors.New("database locked")}
	w := NewSummaryWorker(DefaultSummaryWorkerConfig(), refresher, zap.NewNop())

	w.RefreshOnce(context.Background())

	stats := w.Stats()
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, "database locked", stats.LastError)
	assert.False(t, stats.LastRefreshed.IsZero())
}

type stubWorker struct {
	name     string
	startErr error
	stopped  bool
}

func (s *stubWorker) Start(ctx context.Context) error { return s.startErr }
func (s *stubWorker) Stop() error                     { s.stopped = true; return nil }
func (s *stubWorker) Name() string                    { return s.name }

func TestWorkerManager_StopsOnlyStartedWorkers(t *testing.T) {
	m := NewWorkerManager(zap.NewNop())
	ok := &stubWorker{name: "ok"}
	broken := &stubWorker{name: "broken", startErr: errors.New("no")}
	m.Register(ok)
	m.Register(broken)

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.Equal(t, 2, m.GetWorkerCount())
	assert.Error(t, m.StartAll(context.Background()))

	require.NoError(t, m.StopAll())
	assert.True(t, ok.stopped)
	assert.False(t, broken.stopped)
	assert.False(t, m.IsRunning())
	assert.NoError(t, m.StopAll())
}
