package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SummaryRefresher is the ledger operation the worker drives
type SummaryRefresher interface {
	RefreshSummaries(ctx context.Context) error
}

// SummaryWorkerConfig holds configuration for the summary refresh worker
type SummaryWorkerConfig struct {
	RefreshInterval time.Duration
	RefreshTimeout  time.Duration
}

// DefaultSummaryWorkerConfig returns default configuration
func DefaultSummaryWorkerConfig() SummaryWorkerConfig {
	return SummaryWorkerConfig{
		RefreshInterval: time.Minute,
		RefreshTimeout:  30 * time.Second,
	}
}

// SummaryWorkerStats is a snapshot of the worker's counters
type SummaryWorkerStats struct {
	IsRunning     bool      `json:"is_running"`
	Refreshes     int       `json:"refreshes"`
	Failures      int       `json:"failures"`
	LastRefreshed time.Time `json:"last_refreshed"`
	LastError     string    `json:"last_error,omitempty"`
}

// SummaryWorker periodically recomputes cached payment summaries so
// readers see fresh totals without paying for the aggregation
type SummaryWorker struct {
	config    SummaryWorkerConfig
	refresher SummaryRefresher
	logger    *zap.Logger

	mu            sync.RWMutex
	cancel        context.CancelFunc
	done          chan struct{}
	isRunning     bool
	refreshes     int
	failures      int
	lastRefreshed time.Time
	lastError     error
}

// NewSummaryWorker creates a new summary refresh worker
func NewSummaryWorker(config SummaryWorkerConfig, refresher SummaryRefresher, logger *zap.Logger) *SummaryWorker {
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = DefaultSummaryWorkerConfig().RefreshInterval
	}
	if config.RefreshTimeout <= 0 {
		config.RefreshTimeout = DefaultSummaryWorkerConfig().RefreshTimeout
	}
	return &SummaryWorker{
		config:    config,
		refresher: refresher,
		logger:    logger,
	}
}

// Start begins the refresh loop
func (w *SummaryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRunning {
		return fmt.Errorf("summary worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("SummaryWorker started",
		zap.Duration("refresh_interval", w.config.RefreshInterval))

	go w.loop(runCtx, w.done)
	return nil
}

// Stop terminates the loop and waits for an in-flight refresh to finish
func (w *SummaryWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	stats := w.Stats()
	w.logger.Info("SummaryWorker stopped",
		zap.Int("refreshes", stats.Refreshes),
		zap.Int("failures", stats.Failures))
	return nil
}

// Name returns the worker name for identification
func (w *SummaryWorker) Name() string {
	return "SummaryWorker"
}

// Stats returns the current counters
func (w *SummaryWorker) Stats() SummaryWorkerStats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	stats := SummaryWorkerStats{
		IsRunning:     w.isRunning,
		Refreshes:     w.refreshes,
		Failures:      w.failures,
		LastRefreshed: w.lastRefreshed,
	}
	if w.lastError != nil {
		stats.LastError = w.lastError.Error()
	}
	return stats
}

func (w *SummaryWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Summary refresh loop context cancelled")
			return
		case <-ticker.C:
			w.RefreshOnce(ctx)
		}
	}
}

// RefreshOnce runs a single refresh and records its outcome
func (w *SummaryWorker) RefreshOnce(ctx context.Context) {
	refreshCtx, cancel := context.WithTimeout(ctx, w.config.RefreshTimeout)
	defer cancel()

	err := w.refresher.RefreshSummaries(refreshCtx)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastRefreshed = time.Now()
	if err != nil {
		w.failures++
		w.lastError = err
		w.logger.Error("Failed to refresh payment summaries", zap.Error(err))
		return
	}
	w.refreshes++
	w.lastError = nil
}
