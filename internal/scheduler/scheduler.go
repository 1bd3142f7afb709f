// Package scheduler drives the two background cycles: periodic prediction
// refresh for a bounded location subset and periodic model retraining.
// Single-instance only; clustered deployments need external ownership.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/agrisight/prediction-service/internal/observability"
	"github.com/agrisight/prediction-service/internal/store"
)

const (
	jobRefresh = "refresh"
	jobRetrain = "retrain"
)

// Orchestrator is the slice of the prediction orchestrator the scheduler
// drives.
type Orchestrator interface {
	RefreshLocation(ctx context.Context, location string) error
	RetrainModels(ctx context.Context, since time.Time, minPoints int) error
}

// Config holds the cycle timings. Zero values fall back to defaults.
type Config struct {
	RefreshInterval  time.Duration
	RetrainInterval  time.Duration
	RefreshBatchSize int
	RefreshDelay     time.Duration
	RetrainWindow    time.Duration
	RetrainMinPoints int
	// TrackedLocations, when set, is refreshed instead of the store's
	// discovered locations.
	TrackedLocations []string
}

// Scheduler owns the two timers and their goroutines.
type Scheduler struct {
	cfg    Config
	orch   Orchestrator
	store  store.Store
	clock  clockwork.Clock
	logger *zap.Logger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// New builds a stopped scheduler.
func New(cfg Config, orch Orchestrator, st store.Store, clock clockwork.Clock, logger *zap.Logger) *Scheduler {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 6 * time.Hour
	}
	if cfg.RetrainInterval <= 0 {
		cfg.RetrainInterval = 24 * time.Hour
	}
	if cfg.RefreshBatchSize <= 0 {
		cfg.RefreshBatchSize = 10
	}
	if cfg.RetrainWindow <= 0 {
		cfg.RetrainWindow = 30 * 24 * time.Hour
	}
	if cfg.RetrainMinPoints <= 0 {
		cfg.RetrainMinPoints = 11
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:    cfg,
		orch:   orch,
		store:  st,
		clock:  clock,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start launches both cycles. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	s.wg.Add(2)
	go s.loop(jobRefresh, s.cfg.RefreshInterval, s.RunRefresh)
	go s.loop(jobRetrain, s.cfg.RetrainInterval, s.RunRetrain)
	s.logger.Info("scheduler started",
		zap.Duration("refreshInterval", s.cfg.RefreshInterval),
		zap.Duration("retrainInterval", s.cfg.RetrainInterval))
}

// Stop halts both cycles and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(job string, interval time.Duration, run func(context.Context) error) {
	defer s.wg.Done()
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.Chan():
			s.runJob(job, run)
		}
	}
}

func (s *Scheduler) runJob(job string, run func(context.Context) error) {
	if err := run(context.Background()); err != nil {
		observability.SchedulerRunsTotal.WithLabelValues(job, "error").Inc()
		s.logger.Error("scheduled run failed", zap.String("job", job), zap.Error(err))
		return
	}
	observability.SchedulerRunsTotal.WithLabelValues(job, "success").Inc()
}

// RunRefresh recomputes cached predictions for the first batch of known
// locations, serially with a fixed inter-location delay. A per-location
// failure is logged and skipped; the batch always runs to completion.
func (s *Scheduler) RunRefresh(ctx context.Context) error {
	locations := s.cfg.TrackedLocations
	if len(locations) == 0 {
		var err error
		locations, err = s.store.Locations(ctx)
		if err != nil {
			return err
		}
	}
	if len(locations) > s.cfg.RefreshBatchSize {
		locations = locations[:s.cfg.RefreshBatchSize]
	}

	var refreshed, skipped int
	for i, loc := range locations {
		if i > 0 && s.cfg.RefreshDelay > 0 {
			s.clock.Sleep(s.cfg.RefreshDelay)
		}
		if err := s.orch.RefreshLocation(ctx, loc); err != nil {
			skipped++
			s.logger.Warn("refresh skipped location",
				zap.String("location", loc), zap.Error(err))
			continue
		}
		refreshed++
	}
	s.logger.Info("refresh cycle complete",
		zap.Int("refreshed", refreshed), zap.Int("skipped", skipped))
	return nil
}

// RunRetrain retrains the models on recent history.
func (s *Scheduler) RunRetrain(ctx context.Context) error {
	since := s.clock.Now().Add(-s.cfg.RetrainWindow)
	return s.orch.RetrainModels(ctx, since, s.cfg.RetrainMinPoints)
}
