package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/darkden-lab/eventbus/internal/logging"
)

// DefaultJobInterval is used when a Scheduler is given a non-positive interval.
const DefaultJobInterval = time.Second

// Job is triggered by a Scheduler.
type Job interface {
	StartJob(ctx context.Context) error
}

// Scheduler triggers a Job at a fixed interval. Each trigger runs in its own
// goroutine, so a trigger may fire while the previous run is still polling;
// the job decides what to do with overlapping calls.
type Scheduler struct {
	job      Job
	interval time.Duration
	logger   *slog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a Scheduler. Call Start to begin triggering.
func NewScheduler(job Job, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultJobInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		job:      job,
		interval: interval,
		logger:   logging.OrDefault(logger),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start triggers the job once immediately and then on every tick.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("listener scheduler started",
		"event", "scheduler_started",
		"module", "internal/bus",
		"interval", s.interval,
	)
}

// Stop cancels in-flight runs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.trigger()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.trigger()
		}
	}
}

func (s *Scheduler) trigger() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.job.StartJob(s.ctx); err != nil && s.ctx.Err() == nil {
			s.logger.Error("listener job failed",
				"event", "scheduler_job_failed",
				"module", "internal/bus",
				"error", err.Error(),
			)
		}
	}()
}
