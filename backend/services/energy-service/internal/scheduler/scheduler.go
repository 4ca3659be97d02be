package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler runs background jobs for the energy services.
type Scheduler struct {
	scheduler *gocron.Scheduler
	logger    *zap.Logger
	timeout   time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a scheduler in loc. Each run gets timeout to finish.
func New(loc *time.Location, timeout time.Duration, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := gocron.NewScheduler(loc)
	s.SingletonModeAll()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		logger:    logger,
		timeout:   timeout,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Daily runs job every day at the "HH:MM" wall-clock time.
func (s *Scheduler) Daily(at, name string, job Job) (*gocron.Job, error) {
	return s.scheduler.Every(1).Day().At(at).Tag(name).Do(s.wrap(name, job))
}

// Every runs job at a fixed interval, starting immediately.
func (s *Scheduler) Every(interval time.Duration, name string, job Job) (*gocron.Job, error) {
	return s.scheduler.Every(interval).Tag(name).Do(s.wrap(name, job))
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop cancels running jobs and stops the scheduler.
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}

func (s *Scheduler) wrap(name string, job Job) func() {
	return func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Warn("scheduled job failed", zap.String("job", name), zap.Error(err))
			return
		}
		s.logger.Debug("scheduled job done", zap.String("job", name), zap.Duration("took", time.Since(start)))
	}
}
