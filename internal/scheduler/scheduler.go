package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

// Job binds a handler to a cron schedule.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      JobFunc
}

// Service runs registered jobs on their schedules.
type Service struct {
	logger *zap.Logger
	cron   *cron.Cron
	parser cron.Parser

	mu      sync.Mutex
	jobs    map[string]Job
	running sync.WaitGroup
	ctx     context.Context
}

// Option configures the service.
type Option func(*Service)

// WithCron supplies a preconfigured cron engine.
func WithCron(c *cron.Cron) Option {
	return func(s *Service) { s.cron = c }
}

// WithLocation sets the timezone used to evaluate schedules.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.cron = cron.New(cron.WithLocation(loc)) }
}

// NewService creates a scheduler. Jobs do not fire until Start.
func NewService(logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		logger: logger.Named("scheduler"),
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		jobs:   map[string]Job{},
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New(cron.WithLocation(time.UTC))
	}
	return s
}

// Register adds a job. Overlapping runs of the same job are skipped.
func (s *Service) Register(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %s: handler required", job.Name)
	}
	schedule, err := s.parser.Parse(job.Schedule)
	if err != nil {
		return fmt.Errorf("job %s: parse schedule %q: %w", job.Name, job.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	wrapped := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		s.execute(s.baseContext(), job)
	}))
	s.cron.Schedule(schedule, wrapped)
	s.jobs[job.Name] = job
	s.logger.Info("job registered", zap.String("job", job.Name), zap.String("schedule", job.Schedule))
	return nil
}

func (s *Service) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Service) execute(ctx context.Context, job Job) error {
	s.running.Add(1)
	defer s.running.Done()

	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	started := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("job failed", zap.String("job", job.Name), zap.Duration("took", time.Since(started)), zap.Error(err))
		return err
	}
	s.logger.Debug("job finished", zap.String("job", job.Name), zap.Duration("took", time.Since(started)))
	return nil
}

// RunNow executes a registered job synchronously, outside its schedule.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}
	return s.execute(ctx, job)
}

// Start runs the scheduler until ctx is cancelled, then waits for running
// jobs to return.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
	<-ctx.Done()

	stopped := s.cron.Stop()
	<-stopped.Done()
	s.running.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}
