package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/byase/byase-gui/internal/engine"
	"github.com/byase/byase-gui/internal/jobs"
	"github.com/byase/byase-gui/internal/model"
	"github.com/byase/byase-gui/internal/progress"
	"github.com/byase/byase-gui/internal/result"
	"github.com/byase/byase-gui/internal/sampler"
)

var (
	ErrClosed       = errors.New("supervisor closed")
	ErrNotCompleted = errors.New("job not completed")
	ErrInvalidJob   = errors.New("invalid job")
)

// Supervisor is the job core of one interface session. It owns the job
// registry and starts a controller goroutine for every submitted job.
type Supervisor struct {
	reg       *jobs.Registry
	opts      jobs.Options
	retention int
	timeouts  model.Timeouts

	// session lifetime of all controllers
	ctx    context.Context
	cancel context.CancelFunc

	mx     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

type Option func(*Supervisor)

// WithSpawner replaces process.Spawn, e.g. to run the engine in a sandbox.
func WithSpawner(s jobs.Spawner) Option {
	return func(sv *Supervisor) {
		sv.opts.Spawner = s
	}
}

func WithCollector(c jobs.Collector) Option {
	return func(sv *Supervisor) {
		sv.opts.Collector = c
	}
}

func NewSupervisor(ctx context.Context, cfg model.Config, opts ...Option) (*Supervisor, error) {
	if cfg.Version != 0 {
		return nil, fmt.Errorf("config version %d is not supported, expected 0", cfg.Version)
	}
	e, err := engine.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing engine config: %w", err)
	}
	rule, err := progress.FromConfig(cfg.Progress)
	if err != nil {
		return nil, fmt.Errorf("parsing progress rule: %w", err)
	}
	timeouts, err := cfg.Timeouts()
	if err != nil {
		return nil, err
	}
	if _, err := exec.LookPath(e.Path); err != nil {
		// not fatal: every job reports the spawn failure on its own
		slog.WarnContext(ctx, "engine executable not found", "path", e.Path, "error", err)
	}

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Supervisor{
		reg: jobs.NewRegistry(),
		opts: jobs.Options{
			Engine:    e,
			Sampler:   sampler.New(timeouts.SampleInterval),
			Rule:      rule,
			Collector: result.NewCollector(0),
		},
		timeouts: timeouts,
		ctx:      sctx,
		cancel:   cancel,
	}
	s.opts.Publisher = s.reg
	for _, opt := range opts {
		opt(s)
	}
	slog.DebugContext(ctx, "supervisor ready", "engine", e.Path, "progress_rule", rule.Version())
	return s, nil
}

// Submit validates cfg, registers a Pending job and starts it. It returns
// without waiting for the engine.
func (s *Supervisor) Submit(ctx context.Context, cfg model.JobConfig) (jobs.Status, error) {
	if err := model.ValidateJob(cfg); err != nil {
		return jobs.Status{}, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}

	s.mx.Lock()
	defer s.mx.Unlock()
	if s.closed {
		return jobs.Status{}, ErrClosed
	}
	j, err := s.reg.Submit(cfg)
	if err != nil {
		return jobs.Status{}, err
	}
	j.WithRetention(s.timeouts.Retention, s.timeouts.MaxAge)
	ctrl := jobs.NewController(j, s.opts)
	s.wg.Go(func() {
		ctrl.Run(s.ctx)
	})
	slog.InfoContext(ctx, "job submitted", "job_id", j.ID(), "tool", cfg.Tool)
	return j.Status(), nil
}

// Cancel asks the job to stop. It returns at once; the outcome arrives on
// the subscriptions.
func (s *Supervisor) Cancel(id string) error {
	j, err := s.reg.Get(id)
	if err != nil {
		return err
	}
	j.Cancel()
	return nil
}

func (s *Supervisor) Get(id string) (jobs.Status, error) {
	j, err := s.reg.Get(id)
	if err != nil {
		return jobs.Status{}, err
	}
	return j.Status(), nil
}

// List returns the status of every job in creation order.
func (s *Supervisor) List() []jobs.Status {
	list := s.reg.List()
	ret := make([]jobs.Status, 0, len(list))
	for _, j := range list {
		ret = append(ret, j.Status())
	}
	return ret
}

func (s *Supervisor) Remove(id string) error {
	return s.reg.Remove(id)
}

// Subscribe streams status snapshots of the given jobs, or of all jobs.
// Callers must Close the subscription.
func (s *Supervisor) Subscribe(ids ...string) *jobs.Subscription {
	return s.reg.Subscribe(ids...)
}

// Results returns the artifacts of a Completed job.
func (s *Supervisor) Results(id string) (result.ResultSet, error) {
	st, err := s.Get(id)
	if err != nil {
		return result.ResultSet{}, err
	}
	if st.State != jobs.Completed || st.Exit == nil || st.Exit.Results == nil {
		return result.ResultSet{}, fmt.Errorf("%w: %s is %s", ErrNotCompleted, id, st.State)
	}
	return *st.Exit.Results, nil
}

// Log returns the latest raw output lines of a job.
func (s *Supervisor) Log(id string) ([]string, error) {
	j, err := s.reg.Get(id)
	if err != nil {
		return nil, err
	}
	return j.Log(), nil
}

// Resources returns the retained resource history of a job.
func (s *Supervisor) Resources(id string) ([]model.ResourceSnapshot, error) {
	j, err := s.reg.Get(id)
	if err != nil {
		return nil, err
	}
	return j.Resources(), nil
}

// Do blocks until ctx is done, then closes the supervisor.
func (s *Supervisor) Do(ctx context.Context) error {
	<-ctx.Done()
	return s.Close(context.WithoutCancel(ctx))
}

// Close ends the session: new submissions are rejected, every live job is
// cancelled and Close waits until all controllers returned, so no engine
// process outlives the session. ctx bounds the wait. Subscriptions are
// closed after their last status was delivered.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mx.Lock()
	s.closed = true
	s.mx.Unlock()

	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for jobs to stop: %w", ctx.Err())
	}
	s.reg.Close()
	slog.DebugContext(ctx, "supervisor closed")
	return nil
}
