package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/byase/byase-gui/internal/engine"
	"github.com/byase/byase-gui/internal/log"
	"github.com/byase/byase-gui/internal/model"
	"github.com/byase/byase-gui/internal/process"
	"github.com/byase/byase-gui/internal/progress"
	"github.com/byase/byase-gui/internal/result"
	"github.com/byase/byase-gui/internal/sampler"
)

var ErrEngineFailure = errors.New("engine failure")

// EngineError is a non-success exit of the engine.
type EngineError struct {
	Code   int
	Status string
	Stderr string
}

func (e *EngineError) Error() string {
	msg := "engine " + e.Status
	if last := lastLine(e.Stderr); last != "" {
		msg += ": " + last
	}
	return msg
}

func (e *EngineError) Unwrap() error {
	return ErrEngineFailure
}

// Process is a running engine as seen by a Controller. *process.Handle
// implements it.
type Process interface {
	Pid() int
	IsAlive() bool
	Done() <-chan struct{}
	Wait() process.ExitStatus
	Output() io.ReadCloser
	Stderr() string
	Terminate(graceful bool) error
}

type Spawner interface {
	Spawn(ctx context.Context, c process.Command) (Process, error)
}

type SpawnFunc func(ctx context.Context, c process.Command) (Process, error)

func (f SpawnFunc) Spawn(ctx context.Context, c process.Command) (Process, error) {
	return f(ctx, c)
}

// ProcessSpawner starts engine processes with process.Spawn.
var ProcessSpawner Spawner = SpawnFunc(func(ctx context.Context, c process.Command) (Process, error) {
	h, err := process.Spawn(ctx, c)
	if err != nil {
		return nil, err
	}
	return h, nil
})

type Collector interface {
	Collect(ctx context.Context, cfg model.JobConfig) (result.ResultSet, error)
}

// Options are the collaborators of a Controller. Zero values get defaults.
type Options struct {
	Engine    engine.Engine
	Spawner   Spawner
	Sampler   *sampler.Sampler
	Rule      progress.Rule
	Collector Collector
	Publisher Publisher
}

type nopPublisher struct{}

func (nopPublisher) Publish(Status) {}

// Controller drives one Job from Pending to a terminal state. It is the
// only writer of the job; the sampler and the output parser run in their
// own goroutines and only send events to it.
type Controller struct {
	job    *Job
	opts   Options
	status Status
}

func NewController(job *Job, opts Options) *Controller {
	if opts.Spawner == nil {
		opts.Spawner = ProcessSpawner
	}
	if opts.Sampler == nil {
		opts.Sampler = sampler.New(sampler.DefaultInterval)
	}
	if opts.Rule.Version() == "" {
		opts.Rule = progress.DefaultRule
	}
	if opts.Collector == nil {
		opts.Collector = result.NewCollector(0)
	}
	if opts.Publisher == nil {
		opts.Publisher = nopPublisher{}
	}
	if opts.Engine.GracePeriod <= 0 {
		opts.Engine.GracePeriod = process.DefaultGracePeriod
	}
	return &Controller{
		job:    job,
		opts:   opts,
		status: job.Status(),
	}
}

func (c *Controller) Job() *Job {
	return c.job
}

// Cancel requests a cooperative stop. See Job.Cancel.
func (c *Controller) Cancel() {
	c.job.Cancel()
}

// Run drives the job until it reaches a terminal state and returns the
// final status. Canceling ctx is a cancel request: Run still returns only
// once the engine is confirmed gone or reported unkillable.
func (c *Controller) Run(ctx context.Context) Status {
	j := c.job
	ctx = log.JobAttrs(ctx, j.ID(), string(j.config.Tool))
	stop := context.AfterFunc(ctx, j.Cancel)
	defer stop()

	if c.status.State != Pending {
		slog.ErrorContext(ctx, "job already started", "state", c.status.State)
		return c.status
	}

	cmd, err := engine.Command(c.opts.Engine, j.config)
	if err != nil {
		c.finish(ctx, Failed, &ExitInfo{Code: -1, Reason: ReasonSpawn, Message: err.Error()})
		return c.status
	}
	if dir := j.config.OutDir; dir != "" {
		// the output directory doubles as the default working directory
		if err := os.MkdirAll(dir, 0o755); err != nil {
			c.finish(ctx, Failed, &ExitInfo{Code: -1, Reason: ReasonSpawn, Message: fmt.Sprintf("creating output directory: %v", err)})
			return c.status
		}
	}
	proc, err := c.opts.Spawner.Spawn(ctx, cmd)
	if err != nil {
		slog.ErrorContext(ctx, "engine could not be started", "error", err)
		c.finish(ctx, Failed, &ExitInfo{Code: -1, Reason: ReasonSpawn, Message: err.Error()})
		return c.status
	}

	ctx = log.ContextAttrs(ctx, slog.Int("pid", proc.Pid()))
	if !c.transition(ctx, Running, func(st *Status) { st.Pid = proc.Pid() }) {
		_ = proc.Terminate(false)
		return c.status
	}
	slog.InfoContext(ctx, "job running", "args", cmd.Args)
	c.supervise(ctx, proc)
	return c.status
}

func (c *Controller) supervise(ctx context.Context, proc Process) {
	srcCtx, stopSources := context.WithCancel(context.WithoutCancel(ctx))
	lines := progress.NewParser(c.opts.Rule).Run(srcCtx, proc.Output())
	samples := c.opts.Sampler.Start(srcCtx, proc)
	defer func() {
		stopSources()
		_ = proc.Output().Close()
		samples.Stop()
		for range lines {
		}
	}()

	var (
		resources  = samples.C
		cancelReq  = (<-chan struct{})(c.job.cancelReq)
		done       = proc.Done()
		terminated chan error
	)
	for {
		select {
		case l, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			c.foldLine(l)
		case s, ok := <-resources:
			if !ok {
				resources = nil
				continue
			}
			c.foldResources(s)
		case <-cancelReq:
			cancelReq = nil
			if !c.transition(ctx, Cancelling, nil) {
				continue
			}
			slog.InfoContext(ctx, "cancelling job", "grace_period", c.opts.Engine.GracePeriod)
			terminated = make(chan error, 1)
			go func() {
				terminated <- proc.Terminate(true)
			}()
		case err := <-terminated:
			if err != nil {
				slog.ErrorContext(ctx, "engine could not be terminated", "error", err)
				c.finish(ctx, Failed, &ExitInfo{Code: -1, Reason: ReasonTermination, Message: err.Error(), Stderr: proc.Stderr()})
				return
			}
			st := proc.Wait()
			c.finish(ctx, Cancelled, &ExitInfo{Code: st.Code, Message: "cancelled, engine " + st.String()})
			return
		case <-done:
			done = nil
			if terminated != nil {
				// Cancelling: the termination result decides
				continue
			}
			// the process already exited, a late cancel has nothing to stop
			cancelReq = nil
			c.drain(ctx, lines, resources)
			c.decide(ctx, proc)
			return
		}
	}
}

// drain folds the output and samples that are still in flight after the
// engine exited, so the final markers count. It gives up after the grace
// period.
func (c *Controller) drain(ctx context.Context, lines <-chan progress.Line, resources <-chan model.ResourceSnapshot) {
	timer := time.NewTimer(c.opts.Engine.GracePeriod)
	defer timer.Stop()
	for lines != nil || resources != nil {
		select {
		case l, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			c.foldLine(l)
		case s, ok := <-resources:
			if !ok {
				resources = nil
				continue
			}
			c.foldResources(s)
		case <-timer.C:
			slog.WarnContext(ctx, "engine output still open after exit", "grace_period", c.opts.Engine.GracePeriod)
			return
		}
	}
}

func (c *Controller) decide(ctx context.Context, proc Process) {
	st := proc.Wait()
	if !st.Success() {
		err := &EngineError{Code: st.Code, Status: st.String(), Stderr: proc.Stderr()}
		slog.WarnContext(ctx, "engine failed", "error", err)
		c.finish(ctx, Failed, &ExitInfo{Code: st.Code, Reason: ReasonEngine, Message: err.Error(), Stderr: err.Stderr})
		return
	}

	// a verdict on an exited engine is still wanted during shutdown
	set, err := c.opts.Collector.Collect(context.WithoutCancel(ctx), c.job.config)
	if err != nil {
		reason := ReasonInternal
		switch {
		case errors.Is(err, result.ErrMissingArtifact):
			reason = ReasonMissingArtifact
		case errors.Is(err, result.ErrCorruptArtifact):
			reason = ReasonCorruptArtifact
		}
		slog.WarnContext(ctx, "engine succeeded without valid artifacts", "error", err)
		c.finish(ctx, Failed, &ExitInfo{Code: st.Code, Reason: reason, Message: err.Error(), Stderr: proc.Stderr()})
		return
	}
	set.JobID = c.job.ID()
	c.finish(ctx, Completed, &ExitInfo{Code: st.Code, Results: &set})
}

func (c *Controller) foldLine(l progress.Line) {
	c.job.appendLog(l.Text)
	if l.Kind == progress.KindProgress {
		ev := l.Event
		c.status.Progress = Progress{
			Fraction: max(c.status.Progress.Fraction, ev.Fraction),
			Stage:    ev.Stage,
			Detail:   ev.Detail,
			Seq:      ev.Seq,
		}
	}
	c.status.LogLine = l.Text
	c.publish()
}

func (c *Controller) foldResources(s model.ResourceSnapshot) {
	c.job.appendResource(s)
	c.status.Resources = &s
	c.status.LogLine = ""
	c.publish()
}

// transition moves the job to state to. An edge the state machine does not
// have is a programming error: it is logged and nothing changes.
func (c *Controller) transition(ctx context.Context, to State, mutate func(*Status)) bool {
	from := c.status.State
	if err := checkTransition(from, to); err != nil {
		slog.ErrorContext(ctx, "job state not changed", "error", err)
		return false
	}
	c.status.State = to
	c.status.LogLine = ""
	if mutate != nil {
		mutate(&c.status)
	}
	c.publish()
	slog.DebugContext(ctx, "job state changed", "from", from, "to", to)
	return true
}

func (c *Controller) finish(ctx context.Context, to State, exit *ExitInfo) {
	ok := c.transition(ctx, to, func(st *Status) {
		st.Exit = exit
		if to == Completed {
			st.Progress.Fraction = 1
		}
	})
	if !ok {
		return
	}
	attrs := []any{"state", to, "code", exit.Code}
	if exit.Reason != "" {
		attrs = append(attrs, "reason", exit.Reason, "message", exit.Message)
	}
	slog.InfoContext(ctx, "job finished", attrs...)
}

func (c *Controller) publish() {
	c.status.Version++
	c.status.Time = time.Now().UTC()
	c.job.store(c.status)
	c.opts.Publisher.Publish(c.status)
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
