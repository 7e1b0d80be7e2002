package jobs_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/byase/byase-gui/internal/engine"
	"github.com/byase/byase-gui/internal/jobs"
	"github.com/byase/byase-gui/internal/model"
	"github.com/byase/byase-gui/internal/process"
	"github.com/byase/byase-gui/internal/sampler"

	"github.com/stretchr/testify/require"
)

// scripted makes sh the engine. The engine is started as "sh <tool> ...",
// so sh runs the file named after the tool from its working directory,
// which is the output directory of the job.
func scripted(t *testing.T, tool model.Tool, body string) (engine.Engine, model.JobConfig) {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, string(tool)), []byte(body), 0o644))
	e := engine.Engine{Path: sh, GracePeriod: time.Second, KillTimeout: time.Second}
	return e, model.JobConfig{Tool: tool, OutDir: dir}
}

func options(e engine.Engine, reg *jobs.Registry) jobs.Options {
	return jobs.Options{
		Engine:    e,
		Sampler:   sampler.New(50 * time.Millisecond),
		Publisher: reg,
	}
}

// start submits cfg and runs its controller in the background. The
// returned subscription was opened before the job started.
func start(t *testing.T, reg *jobs.Registry, cfg model.JobConfig, opts jobs.Options) (*jobs.Job, *jobs.Subscription, <-chan jobs.Status) {
	t.Helper()
	j, err := reg.Submit(cfg)
	require.NoError(t, err)
	sub := reg.Subscribe(j.ID())
	t.Cleanup(sub.Close)

	final := make(chan jobs.Status, 1)
	var wg sync.WaitGroup
	wg.Go(func() {
		final <- jobs.NewController(j, opts).Run(t.Context())
	})
	t.Cleanup(wg.Wait)
	return j, sub, final
}

// await reads sub until cond holds and returns every status read.
func await(t *testing.T, sub *jobs.Subscription, cond func(jobs.Status) bool) []jobs.Status {
	t.Helper()
	var seen []jobs.Status
	timeout := time.After(20 * time.Second)
	for {
		select {
		case st, ok := <-sub.C:
			require.True(t, ok, "subscription closed")
			seen = append(seen, st)
			if cond(st) {
				return seen
			}
		case <-timeout:
			t.Fatalf("condition not met, last statuses: %v", seen[max(0, len(seen)-5):])
		}
	}
}

func terminal(st jobs.Status) bool {
	return st.State.Terminal()
}

// requireValidPath checks the observed states follow the state machine.
func requireValidPath(t *testing.T, seen []jobs.Status) {
	t.Helper()
	for i := 1; i < len(seen); i++ {
		prev, next := seen[i-1], seen[i]
		require.Greater(t, next.Version, prev.Version)
		require.False(t, prev.State.Terminal(), "status published after terminal state")
		if prev.State != next.State {
			require.True(t, jobs.CanTransition(prev.State, next.State), "%s -> %s", prev.State, next.State)
		}
	}
}

// stuck is an engine that ignores every signal and can't be killed.
type stuck struct {
	out  *io.PipeReader
	w    *io.PipeWriter
	done chan struct{}
}

func newStuck() *stuck {
	r, w := io.Pipe()
	return &stuck{out: r, w: w, done: make(chan struct{})}
}

func (s *stuck) Pid() int                 { return 1 << 30 }
func (s *stuck) IsAlive() bool            { return true }
func (s *stuck) Done() <-chan struct{}    { return s.done }
func (s *stuck) Wait() process.ExitStatus { <-s.done; return process.ExitStatus{} }
func (s *stuck) Output() io.ReadCloser    { return s.out }
func (s *stuck) Stderr() string           { return "" }
func (s *stuck) Terminate(graceful bool) error {
	return fmt.Errorf("pid %d: %w after 1s", s.Pid(), process.ErrTerminationFailed)
}

func spawnStuck(s *stuck) jobs.Spawner {
	return jobs.SpawnFunc(func(context.Context, process.Command) (jobs.Process, error) {
		return s, nil
	})
}
