package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	DefaultGracePeriod = 5 * time.Second
	DefaultKillTimeout = 2 * time.Second

	maxLineSize    = 64 * 1024
	stderrTailSize = 200
)

var (
	ErrSpawn             = errors.New("spawn failed")
	ErrTerminationFailed = errors.New("process tree did not terminate")
)

// SpawnError reports why an engine process could not be started. It
// matches ErrSpawn and the underlying cause with errors.Is.
type SpawnError struct {
	Path string
	Dir  string
	Err  error
}

func (e *SpawnError) Error() string {
	if e.Dir != "" {
		return fmt.Sprintf("spawn %s in %s: %v", e.Path, e.Dir, e.Err)
	}
	return fmt.Sprintf("spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() []error {
	return []error{ErrSpawn, e.Err}
}

type Command struct {
	Path        string
	Args        []string
	Dir         string
	Env         []string // nil inherits the current environment
	GracePeriod time.Duration
	KillTimeout time.Duration
}

type ExitStatus struct {
	Code    int // -1 when terminated by a signal
	Err     error
	State   *os.ProcessState
	Started time.Time
	Stopped time.Time
}

func (s ExitStatus) Success() bool {
	return s.Err == nil && s.Code == 0
}

func (s ExitStatus) String() string {
	switch {
	case s.Success():
		return "exit code 0"
	case s.State != nil && s.Code < 0:
		return s.State.String()
	case s.Err != nil && s.Code == 0:
		return s.Err.Error()
	default:
		return fmt.Sprintf("exit code %d", s.Code)
	}
}

// Handle is a running (or finished) engine process.
type Handle struct {
	cmd         *exec.Cmd
	pid         int
	grace       time.Duration
	killTimeout time.Duration
	logCtx      context.Context

	output *io.PipeReader
	outMx  sync.Mutex
	outW   *io.PipeWriter
	stderr *tail

	done   chan struct{}
	status ExitStatus

	termMx sync.Mutex
}

// Spawn starts the command. It fails with a *SpawnError when the executable
// cannot be found or the working directory is not an accessible directory.
// ctx is only used for logging: the lifetime of the process is controlled
// with Terminate.
func Spawn(ctx context.Context, c Command) (*Handle, error) {
	path, err := exec.LookPath(c.Path)
	if err != nil {
		return nil, &SpawnError{Path: c.Path, Err: err}
	}
	if c.Dir != "" {
		if err := checkDir(c.Dir); err != nil {
			return nil, &SpawnError{Path: path, Dir: c.Dir, Err: err}
		}
	}

	cmd := exec.Command(path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	setProcAttr(cmd)

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, &SpawnError{Path: path, Dir: c.Dir, Err: err}
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return nil, &SpawnError{Path: path, Dir: c.Dir, Err: err}
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	started := time.Now().UTC()
	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return nil, &SpawnError{Path: path, Dir: c.Dir, Err: err}
	}
	// the child owns the write ends now
	closeAll(stdoutW, stderrW)

	h := &Handle{
		cmd:         cmd,
		pid:         cmd.Process.Pid,
		grace:       orDefault(c.GracePeriod, DefaultGracePeriod),
		killTimeout: orDefault(c.KillTimeout, DefaultKillTimeout),
		logCtx:      context.WithoutCancel(ctx),
		stderr:      newTail(stderrTailSize),
		done:        make(chan struct{}),
	}
	h.output, h.outW = io.Pipe()
	h.status.Started = started

	var copiers sync.WaitGroup
	copiers.Go(func() { h.copyLines(stdoutR, nil) })
	copiers.Go(func() { h.copyLines(stderrR, h.stderr) })
	go func() {
		copiers.Wait()
		_ = h.outW.Close()
	}()
	go h.wait()

	slog.DebugContext(ctx, "engine started", "pid", h.pid, "path", path, "args", c.Args, "dir", c.Dir)
	return h, nil
}

func (h *Handle) Pid() int {
	return h.pid
}

func (h *Handle) IsAlive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Done is closed once the root process has been reaped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the process exits and returns its status.
func (h *Handle) Wait() ExitStatus {
	<-h.done
	return h.status
}

// Output returns the combined stdout/stderr stream. Every chunk written to
// it is a complete line terminated by '\n'; lines longer than 64KiB are
// split. The stream ends after the process tree closes its outputs. Closing
// the reader discards any further output.
func (h *Handle) Output() io.ReadCloser {
	return h.output
}

// Stderr returns the most recent stderr lines.
func (h *Handle) Stderr() string {
	return h.stderr.String()
}

// Terminate stops the process tree. With graceful set, the group is asked
// to stop first and gets GracePeriod to exit before being killed. It
// returns ErrTerminationFailed when the process is still alive KillTimeout
// after the forced phase.
func (h *Handle) Terminate(graceful bool) error {
	h.termMx.Lock()
	defer h.termMx.Unlock()

	if !h.IsAlive() {
		return nil
	}
	if graceful {
		if err := stopTree(h.cmd.Process); err != nil {
			slog.WarnContext(h.logCtx, "graceful stop signal failed", "pid", h.pid, "error", err)
		}
		if h.waitDone(h.grace) {
			return nil
		}
		slog.InfoContext(h.logCtx, "grace period elapsed: killing process tree", "pid", h.pid, "grace", h.grace)
	}

	if err := killTree(h.logCtx, h.cmd.Process); err != nil {
		slog.WarnContext(h.logCtx, "kill signal failed", "pid", h.pid, "error", err)
	}
	if h.waitDone(h.killTimeout) {
		return nil
	}
	return fmt.Errorf("pid %d: %w after %s", h.pid, ErrTerminationFailed, h.killTimeout)
}

func (h *Handle) waitDone(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-h.done:
		return true
	case <-timer.C:
		return false
	}
}

func (h *Handle) wait() {
	err := h.cmd.Wait()
	stopped := time.Now().UTC()

	// forked workers may survive their parent
	reapGroup(h.cmd.Process)

	h.status.Stopped = stopped
	h.status.State = h.cmd.ProcessState
	h.status.Err = err
	if h.cmd.ProcessState != nil {
		h.status.Code = h.cmd.ProcessState.ExitCode()
	}
	close(h.done)
	slog.DebugContext(h.logCtx, "engine exited", "pid", h.pid, "status", h.status.String())
}

func (h *Handle) copyLines(r *os.File, t *tail) {
	defer func() {
		_ = r.Close()
	}()
	br := bufio.NewReaderSize(r, maxLineSize)
	discard := false
	for {
		chunk, err := br.ReadSlice('\n')
		if len(chunk) > 0 {
			line := make([]byte, len(chunk), len(chunk)+1)
			copy(line, chunk)
			if line[len(line)-1] != '\n' {
				line = append(line, '\n')
			}
			if t != nil {
				t.Add(strings.TrimRight(string(line), "\r\n"))
			}
			if !discard {
				h.outMx.Lock()
				_, werr := h.outW.Write(line)
				h.outMx.Unlock()
				// reader went away: keep draining so the engine never blocks
				discard = werr != nil
			}
		}
		switch {
		case err == nil, errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF), errors.Is(err, os.ErrClosed):
			return
		default:
			slog.DebugContext(h.logCtx, "reading engine output", "pid", h.pid, "error", err)
			return
		}
	}
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", dir)
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	return f.Close()
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

func orDefault(d, dflt time.Duration) time.Duration {
	if d <= 0 {
		return dflt
	}
	return d
}

// tail keeps the last n lines written to it.
type tail struct {
	mx    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newTail(n int) *tail {
	return &tail{lines: make([]string, n)}
}

func (t *tail) Add(line string) {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.lines[t.next] = line
	t.next = (t.next + 1) % len(t.lines)
	if t.next == 0 {
		t.full = true
	}
}

func (t *tail) String() string {
	t.mx.Lock()
	defer t.mx.Unlock()
	var ordered []string
	if t.full {
		ordered = append(ordered, t.lines[t.next:]...)
	}
	ordered = append(ordered, t.lines[:t.next]...)
	return strings.Join(ordered, "\n")
}
