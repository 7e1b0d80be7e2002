package jobs

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/byase/byase-gui/internal/model"
	"github.com/byase/byase-gui/internal/result"
)

const (
	DefaultRetention = model.DefaultRetention
	DefaultMaxAge    = model.DefaultMaxAge
	LogTailSize      = 200
)

// Reason tells why a job ended in Failed.
type Reason string

const (
	ReasonSpawn           Reason = "spawn"
	ReasonEngine          Reason = "engine"
	ReasonMissingArtifact Reason = "missing-artifact"
	ReasonCorruptArtifact Reason = "corrupt-artifact"
	ReasonTermination     Reason = "termination"
	ReasonInternal        Reason = "internal"
)

type Progress struct {
	Fraction float64 `json:"fraction"`
	Stage    string  `json:"stage,omitempty"`
	Detail   string  `json:"detail,omitempty"`
	Seq      uint64  `json:"seq,omitempty"` // last folded event
}

// ExitInfo is set once a job reached a terminal state.
type ExitInfo struct {
	Code    int               `json:"code"` // -1 when the engine never ran or was killed
	Reason  Reason            `json:"reason,omitempty"`
	Message string            `json:"message,omitempty"`
	Stderr  string            `json:"stderr,omitempty"`
	Results *result.ResultSet `json:"results,omitempty"`
}

// Status is an immutable snapshot of a job. A new value is published on
// every change; Version grows by one each time.
type Status struct {
	JobID     string                  `json:"job_id"`
	Tool      model.Tool              `json:"tool"`
	Version   uint64                  `json:"version"`
	State     State                   `json:"state"`
	Pid       int                     `json:"pid,omitempty"`
	Progress  Progress                `json:"progress"`
	Resources *model.ResourceSnapshot `json:"resources,omitempty"`
	LogLine   string                  `json:"log_line,omitempty"`
	Exit      *ExitInfo               `json:"exit,omitempty"`
	Created   time.Time               `json:"created"`
	Time      time.Time               `json:"time"`
}

func (s Status) String() string {
	if s.Exit != nil && s.Exit.Reason != "" {
		return fmt.Sprintf("%s %s (%s: %s)", s.JobID, s.State, s.Exit.Reason, s.Exit.Message)
	}
	return fmt.Sprintf("%s %s %.0f%%", s.JobID, s.State, s.Progress.Fraction*100)
}

// Job is one engine invocation. Its config never changes. Every other field
// is written only by the Controller running the job; other goroutines read
// through Status, Resources and Log, which return copies.
type Job struct {
	id      string
	config  model.JobConfig
	created time.Time

	status atomic.Pointer[Status]

	cancelOnce sync.Once
	cancelReq  chan struct{}

	mx        sync.Mutex
	retention int
	maxAge    time.Duration
	history   []model.ResourceSnapshot
	logTail   []string
}

// NewJob creates a Pending job with a fresh id and a private copy of cfg.
func NewJob(cfg model.JobConfig) *Job {
	now := time.Now().UTC()
	j := &Job{
		id:        uuid.NewString(),
		config:    cfg.Clone(),
		created:   now,
		cancelReq: make(chan struct{}),
		retention: DefaultRetention,
		maxAge:    DefaultMaxAge,
	}
	j.status.Store(&Status{
		JobID:   j.id,
		Tool:    cfg.Tool,
		Version: 1,
		State:   Pending,
		Created: now,
		Time:    now,
	})
	return j
}

// WithRetention bounds the resource history by count and age. It must be
// called before the job starts.
func (j *Job) WithRetention(count int, maxAge time.Duration) *Job {
	if count > 0 {
		j.retention = count
	}
	if maxAge > 0 {
		j.maxAge = maxAge
	}
	return j
}

func (j *Job) ID() string {
	return j.id
}

func (j *Job) Config() model.JobConfig {
	return j.config.Clone()
}

func (j *Job) Created() time.Time {
	return j.created
}

// Status returns the latest published snapshot.
func (j *Job) Status() Status {
	return *j.status.Load()
}

// Cancel asks the controller to stop the job. It never blocks and can be
// called any number of times. A cancel that arrives while the job is still
// Pending is applied as soon as the engine runs.
func (j *Job) Cancel() {
	j.cancelOnce.Do(func() {
		close(j.cancelReq)
	})
}

// Resources returns a copy of the retained resource history, oldest first.
func (j *Job) Resources() []model.ResourceSnapshot {
	j.mx.Lock()
	defer j.mx.Unlock()
	return append([]model.ResourceSnapshot(nil), j.history...)
}

// Log returns the most recent raw output lines, oldest first.
func (j *Job) Log() []string {
	j.mx.Lock()
	defer j.mx.Unlock()
	return append([]string(nil), j.logTail...)
}

func (j *Job) store(st Status) {
	j.status.Store(&st)
}

func (j *Job) appendResource(s model.ResourceSnapshot) {
	j.mx.Lock()
	defer j.mx.Unlock()
	j.history = append(j.history, s)
	drop := max(0, len(j.history)-j.retention)
	cutoff := s.Time.Add(-j.maxAge)
	for drop < len(j.history)-1 && j.history[drop].Time.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		j.history = append(j.history[:0], j.history[drop:]...)
	}
}

func (j *Job) appendLog(line string) {
	j.mx.Lock()
	defer j.mx.Unlock()
	j.logTail = append(j.logTail, line)
	if n := len(j.logTail) - LogTailSize; n > 0 {
		j.logTail = append(j.logTail[:0], j.logTail[n:]...)
	}
}
