// Package sampler periodically measures the resources used by an engine
// process tree.
//
// A Sampler is started per process and delivers model.ResourceSnapshot
// values on Subscription.C in timestamp order. A sample that cannot be
// taken (process already gone, permission denied) is skipped. Sampling
// stops once the target reports it is no longer alive, after one final
// snapshot.
package sampler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/byase/byase-gui/internal/model"
)

const DefaultInterval = time.Second

var ErrGone = errors.New("process is gone")

// Target is the process being sampled. *process.Handle implements it.
type Target interface {
	Pid() int
	IsAlive() bool
}

// Probe takes one measurement of the process tree rooted at pid. A Probe is
// used by a single goroutine and may keep state between calls.
type Probe interface {
	Sample(ctx context.Context, pid int) (model.ResourceSnapshot, error)
}

type Sampler struct {
	interval time.Duration
	newProbe func() Probe
}

type Option func(*Sampler)

// WithProbe replaces the gopsutil based probe. A fresh Probe is created for
// every Start.
func WithProbe(newProbe func() Probe) Option {
	return func(s *Sampler) {
		s.newProbe = newProbe
	}
}

func New(interval time.Duration, opts ...Option) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Sampler{
		interval: interval,
		newProbe: func() Probe { return NewTreeProbe() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sampler) Interval() time.Duration {
	return s.interval
}

// Subscription is a running sampling loop. C is closed when the loop ends.
type Subscription struct {
	C <-chan model.ResourceSnapshot

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Stop ends the sampling loop and waits for it to exit. It is safe to call
// Stop more than once and from several goroutines.
func (s *Subscription) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}

// Start begins sampling target every interval until the target dies, ctx
// is canceled or the subscription is stopped.
func (s *Sampler) Start(ctx context.Context, target Target) *Subscription {
	out := make(chan model.ResourceSnapshot, 1)
	sub := &Subscription{
		C:    out,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.run(ctx, target, s.newProbe(), out, sub)
	return sub
}

func (s *Sampler) run(ctx context.Context, target Target, probe Probe, out chan<- model.ResourceSnapshot, sub *Subscription) {
	defer close(sub.done)
	defer close(out)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var last model.ResourceSnapshot
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.stop:
			return
		case <-ticker.C:
		}

		alive := target.IsAlive()
		snap, err := probe.Sample(ctx, target.Pid())
		switch {
		case err == nil:
		case !alive:
			snap = final(last)
		default:
			slog.DebugContext(ctx, "resource sample skipped", "pid", target.Pid(), "error", err)
			continue
		}
		if snap.Time.Before(last.Time) {
			snap.Time = last.Time
		}

		select {
		case out <- snap:
		case <-ctx.Done():
			return
		case <-sub.stop:
			return
		}
		last = snap
		if !alive {
			return
		}
	}
}

// final reports an exited tree. I/O counters keep their last value.
func final(last model.ResourceSnapshot) model.ResourceSnapshot {
	return model.ResourceSnapshot{
		Time:       time.Now().UTC(),
		ReadBytes:  last.ReadBytes,
		WriteBytes: last.WriteBytes,
	}
}
