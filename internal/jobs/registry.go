package jobs

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/byase/byase-gui/internal/model"
)

var (
	ErrNotFound     = errors.New("job not found")
	ErrDuplicateJob = errors.New("duplicate job id")
	ErrNotTerminal  = errors.New("job is not in a terminal state")
	ErrClosed       = errors.New("registry closed")
)

// Publisher receives every status a controller publishes.
type Publisher interface {
	Publish(Status)
}

// Registry is the session table of jobs. It indexes jobs and fans their
// status snapshots out to subscribers; it never changes a job itself.
type Registry struct {
	mx     sync.Mutex
	jobs   map[string]*Job
	order  []string
	subs   map[*Subscription]struct{}
	closed bool
}

func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*Job),
		subs: make(map[*Subscription]struct{}),
	}
}

// Submit creates a Pending job for cfg and inserts it.
func (r *Registry) Submit(cfg model.JobConfig) (*Job, error) {
	j := NewJob(cfg)
	if err := r.Insert(j); err != nil {
		return nil, err
	}
	return j, nil
}

func (r *Registry) Insert(j *Job) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.closed {
		return ErrClosed
	}
	if _, ok := r.jobs[j.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, j.ID())
	}
	r.jobs[j.ID()] = j
	r.order = append(r.order, j.ID())
	r.publishLocked(j.Status())
	return nil
}

func (r *Registry) Get(id string) (*Job, error) {
	r.mx.Lock()
	defer r.mx.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return j, nil
}

// List returns all jobs in creation order.
func (r *Registry) List() []*Job {
	r.mx.Lock()
	defer r.mx.Unlock()
	ret := make([]*Job, 0, len(r.order))
	for _, id := range r.order {
		ret = append(ret, r.jobs[id])
	}
	return ret
}

// Remove drops a job in a terminal state from the table.
func (r *Registry) Remove(id string) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if st := j.Status().State; !st.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrNotTerminal, id, st)
	}
	delete(r.jobs, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	return nil
}

// Publish forwards st to every subscriber interested in its job.
func (r *Registry) Publish(st Status) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.publishLocked(st)
}

func (r *Registry) publishLocked(st Status) {
	for sub := range r.subs {
		sub.push(st)
	}
}

// Subscribe returns a stream of the statuses of the given jobs, or of all
// jobs when ids is empty. The current status of every matching job is
// delivered first.
func (r *Registry) Subscribe(ids ...string) *Subscription {
	sub := newSubscription(r, ids)
	r.mx.Lock()
	defer r.mx.Unlock()
	for _, id := range r.order {
		sub.push(r.jobs[id].Status())
	}
	if r.closed {
		sub.finish()
		return sub
	}
	r.subs[sub] = struct{}{}
	return sub
}

func (r *Registry) unsubscribe(sub *Subscription) {
	r.mx.Lock()
	defer r.mx.Unlock()
	delete(r.subs, sub)
}

// Close ends every subscription once its queued statuses were delivered
// and rejects further inserts.
func (r *Registry) Close() {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.closed = true
	for sub := range r.subs {
		sub.finish()
		delete(r.subs, sub)
	}
}
