package jobs

import (
	"sync"
)

// Subscription delivers job statuses in publication order. The queue is
// unbounded, so a slow reader never blocks a controller. Per job, versions
// only grow: a snapshot older than one already queued is skipped.
type Subscription struct {
	C <-chan Status

	reg    *Registry
	filter map[string]struct{}
	out    chan Status

	mx        sync.Mutex
	queue     []Status
	versions  map[string]uint64
	finishing bool
	wake      chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
	exited    chan struct{}
}

func newSubscription(reg *Registry, ids []string) *Subscription {
	out := make(chan Status)
	s := &Subscription{
		C:        out,
		reg:      reg,
		out:      out,
		versions: make(map[string]uint64),
		wake:     make(chan struct{}, 1),
		closed:   make(chan struct{}),
		exited:   make(chan struct{}),
	}
	if len(ids) > 0 {
		s.filter = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			s.filter[id] = struct{}{}
		}
	}
	go s.pump()
	return s
}

// Close stops the delivery. Queued statuses are dropped and C is closed.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	<-s.exited
	s.reg.unsubscribe(s)
}

func (s *Subscription) push(st Status) {
	if s.filter != nil {
		if _, ok := s.filter[st.JobID]; !ok {
			return
		}
	}
	s.mx.Lock()
	if !s.finishing && st.Version > s.versions[st.JobID] {
		s.versions[st.JobID] = st.Version
		s.queue = append(s.queue, st)
	}
	s.mx.Unlock()
	s.signal()
}

// finish closes C after the queue drained.
func (s *Subscription) finish() {
	s.mx.Lock()
	s.finishing = true
	s.mx.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.exited)
	defer close(s.out)
	for {
		s.mx.Lock()
		if len(s.queue) == 0 {
			finishing := s.finishing
			s.mx.Unlock()
			if finishing {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-s.closed:
				return
			}
		}
		st := s.queue[0]
		s.queue[0] = Status{}
		s.queue = s.queue[1:]
		s.mx.Unlock()

		select {
		case s.out <- st:
		case <-s.closed:
			return
		}
	}
}
