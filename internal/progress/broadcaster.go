// Package progress delivers the snapshots of a sync run to subscribers and
// writers. The orchestrator is the only publisher.
package progress

import (
	"sync"

	"github.com/jakopako/leadsync/internal/types"
)

// Broadcaster fans snapshots out to subscribers without ever blocking the
// publisher. A slow subscriber skips intermediate snapshots but always
// receives the newest one and every terminal one.
type Broadcaster struct {
	mu      sync.Mutex
	latest  types.SyncProgress
	subs    map[*subscription]struct{}
	closed  bool
	writers sync.WaitGroup
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		latest: types.IdleProgress(),
		subs:   map[*subscription]struct{}{},
	}
}

// Publish records p as the latest snapshot and hands it to all subscribers.
func (b *Broadcaster) Publish(p types.SyncProgress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.latest = p
	for s := range b.subs {
		s.push(p)
	}
}

// Latest returns the most recently published snapshot.
func (b *Broadcaster) Latest() types.SyncProgress {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest
}

// Subscribe returns a channel receiving the latest snapshot followed by all
// later ones. The channel is closed after the returned cancel func is
// called or the broadcaster is closed.
func (b *Broadcaster) Subscribe() (<-chan types.SyncProgress, func()) {
	s := newSubscription()
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.out)
		return s.out, func() {}
	}
	b.subs[s] = struct{}{}
	s.push(b.latest)
	b.mu.Unlock()

	go s.run()
	return s.out, func() {
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
		s.stop()
	}
}

// Attach runs w on its own subscription until the broadcaster is closed.
func (b *Broadcaster) Attach(w Writer) {
	ch, _ := b.Subscribe()
	b.writers.Add(1)
	go func() {
		defer b.writers.Done()
		w.Write(ch)
	}()
}

// Close delivers pending snapshots, closes all subscriptions and waits for
// attached writers to return.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for s := range b.subs {
		s.finish()
	}
	b.subs = nil
	b.mu.Unlock()
	b.writers.Wait()
}

type subscription struct {
	out    chan types.SyncProgress
	notify chan struct{}
	done   chan struct{}
	once   sync.Once

	mu      sync.Mutex
	pending []types.SyncProgress
	closing bool
}

func newSubscription() *subscription {
	return &subscription{
		out:    make(chan types.SyncProgress),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// push queues p. A queued non-terminal snapshot is replaced, a terminal one
// is kept.
func (s *subscription) push(p types.SyncProgress) {
	s.mu.Lock()
	if n := len(s.pending); n > 0 && !s.pending[n-1].Status.Terminal() {
		s.pending[n-1] = p
	} else {
		s.pending = append(s.pending, p)
	}
	s.mu.Unlock()
	s.wake()
}

func (s *subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// finish closes the subscription once everything pending is delivered.
func (s *subscription) finish() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.wake()
}

// stop closes the subscription right away.
func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *subscription) run() {
	defer close(s.out)
	for {
		select {
		case <-s.notify:
		case <-s.done:
			return
		}
		for {
			s.mu.Lock()
			if len(s.pending) == 0 {
				closing := s.closing
				s.mu.Unlock()
				if closing {
					return
				}
				break
			}
			p := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()

			select {
			case s.out <- p:
			case <-s.done:
				return
			}
		}
	}
}
