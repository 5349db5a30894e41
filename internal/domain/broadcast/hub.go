package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/DeskShell/backend/internal/shared/id"
	"go.uber.org/zap"
)

var (
	// ErrClosed is returned by Next once the subscription has been closed.
	ErrClosed = errors.New("subscription closed")
	// ErrSlowSubscriber is returned by Next after the hub cut the
	// subscriber off for exceeding its backlog limit.
	ErrSlowSubscriber = errors.New("subscriber backlog exceeded")
)

// DefaultMaxPending bounds a subscriber's backlog when Options leaves it unset.
const DefaultMaxPending = 1024

// Options configures a Hub.
type Options struct {
	// MaxPending is the backlog at which a subscriber is treated as
	// disconnected. Zero means DefaultMaxPending, negative means unbounded.
	MaxPending int
	Logger     *zap.Logger
	// OnCountChange receives the subscriber count after every change.
	OnCountChange func(n int)
}

// Hub fans values out to subscribers in publish order.
type Hub[T any] struct {
	name string
	opts Options
	log  *zap.Logger

	mu     sync.Mutex
	subs   map[id.SubscriberID]*Subscription[T]
	closed bool
}

// NewHub creates a hub. The name only appears in logs.
func NewHub[T any](name string, opts Options) *Hub[T] {
	if opts.MaxPending == 0 {
		opts.MaxPending = DefaultMaxPending
	}
	return &Hub[T]{
		name: name,
		opts: opts,
		log:  logging.OrNop(opts.Logger).With(zap.String("hub", name)),
		subs: make(map[id.SubscriberID]*Subscription[T]),
	}
}

// Subscribe registers a subscriber that receives every value published
// after this call returns. A hub that is already closed hands back a
// closed subscription.
func (h *Hub[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{
		id:     id.NewSubscriberID(),
		hub:    h,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.finish(ErrClosed)
		return s
	}
	h.subs[s.id] = s
	n := len(h.subs)
	h.mu.Unlock()

	h.log.Debug("Subscriber added", zap.String("subscriber", s.id.String()), zap.Int("subscribers", n))
	h.countChanged(n)
	return s
}

// Publish enqueues v for every live subscriber without waiting on any of
// them. Subscribers over their backlog limit are cut off.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	var evicted []*Subscription[T]
	for sid, s := range h.subs {
		if !s.push(v, h.opts.MaxPending) {
			delete(h.subs, sid)
			evicted = append(evicted, s)
		}
	}
	n := len(h.subs)
	h.mu.Unlock()

	for _, s := range evicted {
		h.log.Warn("Subscriber cut off", zap.String("subscriber", s.id.String()), zap.Int("max_pending", h.opts.MaxPending))
	}
	if len(evicted) > 0 {
		h.countChanged(n)
	}
}

// Len returns the number of live subscribers.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every subscription and rejects future ones.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[id.SubscriberID]*Subscription[T])
	h.mu.Unlock()

	for _, s := range subs {
		s.finish(ErrClosed)
	}
	h.countChanged(0)
}

func (h *Hub[T]) remove(sid id.SubscriberID) {
	h.mu.Lock()
	_, ok := h.subs[sid]
	delete(h.subs, sid)
	n := len(h.subs)
	h.mu.Unlock()

	if ok {
		h.log.Debug("Subscriber removed", zap.String("subscriber", sid.String()), zap.Int("subscribers", n))
		h.countChanged(n)
	}
}

func (h *Hub[T]) countChanged(n int) {
	if h.opts.OnCountChange != nil {
		h.opts.OnCountChange(n)
	}
}

// Subscription is one subscriber's ordered queue.
type Subscription[T any] struct {
	id     id.SubscriberID
	hub    *Hub[T]
	notify chan struct{}
	done   chan struct{}

	mu    sync.Mutex
	queue []T
	err   error
}

// ID returns the subscriber ID.
func (s *Subscription[T]) ID() id.SubscriberID {
	return s.id
}

// Done is closed when the subscription ends.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Err reports why the subscription ended, or nil while it is live.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Next blocks until a value is available, the subscription ends, or ctx is
// done. Values are returned in publish order.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	for {
		s.mu.Lock()
		if s.err != nil {
			err := s.err
			s.mu.Unlock()
			var zero T
			return zero, err
		}
		if len(s.queue) > 0 {
			v := s.queue[0]
			var zero T
			s.queue[0] = zero
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return v, nil
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-s.done:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Pending returns the number of queued values.
func (s *Subscription[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close unregisters the subscriber. Values published afterwards are
// silently dropped for it.
func (s *Subscription[T]) Close() {
	if s.finish(ErrClosed) {
		s.hub.remove(s.id)
	}
}

// push appends v and reports false when the backlog limit was exceeded.
func (s *Subscription[T]) push(v T, limit int) bool {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return true
	}
	if limit > 0 && len(s.queue) >= limit {
		s.mu.Unlock()
		s.finish(ErrSlowSubscriber)
		return false
	}
	s.queue = append(s.queue, v)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true
}

// finish ends the subscription once and reports whether this call did it.
func (s *Subscription[T]) finish(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false
	}
	s.err = err
	s.queue = nil
	close(s.done)
	return true
}
