// Package ws exposes the merger over websockets.
//
// Producers connect to /streams/{id} and send one binary message per raw
// little-endian int16 PCM chunk; the connection's lifetime is the stream's
// registration. Listeners connect to /listen and receive every merged chunk
// as one binary message. A [Hub] is the single consumer of the merger's
// output and fans chunks out to listeners and any other subscriber (such as
// a recorder) without ever blocking on a slow one.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/MrWong99/voxmerge/internal/observe"
)

// Source is the stream of merged chunks a [Hub] distributes.
// *merger.Sink satisfies it.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
}

// Subscription receives merged chunks from a [Hub]. C is closed when the
// subscription is closed or the hub stops.
type Subscription struct {
	C <-chan []byte

	name string
	ch   chan []byte
	hub  *Hub
	once sync.Once
}

// Name returns the label the subscription was created with.
func (s *Subscription) Name() string { return s.name }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.closeLocked()
}

func (s *Subscription) closeLocked() {
	s.once.Do(func() {
		delete(s.hub.subs, s)
		close(s.ch)
	})
}

// Hub drains a [Source] and broadcasts each chunk to all subscriptions.
// A subscription whose buffer is full misses the chunk.
type Hub struct {
	src     Source
	metrics *observe.Metrics

	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	stopped bool
}

// NewHub creates a hub reading from src. met may be nil, in which case
// [observe.DefaultMetrics] is used.
func NewHub(src Source, met *observe.Metrics) *Hub {
	if met == nil {
		met = observe.DefaultMetrics()
	}
	return &Hub{
		src:     src,
		metrics: met,
		subs:    make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscription buffering up to buffer chunks.
// Subscribing to a stopped hub returns an already closed subscription.
func (h *Hub) Subscribe(name string, buffer int) *Subscription {
	ch := make(chan []byte, max(buffer, 1))
	s := &Subscription{C: ch, name: name, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		s.once.Do(func() { close(ch) })
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Run distributes chunks until ctx is done, then closes every subscription.
// It returns nil on cancellation.
func (h *Hub) Run(ctx context.Context) error {
	defer h.stop()

	for {
		chunk, err := h.src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		h.broadcast(ctx, chunk)
	}
}

func (h *Hub) broadcast(ctx context.Context, chunk []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		select {
		case s.ch <- chunk:
		default:
			h.metrics.ListenerDrops.Add(ctx, 1)
			slog.Debug("hub: subscriber too slow, chunk dropped", "subscriber", s.name)
		}
	}
}

func (h *Hub) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopped = true
	for s := range h.subs {
		s.closeLocked()
	}
}
