package merger

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/voxmerge/pkg/audio/queue"
)

// stream is one registry entry: a participant's id and its input queue.
type stream struct {
	id    string
	queue *queue.Queue[[]byte]
}

// Registry owns one input queue per live stream id. Queues are created on
// registration and closed on removal; callers only ever see them through a
// [Producer] (enqueue side) or a snapshot taken by the merge loop (dequeue side).
//
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*stream
	limit   int
}

// NewRegistry creates an empty registry admitting at most limit concurrent
// streams. A limit <= 0 means unlimited.
func NewRegistry(limit int) *Registry {
	return &Registry{
		streams: make(map[string]*stream),
		limit:   limit,
	}
}

// Register creates an empty queue for id and returns the producer handle
// bound to it. A failed registration leaves any existing handle for id valid.
func (r *Registry) Register(id string) (*Producer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.streams[id]; ok {
		return nil, fmt.Errorf("register %q: %w", id, ErrDuplicateStream)
	}
	if r.limit > 0 && len(r.streams) >= r.limit {
		return nil, fmt.Errorf("register %q: %w (limit %d)", id, ErrTooManyStreams, r.limit)
	}
	s := &stream{id: id, queue: queue.New[[]byte]()}
	r.streams[id] = s
	return &Producer{id: id, queue: s.queue}, nil
}

// Deregister removes id and closes its queue. Buffered chunks are dropped
// and their count returned; a read blocked on the queue returns at once.
func (r *Registry) Deregister(id string) (int, error) {
	r.mu.Lock()
	s, ok := r.streams[id]
	if ok {
		delete(r.streams, id)
	}
	r.mu.Unlock()

	if !ok {
		return 0, fmt.Errorf("deregister %q: %w", id, ErrUnknownStream)
	}
	return s.queue.Close(), nil
}

// snapshot returns the live entries at this instant. The slice is a copy:
// later registrations and removals do not affect it.
func (r *Registry) snapshot() []*stream {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*stream, 0, len(r.streams))
	for _, s := range r.streams {
		out = append(out, s)
	}
	return out
}

// IDs returns the sorted ids of all live streams.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.streams))
	for id := range r.streams {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Len returns the number of live streams.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// Buffered returns the number of chunks waiting in id's queue.
func (r *Registry) Buffered(id string) (int, error) {
	r.mu.RLock()
	s, ok := r.streams[id]
	r.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("buffered %q: %w", id, ErrUnknownStream)
	}
	return s.queue.Len(), nil
}

// clear drops the buffered chunks of every live stream and returns how many
// were dropped. Queues stay open.
func (r *Registry) clear() int {
	n := 0
	for _, s := range r.snapshot() {
		n += s.queue.Clear()
	}
	return n
}

// Producer is the enqueue-only handle for one registered stream. It is
// returned by Register and stays usable until the stream is deregistered.
//
// Producer is safe for concurrent use, but chunks pushed from several
// goroutines have no defined relative order.
type Producer struct {
	id    string
	queue *queue.Queue[[]byte]
}

// ID returns the stream id this handle is bound to.
func (p *Producer) ID() string { return p.id }

// Push enqueues one chunk of little-endian int16 mono PCM at the merger's
// sample rate. It never blocks. Push takes ownership of chunk; the caller
// must not modify it afterwards. Chunks of any length are accepted and
// normalised at mix time.
//
// Push returns [ErrStreamClosed] once the stream has been deregistered.
func (p *Producer) Push(chunk []byte) error {
	if err := p.queue.Push(chunk); err != nil {
		if errors.Is(err, queue.ErrClosed) {
			return fmt.Errorf("push %q: %w", p.id, ErrStreamClosed)
		}
		return err
	}
	return nil
}

// Buffered returns the number of chunks waiting to be mixed.
func (p *Producer) Buffered() int { return p.queue.Len() }
