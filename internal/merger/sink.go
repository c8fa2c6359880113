package merger

import (
	"context"
	"iter"

	"github.com/MrWong99/voxmerge/pkg/audio/queue"
)

// Sink is the output side of a [Merger]: an unbounded FIFO of merged chunks.
// The merge loop is its only writer. Reads should come from a single
// consumer; a slow consumer grows memory but never stalls mixing.
type Sink struct {
	queue *queue.Queue[[]byte]
}

func newSink() *Sink {
	return &Sink{queue: queue.New[[]byte]()}
}

// Next blocks until a merged chunk is available or ctx is done.
func (s *Sink) Next(ctx context.Context) ([]byte, error) {
	return s.queue.Pop(ctx)
}

// TryNext returns the next merged chunk without blocking.
func (s *Sink) TryNext() ([]byte, bool) {
	return s.queue.TryPop()
}

// Len returns the number of merged chunks waiting to be consumed.
func (s *Sink) Len() int {
	return s.queue.Len()
}

// All yields merged chunks in order until ctx is done or the caller stops
// iterating.
func (s *Sink) All(ctx context.Context) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for {
			chunk, err := s.queue.Pop(ctx)
			if err != nil {
				return
			}
			if !yield(chunk) {
				return
			}
		}
	}
}

func (s *Sink) push(chunk []byte) {
	// The sink queue is never closed, so Push cannot fail.
	_ = s.queue.Push(chunk)
}
