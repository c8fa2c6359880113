package merger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxmerge/internal/observe"
	"github.com/MrWong99/voxmerge/pkg/audio/queue"
)

// loop runs cycles until ctx is cancelled, then closes done.
func (m *Merger) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	idle := m.layout.Period() / 4
	for ctx.Err() == nil {
		start := time.Now()
		status, err := m.cycle(ctx)
		if ctx.Err() != nil {
			return
		}
		m.metrics.RecordCycle(ctx, status, time.Since(start))

		switch {
		case err != nil:
			slog.Error("merger: cycle failed", "err", err, "backoff", m.faultBackoff)
			sleep(ctx, m.faultBackoff)
		case status == observe.CycleIdle:
			sleep(ctx, idle)
		}
	}
}

// cycle performs one gather-mix-emit round. It returns [observe.CycleIdle]
// without producing output when no streams are registered. A panic in the
// mixer is converted to an error.
func (m *Merger) cycle(ctx context.Context) (status string, err error) {
	defer func() {
		if r := recover(); r != nil {
			status, err = observe.CycleFault, fmt.Errorf("merger: cycle panic: %v", r)
		}
	}()

	streams := m.registry.snapshot()
	if len(streams) == 0 {
		return observe.CycleIdle, nil
	}

	chunks, err := m.gather(ctx, streams)
	if err != nil {
		return observe.CycleFault, err
	}

	var out []byte
	if sm, ok := m.mixer.(statsMixer); ok {
		res := sm.Mixed(chunks, len(streams))
		m.metrics.RecordMix(ctx, res.Missing, res.Clipped)
		out = res.Chunk
	} else {
		out = m.mixer.Mix(chunks, len(streams))
		m.metrics.RecordMix(ctx, len(streams)-len(chunks), 0)
	}
	m.sink.push(out)
	return observe.CycleMixed, nil
}

// gather waits concurrently for the next chunk of every stream, bounded by
// one chunk period. Streams that time out or were deregistered meanwhile are
// left out of the result; nothing is dequeued from them. A chunk dequeued
// before the deadline is always part of the result.
//
// gather returns an error only if ctx itself is cancelled.
func (m *Merger) gather(ctx context.Context, streams []*stream) ([][]byte, error) {
	waitCtx, cancel := context.WithTimeout(ctx, m.layout.Period())
	defer cancel()

	got := make([][]byte, len(streams))
	ok := make([]bool, len(streams))

	g, gctx := errgroup.WithContext(waitCtx)
	for i, s := range streams {
		g.Go(func() error {
			chunk, err := s.queue.Pop(gctx)
			switch {
			case err == nil:
				got[i], ok[i] = chunk, true
			case errors.Is(err, context.DeadlineExceeded), errors.Is(err, queue.ErrClosed):
				// Late or gone: silence for this cycle.
			case ctx.Err() != nil:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	chunks := make([][]byte, 0, len(streams))
	for i := range streams {
		if ok[i] {
			chunks = append(chunks, got[i])
		}
	}
	return chunks, nil
}

// sleep pauses for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
