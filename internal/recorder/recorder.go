// Package recorder writes the merged output stream to a 16-bit mono WAV file.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/MrWong99/voxmerge/pkg/audio"
)

const (
	bitDepth  = 16
	pcmFormat = 1
)

// Recorder appends PCM chunks to a WAV file. The header is finalised by
// [Recorder.Close]; a file that was never closed has an invalid header.
//
// Recorder is safe for concurrent use.
type Recorder struct {
	path       string
	sampleRate int

	mu      sync.Mutex
	file    *os.File
	enc     *wav.Encoder
	buf     *goaudio.IntBuffer
	samples int64
	closed  bool
}

// Create truncates or creates the file at path and prepares a mono 16-bit
// WAV encoder at sampleRate.
func Create(path string, sampleRate int) (*Recorder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("recorder: sample rate %d must be positive", sampleRate)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: create %q: %w", path, err)
	}
	return &Recorder{
		path:       path,
		sampleRate: sampleRate,
		file:       f,
		enc:        wav.NewEncoder(f, sampleRate, bitDepth, 1, pcmFormat),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
	}, nil
}

// Path returns the file being written.
func (r *Recorder) Path() string { return r.path }

// Write appends one chunk of little-endian int16 PCM.
func (r *Recorder) Write(chunk []byte) error {
	samples := audio.Samples(chunk)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("recorder: write %q: %w", r.path, os.ErrClosed)
	}

	r.buf.Data = r.buf.Data[:0]
	for _, s := range samples {
		r.buf.Data = append(r.buf.Data, int(s))
	}
	if err := r.enc.Write(r.buf); err != nil {
		return fmt.Errorf("recorder: write %q: %w", r.path, err)
	}
	r.samples += int64(len(samples))
	return nil
}

// Duration returns how much audio has been written so far.
func (r *Recorder) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(r.samples) * time.Second / time.Duration(r.sampleRate)
}

// Run writes every chunk received from chunks until the channel is closed
// or ctx is done, then closes the recorder. Write errors are logged and
// recording continues.
func (r *Recorder) Run(ctx context.Context, chunks <-chan []byte) error {
	defer func() {
		if err := r.Close(); err != nil {
			slog.Error("recorder: close failed", "path", r.path, "err", err)
		}
	}()

	var warned bool
	for {
		select {
		case <-ctx.Done():
			return nil
		case chunk, ok := <-chunks:
			if !ok {
				return nil
			}
			if err := r.Write(chunk); err != nil && !warned {
				slog.Warn("recorder: dropping audio", "path", r.path, "err", err)
				warned = true
			}
		}
	}
}

// Close finalises the WAV header and closes the file. It is safe to call
// more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	encErr := r.enc.Close()
	fileErr := r.file.Close()
	if encErr != nil {
		return fmt.Errorf("recorder: finalise %q: %w", r.path, encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("recorder: close %q: %w", r.path, fileErr)
	}
	slog.Info("recorder: recording saved", "path", r.path, "duration", time.Duration(r.samples)*time.Second/time.Duration(r.sampleRate))
	return nil
}
