package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of a producer's raw PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// Mono returns the single-channel format at rate.
func Mono(rate int) Format {
	return Format{SampleRate: rate, Channels: 1}
}

func (f Format) String() string {
	switch {
	case f.Channels == 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case f.Channels == 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}

// Converter adapts raw PCM from a producer's native format to the mono format
// the merger runs at. It is used at the ingest edge only: the merger itself
// never negotiates formats.
//
// Resampling is streamed: the interpolation phase and the last input sample
// carry over between calls, so consecutive buffers join without gaps or
// repeated samples. Output lengths therefore vary from call to call; use a
// [Chunker] to cut them back to the canonical chunk size.
//
// Create one per stream; a Converter is not designed for shared use across
// goroutines.
type Converter struct {
	Source Format
	Target Format

	// Resampler state. pos is the position of the next output sample in
	// units of 1/Target.SampleRate input samples, relative to prev when
	// primed and to the first sample of the next buffer otherwise.
	pos    int64
	prev   int16
	primed bool

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// NewConverter returns a Converter from src to the mono layout rate.
func NewConverter(src Format, layout Layout) *Converter {
	return &Converter{Source: src, Target: Mono(layout.SampleRate)}
}

// Identity reports whether Convert returns its input unchanged.
func (c *Converter) Identity() bool {
	return c.Source == c.Target
}

// Convert returns pcm in the target format. Buffers whose length is not a
// whole number of source frames are dropped (nil is returned). When the
// formats already match the input is returned unchanged.
func (c *Converter) Convert(pcm []byte) []byte {
	channels := max(c.Source.Channels, 1)
	if len(pcm)%(SampleWidth*channels) != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio converter: partial frame in PCM data, dropping buffer",
				"bytes", len(pcm),
				"format", c.Source.String(),
			)
		})
		return nil
	}
	if c.Identity() {
		return pcm
	}

	c.warnedMismatch.Do(func() {
		slog.Info("audio converter: adapting stream format",
			"from", c.Source.String(),
			"to", c.Target.String(),
		)
	})

	samples := Samples(pcm)
	if channels != c.Target.Channels && c.Target.Channels == 1 {
		samples = downmix(samples, channels)
		channels = 1
	}
	if c.Source.SampleRate != c.Target.SampleRate && channels == 1 {
		samples = c.resample(samples)
	}
	return Bytes(samples)
}

// downmix averages each interleaved frame of n channels into one sample.
// The average of int16 values always fits, so no clipping is needed.
func downmix(samples []int16, n int) []int16 {
	if n <= 1 {
		return samples
	}
	out := make([]int16, len(samples)/n)
	for i := range out {
		var sum int32
		for ch := range n {
			sum += int32(samples[i*n+ch])
		}
		out[i] = int16(sum / int32(n))
	}
	return out
}

// resample converts mono samples from the source to the target rate by
// linear interpolation, continuing from the state left by the previous call.
// An output sample is produced only once both of its neighbours are known,
// so the final input sample is held back until the next call.
func (c *Converter) resample(samples []int16) []int16 {
	src, dst := int64(c.Source.SampleRate), int64(c.Target.SampleRate)
	if src <= 0 || dst <= 0 || len(samples) == 0 {
		return samples
	}

	buf := samples
	if c.primed {
		buf = make([]int16, 0, len(samples)+1)
		buf = append(buf, c.prev)
		buf = append(buf, samples...)
	}

	last := int64(len(buf) - 1)
	out := make([]int16, 0, int(last*dst/src)+1)
	for {
		idx, rem := c.pos/dst, c.pos%dst
		if idx >= last {
			break
		}
		a, b := int64(buf[idx]), int64(buf[idx+1])
		out = append(out, int16(a+(b-a)*rem/dst))
		c.pos += src
	}

	// Rebase onto the held-back sample, which becomes buf[0] next time.
	c.pos -= last * dst
	c.prev = buf[last]
	c.primed = true
	return out
}
