// Package mixer provides a concrete [audio.Mixer] that sums aligned PCM
// chunks with hard clipping.
//
// Each input chunk is normalised to the canonical chunk length, widened to
// int32, summed sample-wise and clipped back into the int16 range. There is
// no automatic gain: loud simultaneous speakers clip rather than being
// attenuated.
package mixer

import (
	"github.com/MrWong99/voxmerge/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Mixer = (*SumMixer)(nil)

// MaxStreams is the largest number of chunks that can be summed without the
// int32 accumulator overflowing (65536 × 32768 = 2³¹).
const MaxStreams = 1 << 16

// Result describes the outcome of one mix.
type Result struct {
	// Chunk is the canonical-length mixed output.
	Chunk []byte

	// Clipped counts output samples whose sum fell outside the int16 range.
	Clipped int

	// Missing is the number of expected streams that supplied no chunk.
	Missing int
}

// SumMixer mixes by plain summation. It holds no mutable state and is safe
// for concurrent use.
type SumMixer struct {
	samples int
}

// New creates a SumMixer producing chunks of layout.ChunkSamples samples.
func New(layout audio.Layout) *SumMixer {
	return &SumMixer{samples: layout.ChunkSamples}
}

// ChunkSamples returns the canonical chunk length in samples.
func (m *SumMixer) ChunkSamples() int { return m.samples }

// Mix implements [audio.Mixer].
func (m *SumMixer) Mix(chunks [][]byte, expected int) []byte {
	return m.Mixed(chunks, expected).Chunk
}

// Mixed sums chunks and reports clipping and missing-stream statistics.
// expected is the number of streams that should have contributed; those
// absent from chunks count as silence and are never materialised.
func (m *SumMixer) Mixed(chunks [][]byte, expected int) Result {
	res := Result{Missing: max(expected-len(chunks), 0)}
	if len(chunks) == 0 {
		res.Chunk = audio.Silence(m.samples)
		return res
	}

	acc := make([]int32, m.samples)
	for _, c := range chunks {
		// Reading only the first min(len, samples) samples is the same as
		// truncating; the rest of acc stays untouched, which is zero padding.
		n := min(len(c)/audio.SampleWidth, m.samples)
		for i := range n {
			acc[i] += int32(int16(c[i*2]) | int16(c[i*2+1])<<8)
		}
	}

	out := make([]byte, m.samples*audio.SampleWidth)
	for i, v := range acc {
		s := audio.Clamp16(v)
		if int32(s) != v {
			res.Clipped++
		}
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	res.Chunk = out
	return res
}
