// Package audio defines the PCM conventions, chunk layout and mixing
// abstraction shared by every stage of voxmerge.
//
// All audio handled by this package is interleaved, little-endian, signed
// 16-bit PCM. Chunks are plain byte slices; the helpers here convert between
// bytes and samples and normalise chunks to a canonical sample count so that
// independently produced streams line up sample-for-sample.
//
// This package lives under pkg/ because producers outside this module are
// expected to build chunks with it.
package audio

const (
	// SampleWidth is the size of one sample in bytes.
	SampleWidth = 2

	// MinSample and MaxSample bound a signed 16-bit sample.
	MinSample = -32768
	MaxSample = 32767
)

// Samples decodes little-endian int16 PCM into samples. A trailing odd byte
// is ignored.
func Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/SampleWidth)
	for i := range out {
		out[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return out
}

// Bytes encodes samples as little-endian int16 PCM.
func Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*SampleWidth)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// Silence returns an all-zero chunk holding n samples.
func Silence(n int) []byte {
	if n < 0 {
		n = 0
	}
	return make([]byte, n*SampleWidth)
}

// Fit returns chunk normalised to exactly n samples: longer chunks are
// truncated, shorter ones are right-padded with zero samples. The result never
// aliases chunk, so callers may retain it after the producer reuses its buffer.
func Fit(chunk []byte, n int) []byte {
	out := Silence(n)
	usable := len(chunk) - len(chunk)%SampleWidth
	copy(out, chunk[:usable])
	return out
}

// Clamp16 hard-clips a widened sample into the int16 range.
func Clamp16(v int32) int16 {
	switch {
	case v > MaxSample:
		return MaxSample
	case v < MinSample:
		return MinSample
	default:
		return int16(v)
	}
}

// Constant returns a chunk of n samples all equal to v. It is mostly useful
// for tone generation in tests and tooling.
func Constant(v int16, n int) []byte {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return Bytes(s)
}
