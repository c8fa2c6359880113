package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/MrWong99/voxmerge/pkg/audio"
)

// samplesToBytes converts int16 samples to little-endian bytes independently
// of the package under test.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestSamplesBytesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 12345}
	b := audio.Bytes(in)
	if string(b) != string(samplesToBytes(in)) {
		t.Fatalf("Bytes encoding differs from little-endian reference")
	}
	got := audio.Samples(b)
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], in[i])
		}
	}
}

func TestSamples_IgnoresTrailingOddByte(t *testing.T) {
	b := append(samplesToBytes([]int16{7, 8}), 0xff)
	if got := audio.Samples(b); len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
}

func TestFit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []int16
		n     int
		want  []int16
	}{
		{"exact", []int16{1, 2, 3, 4}, 4, []int16{1, 2, 3, 4}},
		{"pad", []int16{5, 6}, 4, []int16{5, 6, 0, 0}},
		{"truncate", []int16{1, 2, 3, 4, 5, 6}, 4, []int16{1, 2, 3, 4}},
		{"empty", nil, 3, []int16{0, 0, 0}},
		{"zero target", []int16{1}, 0, []int16{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			out := audio.Fit(samplesToBytes(tc.input), tc.n)
			if len(out) != tc.n*audio.SampleWidth {
				t.Fatalf("len = %d bytes, want %d", len(out), tc.n*audio.SampleWidth)
			}
			got := audio.Samples(out)
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("sample %d: got %d, want %d", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestFit_DoesNotAlias(t *testing.T) {
	in := samplesToBytes([]int16{1, 2})
	out := audio.Fit(in, 2)
	in[0] = 0x7f
	if audio.Samples(out)[0] != 1 {
		t.Fatal("Fit result shares memory with its input")
	}
}

func TestFit_OddLengthDropsPartialSample(t *testing.T) {
	in := append(samplesToBytes([]int16{9}), 0x11)
	got := audio.Samples(audio.Fit(in, 2))
	if got[0] != 9 || got[1] != 0 {
		t.Errorf("got %v, want [9 0]", got)
	}
}

func TestSilence(t *testing.T) {
	s := audio.Silence(1024)
	if len(s) != 2048 {
		t.Fatalf("len = %d, want 2048", len(s))
	}
	for i, b := range s {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0", i, b)
		}
	}
	if len(audio.Silence(-3)) != 0 {
		t.Error("negative length should yield an empty chunk")
	}
}

func TestClamp16(t *testing.T) {
	tests := []struct {
		in   int32
		want int16
	}{
		{0, 0},
		{32767, 32767},
		{32768, 32767},
		{60000, 32767},
		{-32768, -32768},
		{-32769, -32768},
		{-70000, -32768},
		{-5, -5},
	}
	for _, tc := range tests {
		if got := audio.Clamp16(tc.in); got != tc.want {
			t.Errorf("Clamp16(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestConstant(t *testing.T) {
	got := audio.Samples(audio.Constant(-42, 5))
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	for i, s := range got {
		if s != -42 {
			t.Errorf("sample %d = %d, want -42", i, s)
		}
	}
}
