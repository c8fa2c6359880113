package audio_test

import (
	"testing"
	"time"

	"github.com/MrWong99/voxmerge/pkg/audio"
)

func TestDefaultLayout(t *testing.T) {
	l := audio.DefaultLayout()
	if l.SampleRate != 44100 || l.ChunkSamples != 1024 {
		t.Fatalf("DefaultLayout = %+v", l)
	}
	if l.ChunkBytes() != 2048 {
		t.Errorf("ChunkBytes = %d, want 2048", l.ChunkBytes())
	}
	// 1024 / 44100 s ≈ 23.22 ms
	p := l.Period()
	if p < 23*time.Millisecond || p > 24*time.Millisecond {
		t.Errorf("Period = %v, want ≈23.2ms", p)
	}
}

func TestLayout_Period(t *testing.T) {
	l := audio.Layout{SampleRate: 48000, ChunkSamples: 960}
	if got := l.Period(); got != 20*time.Millisecond {
		t.Errorf("Period = %v, want 20ms", got)
	}
	if got := (audio.Layout{}).Period(); got != 0 {
		t.Errorf("zero layout Period = %v, want 0", got)
	}
}

func TestLayout_Validate(t *testing.T) {
	if err := audio.DefaultLayout().Validate(); err != nil {
		t.Errorf("default layout invalid: %v", err)
	}
	if err := (audio.Layout{SampleRate: 0, ChunkSamples: -1}).Validate(); err == nil {
		t.Error("expected error for non-positive layout")
	}
	// 1 sample at 2 GHz lasts half a nanosecond, which truncates to zero.
	zero := audio.Layout{SampleRate: 2_000_000_000, ChunkSamples: 1}
	if zero.Period() != 0 {
		t.Fatalf("Period = %v, want 0", zero.Period())
	}
	if err := zero.Validate(); err == nil {
		t.Error("expected error for zero-period layout")
	}
	if err := (audio.Layout{SampleRate: 1_000_000_000, ChunkSamples: 1}).Validate(); err != nil {
		t.Errorf("1ns layout rejected: %v", err)
	}
}
