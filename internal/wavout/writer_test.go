package wavout

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/capstanaudio/capstan/internal/domain"

	"github.com/go-audio/wav"
)

func TestCreateRejectsBadFormats(t *testing.T) {
	dir := t.TempDir()
	if _, err := Create(filepath.Join(dir, "a.wav"), domain.DestinationFormat{SampleRate: 0, BitDepth: 16}); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
	if _, err := Create(filepath.Join(dir, "b.wav"), domain.DestinationFormat{SampleRate: 44100, BitDepth: 8}); err == nil {
		t.Fatal("expected error for unsupported bit depth")
	}
}

func TestCreateRejectsUnwritablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "deep", "out.wav")
	if _, err := Create(path, domain.DestinationFormat{SampleRate: 44100, BitDepth: 16}); err == nil {
		t.Fatal("expected error for unwritable path")
	}
}

func TestWriteStereoRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := Create(path, domain.DestinationFormat{SampleRate: 8000, BitDepth: 16})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	chunk := [][2]float64{
		{0, 0},
		{0.5, -0.5},
		{1.0, -1.0},
		{2.0, -2.0}, // must clamp, not wrap
	}
	if err := w.WriteStereo(chunk); err != nil {
		t.Fatalf("write: %v", err)
	}
	if w.Frames() != 4 {
		t.Fatalf("expected 4 frames written, got %d", w.Frames())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := len(buf.Data); got != 8 {
		t.Fatalf("expected 8 samples, got %d", got)
	}
	if dec.SampleRate != 8000 {
		t.Fatalf("expected 8000 Hz, got %d", dec.SampleRate)
	}

	want := []int{0, 0, 16384, -16384, 32767, -32768, 32767, -32768}
	for i, v := range want {
		if buf.Data[i] != v {
			t.Fatalf("sample %d: expected %d, got %d", i, v, buf.Data[i])
		}
	}
}

func TestWriteStereoPreservesWaveShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sine.wav")
	w, err := Create(path, domain.DestinationFormat{SampleRate: 8000, BitDepth: 16})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const frames = 800
	chunk := make([][2]float64, frames)
	for i := range chunk {
		s := 0.8 * math.Sin(2*math.Pi*440*float64(i)/8000)
		chunk[i] = [2]float64{s, s}
	}
	if err := w.WriteStereo(chunk); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	buf, err := wav.NewDecoder(f).FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := 0; i < frames; i++ {
		want := chunk[i][0]
		got := float64(buf.Data[i*2]) / 32768.0
		if math.Abs(want-got) > 1.0/32768.0 {
			t.Fatalf("frame %d: expected %v, got %v", i, want, got)
		}
	}
}
