package graph

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/faiface/beep"
)

// rampSynth streams an endlessly incrementing sample value so tests can
// verify that the tap captures an exact copy of the synthesizer output.
type rampSynth struct {
	counter atomic.Int64
}

func (s *rampSynth) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		v := float64(s.counter.Add(1))
		samples[i] = [2]float64{v, -v}
	}
	return len(samples), true
}

func (s *rampSynth) Err() error { return nil }

func (s *rampSynth) SampleRate() beep.SampleRate { return 8000 }

func (s *rampSynth) SetPreload(enabled bool) {}

func (s *rampSynth) Close() error { return nil }

func TestTapCapturesExactCopy(t *testing.T) {
	g := New(&rampSynth{}, 16, 64)
	if err := g.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	var got [][2]float64
	for len(got) < 100 {
		chunk, ok := <-g.Buffers()
		if !ok {
			t.Fatal("capture queue closed early")
		}
		got = append(got, chunk...)
	}
	g.Stop()

	for i := 0; i < 100; i++ {
		want := float64(i + 1)
		if got[i][0] != want || got[i][1] != -want {
			t.Fatalf("frame %d: expected (%v, %v), got %v", i, want, -want, got[i])
		}
	}
}

func TestFramesAdvanceWithPump(t *testing.T) {
	g := New(&rampSynth{}, 16, 64)
	if err := g.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer g.Stop()

	deadline := time.After(2 * time.Second)
	for g.Frames() < 32 {
		select {
		case <-deadline:
			t.Fatalf("frames stuck at %d", g.Frames())
		case <-g.Buffers():
		}
	}
}

func TestBackpressureStallsPumpUntilStop(t *testing.T) {
	// Queue depth 1 and nobody draining: the pump must stall after at most
	// queue+1 chunks in flight, then unblock cleanly on Stop.
	g := New(&rampSynth{}, 16, 1)
	if err := g.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	stalled := g.Frames()
	if stalled == 0 {
		t.Fatal("pump never ran")
	}
	if stalled > 16*3 {
		t.Fatalf("pump ran past backpressure: %d frames", stalled)
	}

	done := make(chan struct{})
	go func() {
		g.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop deadlocked against a stalled pump")
	}
}

func TestStopClosesCaptureQueue(t *testing.T) {
	g := New(&rampSynth{}, 16, 4)
	if err := g.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	g.Stop()
	g.Stop() // idempotent

	for {
		if _, ok := <-g.Buffers(); !ok {
			return
		}
	}
}

func TestStartTwiceFails(t *testing.T) {
	g := New(&rampSynth{}, 16, 4)
	if err := g.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer g.Stop()
	if err := g.Start(); err == nil {
		t.Fatal("expected second start to fail")
	}
}

func TestStopWithoutStart(t *testing.T) {
	g := New(&rampSynth{}, 16, 4)
	g.Stop()
	if _, ok := <-g.Buffers(); ok {
		t.Fatal("expected closed capture queue")
	}
}
