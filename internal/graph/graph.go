package graph

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/capstanaudio/capstan/internal/domain"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
)

// Tap copies every chunk flowing out of its source into a bounded queue
// before passing it downstream. The queue send blocks when the consumer
// falls behind, which stalls the pump; offline rendering tolerates that
// stall, and Close unblocks it.
type Tap struct {
	src  beep.Streamer
	out  chan [][2]float64
	quit chan struct{}
	once sync.Once
}

func NewTap(src beep.Streamer, depth int) *Tap {
	return &Tap{
		src:  src,
		out:  make(chan [][2]float64, depth),
		quit: make(chan struct{}),
	}
}

func (t *Tap) Stream(samples [][2]float64) (int, bool) {
	n, ok := t.src.Stream(samples)
	if n > 0 {
		chunk := make([][2]float64, n)
		copy(chunk, samples[:n])
		select {
		case t.out <- chunk:
		case <-t.quit:
			return n, false
		}
	}
	return n, ok
}

func (t *Tap) Err() error {
	return t.src.Err()
}

// Buffers is the capture side of the tap. It is closed once the graph has
// stopped and no further chunks will arrive.
func (t *Tap) Buffers() <-chan [][2]float64 {
	return t.out
}

func (t *Tap) interrupt() {
	t.once.Do(func() { close(t.quit) })
}

// Graph is the offline render chain: synthesizer, capture tap, mixer bus,
// muted monitor, and a pump goroutine that pulls audio as fast as the tap
// consumer accepts it. The monitor output is discarded; the render captures
// raw synthesizer output through the tap, never the speaker path.
type Graph struct {
	synth   domain.Synthesizer
	tap     *Tap
	mixer   *beep.Mixer
	monitor *effects.Volume
	chunk   int

	frames atomic.Int64

	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

func New(synth domain.Synthesizer, chunkSize, queueDepth int) *Graph {
	tap := NewTap(synth, queueDepth)
	mixer := &beep.Mixer{}
	mixer.Add(tap)
	monitor := &effects.Volume{
		Streamer: mixer,
		Base:     2,
		Volume:   0,
		Silent:   true, // monitor bus muted; the tap feeds the capture
	}
	return &Graph{
		synth:   synth,
		tap:     tap,
		mixer:   mixer,
		monitor: monitor,
		chunk:   chunkSize,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// SampleRate reports the synthesizer's native rate.
func (g *Graph) SampleRate() beep.SampleRate {
	return g.synth.SampleRate()
}

// Buffers exposes the tap's capture queue.
func (g *Graph) Buffers() <-chan [][2]float64 {
	return g.tap.Buffers()
}

// Frames reports how many frames the pump has rendered at the native rate.
// Safe to read from any goroutine; pre- and post-roll pacing counts on it.
func (g *Graph) Frames() int64 {
	return g.frames.Load()
}

// Start launches the pump. A graph only runs once.
func (g *Graph) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return fmt.Errorf("graph already stopped")
	}
	if g.started {
		return fmt.Errorf("graph already started")
	}
	g.started = true
	go g.pump()
	return nil
}

func (g *Graph) pump() {
	defer close(g.done)
	buf := make([][2]float64, g.chunk)
	for {
		select {
		case <-g.stop:
			return
		default:
		}
		n, ok := g.monitor.Stream(buf)
		g.frames.Add(int64(n))
		if !ok {
			return
		}
	}
}

// Stop halts the pump, waits for it to exit and closes the capture queue.
// Idempotent; safe even if Start was never called.
func (g *Graph) Stop() {
	g.mu.Lock()
	if g.stopped {
		started := g.started
		g.mu.Unlock()
		if started {
			<-g.done
		}
		return
	}
	g.stopped = true
	started := g.started
	g.mu.Unlock()

	close(g.stop)
	g.tap.interrupt()
	if started {
		<-g.done
	}
	close(g.tap.out)
}
