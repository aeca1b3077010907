package bounce

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/capstanaudio/capstan/internal/dispatch"
	"github.com/capstanaudio/capstan/internal/domain"
	"github.com/capstanaudio/capstan/internal/graph"
	"github.com/capstanaudio/capstan/internal/sequence"
	"github.com/capstanaudio/capstan/internal/wavout"

	"github.com/faiface/beep"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const resampleQuality = 4

// destinationWriter is what Render needs from the output file.
type destinationWriter interface {
	WriteStereo(frames [][2]float64) error
	Frames() int
	Close() error
}

// createDestination opens the output file. Tests swap it to inject
// write failures.
var createDestination = func(path string, format domain.DestinationFormat) (destinationWriter, error) {
	return wavout.Create(path, format)
}

// Config carries one bounce job's collaborators and tunables. The facade
// package fills defaults before calling New.
type Config struct {
	Source     domain.Source
	Synths     domain.SynthProvider
	Sequencers domain.SequencerProvider
	Observer   domain.BounceObserver
	Format     domain.DestinationFormat
	Rate       float64

	PollInterval time.Duration
	PreRoll      time.Duration
	PostRoll     time.Duration
	ChunkSize    int
	QueueDepth   int

	Logger *zap.Logger
}

// Engine renders one loaded sequence to an audio file, offline and faster
// than real time where the collaborators allow. An Engine is a one-shot
// job: at most one render run, never reusable.
//
// Observer callbacks are delivered on a single event loop regardless of
// which internal goroutine produced them.
type Engine struct {
	id    string
	cfg   Config
	log   *zap.Logger
	loop  *dispatch.Loop
	synth domain.Synthesizer
	seq   domain.Sequencer
	graph *graph.Graph
	info  domain.SequenceInfo

	started   atomic.Bool
	cancelled atomic.Bool

	// writeErr is the shared error slot the drain goroutine hands I/O
	// failures through; the render loop reads it after the fact. Errors
	// are never thrown across the rendering context.
	writeErr atomic.Value

	lastPercent float64

	closeOnce sync.Once
	closeErr  error
}

// New assembles the offline audio graph (synthesizer, sequencer, capture
// tap, muted monitor) and probes the sequence. Any assembly failure is an
// Initialization failure; no partially constructed engine is usable.
func New(cfg Config) (*Engine, error) {
	if cfg.Rate <= 0 {
		return nil, domain.NewFailure(domain.FailureInvalidRate, fmt.Sprintf("rate %v is not positive", cfg.Rate))
	}

	info, err := sequence.Probe(cfg.Source)
	if err != nil {
		return nil, domain.WrapFailure(domain.FailureInitialization, "probe sequence", err)
	}

	synth, err := cfg.Synths.Open(cfg.Source.SoundBank)
	if err != nil {
		return nil, domain.WrapFailure(domain.FailureInitialization, "open synthesizer", err)
	}

	seq, err := cfg.Sequencers.Open(cfg.Source, synth)
	if err != nil {
		synth.Close()
		return nil, domain.WrapFailure(domain.FailureInitialization, "bind sequencer", err)
	}

	e := &Engine{
		id:    uuid.New().String(),
		cfg:   cfg,
		loop:  dispatch.NewLoop(),
		synth: synth,
		seq:   seq,
		graph: graph.New(synth, cfg.ChunkSize, cfg.QueueDepth),
		info:  info,
	}
	e.log = cfg.Logger.With(zap.String("bounce", e.id[:8]))
	return e, nil
}

// ID identifies this bounce job.
func (e *Engine) ID() string {
	return e.id
}

// Cancel requests a cooperative stop. The render loop observes it at its
// next poll tick, stops the sequencer and still tears everything down; the
// job then reports Completed, and hosts that must distinguish check
// Cancelled.
func (e *Engine) Cancel() {
	e.cancelled.Store(true)
}

// Cancelled reports whether Cancel was requested.
func (e *Engine) Cancelled() bool {
	return e.cancelled.Load()
}

// Render drives the full bounce pipeline synchronously: length check,
// converter resolution, destination file, capture drain, pre-roll,
// sequencer run, progress polling, post-roll and teardown. All outcome
// reporting flows through the observer; Render itself has returned only
// after every callback has been delivered.
func (e *Engine) Render(destination string) {
	if !e.started.CompareAndSwap(false, true) {
		e.reportError(domain.NewFailure(domain.FailureInitialization, "render already run for this job"))
		e.loop.Sync()
		return
	}
	defer e.loop.Sync()

	total := e.info.TotalLength()
	if total <= 0 {
		e.reportError(domain.NewFailure(domain.FailureInvalidSequenceLength, "sequence has no sounding tracks"))
		return
	}

	native := e.synth.SampleRate()
	target := beep.SampleRate(e.cfg.Format.SampleRate)
	if target <= 0 {
		e.reportError(domain.NewFailure(domain.FailureConversion,
			fmt.Sprintf("cannot convert %d Hz to %d Hz", native, target)))
		return
	}
	if e.cfg.Format.BitDepth != 16 && e.cfg.Format.BitDepth != 24 {
		e.reportError(domain.NewFailure(domain.FailureConversion,
			fmt.Sprintf("cannot convert to %d-bit output", e.cfg.Format.BitDepth)))
		return
	}

	writer, err := createDestination(destination, e.cfg.Format)
	if err != nil {
		e.reportError(domain.WrapFailure(domain.FailureFileCreation, "create destination", err))
		return
	}

	e.log.Info("bounce started",
		zap.String("destination", destination),
		zap.Float64("length", total),
		zap.Float64("rate", e.cfg.Rate),
		zap.Int("sample_rate", e.cfg.Format.SampleRate),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go e.drain(&wg, writer, native, target)

	finish := func() {
		e.graph.Stop()
		wg.Wait()
		if err := writer.Close(); err != nil {
			e.storeWriteErr(err)
		}
	}

	e.seq.SetPosition(0)
	e.seq.SetRate(e.cfg.Rate)
	if err := e.seq.Prepare(); err != nil {
		finish()
		e.reportError(domain.WrapFailure(domain.FailureEngineStart, "prime sequence", err))
		return
	}
	if err := e.graph.Start(); err != nil {
		finish()
		e.reportError(domain.WrapFailure(domain.FailureEngineStart, "start audio graph", err))
		return
	}
	e.synth.SetPreload(true)

	// A short stretch of rendered silence ahead of the first notes keeps
	// them from clipping. Paced by the pump's frame counter, not wall
	// time: offline rendering outruns the clock.
	e.waitFrames(int64(native.N(e.cfg.PreRoll)))

	if err := e.seq.Start(); err != nil {
		finish()
		e.reportError(domain.WrapFailure(domain.FailureSequencerStart, "start sequencer", err))
		return
	}

	for e.seq.Playing() && !e.cancelled.Load() && e.loadWriteErr() == nil {
		position := e.seq.Position()
		if position >= total {
			break
		}
		e.reportProgress(position/total*100, position)
		time.Sleep(e.cfg.PollInterval)
	}

	// The sequencer stops no matter how the loop exited.
	e.seq.Stop()

	if e.loadWriteErr() == nil && !e.cancelled.Load() {
		// Post-roll silence lets release tails ring out before the file
		// is finalized.
		e.waitFrames(e.graph.Frames() + int64(native.N(e.cfg.PostRoll)))
		e.reportProgress(100, total)
	}

	finish()

	if werr := e.loadWriteErr(); werr != nil {
		e.reportError(domain.WrapFailure(domain.FailureIO, "write destination", werr))
		return
	}

	e.log.Info("bounce finished", zap.Bool("cancelled", e.Cancelled()), zap.Int("frames", writer.Frames()))
	e.loop.Post(func() { e.cfg.Observer.BounceCompleted() })
}

// Close tears down the audio graph and the synthesizer deterministically,
// whatever state the render run ended in. Idempotent.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.graph.Stop()
		e.closeErr = e.synth.Close()
		e.loop.Close()
	})
	return e.closeErr
}

// drain pulls captured chunks off the tap queue, resamples them to the
// destination rate and appends them to the file. After a write failure it
// keeps consuming without writing so the pump never stalls against a full
// queue; the recorded error ends the poll loop instead.
func (e *Engine) drain(wg *sync.WaitGroup, writer destinationWriter, native, target beep.SampleRate) {
	defer wg.Done()

	src := &queueStreamer{ch: e.graph.Buffers()}
	var conv beep.Streamer = src
	if target != native {
		conv = beep.Resample(resampleQuality, native, target, src)
	}

	buf := make([][2]float64, e.cfg.ChunkSize)
	failed := false
	for {
		n, ok := conv.Stream(buf)
		if n > 0 && !failed {
			if err := writer.WriteStereo(buf[:n]); err != nil {
				e.storeWriteErr(err)
				failed = true
			}
		}
		if !ok {
			return
		}
	}
}

// waitFrames blocks until the pump has rendered up to the target frame
// count, bailing out early on cancellation or a recorded write error.
func (e *Engine) waitFrames(target int64) {
	for e.graph.Frames() < target && !e.cancelled.Load() && e.loadWriteErr() == nil {
		time.Sleep(e.cfg.PollInterval)
	}
}

// reportProgress emits a monotonically non-decreasing percentage bounded
// to [0, 100].
func (e *Engine) reportProgress(percent, currentTime float64) {
	if percent < e.lastPercent {
		percent = e.lastPercent
	}
	if percent > 100 {
		percent = 100
	}
	e.lastPercent = percent
	p := percent
	e.loop.Post(func() { e.cfg.Observer.BounceProgress(p, currentTime) })
}

func (e *Engine) reportError(f *domain.Failure) {
	e.log.Error("bounce failed", zap.String("kind", f.Kind.String()), zap.Error(f))
	e.loop.Post(func() { e.cfg.Observer.BounceError(f) })
}

// errBox keeps every value stored in the atomic slot the same concrete
// type, whatever error the writer produced.
type errBox struct{ err error }

func (e *Engine) storeWriteErr(err error) {
	e.writeErr.CompareAndSwap(nil, errBox{err: err})
}

func (e *Engine) loadWriteErr() error {
	if v := e.writeErr.Load(); v != nil {
		return v.(errBox).err
	}
	return nil
}

// queueStreamer adapts the tap's capture queue to a beep.Streamer so the
// resampler can pull from it. It drains chunk remainders across calls and
// ends the stream when the queue closes.
type queueStreamer struct {
	ch  <-chan [][2]float64
	buf [][2]float64
}

func (q *queueStreamer) Stream(samples [][2]float64) (int, bool) {
	filled := 0
	for filled < len(samples) {
		if len(q.buf) == 0 {
			chunk, ok := <-q.ch
			if !ok {
				return filled, filled > 0
			}
			q.buf = chunk
		}
		n := copy(samples[filled:], q.buf)
		q.buf = q.buf[n:]
		filled += n
	}
	return filled, true
}

func (q *queueStreamer) Err() error { return nil }
