// Package capstan plays Standard MIDI Files through a sample-based software
// synthesizer and bounces them offline into audio files.
//
// capstan is a library: it owns the playback/transport state machine and the
// render pipeline. The platform-specific pieces (the sequence playback
// engine, the synthesizer, the operating system's now-playing surface) are
// injected by the host.
//
// # Architecture
//
// Two independent pipelines share nothing but the error taxonomy:
//
//   - Transport: a rate-aware, media-remote-integrated transport over one
//     loaded sequence, driven through play/pause/stop/seek/rate intents and
//     observed through lifecycle callbacks.
//   - Bounce: a one-shot job that renders a sequence to a WAV file offline,
//     faster than real time where the synthesizer allows, reporting progress
//     and failure through an observer.
//
// Hosts implement the consumed capabilities:
//
//   - PlayerProvider: opens the sequence playback engine for a source
//   - SynthProvider / SequencerProvider: assemble the offline render graph
//   - NowPlayingSink: publishes metadata and routes media-remote commands
//
// # Basic Usage
//
//	transport, err := capstan.NewTransport(capstan.TransportOptions{
//	    Source: capstan.Source{Path: "/music/gymnopedie.mid"},
//	    Player: myEngineProvider,
//	    Observer: &capstan.TransportCallbacks{
//	        OnPositionChanged: func(pos, dur float64) { ui.SetProgress(pos, dur) },
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer transport.Close()
//
//	transport.Prepare()
//	transport.Play()
//
// # Bouncing
//
//	bounce, err := capstan.NewBounce(capstan.BounceOptions{
//	    Source:    capstan.Source{Path: "/music/gymnopedie.mid"},
//	    Synth:     mySynthProvider,
//	    Sequencer: mySequencerProvider,
//	    Observer: &capstan.BounceCallbacks{
//	        OnProgress:  func(pct, at float64) { ui.SetExportProgress(pct) },
//	        OnCompleted: func() { ui.ExportDone() },
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer bounce.Close()
//
//	bounce.Render("/music/gymnopedie.wav")
//
// Render blocks until the job has finished, failed or been cancelled; call
// Cancel from another goroutine to stop it cooperatively. A failed bounce
// leaves its partial output file in place; treat it as invalid and discard
// it.
package capstan

import (
	"time"

	"github.com/capstanaudio/capstan/internal/bounce"
	"github.com/capstanaudio/capstan/internal/domain"
	"github.com/capstanaudio/capstan/internal/nowplay"
	"github.com/capstanaudio/capstan/internal/transport"

	"go.uber.org/zap"
)

type (
	// Source identifies the MIDI data to perform, either on disk or in
	// memory, plus an optional sound-bank location.
	Source = domain.Source

	// SequencePlayer is the external playback engine a transport drives.
	SequencePlayer = domain.SequencePlayer

	// PlayerProvider opens a SequencePlayer for a source. Required by
	// NewTransport.
	PlayerProvider = domain.PlayerProvider

	// Synthesizer renders scheduled MIDI events as audio.
	Synthesizer = domain.Synthesizer

	// SynthProvider opens a Synthesizer voiced by a sound bank. Required by
	// NewBounce.
	SynthProvider = domain.SynthProvider

	// Sequencer schedules a source's events into a bound synthesizer.
	Sequencer = domain.Sequencer

	// SequencerProvider binds a source to a synthesizer. Required by
	// NewBounce.
	SequencerProvider = domain.SequencerProvider

	// NowPlayingSink publishes playback metadata to the host's now-playing
	// surface and routes media-remote commands back.
	NowPlayingSink = domain.NowPlayingSink

	// RemoteHandler receives media-key commands. The transport controller
	// implements it.
	RemoteHandler = domain.RemoteHandler

	// SoundBankResolver maps a MIDI file to a best-guess companion sound
	// bank. Optional.
	SoundBankResolver = domain.SoundBankResolver

	// TransportObserver receives transport lifecycle events.
	TransportObserver = domain.TransportObserver

	// TransportCallbacks adapts plain functions to TransportObserver.
	TransportCallbacks = domain.TransportCallbacks

	// BounceObserver receives render progress for one bounce job.
	BounceObserver = domain.BounceObserver

	// BounceCallbacks adapts plain functions to BounceObserver.
	BounceCallbacks = domain.BounceCallbacks

	// Failure is a tagged playback or render error.
	Failure = domain.Failure

	// FailureKind enumerates the failure taxonomy.
	FailureKind = domain.FailureKind

	// PlaybackState is the derived stopped/playing/paused transport state.
	PlaybackState = domain.PlaybackState

	// DestinationFormat is the PCM format of a bounce output file.
	DestinationFormat = domain.DestinationFormat

	// SequenceInfo describes a probed sequence.
	SequenceInfo = domain.SequenceInfo

	// TrackSpan places one track's sounding events on the timeline.
	TrackSpan = domain.TrackSpan

	// NowPlayingInfo is the static metadata published per loaded sequence.
	NowPlayingInfo = domain.NowPlayingInfo

	// NowPlayingUpdate carries the re-published drifting playback fields.
	NowPlayingUpdate = domain.NowPlayingUpdate

	// Transport is the playback controller returned by NewTransport.
	Transport = transport.Controller

	// Bounce is the one-shot render job returned by NewBounce.
	Bounce = bounce.Engine
)

const (
	FailureLoad                  = domain.FailureLoad
	FailureInvalidRate           = domain.FailureInvalidRate
	FailureInitialization        = domain.FailureInitialization
	FailureInvalidSequenceLength = domain.FailureInvalidSequenceLength
	FailureFileCreation          = domain.FailureFileCreation
	FailureConversion            = domain.FailureConversion
	FailureEngineStart           = domain.FailureEngineStart
	FailureSequencerStart        = domain.FailureSequencerStart
	FailureIO                    = domain.FailureIO

	PlaybackStateStopped = domain.PlaybackStateStopped
	PlaybackStatePlaying = domain.PlaybackStatePlaying
	PlaybackStatePaused  = domain.PlaybackStatePaused
)

// FailureKindOf extracts the failure kind from err or any error it wraps.
func FailureKindOf(err error) (FailureKind, bool) {
	return domain.KindOf(err)
}

// IsFailureKind reports whether err is, or wraps, a Failure of the given
// kind.
func IsFailureKind(err error, kind FailureKind) bool {
	return domain.IsKind(err, kind)
}

// NullNowPlayingSink returns the default sink for hosts without a
// now-playing surface.
func NullNowPlayingSink() NowPlayingSink {
	return nowplay.Null{}
}

// LoggingNowPlayingSink decorates next with structured logging of every
// publication. A nil next forwards to the null sink.
func LoggingNowPlayingSink(log *zap.Logger, next NowPlayingSink) NowPlayingSink {
	return nowplay.NewLogger(log, next)
}

// TransportOptions configures a transport controller.
type TransportOptions struct {
	// Source is required. Identifies the MIDI data and an optional sound
	// bank.
	Source Source

	// Player is required. Opens the underlying playback engine.
	Player PlayerProvider

	// NowPlaying receives metadata publications and registers the
	// controller for media-remote commands. Default: the null sink.
	NowPlaying NowPlayingSink

	// Observer receives lifecycle events. Default: no-op callbacks.
	Observer TransportObserver

	// SoundBanks, when set, resolves a companion sound bank for sources
	// that do not name one.
	SoundBanks SoundBankResolver

	// Settings gates media-key acceptance and supplies the startup rate.
	// Default: DefaultSettings.
	Settings *Settings

	// ReportInterval is the period of the position-report timer.
	// Default: 125ms.
	ReportInterval time.Duration

	// Logger receives structured logs. Default: a no-op logger.
	Logger *zap.Logger
}

func (o *TransportOptions) setDefaults() {
	if o.NowPlaying == nil {
		o.NowPlaying = nowplay.Null{}
	}
	if o.Observer == nil {
		o.Observer = &TransportCallbacks{}
	}
	if o.Settings == nil {
		o.Settings = DefaultSettings()
	}
	if o.ReportInterval == 0 {
		o.ReportInterval = 125 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

func (o *TransportOptions) validate() {
	if o.Player == nil {
		panic("capstan: Player is required")
	}
	if o.Source.Path == "" && o.Source.Data == nil {
		panic("capstan: Source must name a path or carry data")
	}
}

// NewTransport loads the source through the player provider and returns a
// ready transport controller. It panics if required options are missing and
// returns a Load failure if the sequence or sound bank cannot be opened.
func NewTransport(opts TransportOptions) (*Transport, error) {
	opts.validate()
	opts.setDefaults()

	if opts.Source.SoundBank == "" && opts.SoundBanks != nil {
		if bank, ok := opts.SoundBanks.Resolve(opts.Source.Path); ok {
			opts.Source.SoundBank = bank
		}
	}

	c, err := transport.Load(transport.Config{
		Source:         opts.Source,
		Provider:       opts.Player,
		Sink:           opts.NowPlaying,
		Observer:       opts.Observer,
		Policy:         opts.Settings,
		ReportInterval: opts.ReportInterval,
		Logger:         opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	if rate := opts.Settings.PreferredRate(); rate > 0 && rate != 1.0 {
		if err := c.SetRate(rate); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// BounceOptions configures an offline render job.
type BounceOptions struct {
	// Source is required. Identifies the MIDI data and an optional sound
	// bank.
	Source Source

	// Synth is required. Opens the synthesizer the render captures.
	Synth SynthProvider

	// Sequencer is required. Binds the source to the synthesizer.
	Sequencer SequencerProvider

	// Observer receives progress, error and completion callbacks.
	// Default: no-op callbacks.
	Observer BounceObserver

	// Format is the destination PCM format. Default: 44.1 kHz, 16-bit.
	Format DestinationFormat

	// Rate is the playback-rate multiplier applied to the render.
	// Default: 1.0.
	Rate float64

	// PollInterval is the render loop's progress poll period.
	// Default: 10ms.
	PollInterval time.Duration

	// PreRoll is the stretch of silence rendered ahead of the first notes.
	// Default: 200ms.
	PreRoll time.Duration

	// PostRoll is the tail rendered after the sequence ends so releases
	// ring out. Default: 1.5s.
	PostRoll time.Duration

	// ChunkSize is the pump's pull size in frames. Default: 512.
	ChunkSize int

	// QueueDepth bounds the capture queue between the tap and the file
	// writer. Default: 64 chunks.
	QueueDepth int

	// Logger receives structured logs. Default: a no-op logger.
	Logger *zap.Logger
}

func (o *BounceOptions) setDefaults() {
	if o.Observer == nil {
		o.Observer = &BounceCallbacks{}
	}
	if o.Format.SampleRate == 0 {
		o.Format.SampleRate = 44100
	}
	if o.Format.BitDepth == 0 {
		o.Format.BitDepth = 16
	}
	if o.Rate == 0 {
		o.Rate = 1.0
	}
	if o.PollInterval == 0 {
		o.PollInterval = 10 * time.Millisecond
	}
	if o.PreRoll == 0 {
		o.PreRoll = 200 * time.Millisecond
	}
	if o.PostRoll == 0 {
		o.PostRoll = 1500 * time.Millisecond
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = 512
	}
	if o.QueueDepth == 0 {
		o.QueueDepth = 64
	}
}

func (o *BounceOptions) validate() {
	if o.Synth == nil {
		panic("capstan: Synth is required")
	}
	if o.Sequencer == nil {
		panic("capstan: Sequencer is required")
	}
	if o.Source.Path == "" && o.Source.Data == nil {
		panic("capstan: Source must name a path or carry data")
	}
}

// NewBounce assembles the offline audio graph for one render job. It panics
// if required options are missing; assembly failures return an
// Initialization failure and a non-positive Rate an InvalidRate failure.
func NewBounce(opts BounceOptions) (*Bounce, error) {
	opts.validate()
	opts.setDefaults()

	return bounce.New(bounce.Config{
		Source:       opts.Source,
		Synths:       opts.Synth,
		Sequencers:   opts.Sequencer,
		Observer:     opts.Observer,
		Format:       opts.Format,
		Rate:         opts.Rate,
		PollInterval: opts.PollInterval,
		PreRoll:      opts.PreRoll,
		PostRoll:     opts.PostRoll,
		ChunkSize:    opts.ChunkSize,
		QueueDepth:   opts.QueueDepth,
		Logger:       opts.Logger,
	})
}
