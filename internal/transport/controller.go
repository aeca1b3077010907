package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/capstanaudio/capstan/internal/dispatch"
	"github.com/capstanaudio/capstan/internal/domain"
	"github.com/capstanaudio/capstan/internal/sequence"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// endTolerance is the epsilon within which position >= duration counts as
// finished despite clock drift.
const endTolerance = 0.1

// Config carries the controller's collaborators and tunables. The facade
// package fills defaults before calling Load.
type Config struct {
	Source   domain.Source
	Provider domain.PlayerProvider
	Sink     domain.NowPlayingSink
	Observer domain.TransportObserver
	Policy   domain.TransportPolicy

	// ReportInterval is the period of the position-report timer. The host
	// OS's now-playing cache drifts within tens of milliseconds, so every
	// tick re-publishes position and rate rather than trusting the last
	// state transition to stick.
	ReportInterval time.Duration

	Logger *zap.Logger
}

// Controller presents a rate-aware, media-remote-integrated transport over
// one loaded sequence. All observable state transitions are serialized on
// one event loop; no two transitions can be observed interleaved.
type Controller struct {
	id     string
	cfg    Config
	log    *zap.Logger
	loop   *dispatch.Loop
	player domain.SequencePlayer
	info   domain.SequenceInfo

	mu         sync.Mutex
	prepared   bool
	closed     bool
	reportStop chan struct{}
}

// Load probes the sequence, opens it through the player provider, publishes
// its now-playing metadata and registers for media-remote commands. Any
// open failure surfaces as a Load failure; no partially loaded controller
// is ever returned.
func Load(cfg Config) (*Controller, error) {
	info, err := sequence.Probe(cfg.Source)
	if err != nil {
		return nil, domain.WrapFailure(domain.FailureLoad, "probe sequence", err)
	}

	player, err := cfg.Provider.Open(cfg.Source)
	if err != nil {
		return nil, domain.WrapFailure(domain.FailureLoad, "open sequence", err)
	}

	c := &Controller{
		id:     uuid.New().String(),
		cfg:    cfg,
		loop:   dispatch.NewLoop(),
		player: player,
		info:   info,
	}
	c.log = cfg.Logger.With(zap.String("transport", c.id[:8]), zap.String("sequence", cfg.Source.Path))

	c.cfg.Sink.Init(domain.NowPlayingInfo{
		Title:    info.Title,
		Duration: player.Duration(),
	})
	c.cfg.Sink.Activate(c)

	c.log.Info("sequence loaded",
		zap.String("title", info.Title),
		zap.Float64("duration", player.Duration()),
		zap.Int("tracks", len(info.Tracks)),
	)
	return c, nil
}

// ID identifies this controller instance.
func (c *Controller) ID() string {
	return c.id
}

// Info returns the probed sequence description.
func (c *Controller) Info() domain.SequenceInfo {
	return c.info
}

// Prepare primes the underlying engine and announces that files are
// loaded. Idempotent; safe to call any number of times.
func (c *Controller) Prepare() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.player.Preroll()
	if c.prepared {
		return
	}
	c.prepared = true
	c.post(func() { c.cfg.Observer.FilesLoaded() })
}

// Play starts or resumes playback. When the position sits at end-of-track
// it resets to zero first. A no-op while media keys are disabled or while
// playback is already running.
func (c *Controller) Play() {
	if !c.mediaKeys() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playLocked()
}

func (c *Controller) playLocked() {
	if c.closed || c.player.IsPlaying() {
		return
	}
	if c.atEndLocked() {
		c.setPositionLocked(0)
	}
	firstTime := c.player.Position() == 0

	c.post(func() { c.cfg.Observer.PlaybackWillStart(firstTime) })
	c.player.Start(c.onEngineComplete)
	c.startReportLocked()

	sink := c.cfg.Sink
	c.post(func() { sink.SetState(domain.PlaybackStatePlaying) })
	c.post(func() { c.cfg.Observer.PlaybackStarted(firstTime) })
	c.log.Debug("playback started", zap.Bool("first_time", firstTime))
}

// Pause halts playback, keeping the position. A no-op while media keys are
// disabled.
func (c *Controller) Pause() {
	if !c.mediaKeys() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauseLocked()
}

func (c *Controller) pauseLocked() {
	if c.closed {
		return
	}
	c.player.Stop()
	c.stopReportLocked()
	sink := c.cfg.Sink
	c.post(func() { sink.SetState(domain.PlaybackStatePaused) })
	c.post(func() { c.cfg.Observer.PlaybackStopped(true) })
	c.log.Debug("playback paused", zap.Float64("position", c.player.Position()))
}

// Stop halts playback and rewinds to the start. A no-op while media keys
// are disabled.
func (c *Controller) Stop() {
	if !c.mediaKeys() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if c.closed {
		return
	}
	c.player.Stop()
	c.setPositionLocked(0)
	c.stopReportLocked()
	sink := c.cfg.Sink
	c.post(func() { sink.SetState(domain.PlaybackStateStopped) })
	c.post(func() { c.cfg.Observer.PlaybackStopped(false) })
	c.log.Debug("playback stopped")
}

// TogglePlayPause plays when paused or stopped, pauses when playing, and
// falls back to a full stop if the engine reports an inconsistent state.
func (c *Controller) TogglePlayPause() {
	if !c.mediaKeys() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	switch c.stateLocked() {
	case domain.PlaybackStatePaused, domain.PlaybackStateStopped:
		c.playLocked()
	case domain.PlaybackStatePlaying:
		c.pauseLocked()
	default:
		c.stopLocked()
	}
}

// Seek moves the position to the given time, clamped to [0, duration].
// Seeking never changes the play/pause/stop state.
func (c *Controller) Seek(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.setPositionLocked(seconds)
}

// Rewind moves the position back by the given number of seconds.
func (c *Controller) Rewind(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.setPositionLocked(c.player.Position() - seconds)
}

// FastForward moves the position forward by the given number of seconds.
func (c *Controller) FastForward(seconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.setPositionLocked(c.player.Position() + seconds)
}

// SetRate applies a playback-rate multiplier. The engine's behavior for
// rates at or below zero is undefined, so those are rejected here before
// the engine ever sees them.
func (c *Controller) SetRate(rate float64) error {
	if rate <= 0 {
		return domain.NewFailure(domain.FailureInvalidRate, fmt.Sprintf("rate %v is not positive", rate))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.player.SetRate(rate)
	position := c.player.Position()
	sink := c.cfg.Sink
	c.post(func() { sink.Update(domain.NowPlayingUpdate{Position: position, Rate: rate}) })
	c.post(func() { c.cfg.Observer.PlaybackSpeedChanged(rate) })
	c.log.Debug("rate changed", zap.Float64("rate", rate))
	return nil
}

// Rate returns the current playback-rate multiplier.
func (c *Controller) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player.Rate()
}

// Position returns the position in the engine's native, rate-independent
// time base.
func (c *Controller) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player.Position()
}

// Duration returns the sequence duration in the native time base.
func (c *Controller) Duration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player.Duration()
}

// RealPosition returns the position in wall-clock seconds at the current
// rate.
func (c *Controller) RealPosition() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player.Position() / c.player.Rate()
}

// RealDuration returns the duration in wall-clock seconds at the current
// rate.
func (c *Controller) RealDuration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player.Duration() / c.player.Rate()
}

// State derives the transport state from the engine's playing flag and
// position. Playing and paused can never read true at the same time.
func (c *Controller) State() domain.PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() domain.PlaybackState {
	if c.player.IsPlaying() {
		return domain.PlaybackStatePlaying
	}
	if c.atEndLocked() || c.player.Position() <= 0 {
		return domain.PlaybackStateStopped
	}
	return domain.PlaybackStatePaused
}

func (c *Controller) atEndLocked() bool {
	return !c.player.IsPlaying() && c.player.Position() >= c.player.Duration()-endTolerance
}

// Close tears the controller down: the report timer stops, the engine
// halts, the sequence handle and any sound-bank access grant are released,
// and the media-remote registration is withdrawn. The terminal sink
// publications go through the event loop like every other transition, so
// they land after anything already queued; the loop is then drained and
// shut. Idempotent.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopReportLocked()
	c.player.Stop()
	err := c.player.Close()
	sink := c.cfg.Sink
	c.post(func() { sink.SetState(domain.PlaybackStateStopped) })
	c.post(func() { sink.Deactivate() })
	c.mu.Unlock()

	c.loop.Close()
	c.log.Info("transport closed")
	if err != nil {
		return fmt.Errorf("close player: %w", err)
	}
	return nil
}

// RemotePlay routes the host's play media key to Play.
func (c *Controller) RemotePlay() { c.Play() }

// RemotePause routes the host's pause media key to Pause.
func (c *Controller) RemotePause() { c.Pause() }

// RemoteTogglePlayPause routes the host's play/pause media key to
// TogglePlayPause.
func (c *Controller) RemoteTogglePlayPause() { c.TogglePlayPause() }

// RemoteStop routes the host's stop media key to Stop.
func (c *Controller) RemoteStop() { c.Stop() }

// setPositionLocked is the single position write path. Every mutation of
// the engine's position, whatever its origin, funnels through here and
// emits exactly one position-changed notification.
func (c *Controller) setPositionLocked(seconds float64) {
	duration := c.player.Duration()
	if seconds < 0 {
		seconds = 0
	} else if seconds > duration {
		seconds = duration
	}
	c.player.SetPosition(seconds)
	position := seconds
	c.post(func() { c.cfg.Observer.PlaybackPositionChanged(position, duration) })
}

// onEngineComplete is handed to the engine as its completion callback. The
// engine invokes it on its own context for every halt, including the ones
// Pause and Stop request; it is redispatched onto the event loop and only
// treated as an ending when the position reached the duration.
func (c *Controller) onEngineComplete() {
	c.loop.Post(func() {
		c.mu.Lock()
		if c.closed || c.player.IsPlaying() {
			c.mu.Unlock()
			return
		}
		if c.player.Position() < c.player.Duration()-endTolerance {
			c.mu.Unlock()
			return
		}
		c.stopReportLocked()
		sink := c.cfg.Sink
		obs := c.cfg.Observer
		c.mu.Unlock()

		sink.SetState(domain.PlaybackStateStopped)
		obs.PlaybackEnded()
		c.log.Debug("playback ended")
	})
}

func (c *Controller) startReportLocked() {
	if c.reportStop != nil {
		return
	}
	stop := make(chan struct{})
	c.reportStop = stop

	go func() {
		ticker := time.NewTicker(c.cfg.ReportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.loop.Post(c.reportTick)
			}
		}
	}()
}

func (c *Controller) stopReportLocked() {
	if c.reportStop != nil {
		close(c.reportStop)
		c.reportStop = nil
	}
}

// reportTick runs on the event loop once per report interval. It
// re-publishes the now-playing position and rate and emits a position
// notification for the engine's own clock advance; the host OS's cache is
// never trusted to track position on its own.
func (c *Controller) reportTick() {
	c.mu.Lock()
	if c.closed || !c.player.IsPlaying() {
		c.mu.Unlock()
		return
	}
	position := c.player.Position()
	duration := c.player.Duration()
	rate := c.player.Rate()
	sink := c.cfg.Sink
	obs := c.cfg.Observer
	c.mu.Unlock()

	sink.Update(domain.NowPlayingUpdate{Position: position, Rate: rate})
	obs.PlaybackPositionChanged(position, duration)
}

// post schedules an observer or sink call onto the event loop. Deliveries
// never run under the controller mutex, so a callback may call back into
// the controller freely.
func (c *Controller) post(fn func()) {
	c.loop.Post(fn)
}

// Sync blocks until every notification produced so far has been delivered.
// Intended for tests and for hosts that need a flush point on teardown.
func (c *Controller) Sync() {
	c.loop.Sync()
}

func (c *Controller) mediaKeys() bool {
	if c.cfg.Policy == nil {
		return true
	}
	return c.cfg.Policy.MediaKeysEnabled()
}
