package nowplay

import (
	"github.com/capstanaudio/capstan/internal/domain"

	"go.uber.org/zap"
)

// Null is the default sink for hosts without a now-playing surface.
type Null struct{}

func (Null) Init(info domain.NowPlayingInfo)       {}
func (Null) Update(update domain.NowPlayingUpdate) {}
func (Null) SetState(state domain.PlaybackState)   {}
func (Null) Activate(handler domain.RemoteHandler) {}
func (Null) Deactivate()                           {}

// Logger decorates another sink with structured logging of every
// publication. Headless hosts use it with Null as the inner sink to get a
// now-playing trace without an OS integration.
type Logger struct {
	log  *zap.Logger
	next domain.NowPlayingSink
}

func NewLogger(log *zap.Logger, next domain.NowPlayingSink) *Logger {
	if next == nil {
		next = Null{}
	}
	return &Logger{log: log, next: next}
}

func (l *Logger) Init(info domain.NowPlayingInfo) {
	l.log.Info("now playing",
		zap.String("title", info.Title),
		zap.Float64("duration", info.Duration),
	)
	l.next.Init(info)
}

func (l *Logger) Update(update domain.NowPlayingUpdate) {
	l.log.Debug("now playing update",
		zap.Float64("position", update.Position),
		zap.Float64("rate", update.Rate),
	)
	l.next.Update(update)
}

func (l *Logger) SetState(state domain.PlaybackState) {
	l.log.Info("playback state", zap.Stringer("state", state))
	l.next.SetState(state)
}

func (l *Logger) Activate(handler domain.RemoteHandler) {
	l.log.Debug("media remote activated")
	l.next.Activate(handler)
}

func (l *Logger) Deactivate() {
	l.log.Debug("media remote deactivated")
	l.next.Deactivate()
}
