package domain

// SequencePlayer is the external playback engine driven by the transport.
// Position, duration and rate use the engine's native, rate-independent
// time base in seconds.
type SequencePlayer interface {
	Duration() float64
	Position() float64
	SetPosition(seconds float64)
	Rate() float64
	SetRate(rate float64)
	IsPlaying() bool

	// Start begins or resumes playback. onComplete runs on the player's own
	// context whenever playback halts, including halts caused by Stop; the
	// caller decides from the final position whether the sequence actually
	// finished.
	Start(onComplete func())

	// Stop halts playback and retains the current position.
	Stop()

	// Preroll primes the engine's internal buffers. Idempotent.
	Preroll()

	// Close releases the sequence handle and any access grant held on the
	// sound-bank resource.
	Close() error
}

// PlayerProvider opens a SequencePlayer for a source.
type PlayerProvider interface {
	Open(source Source) (SequencePlayer, error)
}

// TransportPolicy gates transport intents. Media-key acceptance is host
// policy; while disabled, Play/Pause/Stop/Toggle degrade to no-ops rather
// than errors.
type TransportPolicy interface {
	MediaKeysEnabled() bool
}

// SoundBankResolver maps a MIDI file location to a best-guess companion
// sound-bank location. Implementations must be pure lookups with no side
// effects.
type SoundBankResolver interface {
	Resolve(midiPath string) (soundBank string, ok bool)
}
