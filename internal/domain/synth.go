package domain

import "github.com/faiface/beep"

// Synthesizer renders MIDI events scheduled into it as audio. Stream must
// keep producing indefinitely, filling silence while no notes sound.
type Synthesizer interface {
	beep.Streamer

	SampleRate() beep.SampleRate

	// SetPreload toggles sample preloading. Valid only while the synthesizer
	// is attached to a running graph; calling it otherwise is a caller error.
	SetPreload(enabled bool)

	Close() error
}

// SynthProvider opens a Synthesizer voiced by the given sound bank.
// An empty soundBank selects the provider's default instrument set.
type SynthProvider interface {
	Open(soundBank string) (Synthesizer, error)
}

// Sequencer schedules a source's MIDI events into a bound synthesizer.
// Position is reported in rate-independent sequence seconds and advances
// with the synthesizer's sample clock, not wall time.
type Sequencer interface {
	// Prepare primes the sequencer for playback from the current position.
	Prepare() error

	Start() error

	// Stop halts event scheduling and retains the current position.
	Stop()

	Playing() bool
	Position() float64
	SetPosition(seconds float64)
	SetRate(rate float64)
}

// SequencerProvider binds a source to a synthesizer for offline playback.
type SequencerProvider interface {
	Open(source Source, synth Synthesizer) (Sequencer, error)
}
