package domain

// Source identifies the MIDI data to perform and the optional sound bank
// that voices it. Immutable after load.
type Source struct {
	// Path locates the MIDI file on disk. Ignored when Data is set.
	Path string

	// Data holds the raw Standard MIDI File bytes for in-memory sources.
	Data []byte

	// SoundBank locates the sample library used to voice the sequence.
	// Empty means the synthesizer provider's default instrument set.
	SoundBank string
}

// TrackSpan places one track's sounding events on the sequence timeline,
// in rate-independent sequence seconds.
type TrackSpan struct {
	Offset float64
	Length float64
}

// End returns the timeline position of the span's last event.
func (s TrackSpan) End() float64 {
	return s.Offset + s.Length
}

// SequenceInfo describes a parsed sequence.
type SequenceInfo struct {
	Title           string
	TicksPerQuarter uint16
	Tracks          []TrackSpan
	Duration        float64
}

// TotalLength returns the maximum track end position across all tracks,
// or zero when the sequence has no sounding tracks.
func (i SequenceInfo) TotalLength() float64 {
	var total float64
	for _, t := range i.Tracks {
		if end := t.End(); end > total {
			total = end
		}
	}
	return total
}

type PlaybackState int

const (
	PlaybackStateStopped PlaybackState = iota
	PlaybackStatePlaying
	PlaybackStatePaused
)

func (s PlaybackState) String() string {
	switch s {
	case PlaybackStatePlaying:
		return "playing"
	case PlaybackStatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

// DestinationFormat is the PCM format of a bounce output file.
type DestinationFormat struct {
	SampleRate int
	BitDepth   int
}

// NowPlayingInfo is the static metadata published once per loaded sequence.
type NowPlayingInfo struct {
	Title    string
	Duration float64
}

// NowPlayingUpdate carries the playback fields that drift on the host side
// and are re-published on every report tick.
type NowPlayingUpdate struct {
	Position float64
	Rate     float64
}
