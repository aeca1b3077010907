package sequence

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/capstanaudio/capstan/internal/domain"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const tpq = 480

func tempoMessage(bpm float64) smf.Message {
	us := uint32(60000000.0 / bpm)
	return smf.Message([]byte{0xFF, 0x51, 0x03, byte(us >> 16), byte(us >> 8), byte(us)})
}

func nameMessage(name string) smf.Message {
	msg := []byte{0xFF, 0x03, byte(len(name))}
	return smf.Message(append(msg, name...))
}

func buildSMF(t *testing.T, tracks ...smf.Track) []byte {
	t.Helper()
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(tpq)
	for _, tr := range tracks {
		if err := s.Add(tr); err != nil {
			t.Fatalf("add track: %v", err)
		}
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("write smf: %v", err)
	}
	return buf.Bytes()
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestProbeSingleTrackDuration(t *testing.T) {
	// One quarter-note-per-beat track at 120 BPM: 4 beats = 2 seconds.
	var tr smf.Track
	tr.Add(0, tempoMessage(120))
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(tpq*4, midi.NoteOff(0, 60))
	tr.Close(0)

	info, err := Probe(domain.Source{Data: buildSMF(t, tr)})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if len(info.Tracks) != 1 {
		t.Fatalf("expected 1 sounding track, got %d", len(info.Tracks))
	}
	if !closeTo(info.Duration, 2.0) {
		t.Fatalf("expected 2s duration, got %v", info.Duration)
	}
	if info.TicksPerQuarter != tpq {
		t.Fatalf("expected tpq %d, got %d", tpq, info.TicksPerQuarter)
	}
}

func TestProbeTrackOffsetAndTotalLength(t *testing.T) {
	// Track A sounds immediately for 1 beat; track B starts 4 beats in and
	// holds for 4 beats. Total length is B's end: 8 beats = 4 seconds.
	var a smf.Track
	a.Add(0, tempoMessage(120))
	a.Add(0, midi.NoteOn(0, 60, 100))
	a.Add(tpq, midi.NoteOff(0, 60))
	a.Close(0)

	var b smf.Track
	b.Add(tpq*4, midi.NoteOn(1, 64, 90))
	b.Add(tpq*4, midi.NoteOff(1, 64))
	b.Close(0)

	info, err := Probe(domain.Source{Data: buildSMF(t, a, b)})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if len(info.Tracks) != 2 {
		t.Fatalf("expected 2 sounding tracks, got %d", len(info.Tracks))
	}
	if !closeTo(info.Tracks[1].Offset, 2.0) {
		t.Fatalf("expected second track offset 2s, got %v", info.Tracks[1].Offset)
	}
	if !closeTo(info.TotalLength(), 4.0) {
		t.Fatalf("expected total length 4s, got %v", info.TotalLength())
	}
	if !closeTo(info.Duration, info.TotalLength()) {
		t.Fatalf("duration %v diverges from total length %v", info.Duration, info.TotalLength())
	}
}

func TestProbeTempoChangeMidSequence(t *testing.T) {
	// 4 beats at 120 BPM (2s) then 4 beats at 60 BPM (4s) = 6 seconds.
	var tr smf.Track
	tr.Add(0, tempoMessage(120))
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(tpq*4, tempoMessage(60))
	tr.Add(tpq*4, midi.NoteOff(0, 60))
	tr.Close(0)

	info, err := Probe(domain.Source{Data: buildSMF(t, tr)})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !closeTo(info.Duration, 6.0) {
		t.Fatalf("expected 6s duration, got %v", info.Duration)
	}
}

func TestProbeDefaultTempoBeforeFirstTempoEvent(t *testing.T) {
	// No tempo event at all: the 120 BPM default applies.
	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 72, 100))
	tr.Add(tpq*2, midi.NoteOff(0, 72))
	tr.Close(0)

	info, err := Probe(domain.Source{Data: buildSMF(t, tr)})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !closeTo(info.Duration, 1.0) {
		t.Fatalf("expected 1s duration at default tempo, got %v", info.Duration)
	}
}

func TestProbeMetaOnlySequenceHasNoSoundingTracks(t *testing.T) {
	var tr smf.Track
	tr.Add(0, tempoMessage(140))
	tr.Close(0)

	info, err := Probe(domain.Source{Data: buildSMF(t, tr)})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if len(info.Tracks) != 0 {
		t.Fatalf("expected no sounding tracks, got %d", len(info.Tracks))
	}
	if info.TotalLength() != 0 {
		t.Fatalf("expected zero total length, got %v", info.TotalLength())
	}
}

func TestProbeTitleFromTrackName(t *testing.T) {
	var tr smf.Track
	tr.Add(0, nameMessage("Gymnopedie No. 1"))
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(tpq, midi.NoteOff(0, 60))
	tr.Close(0)

	info, err := Probe(domain.Source{Data: buildSMF(t, tr)})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if info.Title != "Gymnopedie No. 1" {
		t.Fatalf("unexpected title %q", info.Title)
	}
}

func TestProbeTitleFallsBackToFileName(t *testing.T) {
	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(tpq, midi.NoteOff(0, 60))
	tr.Close(0)

	path := filepath.Join(t.TempDir(), "moonlight.mid")
	if err := os.WriteFile(path, buildSMF(t, tr), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	info, err := Probe(domain.Source{Path: path})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if info.Title != "moonlight" {
		t.Fatalf("unexpected title %q", info.Title)
	}
}

func TestProbeRejectsGarbage(t *testing.T) {
	if _, err := Probe(domain.Source{Data: []byte("not a midi file")}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestProbeRejectsMissingFile(t *testing.T) {
	if _, err := Probe(domain.Source{Path: filepath.Join(t.TempDir(), "absent.mid")}); err == nil {
		t.Fatal("expected read error")
	}
}
