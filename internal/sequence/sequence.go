package sequence

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/capstanaudio/capstan/internal/domain"

	"gitlab.com/gomidi/midi/v2/smf"
)

const defaultTempoBPM = 120.0

// Probe parses the source's Standard MIDI File and reports its title,
// resolution, per-track spans and total duration in seconds. It never
// mutates the source and reads the file at most once.
func Probe(source domain.Source) (domain.SequenceInfo, error) {
	data := source.Data
	if data == nil {
		b, err := os.ReadFile(source.Path)
		if err != nil {
			return domain.SequenceInfo{}, fmt.Errorf("read sequence %s: %w", source.Path, err)
		}
		data = b
	}

	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return domain.SequenceInfo{}, fmt.Errorf("parse sequence: %w", err)
	}

	tpq := uint16(960)
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		tpq = mt.Resolution()
	}
	if tpq == 0 {
		return domain.SequenceInfo{}, fmt.Errorf("parse sequence: zero ticks per quarter")
	}

	tempos := collectTempoMap(s)

	info := domain.SequenceInfo{
		TicksPerQuarter: tpq,
		Title:           trackTitle(s),
	}
	if info.Title == "" {
		info.Title = titleFromPath(source.Path)
	}

	for _, track := range s.Tracks {
		first, last, sounding := soundingTicks(track)
		if !sounding {
			continue
		}
		offset := ticksToSeconds(first, tempos, tpq)
		end := ticksToSeconds(last, tempos, tpq)
		info.Tracks = append(info.Tracks, domain.TrackSpan{
			Offset: offset,
			Length: end - offset,
		})
	}

	info.Duration = info.TotalLength()
	return info, nil
}

type tempoChange struct {
	tick      int64
	usPerBeat float64
}

// collectTempoMap gathers every tempo meta event (FF 51) across all tracks
// into one tick-ordered map. SMF format 1 keeps these in track 0, but
// format 0 files interleave them with note data.
func collectTempoMap(s *smf.SMF) []tempoChange {
	var tempos []tempoChange
	for _, track := range s.Tracks {
		var tick int64
		for _, ev := range track {
			tick += int64(ev.Delta)
			msg := ev.Message
			if len(msg) >= 6 && msg[0] == 0xFF && msg[1] == 0x51 && msg[2] == 0x03 {
				us := uint32(msg[3])<<16 | uint32(msg[4])<<8 | uint32(msg[5])
				if us > 0 {
					tempos = append(tempos, tempoChange{tick: tick, usPerBeat: float64(us)})
				}
			}
		}
	}
	sort.Slice(tempos, func(i, j int) bool { return tempos[i].tick < tempos[j].tick })
	return tempos
}

// soundingTicks returns the tick of the first note-on and the last note
// boundary in the track. Tracks holding only meta events do not sound.
func soundingTicks(track smf.Track) (first, last int64, sounding bool) {
	var tick int64
	for _, ev := range track {
		tick += int64(ev.Delta)
		msg := ev.Message
		if len(msg) < 3 {
			continue
		}
		status := msg[0]
		velocity := msg[2]
		noteOn := status >= 0x90 && status <= 0x9F && velocity > 0
		noteOff := (status >= 0x80 && status <= 0x8F) || (status >= 0x90 && status <= 0x9F && velocity == 0)
		if !noteOn && !noteOff {
			continue
		}
		if !sounding && noteOn {
			first = tick
			sounding = true
		}
		if sounding {
			last = tick
		}
	}
	return first, last, sounding
}

// ticksToSeconds walks the tempo map accumulating wall seconds up to tick.
// Before the first tempo event the default 120 BPM applies.
func ticksToSeconds(tick int64, tempos []tempoChange, tpq uint16) float64 {
	secPerTick := func(usPerBeat float64) float64 {
		return usPerBeat / 1e6 / float64(tpq)
	}

	seconds := 0.0
	prevTick := int64(0)
	rate := secPerTick(60e6 / defaultTempoBPM)

	for _, tc := range tempos {
		if tc.tick >= tick {
			break
		}
		if tc.tick > prevTick {
			seconds += float64(tc.tick-prevTick) * rate
			prevTick = tc.tick
		}
		rate = secPerTick(tc.usPerBeat)
	}
	seconds += float64(tick-prevTick) * rate
	return seconds
}

// trackTitle returns the first sequence/track name meta event (FF 03).
func trackTitle(s *smf.SMF) string {
	for _, track := range s.Tracks {
		for _, ev := range track {
			msg := ev.Message
			if len(msg) >= 3 && msg[0] == 0xFF && msg[1] == 0x03 {
				length := int(msg[2])
				if len(msg) >= 3+length {
					name := strings.TrimSpace(string(msg[3 : 3+length]))
					if name != "" {
						return name
					}
				}
			}
		}
	}
	return ""
}

func titleFromPath(path string) string {
	if path == "" {
		return ""
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
