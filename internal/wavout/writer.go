package wavout

import (
	"fmt"
	"os"

	"github.com/capstanaudio/capstan/internal/domain"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const numChannels = 2

// Writer encodes stereo float chunks into a PCM WAV file. It is append-only:
// a failed render leaves whatever was written so far on disk, and callers
// must treat the partial file as invalid.
type Writer struct {
	file   *os.File
	enc    *wav.Encoder
	format domain.DestinationFormat
	scale  float64
	frames int
}

// Create opens the destination file and writes a WAV header for the given
// format. Only 16- and 24-bit PCM are encodable.
func Create(path string, format domain.DestinationFormat) (*Writer, error) {
	if format.SampleRate <= 0 {
		return nil, fmt.Errorf("destination sample rate %d is not positive", format.SampleRate)
	}
	if format.BitDepth != 16 && format.BitDepth != 24 {
		return nil, fmt.Errorf("destination bit depth %d is not 16 or 24", format.BitDepth)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	return &Writer{
		file:   f,
		enc:    wav.NewEncoder(f, format.SampleRate, format.BitDepth, numChannels, 1),
		format: format,
		scale:  float64(int(1) << (format.BitDepth - 1)),
	}, nil
}

// WriteStereo quantizes one chunk of stereo samples in [-1, 1] and appends
// it to the file. Out-of-range samples clamp instead of wrapping.
func (w *Writer) WriteStereo(chunk [][2]float64) error {
	if len(chunk) == 0 {
		return nil
	}

	data := make([]int, len(chunk)*numChannels)
	for i, frame := range chunk {
		data[i*2] = w.quantize(frame[0])
		data[i*2+1] = w.quantize(frame[1])
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: numChannels,
			SampleRate:  w.format.SampleRate,
		},
		Data:           data,
		SourceBitDepth: w.format.BitDepth,
	}
	if err := w.enc.Write(buf); err != nil {
		return fmt.Errorf("write %d frames: %w", len(chunk), err)
	}
	w.frames += len(chunk)
	return nil
}

func (w *Writer) quantize(sample float64) int {
	v := int(sample * w.scale)
	max := int(w.scale) - 1
	min := -int(w.scale)
	if v > max {
		return max
	}
	if v < min {
		return min
	}
	return v
}

// Frames returns the number of stereo frames written so far.
func (w *Writer) Frames() int {
	return w.frames
}

// Close finalizes the WAV header and closes the file.
func (w *Writer) Close() error {
	encErr := w.enc.Close()
	fileErr := w.file.Close()
	if encErr != nil {
		return fmt.Errorf("finalize wav: %w", encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("close wav: %w", fileErr)
	}
	return nil
}
