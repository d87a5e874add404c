// Package wavfile writes 16-bit PCM WAV files incrementally.
package wavfile

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// BitDepth is the only sample width the writer produces.
const BitDepth = 16

// pcmFormat is the WAVE format tag for uncompressed integer PCM.
const pcmFormat = 1

// ErrFinalized is returned by Append and Finalize once the file has been closed.
var ErrFinalized = errors.New("wav writer already finalized")

// Format describes the layout of the samples written to the container
type Format struct {
	Channels   int `json:"channels"`
	SampleRate int `json:"sample_rate"`
}

// Writer owns an open WAV file. It is not safe for concurrent use; callers
// serialize access themselves.
type Writer struct {
	path    string
	file    *os.File
	enc     *wav.Encoder
	buf     *audio.IntBuffer
	pending []int
	samples int64
	done    bool
}

// Create opens path for writing and emits the RIFF header. The parent
// directory must already exist.
func Create(path string, f Format) (*Writer, error) {
	if f.Channels <= 0 || f.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid wav format: %d channel(s) at %d Hz", f.Channels, f.SampleRate)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	w := &Writer{
		path: path,
		file: file,
		enc:  wav.NewEncoder(file, f.SampleRate, BitDepth, f.Channels, pcmFormat),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
			SourceBitDepth: BitDepth,
		},
	}

	// The encoder emits its header lazily on the first write. Writing an
	// empty buffer here keeps a file finalized without samples valid.
	if err := w.write(nil); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write wav header to %s: %w", path, err)
	}

	return w, nil
}

// Path returns the file the writer was created with
func (w *Writer) Path() string {
	return w.path
}

// SamplesWritten returns the number of samples committed to the data chunk.
func (w *Writer) SamplesWritten() int64 {
	return w.samples
}

// Append writes samples in arrival order. Samples that do not complete a
// frame are held back until the rest of the frame arrives.
func (w *Writer) Append(samples []int) error {
	if w.done {
		return ErrFinalized
	}
	if len(samples) == 0 {
		return nil
	}

	channels := w.buf.Format.NumChannels
	data := samples
	if len(w.pending) > 0 {
		data = make([]int, 0, len(w.pending)+len(samples))
		data = append(data, w.pending...)
		data = append(data, samples...)
		w.pending = w.pending[:0]
	}

	whole := len(data) - len(data)%channels
	if whole < len(data) {
		w.pending = append(w.pending, data[whole:]...)
	}
	if whole == 0 {
		return nil
	}

	if err := w.write(data[:whole]); err != nil {
		return fmt.Errorf("failed to append to %s: %w", w.path, err)
	}
	w.samples += int64(whole)
	return nil
}

// Finalize patches the RIFF and data chunk sizes and closes the file. It can
// only succeed once.
func (w *Writer) Finalize() error {
	if w.done {
		return ErrFinalized
	}
	w.done = true

	encErr := w.enc.Close()
	closeErr := w.file.Close()
	if encErr != nil {
		return fmt.Errorf("failed to finalize %s: %w", w.path, encErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", w.path, closeErr)
	}
	return nil
}

// Pending returns the number of samples waiting for the rest of their frame.
func (w *Writer) Pending() int {
	return len(w.pending)
}

func (w *Writer) write(data []int) error {
	if data == nil {
		data = []int{}
	}
	w.buf.Data = data
	err := w.enc.Write(w.buf)
	w.buf.Data = nil
	return err
}
