package audio

import (
	"path/filepath"
	"testing"

	"github.com/audiolibrelab/actura/internal/wavfile"
)

func newTestSession(t *testing.T, queueSize int) (*session, *wavfile.Writer) {
	t.Helper()

	w, err := wavfile.Create(filepath.Join(t.TempDir(), "session.wav"), Format{Channels: 1, SampleRate: 8000})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s := newSession(SessionInfo{ID: "test"}, ConversionClamp, queueSize)
	s.attach(w)
	return s, w
}

func TestSession_BuffersAfterFinalizeAreDropped(t *testing.T) {
	s, _ := newTestSession(t, 0)

	s.onSamples([]float32{0.1, 0.2})
	w := s.slot.take()
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	s.onSamples([]float32{0.3})

	info := s.snapshot()
	if info.SamplesWritten != 2 {
		t.Errorf("expected 2 samples written, got %d", info.SamplesWritten)
	}
	if info.DroppedBuffers != 1 {
		t.Errorf("expected 1 dropped buffer, got %d", info.DroppedBuffers)
	}
	if info.Failed {
		t.Errorf("a late buffer must not fail the session: %s", info.Error)
	}
}

func TestSession_QueueOverflowIsCounted(t *testing.T) {
	// Hold the writer lock so the queue writer cannot make progress
	s, _ := newTestSession(t, 1)
	s.slot.mu.Lock()

	for i := 0; i < 10; i++ {
		s.onSamples([]float32{0.5})
	}
	s.slot.mu.Unlock()

	s.closeQueue()
	info := s.snapshot()

	// One buffer sits in the queue and one may already be with the writer
	if got := info.SamplesWritten + info.DroppedBuffers; got != 10 {
		t.Errorf("expected every buffer to be written or dropped, got %d written and %d dropped",
			info.SamplesWritten, info.DroppedBuffers)
	}
	if info.DroppedBuffers < 8 {
		t.Errorf("expected at least 8 dropped buffers, got %d", info.DroppedBuffers)
	}
}

func TestSession_BuffersAfterQueueCloseAreDropped(t *testing.T) {
	s, _ := newTestSession(t, 4)
	s.onSamples([]float32{0.5})
	s.closeQueue()
	s.onSamples([]float32{0.5})

	info := s.snapshot()
	if info.SamplesWritten != 1 || info.DroppedBuffers != 1 {
		t.Errorf("expected 1 written and 1 dropped, got %d and %d", info.SamplesWritten, info.DroppedBuffers)
	}
}

func TestSession_CountsOnlyCompleteFrames(t *testing.T) {
	w, err := wavfile.Create(filepath.Join(t.TempDir(), "stereo.wav"), Format{Channels: 2, SampleRate: 8000})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s := newSession(SessionInfo{ID: "test"}, ConversionClamp, 0)
	s.attach(w)

	// One and a half stereo frames
	s.onSamples([]float32{0.1, 0.2, 0.3})
	if got := s.snapshot().SamplesWritten; got != 2 {
		t.Errorf("expected 2 samples counted, got %d", got)
	}

	// Completing the frame counts the held sample too
	s.onSamples([]float32{0.4, 0.5})
	if got := s.snapshot().SamplesWritten; got != 4 {
		t.Errorf("expected 4 samples counted, got %d", got)
	}

	if w := s.slot.take(); w != nil {
		if err := w.Finalize(); err != nil {
			t.Fatalf("Finalize: %v", err)
		}
		if got, want := s.snapshot().SamplesWritten, w.SamplesWritten(); got != want {
			t.Errorf("reported %d samples but the file holds %d", got, want)
		}
	}
}
