package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/audiolibrelab/actura/internal/wavfile"
)

// writerSlot guards the session's writer. The callback side only appends;
// the capture goroutine takes the writer out to finalize it.
type writerSlot struct {
	mu sync.Mutex
	w  *wavfile.Writer
}

// append returns how many samples reached the file. Samples of an
// incomplete frame are held by the writer and counted once the frame is.
func (s *writerSlot) append(samples []int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		return 0, ErrFinalized
	}
	before := s.w.SamplesWritten()
	err := s.w.Append(samples)
	return s.w.SamplesWritten() - before, err
}

func (s *writerSlot) take() *wavfile.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.w
	s.w = nil
	return w
}

// session is one start-to-stop recording lifecycle
type session struct {
	info   SessionInfo
	policy ConversionPolicy
	slot   writerSlot

	// queue is nil when samples are written directly from the callback.
	queueMu     sync.RWMutex
	queue       chan []int
	queueClosed bool
	drained     chan struct{}

	// scratch is only used in direct mode, from the callback context.
	scratch []int

	written    atomic.Int64
	dropped    atomic.Int64
	streamErrs atomic.Int64

	failOnce sync.Once
	failErr  error
	failed   chan struct{}

	// stopping is closed when teardown begins
	stopping chan struct{}

	// Start handshake, guarded by the controller lock
	confirmed bool
	abandoned bool
}

func newSession(info SessionInfo, policy ConversionPolicy, queueSize int) *session {
	s := &session{
		info:     info,
		policy:   policy,
		failed:   make(chan struct{}),
		stopping: make(chan struct{}),
	}
	if queueSize > 0 {
		s.queue = make(chan []int, queueSize)
		s.drained = make(chan struct{})
	}
	return s
}

// attach hands the opened writer to the session and starts the queue
// writer when the session is queued.
func (s *session) attach(w *wavfile.Writer) {
	s.slot.mu.Lock()
	s.slot.w = w
	s.slot.mu.Unlock()

	if s.queue != nil {
		go s.drain()
	}
}

func (s *session) handler() StreamHandler {
	return StreamHandler{
		OnSamples: s.onSamples,
		OnError:   s.onStreamError,
	}
}

// onSamples runs in the device callback context.
func (s *session) onSamples(samples []float32) {
	if len(samples) == 0 {
		return
	}

	if s.queue == nil {
		s.scratch = ConvertBuffer(s.scratch[:0], samples, s.policy)
		s.commit(s.scratch)
		return
	}

	buf := ConvertBuffer(make([]int, 0, len(samples)), samples, s.policy)

	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	if s.queueClosed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.queue <- buf:
	default:
		s.dropped.Add(1)
	}
}

func (s *session) commit(buf []int) {
	n, err := s.slot.append(buf)
	s.written.Add(n)
	if err != nil {
		if errors.Is(err, ErrFinalized) {
			s.dropped.Add(1)
			return
		}
		s.fail(fmt.Errorf("%w: %v", ErrIO, err))
	}
}

func (s *session) drain() {
	defer close(s.drained)
	for buf := range s.queue {
		if s.hasFailed() {
			s.dropped.Add(1)
			continue
		}
		s.commit(buf)
	}
}

// closeQueue stops accepting buffers and waits for the queue writer to
// commit what is already queued.
func (s *session) closeQueue() {
	if s.queue == nil {
		return
	}

	s.queueMu.Lock()
	if !s.queueClosed {
		s.queueClosed = true
		close(s.queue)
	}
	s.queueMu.Unlock()

	s.slot.mu.Lock()
	started := s.slot.w != nil
	s.slot.mu.Unlock()
	if started {
		<-s.drained
	}
}

// discard closes the writer of a session that never streamed and removes
// its file.
func (s *session) discard() {
	s.closeQueue()

	w := s.slot.take()
	if w == nil {
		return
	}
	path := w.Path()
	if err := w.Finalize(); err != nil {
		slog.Debug("Failed to finalize unused recording", "path", path, "error", err)
	}
	if err := os.Remove(path); err != nil {
		slog.Debug("Failed to remove unused recording", "path", path, "error", err)
	}
}

func (s *session) onStreamError(err error) {
	n := s.streamErrs.Add(1)
	slog.Warn("Capture stream error", "session", s.info.ID, "count", n, "error", err)
}

func (s *session) fail(err error) {
	s.failOnce.Do(func() {
		s.failErr = err
		close(s.failed)
	})
}

func (s *session) hasFailed() bool {
	select {
	case <-s.failed:
		return true
	default:
		return false
	}
}

func (s *session) err() error {
	if s.hasFailed() {
		return s.failErr
	}
	return nil
}

// snapshot returns a copy of the session info with live counters. Callers
// hold the controller lock.
func (s *session) snapshot() *SessionInfo {
	info := s.info
	info.SamplesWritten = s.written.Load()
	info.DroppedBuffers = s.dropped.Load()
	info.StreamErrors = s.streamErrs.Load()
	if err := s.err(); err != nil {
		info.Failed = true
		info.Error = err.Error()
	}
	return &info
}

// teardown stops the stream before the writer is finalized. It must run on
// the capture goroutine.
func (s *session) teardown(dev Device) {
	close(s.stopping)

	if err := dev.Stop(); err != nil {
		s.onStreamError(err)
	}

	s.closeQueue()

	if w := s.slot.take(); w != nil {
		if pending := w.Pending(); pending > 0 {
			slog.Debug("Discarding incomplete frame", "session", s.info.ID, "samples", pending)
		}
		if err := w.Finalize(); err != nil {
			s.fail(fmt.Errorf("%w: %v", ErrIO, err))
		}
	}

	if err := dev.Close(); err != nil {
		slog.Warn("Failed to release capture device", "session", s.info.ID, "error", err)
	}
}
