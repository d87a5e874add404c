package audio

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiolibrelab/actura/internal/wavfile"
	"github.com/google/uuid"
)

const (
	DefaultStartTimeout = 5 * time.Second
	DefaultStopTimeout  = 5 * time.Second
)

// Options configures a Controller
type Options struct {
	Backend Backend

	// OutputPath returns the path of the next recording. It is called once
	// per Start.
	OutputPath func(now time.Time) (string, error)

	Conversion ConversionPolicy

	// QueueSize is the number of buffers held between the device callback
	// and the file writer. Zero writes directly from the callback.
	QueueSize int

	StartTimeout time.Duration
	StopTimeout  time.Duration

	// OnFinish is called after a started session has been torn down.
	OnFinish func(info SessionInfo)

	Now func() time.Time
}

var _ Recorder = (*Controller)(nil)

// Controller records one session at a time from the default input device
type Controller struct {
	opts Options

	mu      sync.Mutex
	status  Status
	cur     *session
	cancel  context.CancelFunc
	done    chan struct{}
	last    *SessionInfo
	lastErr error

	active atomic.Bool
}

// NewController creates a new recorder controller
func NewController(opts Options) (*Controller, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("audio backend is required")
	}
	if opts.OutputPath == nil {
		return nil, fmt.Errorf("output path function is required")
	}
	if opts.QueueSize < 0 {
		return nil, fmt.Errorf("queue size must not be negative, got %d", opts.QueueSize)
	}
	if opts.Conversion == "" {
		opts.Conversion = ConversionClamp
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = DefaultStartTimeout
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	done := make(chan struct{})
	close(done)

	return &Controller{
		opts:   opts,
		status: StatusIdle,
		done:   done,
	}, nil
}

// Start implements Recorder
func (c *Controller) Start(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.status != StatusIdle {
		c.mu.Unlock()
		return "", ErrAlreadyRecording
	}

	now := c.opts.Now()
	path, err := c.opts.OutputPath(now)
	if err != nil {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: resolve output path: %v", ErrIO, err)
	}

	s := newSession(SessionInfo{
		ID:         uuid.NewString(),
		OutputFile: path,
		StartTime:  now,
		BitDepth:   wavfile.BitDepth,
	}, c.opts.Conversion, c.opts.QueueSize)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	ready := make(chan error, 1)

	c.status = StatusRecording
	c.cur = s
	c.cancel = cancel
	c.done = done
	c.active.Store(true)
	c.mu.Unlock()

	go c.run(runCtx, s, done, ready)

	timer := time.NewTimer(c.opts.StartTimeout)
	defer timer.Stop()

	select {
	case err := <-ready:
		if err != nil {
			return "", err
		}
		slog.Info("Recording started", "session", s.info.ID, "path", path)
		return path, nil
	case <-ctx.Done():
		err = ctx.Err()
	case <-timer.C:
		err = fmt.Errorf("%w: stream did not start within %s", ErrDeviceConfig, c.opts.StartTimeout)
	}

	if !c.abandon(s) {
		// The stream came up while we gave up; keep the session
		if err := <-ready; err != nil {
			return "", err
		}
		slog.Info("Recording started", "session", s.info.ID, "path", path)
		return path, nil
	}
	return "", err
}

// abandon marks a starting session as rejected and stops it. It returns
// false when the capture goroutine already confirmed the stream.
func (c *Controller) abandon(s *session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.confirmed {
		return false
	}
	s.abandoned = true

	// The session may already have aborted and a new one started
	if c.cur == s && c.status == StatusRecording {
		c.active.Store(false)
		c.status = StatusStopping
		c.cancel()
	}
	return true
}

// confirm reports whether Start is still waiting for this session. Once
// it returns true the session can no longer be abandoned.
func (c *Controller) confirm(s *session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.abandoned {
		return false
	}
	s.confirmed = true
	return true
}

// Stop implements Recorder
func (c *Controller) Stop() {
	c.active.Store(false)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusRecording {
		return
	}
	c.status = StatusStopping
	c.cancel()
}

// Active reports whether a session is recording and no stop was requested
func (c *Controller) Active() bool {
	return c.active.Load()
}

// Done implements Recorder
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Wait implements Recorder. Once teardown has begun it must complete within
// the stop timeout.
func (c *Controller) Wait(ctx context.Context) (*SessionInfo, error) {
	c.mu.Lock()
	done := c.done
	s := c.cur
	c.mu.Unlock()

	if s != nil {
		select {
		case <-done:
			return c.lastSession()
		case <-s.stopping:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		timer := time.NewTimer(c.opts.StopTimeout)
		defer timer.Stop()

		select {
		case <-done:
		case <-timer.C:
			return nil, fmt.Errorf("%w after %s", ErrStopTimeout, c.opts.StopTimeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return c.lastSession()
}

func (c *Controller) lastSession() (*SessionInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.last == nil {
		return nil, nil
	}
	info := *c.last
	return &info, c.lastErr
}

// Status implements Recorder
func (c *Controller) Status() (Status, *SessionInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cur != nil {
		return c.status, c.cur.snapshot()
	}
	if c.last != nil {
		info := *c.last
		return c.status, &info
	}
	return c.status, nil
}

// run owns the device and the writer for the whole session
func (c *Controller) run(ctx context.Context, s *session, done chan struct{}, ready chan<- error) {
	// Some host APIs require the stream to be stopped from the thread that
	// started it.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	path := s.info.OutputFile

	dev, err := c.opts.Backend.OpenDefault(ctx)
	if err != nil {
		c.abort(s, done, ready, err)
		return
	}
	if err := ctx.Err(); err != nil {
		closeDevice(dev, s.info.ID)
		c.abort(s, done, ready, fmt.Errorf("recording cancelled before the stream started: %w", err))
		return
	}

	format := dev.Format()
	w, err := wavfile.Create(path, format)
	if err != nil {
		closeDevice(dev, s.info.ID)
		c.abort(s, done, ready, fmt.Errorf("%w: %v", ErrIO, err))
		return
	}

	c.mu.Lock()
	s.info.Device = dev.Name()
	s.info.Channels = format.Channels
	s.info.SampleRate = format.SampleRate
	c.mu.Unlock()

	s.attach(w)

	if err := ctx.Err(); err != nil {
		s.discard()
		closeDevice(dev, s.info.ID)
		c.abort(s, done, ready, fmt.Errorf("recording cancelled before the stream started: %w", err))
		return
	}

	if err := dev.Start(s.handler()); err != nil {
		s.discard()
		closeDevice(dev, s.info.ID)
		c.abort(s, done, ready, err)
		return
	}

	if !c.confirm(s) {
		// Start already returned an error to its caller
		if err := dev.Stop(); err != nil {
			slog.Debug("Failed to stop abandoned stream", "session", s.info.ID, "error", err)
		}
		s.discard()
		closeDevice(dev, s.info.ID)
		c.abort(s, done, ready, fmt.Errorf("recording cancelled before the stream started: %w", context.Canceled))
		return
	}

	ready <- nil

	select {
	case <-ctx.Done():
	case <-s.failed:
		slog.Error("Recording failed, stopping stream", "session", s.info.ID, "error", s.err())
		c.markStopping()
	}

	s.teardown(dev)
	c.finish(s, done)
}

// abort resets the controller after a session that never started streaming.
// The attempt replaces the last session so Wait and Status report the failure.
func (c *Controller) abort(s *session, done chan struct{}, ready chan<- error, err error) {
	slog.Error("Failed to start recording", "session", s.info.ID, "error", err)

	c.active.Store(false)

	c.mu.Lock()
	s.info.EndTime = c.opts.Now()
	info := s.snapshot()
	info.Failed = true
	info.Error = err.Error()
	c.cancel()
	c.status = StatusIdle
	c.cur = nil
	c.last = info
	c.lastErr = err
	c.mu.Unlock()

	close(done)
	ready <- err
}

func (c *Controller) markStopping() {
	c.active.Store(false)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusRecording {
		c.status = StatusStopping
	}
}

func (c *Controller) finish(s *session, done chan struct{}) {
	c.active.Store(false)

	c.mu.Lock()
	s.info.EndTime = c.opts.Now()
	info := s.snapshot()
	c.cancel()
	c.status = StatusIdle
	c.cur = nil
	c.last = info
	c.lastErr = s.err()
	c.mu.Unlock()

	close(done)

	attrs := []any{
		"session", info.ID,
		"path", info.OutputFile,
		"samples", info.SamplesWritten,
		"dropped_buffers", info.DroppedBuffers,
		"stream_errors", info.StreamErrors,
		"duration", info.EndTime.Sub(info.StartTime).Round(time.Millisecond),
	}
	if info.Failed {
		slog.Error("Recording failed", append(attrs, "error", info.Error)...)
	} else {
		slog.Info("Recording stopped", attrs...)
	}

	if c.opts.OnFinish != nil {
		c.opts.OnFinish(*info)
	}
}

func closeDevice(dev Device, id string) {
	if err := dev.Close(); err != nil {
		slog.Warn("Failed to release capture device", "session", id, "error", err)
	}
}
