package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/actura/internal/audio"
	"github.com/audiolibrelab/actura/internal/config"
	"github.com/audiolibrelab/actura/internal/notify"
	"github.com/audiolibrelab/actura/internal/output"
	"github.com/audiolibrelab/actura/internal/watch"
)

// Service is the command surface shared by the CLI and the HTTP server
type Service interface {
	// Recording operations
	StartRecording(ctx context.Context) (string, error)
	StopRecording()
	WaitForRecording(ctx context.Context) (*audio.SessionInfo, error)
	RecordingDone() <-chan struct{}
	GetRecordingStatus() (audio.Status, *audio.SessionInfo)

	// Raw blob persistence
	SaveRawAudio(data []byte, filename string) (string, error)

	// Information operations
	ListRecordings() ([]RecordingInfo, error)
	ListDevices() ([]audio.DeviceInfo, error)
	OutputDirectory() string
	GetConfig() *config.Config
	GetLastError() string

	// Meeting detection
	HandleWatchEvent(e watch.Event)
	GetWatchStatus() *watch.Event
}

var _ Service = (*ActuraService)(nil)

// RecordingInfo describes a file in the output directory
type RecordingInfo struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	SizeHuman    string    `json:"size_human"`
	ModTime      time.Time `json:"mod_time"`
	ModTimeHuman string    `json:"mod_time_human"`
}

// ActuraService is the main service implementation
type ActuraService struct {
	cfg      *config.Config
	backend  audio.Backend
	recorder *audio.Controller
	locator  output.Locator
	notifier notify.Notifier
	now      func() time.Time

	watchMutex sync.RWMutex
	lastWatch  *watch.Event

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a new service instance recording from backend
func New(cfg *config.Config, backend audio.Backend, notifier notify.Notifier) (*ActuraService, error) {
	if notifier == nil {
		notifier = notify.Noop{}
	}

	policy, err := audio.ParseConversionPolicy(cfg.Capture.Conversion)
	if err != nil {
		return nil, err
	}

	s := &ActuraService{
		cfg:     cfg,
		backend: backend,
		locator: output.Locator{
			AppName:   cfg.AppName,
			Directory: cfg.Output.Directory,
		},
		notifier: notifier,
		now:      time.Now,
	}

	s.recorder, err = audio.NewController(audio.Options{
		Backend:      backend,
		OutputPath:   s.locator.RecordingPath,
		Conversion:   policy,
		QueueSize:    cfg.Capture.QueueSize,
		StartTimeout: cfg.Capture.StartTimeout,
		StopTimeout:  cfg.Capture.StopTimeout,
		OnFinish:     s.onRecordingFinished,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create recorder: %w", err)
	}

	return s, nil
}

// StartRecording starts capturing from the default input device
func (s *ActuraService) StartRecording(ctx context.Context) (string, error) {
	slog.Debug("Service.StartRecording called")
	s.clearLastError() // Clear any previous errors when starting a new operation

	path, err := s.recorder.Start(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return "", err
	}

	s.notifier.Notify(s.cfg.AppName, "Recording started")
	return path, nil
}

// StopRecording requests the active recording to stop. It returns
// immediately; use WaitForRecording to wait for the file to be finalized.
func (s *ActuraService) StopRecording() {
	s.recorder.Stop()
}

// WaitForRecording waits until the current session has been torn down
func (s *ActuraService) WaitForRecording(ctx context.Context) (*audio.SessionInfo, error) {
	info, err := s.recorder.Wait(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("Recording did not finish cleanly: %v", err))
	}
	return info, err
}

// RecordingDone is closed once the current recording has been torn down
func (s *ActuraService) RecordingDone() <-chan struct{} {
	return s.recorder.Done()
}

// GetRecordingStatus returns the current recording state and session info
func (s *ActuraService) GetRecordingStatus() (audio.Status, *audio.SessionInfo) {
	return s.recorder.Status()
}

// SaveRawAudio stores an already encoded blob in the output directory
func (s *ActuraService) SaveRawAudio(data []byte, filename string) (string, error) {
	path, err := s.locator.SaveRaw(data, filename, s.cfg.Output.RawExtension, s.now())
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to save audio: %v", err))
		return "", err
	}

	slog.Info("Saved raw audio", "path", path, "size", formatBytes(int64(len(data))))
	return path, nil
}

// ListRecordings returns recordings in the output directory, newest first
func (s *ActuraService) ListRecordings() ([]RecordingInfo, error) {
	files, err := s.locator.List()
	if err != nil {
		return nil, err
	}

	recordings := make([]RecordingInfo, 0, len(files))
	for _, f := range files {
		recordings = append(recordings, RecordingInfo{
			Name:         f.Name,
			Path:         f.Path,
			Size:         f.Size,
			SizeHuman:    formatBytes(f.Size),
			ModTime:      f.Modified,
			ModTimeHuman: f.Modified.Format("2006-01-02 15:04:05"),
		})
	}
	return recordings, nil
}

// ListDevices returns the capture devices the backend can see
func (s *ActuraService) ListDevices() ([]audio.DeviceInfo, error) {
	return s.backend.ListDevices()
}

// OutputDirectory returns the directory recordings are written to
func (s *ActuraService) OutputDirectory() string {
	return s.locator.Path()
}

// GetConfig returns the current configuration
func (s *ActuraService) GetConfig() *config.Config {
	return s.cfg
}

// HandleWatchEvent records a meeting state change and, with auto_record,
// starts or stops a recording to follow it.
func (s *ActuraService) HandleWatchEvent(e watch.Event) {
	s.watchMutex.Lock()
	s.lastWatch = &e
	s.watchMutex.Unlock()

	slog.Info("Meeting application state changed", "process", e.Process, "running", e.Running)

	if !s.cfg.Watch.AutoRecord {
		return
	}

	if !e.Running {
		s.StopRecording()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Capture.StartTimeout)
	defer cancel()
	if _, err := s.StartRecording(ctx); err != nil {
		slog.Warn("Automatic recording did not start", "process", e.Process, "error", err)
	}
}

// GetWatchStatus returns the last meeting state change, or nil
func (s *ActuraService) GetWatchStatus() *watch.Event {
	s.watchMutex.RLock()
	defer s.watchMutex.RUnlock()
	if s.lastWatch == nil {
		return nil
	}
	e := *s.lastWatch
	return &e
}

func (s *ActuraService) onRecordingFinished(info audio.SessionInfo) {
	if info.Failed {
		s.setLastError(fmt.Sprintf("Recording failed: %s", info.Error))
		s.notifier.Notify(s.cfg.AppName, "Recording failed: "+info.Error)
		return
	}
	s.notifier.Notify(s.cfg.AppName, "Recording saved to "+info.OutputFile)
}

// GetLastError returns the last error message (thread-safe)
func (s *ActuraService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *ActuraService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	// Log all errors for debugging and monitoring
	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *ActuraService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

// formatBytes formats bytes in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
