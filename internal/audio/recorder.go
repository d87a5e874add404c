package audio

import (
	"context"
	"time"
)

// Status represents the current state of the recorder
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusRecording Status = "RECORDING"
	StatusStopping  Status = "STOPPING"
)

// SessionInfo contains information about a recording session
type SessionInfo struct {
	ID             string    `json:"id"`
	OutputFile     string    `json:"output_file"`
	Device         string    `json:"device,omitempty"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time,omitempty"`
	Channels       int       `json:"channels"`
	SampleRate     int       `json:"sample_rate"`
	BitDepth       int       `json:"bit_depth"`
	SamplesWritten int64     `json:"samples_written"`
	DroppedBuffers int64     `json:"dropped_buffers"`
	StreamErrors   int64     `json:"stream_errors"`
	Failed         bool      `json:"failed"`
	Error          string    `json:"error,omitempty"`
}

// Recorder defines the control surface of a single-session recorder
type Recorder interface {
	// Start opens the default input device and begins writing a new file.
	// It returns the output path once the stream is running.
	Start(ctx context.Context) (string, error)

	// Stop requests the active session to end. It never blocks and is a
	// no-op when nothing is recording.
	Stop()

	// Done is closed when the current session has been torn down.
	Done() <-chan struct{}

	// Wait blocks until the current session is torn down and returns it.
	Wait(ctx context.Context) (*SessionInfo, error)

	// Status and information
	Status() (Status, *SessionInfo)
}
