package audio

import (
	"errors"

	"github.com/audiolibrelab/actura/internal/wavfile"
)

var (
	// ErrNoInputDevice is returned when the host has no capture device.
	ErrNoInputDevice = errors.New("no audio input device found")
	// ErrDeviceConfig is returned when the input device cannot be opened or configured.
	ErrDeviceConfig = errors.New("audio device configuration failed")
	// ErrIO covers output path, write and finalize failures.
	ErrIO = errors.New("recording i/o failed")
	// ErrAlreadyRecording rejects a start while a session is recording or stopping.
	ErrAlreadyRecording = errors.New("recording already in progress")
	// ErrStream is reported by the device when the hardware stream fails.
	ErrStream = errors.New("audio stream error")
	// ErrStopTimeout is returned by Wait when teardown exceeds the stop timeout.
	ErrStopTimeout = errors.New("capture teardown timed out")
	// ErrFinalized is returned when writing to a session whose file is already closed.
	ErrFinalized = wavfile.ErrFinalized
)

// IsDeviceError reports whether err is a device open or configuration failure
func IsDeviceError(err error) bool {
	return errors.Is(err, ErrNoInputDevice) || errors.Is(err, ErrDeviceConfig)
}
