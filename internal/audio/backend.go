package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"runtime"
	"strings"

	"github.com/audiolibrelab/actura/internal/wavfile"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypeMalgo    BackendType = "malgo"
	BackendTypePipeWire BackendType = "pipewire"
	BackendTypeAuto     BackendType = "auto"
)

const bytesPerFloat32 = 4

// Format is the capture layout reported by the input device.
type Format = wavfile.Format

// DeviceInfo describes a capture device reported by a backend
type DeviceInfo struct {
	Name    string `json:"name"`
	Default bool   `json:"default"`
}

// StreamHandler receives data from the device's callback context. OnSamples
// gets interleaved float samples that are only valid for the duration of the
// call. Neither function may block.
type StreamHandler struct {
	OnSamples func(samples []float32)
	OnError   func(err error)
}

// Device is an opened capture device with its default input configuration.
type Device interface {
	Name() string
	Format() Format

	// Start begins the hardware stream.
	Start(h StreamHandler) error

	// Stop halts the stream. No handler call is in flight or will be made
	// once Stop returns.
	Stop() error

	// Close releases the device and backend resources.
	Close() error
}

// Backend defines the interface for audio backend implementations
type Backend interface {
	// OpenDefault opens the host's default input device
	OpenDefault(ctx context.Context) (Device, error)

	// List available capture devices
	ListDevices() ([]DeviceInfo, error)

	// Get the backend type
	GetType() BackendType
}

// NewBackend returns the backend selected by name in configuration
func NewBackend(name string) (Backend, error) {
	switch determineBackend(name) {
	case BackendTypeMalgo:
		return &MalgoBackend{}, nil
	case BackendTypePipeWire:
		return NewPipeWireBackend(), nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q (valid: auto, malgo, pipewire)", name)
	}
}

// determineBackend determines which backend to use based on configuration
func determineBackend(name string) BackendType {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", string(BackendTypeAuto), string(BackendTypeMalgo):
		// miniaudio picks the native host API itself
		return BackendTypeMalgo
	case string(BackendTypePipeWire):
		return BackendTypePipeWire
	}
	return BackendType(name)
}

// GetAvailableBackends returns list of available backends on current system
func GetAvailableBackends() []BackendType {
	backends := []BackendType{BackendTypeMalgo}

	if runtime.GOOS == "linux" {
		if _, err := exec.LookPath(pipeWireRecordCommand); err == nil {
			backends = append(backends, BackendTypePipeWire)
		}
	}

	return backends
}

// decodeFloat32 fills dst with little-endian float32 samples from src and
// returns the filled prefix.
func decodeFloat32(dst []float32, src []byte) []float32 {
	n := len(src) / bytesPerFloat32
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*bytesPerFloat32:]))
	}
	return dst[:n]
}
