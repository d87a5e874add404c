package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	pipeWireRecordCommand = "pw-record"

	// DefaultPipeWireRate is the rate pw-record is asked to deliver; the
	// graph resamples from the source's native rate.
	DefaultPipeWireRate = 48000

	// pipeWireChunkFrames bounds the frames handed to OnSamples per call
	pipeWireChunkFrames = 1024

	pipeWireStopGrace = 2 * time.Second
)

// PipeWireBackend captures from the session manager's default source by
// reading raw float samples from a pw-record child process.
type PipeWireBackend struct {
	pipewire   *PipeWire
	recordCmd  string
	sampleRate int
}

// NewPipeWireBackend creates a backend using pw-link and pw-record from PATH
func NewPipeWireBackend() *PipeWireBackend {
	return &PipeWireBackend{
		pipewire:   NewPipeWire(),
		recordCmd:  pipeWireRecordCommand,
		sampleRate: DefaultPipeWireRate,
	}
}

// GetType returns the backend type
func (p *PipeWireBackend) GetType() BackendType {
	return BackendTypePipeWire
}

// ListDevices returns PipeWire nodes exposing capture ports. The first
// hardware input is reported as the default.
func (p *PipeWireBackend) ListDevices() ([]DeviceInfo, error) {
	sources, err := p.pipewire.CaptureSources(context.Background())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceConfig, err)
	}

	devices := make([]DeviceInfo, 0, len(sources))
	defaultIdx := defaultSource(sources)
	for i, src := range sources {
		devices = append(devices, DeviceInfo{Name: src.Node, Default: i == defaultIdx})
	}
	return devices, nil
}

// OpenDefault prepares a pw-record stream for the default source. The
// process is not started until Start.
func (p *PipeWireBackend) OpenDefault(ctx context.Context) (Device, error) {
	if _, err := exec.LookPath(p.recordCmd); err != nil {
		return nil, fmt.Errorf("%w: %s not available: %v", ErrDeviceConfig, p.recordCmd, err)
	}

	sources, err := p.pipewire.CaptureSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceConfig, err)
	}
	idx := defaultSource(sources)
	if idx < 0 {
		return nil, ErrNoInputDevice
	}
	src := sources[idx]

	channels := src.Channels
	if channels > 2 {
		channels = 2
	}

	d := &pipeWireDevice{
		name:      src.Node,
		recordCmd: p.recordCmd,
		format:    Format{Channels: channels, SampleRate: p.sampleRate},
	}
	slog.Debug("Opened PipeWire source", "device", d.name, "channels", channels, "sample_rate", p.sampleRate)
	return d, nil
}

// defaultSource picks the first input node, falling back to the first
// source of any kind. It returns -1 when there are none.
func defaultSource(sources []CaptureSource) int {
	for i, src := range sources {
		if isInputNode(src.Node) {
			return i
		}
	}
	if len(sources) > 0 {
		return 0
	}
	return -1
}

// pipeWireDevice streams a pw-record child process into a StreamHandler
type pipeWireDevice struct {
	name      string
	recordCmd string
	format    Format

	mu       sync.Mutex
	cmd      *exec.Cmd
	done     chan struct{}
	stopping atomic.Bool
}

func (d *pipeWireDevice) Name() string   { return d.name }
func (d *pipeWireDevice) Format() Format { return d.format }

func (d *pipeWireDevice) args() []string {
	return []string{
		"--raw",
		"--format", "f32",
		"--rate", strconv.Itoa(d.format.SampleRate),
		"--channels", strconv.Itoa(d.format.Channels),
		"-",
	}
}

func (d *pipeWireDevice) Start(h StreamHandler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cmd := exec.Command(d.recordCmd, d.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: %s stdout: %v", ErrDeviceConfig, d.recordCmd, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start %s: %v", ErrDeviceConfig, d.recordCmd, err)
	}

	d.cmd = cmd
	d.done = make(chan struct{})
	d.stopping.Store(false)
	go d.readLoop(stdout, h)

	slog.Debug("Started pw-record", "pid", cmd.Process.Pid, "args", d.args())
	return nil
}

// readLoop hands whole frames to h until r ends. Samples still buffered
// when Stop interrupts the process are delivered before done closes.
func (d *pipeWireDevice) readLoop(r io.Reader, h StreamHandler) {
	defer close(d.done)

	frameBytes := d.format.Channels * bytesPerFloat32
	buf := make([]byte, pipeWireChunkFrames*frameBytes)
	samples := make([]float32, pipeWireChunkFrames*d.format.Channels)

	for {
		n, err := io.ReadFull(r, buf)
		if whole := n - n%frameBytes; whole > 0 && h.OnSamples != nil {
			h.OnSamples(decodeFloat32(samples, buf[:whole]))
		}
		if err != nil {
			if d.stopping.Load() {
				return
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			if h.OnError != nil {
				h.OnError(fmt.Errorf("%w: %s on %q ended: %v", ErrStream, d.recordCmd, d.name, err))
			}
			return
		}
	}
}

func (d *pipeWireDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd == nil {
		return nil
	}
	d.stopping.Store(true)

	if err := d.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		slog.Debug("Failed to interrupt pw-record, killing", "error", err)
		d.cmd.Process.Kill()
	}
	select {
	case <-d.done:
	case <-time.After(pipeWireStopGrace):
		slog.Warn("pw-record did not exit on interrupt, killing", "pid", d.cmd.Process.Pid)
		d.cmd.Process.Kill()
		<-d.done
	}

	// pw-record exits non-zero on SIGINT
	if err := d.cmd.Wait(); err != nil {
		slog.Debug("pw-record exited", "error", err)
	}
	d.cmd = nil
	return nil
}

func (d *pipeWireDevice) Close() error {
	return d.Stop()
}
