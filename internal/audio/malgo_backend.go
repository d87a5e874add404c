package audio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// MalgoBackend implements the Backend interface on top of miniaudio
type MalgoBackend struct{}

// GetType returns the backend type
func (b *MalgoBackend) GetType() BackendType {
	return BackendTypeMalgo
}

// ListDevices returns the capture devices miniaudio can see
func (b *MalgoBackend) ListDevices() ([]DeviceInfo, error) {
	mctx, err := initContext()
	if err != nil {
		return nil, err
	}
	defer releaseContext(mctx)

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate capture devices: %v", ErrDeviceConfig, err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, DeviceInfo{
			Name:    info.Name(),
			Default: info.IsDefault != 0,
		})
	}
	return devices, nil
}

// OpenDefault opens the default capture device in its native channel count
// and sample rate, delivering 32-bit float samples.
func (b *MalgoBackend) OpenDefault(ctx context.Context) (Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mctx, err := initContext()
	if err != nil {
		return nil, err
	}

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		releaseContext(mctx)
		return nil, fmt.Errorf("%w: enumerate capture devices: %v", ErrDeviceConfig, err)
	}
	if len(infos) == 0 {
		releaseContext(mctx)
		return nil, ErrNoInputDevice
	}

	name := infos[0].Name()
	for _, info := range infos {
		if info.IsDefault != 0 {
			name = info.Name()
			break
		}
	}

	d := &malgoDevice{ctx: mctx, name: name}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	// Zero channels and sample rate select the device's native configuration
	deviceConfig.Capture.Channels = 0
	deviceConfig.SampleRate = 0

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: d.onData,
		Stop: d.onStop,
	})
	if err != nil {
		releaseContext(mctx)
		return nil, fmt.Errorf("%w: init capture device %q: %v", ErrDeviceConfig, name, err)
	}
	d.device = device
	d.format = Format{
		Channels:   int(device.CaptureChannels()),
		SampleRate: int(device.SampleRate()),
	}

	if d.format.Channels <= 0 || d.format.SampleRate <= 0 {
		d.Close()
		return nil, fmt.Errorf("%w: device %q reported %d channel(s) at %d Hz", ErrDeviceConfig, name, d.format.Channels, d.format.SampleRate)
	}

	slog.Debug("Opened capture device", "device", name, "channels", d.format.Channels, "sample_rate", d.format.SampleRate)
	return d, nil
}

func initContext() (*malgo.AllocatedContext, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init audio context: %v", ErrDeviceConfig, err)
	}
	return mctx, nil
}

func releaseContext(mctx *malgo.AllocatedContext) {
	if err := mctx.Uninit(); err != nil {
		slog.Debug("Failed to uninit audio context", "error", err)
	}
	mctx.Free()
}

// malgoDevice adapts a miniaudio capture device to the Device interface
type malgoDevice struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	name   string
	format Format

	handler  atomic.Pointer[StreamHandler]
	stopping atomic.Bool

	// scratch is only touched from the callback context
	scratch []float32
}

func (d *malgoDevice) Name() string   { return d.name }
func (d *malgoDevice) Format() Format { return d.format }

func (d *malgoDevice) Start(h StreamHandler) error {
	d.handler.Store(&h)
	d.stopping.Store(false)
	if err := d.device.Start(); err != nil {
		d.handler.Store(nil)
		return fmt.Errorf("%w: start capture stream: %v", ErrDeviceConfig, err)
	}
	return nil
}

func (d *malgoDevice) Stop() error {
	d.stopping.Store(true)
	err := d.device.Stop()
	d.handler.Store(nil)
	if err != nil {
		return fmt.Errorf("%w: stop capture stream: %v", ErrStream, err)
	}
	return nil
}

func (d *malgoDevice) Close() error {
	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	if d.ctx != nil {
		releaseContext(d.ctx)
		d.ctx = nil
	}
	return nil
}

func (d *malgoDevice) onData(_, input []byte, frameCount uint32) {
	h := d.handler.Load()
	if h == nil || h.OnSamples == nil {
		return
	}

	n := int(frameCount) * d.format.Channels
	if avail := len(input) / bytesPerFloat32; n > avail {
		n = avail
	}
	if cap(d.scratch) < n {
		d.scratch = make([]float32, n)
	}
	samples := decodeFloat32(d.scratch[:n], input)
	h.OnSamples(samples)
}

// onStop fires whenever the device stops, including when the backend
// stops it on its own after a device loss.
func (d *malgoDevice) onStop() {
	if d.stopping.Load() {
		return
	}
	if h := d.handler.Load(); h != nil && h.OnError != nil {
		h.OnError(fmt.Errorf("%w: device %q stopped unexpectedly", ErrStream, d.name))
	}
}
