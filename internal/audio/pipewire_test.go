package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestParsePortList(t *testing.T) {
	output := `Output ports:
alsa_input.pci-0000_00_1f.3.analog-stereo:capture_FL
alsa_input.pci-0000_00_1f.3.analog-stereo:capture_FR

Firefox:output_FL
`
	ports := parsePortList(output)
	if len(ports) != 3 {
		t.Fatalf("Expected 3 ports, got %d: %v", len(ports), ports)
	}
	if ports[2] != "Firefox:output_FL" {
		t.Errorf("Expected Firefox:output_FL, got %s", ports[2])
	}
}

func TestCaptureSources(t *testing.T) {
	ports := []string{
		"zoom:capture_1",
		"alsa_input.usb-mic:capture_MONO",
		"alsa_input.pci-analog:capture_FL",
		"alsa_input.pci-analog:capture_FR",
		"Firefox:output_FL",
		"no-separator",
	}

	sources := captureSources(ports)
	if len(sources) != 3 {
		t.Fatalf("Expected 3 capture sources, got %d: %v", len(sources), sources)
	}

	want := []CaptureSource{
		{Node: "alsa_input.pci-analog", Channels: 2},
		{Node: "alsa_input.usb-mic", Channels: 1},
		{Node: "zoom", Channels: 1},
	}
	for i, w := range want {
		if sources[i] != w {
			t.Errorf("Source %d: expected %+v, got %+v", i, w, sources[i])
		}
	}
}

func TestDefaultSource(t *testing.T) {
	tests := []struct {
		name    string
		sources []CaptureSource
		want    int
	}{
		{"none", nil, -1},
		{"prefers input node", []CaptureSource{{Node: "Chrome"}, {Node: "alsa_input.usb"}}, 1},
		{"falls back to first", []CaptureSource{{Node: "Chrome"}, {Node: "obs"}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := defaultSource(tt.sources); got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func encodeFloats(values ...float32) []byte {
	buf := make([]byte, len(values)*bytesPerFloat32)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*bytesPerFloat32:], math.Float32bits(v))
	}
	return buf
}

func TestPipeWireDevice_ReadLoopDeliversWholeFrames(t *testing.T) {
	d := &pipeWireDevice{name: "mic", recordCmd: "pw-record", format: Format{Channels: 2, SampleRate: 48000}, done: make(chan struct{})}

	// Two stereo frames plus half a frame
	data := append(encodeFloats(0.5, -0.5, 0.25, -0.25), encodeFloats(1)...)

	var got []float32
	var streamErr error
	d.readLoop(bytes.NewReader(data), StreamHandler{
		OnSamples: func(s []float32) { got = append(got, s...) },
		OnError:   func(err error) { streamErr = err },
	})

	want := []float32{0.5, -0.5, 0.25, -0.25}
	if len(got) != len(want) {
		t.Fatalf("Expected %d samples, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sample %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	// The stream ending on its own is a device failure
	if !errors.Is(streamErr, ErrStream) {
		t.Errorf("Expected ErrStream, got %v", streamErr)
	}

	select {
	case <-d.done:
	default:
		t.Error("Expected done to be closed after readLoop returns")
	}
}

func TestPipeWireDevice_ReadLoopQuietWhenStopping(t *testing.T) {
	d := &pipeWireDevice{name: "mic", format: Format{Channels: 1, SampleRate: 48000}, done: make(chan struct{})}
	d.stopping.Store(true)

	samples := 0
	d.readLoop(bytes.NewReader(encodeFloats(0.1, 0.2, 0.3)), StreamHandler{
		OnSamples: func(s []float32) { samples += len(s) },
		OnError:   func(err error) { t.Errorf("Unexpected stream error while stopping: %v", err) },
	})

	if samples != 3 {
		t.Errorf("Expected buffered samples to be delivered, got %d", samples)
	}
}

func TestPipeWireDevice_StopBeforeStart(t *testing.T) {
	d := &pipeWireDevice{name: "mic", format: Format{Channels: 1, SampleRate: 48000}}
	if err := d.Stop(); err != nil {
		t.Errorf("Expected nil from Stop on an idle device, got %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Expected nil from Close on an idle device, got %v", err)
	}
}

func TestDecodeFloat32(t *testing.T) {
	dst := make([]float32, 2)
	got := decodeFloat32(dst, encodeFloats(0.75, -1, 0.5))
	if len(got) != 2 || got[0] != 0.75 || got[1] != -1 {
		t.Errorf("Expected [0.75 -1], got %v", got)
	}
}

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name    string
		want    BackendType
		wantErr bool
	}{
		{"", BackendTypeMalgo, false},
		{"auto", BackendTypeMalgo, false},
		{"MALGO", BackendTypeMalgo, false},
		{"pipewire", BackendTypePipeWire, false},
		{"jack", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackend(tt.name)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for backend %q", tt.name)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if b.GetType() != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, b.GetType())
			}
		})
	}
}
