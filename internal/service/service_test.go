package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/audiolibrelab/actura/internal/audio"
	"github.com/audiolibrelab/actura/internal/config"
	"github.com/audiolibrelab/actura/internal/watch"
)

// silentDevice never delivers samples
type silentDevice struct{}

func (silentDevice) Name() string { return "Silent Microphone" }
func (silentDevice) Format() audio.Format {
	return audio.Format{Channels: 1, SampleRate: 16000}
}
func (silentDevice) Start(audio.StreamHandler) error { return nil }
func (silentDevice) Stop() error                     { return nil }
func (silentDevice) Close() error                    { return nil }

type testBackend struct {
	openErr error
}

func (b *testBackend) OpenDefault(context.Context) (audio.Device, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	return silentDevice{}, nil
}

func (b *testBackend) ListDevices() ([]audio.DeviceInfo, error) {
	return []audio.DeviceInfo{{Name: "Silent Microphone", Default: true}}, nil
}

func (b *testBackend) GetType() audio.BackendType { return "test" }

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, title+": "+message)
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

func newTestService(t *testing.T, backend audio.Backend) (*ActuraService, *recordingNotifier) {
	t.Helper()

	cfg := config.Default()
	cfg.Output.Directory = filepath.Join(t.TempDir(), "Actura")
	notifier := &recordingNotifier{}

	svc, err := New(cfg, backend, notifier)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc, notifier
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRecordingLifecycle(t *testing.T) {
	svc, notifier := newTestService(t, &testBackend{})

	path, err := svc.StartRecording(context.Background())
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if filepath.Dir(path) != svc.OutputDirectory() {
		t.Errorf("expected recording in %s, got %s", svc.OutputDirectory(), path)
	}
	if !strings.HasPrefix(filepath.Base(path), "recording_") || filepath.Ext(path) != ".wav" {
		t.Errorf("unexpected file name %s", filepath.Base(path))
	}

	if status, _ := svc.GetRecordingStatus(); status != audio.StatusRecording {
		t.Errorf("expected %s, got %s", audio.StatusRecording, status)
	}

	svc.StopRecording()
	info, err := svc.WaitForRecording(waitCtx(t))
	if err != nil {
		t.Fatalf("WaitForRecording: %v", err)
	}
	if info.OutputFile != path {
		t.Errorf("expected %s, got %s", path, info.OutputFile)
	}

	recordings, err := svc.ListRecordings()
	if err != nil {
		t.Fatalf("ListRecordings: %v", err)
	}
	if len(recordings) != 1 || recordings[0].Path != path {
		t.Fatalf("expected the new recording to be listed, got %+v", recordings)
	}
	if recordings[0].Size != 44 || recordings[0].SizeHuman != "44 B" {
		t.Errorf("expected a header-only file, got %d bytes (%s)", recordings[0].Size, recordings[0].SizeHuman)
	}

	// The finish notification is sent after teardown completes
	deadline := time.Now().Add(time.Second)
	for len(notifier.all()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	msgs := notifier.all()
	if len(msgs) != 2 || !strings.Contains(msgs[0], "started") || !strings.Contains(msgs[1], path) {
		t.Errorf("unexpected notifications: %v", msgs)
	}
}

func TestStartRecordingDeviceError(t *testing.T) {
	svc, _ := newTestService(t, &testBackend{openErr: audio.ErrNoInputDevice})

	_, err := svc.StartRecording(context.Background())
	if !errors.Is(err, audio.ErrNoInputDevice) {
		t.Fatalf("expected ErrNoInputDevice, got %v", err)
	}
	if !strings.Contains(svc.GetLastError(), "no audio input device") {
		t.Errorf("expected last error to be recorded, got %q", svc.GetLastError())
	}
	if status, _ := svc.GetRecordingStatus(); status != audio.StatusIdle {
		t.Errorf("expected %s, got %s", audio.StatusIdle, status)
	}
}

func TestSaveRawAudio(t *testing.T) {
	svc, _ := newTestService(t, &testBackend{})
	blob := []byte("webm-bytes")

	path, err := svc.SaveRawAudio(blob, "")
	if err != nil {
		t.Fatalf("SaveRawAudio: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), "recording_") || filepath.Ext(path) != ".webm" {
		t.Errorf("unexpected generated name %s", filepath.Base(path))
	}

	named, err := svc.SaveRawAudio(blob, "../meeting.webm")
	if err != nil {
		t.Fatalf("SaveRawAudio: %v", err)
	}
	if named != filepath.Join(svc.OutputDirectory(), "meeting.webm") {
		t.Errorf("expected name to be confined to the output directory, got %s", named)
	}
	got, err := os.ReadFile(named)
	if err != nil || string(got) != string(blob) {
		t.Errorf("expected blob written verbatim, got %q, %v", got, err)
	}

	if _, err := svc.SaveRawAudio(blob, ".."); err == nil {
		t.Error("expected an error for an unusable name")
	}
	if svc.GetLastError() == "" {
		t.Error("expected last error to be recorded")
	}
}

func TestHandleWatchEvent(t *testing.T) {
	t.Run("status only", func(t *testing.T) {
		svc, _ := newTestService(t, &testBackend{})

		if svc.GetWatchStatus() != nil {
			t.Fatal("expected no watch status before any event")
		}
		svc.HandleWatchEvent(watch.Event{Process: "zoom", Running: true, At: time.Now()})

		if e := svc.GetWatchStatus(); e == nil || !e.Running {
			t.Errorf("expected running watch status, got %+v", e)
		}
		if status, _ := svc.GetRecordingStatus(); status != audio.StatusIdle {
			t.Errorf("expected no recording without auto_record, got %s", status)
		}
	})

	t.Run("auto record", func(t *testing.T) {
		svc, _ := newTestService(t, &testBackend{})
		svc.cfg.Watch.AutoRecord = true

		svc.HandleWatchEvent(watch.Event{Process: "zoom", Running: true, At: time.Now()})
		if status, _ := svc.GetRecordingStatus(); status != audio.StatusRecording {
			t.Fatalf("expected recording after meeting started, got %s", status)
		}

		svc.HandleWatchEvent(watch.Event{Process: "zoom", Running: false, At: time.Now()})
		if _, err := svc.WaitForRecording(waitCtx(t)); err != nil {
			t.Fatalf("WaitForRecording: %v", err)
		}
		if status, _ := svc.GetRecordingStatus(); status != audio.StatusIdle {
			t.Errorf("expected %s after meeting ended, got %s", audio.StatusIdle, status)
		}
	})
}

func TestListDevices(t *testing.T) {
	svc, _ := newTestService(t, &testBackend{})

	devices, err := svc.ListDevices()
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devices) != 1 || !devices[0].Default {
		t.Errorf("unexpected devices: %+v", devices)
	}
}

func TestNewRejectsUnknownConversion(t *testing.T) {
	cfg := config.Default()
	cfg.Capture.Conversion = "dither"
	if _, err := New(cfg, &testBackend{}, nil); err == nil {
		t.Fatal("expected an error")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
