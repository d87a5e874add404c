// Package output resolves where recordings are written and stores raw blobs.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// RecordingPrefix starts every generated file name.
	RecordingPrefix = "recording_"
	// WAVExtension is used for captured PCM recordings.
	WAVExtension = ".wav"
	// DefaultRawExtension is used for blobs saved without a name.
	DefaultRawExtension = ".webm"
)

// Locator resolves the output directory for an application
type Locator struct {
	// AppName is the leaf directory under Desktop or the temp directory.
	AppName string
	// Directory overrides the default location when set.
	Directory string
	// Getenv looks up environment variables. Defaults to os.Getenv.
	Getenv func(string) string
}

// Path returns the output directory without creating it. The default is
// $HOME/Desktop/<AppName>, or %USERPROFILE% on hosts without HOME, and the
// temp directory when neither is set.
func (l Locator) Path() string {
	if l.Directory != "" {
		return l.Directory
	}

	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	home := getenv("HOME")
	if home == "" {
		home = getenv("USERPROFILE")
	}
	if home == "" {
		return filepath.Join(os.TempDir(), l.AppName)
	}
	return filepath.Join(home, "Desktop", l.AppName)
}

// Dir returns the output directory, creating it if needed
func (l Locator) Dir() (string, error) {
	dir := l.Path()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return dir, nil
}

// RecordingName returns the generated file name for a recording started at t
func RecordingName(t time.Time, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s%d%s", RecordingPrefix, t.UnixMilli(), ext)
}

// RecordingPath returns the full path of the next WAV recording
func (l Locator) RecordingPath(t time.Time) (string, error) {
	dir, err := l.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, RecordingName(t, WAVExtension)), nil
}

// SafeName reduces a caller supplied file name to its base name. It returns
// an empty string when nothing usable is left.
func SafeName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	base := filepath.Base(name)
	switch base {
	case ".", "..", "/":
		return ""
	}
	return base
}

// SaveRaw writes data verbatim into the output directory. An empty filename
// gets a generated recording name with ext.
func (l Locator) SaveRaw(data []byte, filename, ext string, now time.Time) (string, error) {
	name := SafeName(filename)
	if name == "" {
		if filename != "" {
			return "", fmt.Errorf("invalid file name %q", filename)
		}
		if ext == "" {
			ext = DefaultRawExtension
		}
		name = RecordingName(now, ext)
	}

	dir, err := l.Dir()
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// FileInfo describes a recording in the output directory
type FileInfo struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// List returns recordings in the output directory, newest first. A missing
// directory yields an empty list.
func (l Locator) List() ([]FileInfo, error) {
	dir := l.Path()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []FileInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read output directory %s: %w", dir, err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), RecordingPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:     entry.Name(),
			Path:     filepath.Join(dir, entry.Name()),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Modified.Equal(files[j].Modified) {
			return files[i].Name > files[j].Name
		}
		return files[i].Modified.After(files[j].Modified)
	})
	return files, nil
}
