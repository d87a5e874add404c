package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigFileState(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "actura.yaml")
	if err := os.WriteFile(existing, []byte("app_name: Actura\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"existing file", existing, "loaded, 17 bytes"},
		{"missing file", filepath.Join(dir, "missing.yaml"), "not found, using defaults"},
		{"directory", dir, "is a directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := configFileState(tt.path); !strings.Contains(got, tt.want) {
				t.Errorf("expected %q to contain %q", got, tt.want)
			}
		})
	}
}
