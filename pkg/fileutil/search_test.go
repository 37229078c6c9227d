package fileutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSearchPaths(t *testing.T) {
	tmpDir := t.TempDir()

	existing := filepath.Join(tmpDir, "file1.yaml")
	missing := filepath.Join(tmpDir, "file2.yaml")
	if err := os.WriteFile(existing, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	tests := []struct {
		name    string
		paths   []string
		want    string
		wantErr bool
	}{
		{"finds first existing file", []string{missing, existing}, existing, false},
		{"returns error when no files exist", []string{missing}, "", true},
		{"handles empty path list", []string{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SearchPaths(tt.paths)
			if (err != nil) != tt.wantErr {
				t.Errorf("SearchPaths() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SearchPaths() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSearchPathsOptional(t *testing.T) {
	tmpDir := t.TempDir()

	existing := filepath.Join(tmpDir, "file1.yaml")
	if err := os.WriteFile(existing, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if got := SearchPathsOptional([]string{existing}); got != existing {
		t.Errorf("SearchPathsOptional() = %v, want %v", got, existing)
	}
	if got := SearchPathsOptional([]string{filepath.Join(tmpDir, "nope.yaml")}); got != "" {
		t.Errorf("SearchPathsOptional() = %v, want empty", got)
	}
}

func TestDefaultConfigPaths(t *testing.T) {
	paths := DefaultConfigPaths("projects.yaml")

	if len(paths) != 3 {
		t.Fatalf("Expected 3 search paths, got %d", len(paths))
	}
	for _, p := range paths {
		if !strings.HasSuffix(p, "projects.yaml") {
			t.Errorf("Expected path to end with filename, got %q", p)
		}
	}
}
