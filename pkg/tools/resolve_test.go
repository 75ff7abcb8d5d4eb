package tools

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
)

func writeFakeTool(t *testing.T, dir, name string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		name += ".exe"
	}

	path := filepath.Join(dir, name)
	err := os.MkdirAll(filepath.Dir(path), 0770)
	if err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}

	err = os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0755)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}

	return path
}

func TestResolvePrefersVendored(t *testing.T) {
	vendorDir := t.TempDir()
	pathDir := t.TempDir()

	vendored := writeFakeTool(t, vendorDir, "ffmpeg")
	writeFakeTool(t, pathDir, "ffmpeg")
	writeFakeTool(t, pathDir, "ffprobe")

	t.Setenv("PATH", pathDir)

	resolver := NewResolver(vendorDir)
	resolved, err := resolver.Resolve()
	if err != nil {
		t.Fatalf("expected resolution to succeed: %v", err)
	}

	if resolved["ffmpeg"] != vendored {
		t.Errorf("expected the vendored ffmpeg %s but got %s", vendored, resolved["ffmpeg"])
	}

	if !resolver.Vendored(resolved["ffmpeg"]) {
		t.Error("the resolved ffmpeg should be reported as vendored")
	}

	if resolver.Vendored(resolved["ffprobe"]) {
		t.Errorf("ffprobe %s should not be reported as vendored", resolved["ffprobe"])
	}
}

func TestResolveVendoredBinSubdirectory(t *testing.T) {
	vendorDir := t.TempDir()
	vendored := writeFakeTool(t, filepath.Join(vendorDir, "bin"), "ffprobe")
	writeFakeTool(t, vendorDir, "ffmpeg")

	t.Setenv("PATH", t.TempDir())

	resolved, err := NewResolver(vendorDir).Resolve()
	if err != nil {
		t.Fatalf("expected resolution to succeed: %v", err)
	}

	if resolved["ffprobe"] != vendored {
		t.Errorf("expected %s but got %s", vendored, resolved["ffprobe"])
	}
}

func TestResolveFallsBackToPath(t *testing.T) {
	pathDir := t.TempDir()
	ffmpeg := writeFakeTool(t, pathDir, "ffmpeg")
	writeFakeTool(t, pathDir, "ffprobe")

	t.Setenv("PATH", pathDir)

	resolved, err := NewResolver(t.TempDir()).Resolve()
	if err != nil {
		t.Fatalf("expected resolution to succeed: %v", err)
	}

	if resolved["ffmpeg"] != ffmpeg {
		t.Errorf("expected %s but got %s", ffmpeg, resolved["ffmpeg"])
	}
}

func TestResolveMissingTools(t *testing.T) {
	pathDir := t.TempDir()
	writeFakeTool(t, pathDir, "ffmpeg")

	t.Setenv("PATH", pathDir)

	resolved, err := NewResolver(t.TempDir()).Resolve()
	if err == nil {
		t.Fatal("expected resolution to fail")
	}

	if !eris.Is(err, ErrMissingTools) {
		t.Errorf("expected the error to wrap ErrMissingTools: %v", err)
	}

	msg := err.Error()
	if !strings.Contains(msg, "ffprobe") {
		t.Errorf("expected the diagnostic to name ffprobe: %s", msg)
	}
	if strings.Contains(msg, "ffmpeg,") {
		t.Errorf("the diagnostic should not name the resolved ffmpeg: %s", msg)
	}

	if _, ok := resolved["ffmpeg"]; !ok {
		t.Error("partial results should still contain the resolved tools")
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"ffmpeg version 6.0\nbuilt with clang\n", "ffmpeg version 6.0"},
		{"  single line  ", "single line"},
		{"", ""},
	}

	for _, tc := range tests {
		result := firstLine(tc.input)
		if result != tc.expected {
			t.Errorf("firstLine(%q): expected %q, got %q", tc.input, tc.expected, result)
		}
	}
}
