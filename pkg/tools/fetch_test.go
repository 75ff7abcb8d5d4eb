package tools

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestEvalConditions(t *testing.T) {
	vars := map[string]string{
		"darwin":  "true",
		"VERSION": "6.0",
	}

	tests := []struct {
		name     string
		spec     ToolSpec
		expected bool
		url      string
	}{
		{
			name:     "no conditions",
			spec:     ToolSpec{URL: "https://example.org/tool.zip"},
			expected: true,
			url:      "https://example.org/tool.zip",
		},
		{
			name:     "matching condition",
			spec:     ToolSpec{Condition: "darwin", URL: "https://example.org/tool-{VERSION}.zip"},
			expected: true,
			url:      "https://example.org/tool-6.0.zip",
		},
		{
			name:     "missing condition",
			spec:     ToolSpec{Condition: "windows", URL: "https://example.org/tool.zip"},
			expected: false,
		},
		{
			name:     "rejection",
			spec:     ToolSpec{Rejections: "darwin", URL: "https://example.org/tool.zip"},
			expected: false,
		},
		{
			name:     "condition list",
			spec:     ToolSpec{Condition: "darwin, VERSION", URL: "https://example.org/tool.zip"},
			expected: true,
			url:      "https://example.org/tool.zip",
		},
		{
			name:     "unknown variable becomes empty",
			spec:     ToolSpec{URL: "https://example.org/{NOPE}/tool.zip"},
			expected: true,
			url:      "https://example.org//tool.zip",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			spec := tc.spec
			result := evalConditions(&spec, vars)
			if result != tc.expected {
				t.Fatalf("expected %v, got %v", tc.expected, result)
			}

			if tc.expected && spec.URL != tc.url {
				t.Errorf("expected URL %s, got %s", tc.url, spec.URL)
			}
		})
	}
}

func TestLoadConfigMissingStamps(t *testing.T) {
	root := t.TempDir()
	cfgData := `
vars:
  VERSION: "6.0"

tools:
  ffmpeg:
    url: https://example.org/ffmpeg-{VERSION}.zip
    dest: vendor/fftools/ffmpeg
    sha256: abc
    markExec:
      - ffmpeg
`
	err := os.WriteFile(filepath.Join(root, "TOOLS.yml"), []byte(cfgData), 0660)
	if err != nil {
		t.Fatal(err)
	}

	cfg, stamps, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("expected config to load: %v", err)
	}

	if cfg.Vars["VERSION"] != "6.0" {
		t.Errorf("expected VERSION var to be 6.0, got %q", cfg.Vars["VERSION"])
	}

	spec, ok := cfg.Tools["ffmpeg"]
	if !ok {
		t.Fatal("expected an ffmpeg entry")
	}

	if spec.Dest != "vendor/fftools/ffmpeg" {
		t.Errorf("unexpected dest %s", spec.Dest)
	}

	if len(stamps) != 0 {
		t.Errorf("expected no stamps, got %v", stamps)
	}
}

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()

	buffer := new(bytes.Buffer)
	writer := zip.NewWriter(buffer)
	for name, content := range entries {
		entry, err := writer.Create(name)
		if err != nil {
			t.Fatal(err)
		}

		_, err = entry.Write([]byte(content))
		if err != nil {
			t.Fatal(err)
		}
	}

	err := writer.Close()
	if err != nil {
		t.Fatal(err)
	}

	return buffer.Bytes()
}

func TestFetchAll(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"ffmpeg-6.0/ffmpeg":  "fake binary",
		"ffmpeg-6.0/LICENSE": "fake license",
	})
	digest := sha256.Sum256(archive)

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write(archive)
	}))
	defer server.Close()

	root := t.TempDir()
	cfg := ToolsConfig{
		Tools: map[string]ToolSpec{
			"ffmpeg": {
				URL:      server.URL + "/ffmpeg.zip",
				Dest:     "vendor/fftools/ffmpeg",
				Sha256:   hex.EncodeToString(digest[:]),
				Strip:    1,
				MarkExec: []string{"ffmpeg"},
			},
		},
	}

	stamps := map[string]string{}
	err := FetchAll(root, cfg, stamps)
	if err != nil {
		t.Fatalf("expected fetch to succeed: %v", err)
	}

	binPath := filepath.Join(root, "vendor", "fftools", "ffmpeg", "ffmpeg")
	content, err := os.ReadFile(binPath)
	if err != nil {
		t.Fatalf("expected the extracted binary to exist: %v", err)
	}
	if string(content) != "fake binary" {
		t.Errorf("unexpected binary content %q", content)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(binPath)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode()&0100 == 0 {
			t.Error("expected the binary to be marked executable")
		}
	}

	if len(stamps) != 1 {
		t.Fatalf("expected one stamp, got %v", stamps)
	}

	// a second run should skip the unchanged entry
	err = FetchAll(root, cfg, stamps)
	if err != nil {
		t.Fatalf("expected the second fetch to succeed: %v", err)
	}

	if requests != 1 {
		t.Errorf("expected the second run to skip the download, saw %d requests", requests)
	}
}

func TestFetchAllChecksumMismatch(t *testing.T) {
	archive := buildZip(t, map[string]string{"ffmpeg": "fake binary"})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer server.Close()

	cfg := ToolsConfig{
		Tools: map[string]ToolSpec{
			"ffmpeg": {
				URL:    server.URL + "/ffmpeg.zip",
				Dest:   "vendor/fftools/ffmpeg",
				Sha256: "0000000000000000000000000000000000000000000000000000000000000000",
			},
		},
	}

	err := FetchAll(t.TempDir(), cfg, map[string]string{})
	if err == nil {
		t.Fatal("expected the checksum check to fail")
	}
}

func TestFetchAllMissingChecksum(t *testing.T) {
	cfg := ToolsConfig{
		Tools: map[string]ToolSpec{
			"ffmpeg": {
				URL:  "https://example.invalid/ffmpeg.zip",
				Dest: "vendor/fftools/ffmpeg",
			},
		},
	}

	err := FetchAll(t.TempDir(), cfg, map[string]string{})
	if err == nil {
		t.Fatal("expected fetch to fail without a checksum")
	}
}

func TestExtractArchiveRejectsEscapingEntries(t *testing.T) {
	archive := buildZip(t, map[string]string{"../evil.txt": "evil"})

	archivePath := filepath.Join(t.TempDir(), "archive.zip")
	err := os.WriteFile(archivePath, archive, 0644)
	if err != nil {
		t.Fatal(err)
	}

	parent := t.TempDir()
	dest := filepath.Join(parent, "dest")
	err = extractArchive(archivePath, "https://example.org/tool.zip", dest, 0)
	if err == nil {
		t.Fatal("expected an escaping entry to be rejected")
	}

	_, statErr := os.Stat(filepath.Join(parent, "evil.txt"))
	if !os.IsNotExist(statErr) {
		t.Error("expected no file outside the destination directory")
	}
}

func TestStripEntryPath(t *testing.T) {
	tests := []struct {
		name     string
		strip    int
		expected string
	}{
		{"ffmpeg-6.0/bin/ffmpeg", 1, filepath.Join("bin", "ffmpeg")},
		{"ffmpeg-6.0/bin/ffmpeg", 0, filepath.Join("ffmpeg-6.0", "bin", "ffmpeg")},
		{"ffmpeg-6.0", 1, ""},
		{"./ffmpeg", 0, "ffmpeg"},
	}

	for _, tc := range tests {
		result := stripEntryPath(tc.name, tc.strip)
		if result != tc.expected {
			t.Errorf("stripEntryPath(%q, %d): expected %q, got %q", tc.name, tc.strip, tc.expected, result)
		}
	}
}
