package bundler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCollectDist(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"launcher":        "launcher binary",
		"vendored/ffmpeg": "transcoder",
		"themes/dark.cfg": "dark",
		"dnd/libdnd.so":   "so",
	})

	an := &Analysis{
		App:  App{Name: "Demo"},
		Root: root,
		Tools: map[string]string{
			"ffmpeg": filepath.Join(root, "vendored", "ffmpeg"),
		},
		Datas: []ResourceEntry{
			{Source: filepath.Join(root, "themes", "dark.cfg"), Dest: filepath.Join("themes", "dark.cfg")},
		},
		Binaries: []ResourceEntry{
			{Source: filepath.Join(root, "dnd", "libdnd.so"), Dest: filepath.Join("dnd", "libdnd.so")},
		},
	}

	distDir := filepath.Join(t.TempDir(), "dist", "Demo")
	err := CollectDist(distDir, an, filepath.Join(root, "launcher"))
	if err != nil {
		t.Fatalf("expected the collect stage to succeed: %v", err)
	}

	for _, relPath := range []string{
		"Demo",
		"ffmpeg",
		filepath.Join("themes", "dark.cfg"),
		filepath.Join("dnd", "libdnd.so"),
	} {
		_, err := os.Stat(filepath.Join(distDir, relPath))
		if err != nil {
			t.Errorf("expected %s to exist: %v", relPath, err)
		}
	}
}

func TestBuildAppBundle(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"assets/icon.icns": "icon data",
		"collected/Demo":   "launcher",
		"collected/ffmpeg": "transcoder",
	})

	an := &Analysis{
		App: App{
			Name:       "Demo",
			Version:    "1.4.0",
			Identifier: "org.example.demo",
			Icon:       "assets/icon.icns",
		},
		Root: root,
	}

	outDir := filepath.Join(root, "dist")
	bundlePath, err := BuildAppBundle(outDir, an, filepath.Join(root, "collected"))
	if err != nil {
		t.Fatalf("expected the bundle assembly to succeed: %v", err)
	}

	if bundlePath != filepath.Join(outDir, "Demo.app") {
		t.Errorf("unexpected bundle path %s", bundlePath)
	}

	for _, relPath := range []string{
		filepath.Join("Contents", "MacOS", "Demo"),
		filepath.Join("Contents", "MacOS", "ffmpeg"),
		filepath.Join("Contents", "Resources", "icon.icns"),
		filepath.Join("Contents", "Info.plist"),
	} {
		_, err := os.Stat(filepath.Join(bundlePath, relPath))
		if err != nil {
			t.Errorf("expected %s to exist: %v", relPath, err)
		}
	}

	plist, err := os.ReadFile(filepath.Join(bundlePath, "Contents", "Info.plist"))
	if err != nil {
		t.Fatal(err)
	}

	for _, expected := range []string{
		"<key>CFBundleExecutable</key>",
		"<string>Demo</string>",
		"<string>org.example.demo</string>",
		"<string>1.4.0</string>",
		"<string>icon.icns</string>",
		"<key>NSHighResolutionCapable</key>",
	} {
		if !strings.Contains(string(plist), expected) {
			t.Errorf("expected Info.plist to contain %s", expected)
		}
	}
}

func TestBuildAppBundleDefaults(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"collected/Demo": "launcher"})

	an := &Analysis{
		App:  App{Name: "Demo"},
		Root: root,
	}

	bundlePath, err := BuildAppBundle(filepath.Join(root, "dist"), an, filepath.Join(root, "collected"))
	if err != nil {
		t.Fatalf("expected the bundle assembly to succeed: %v", err)
	}

	plist, err := os.ReadFile(filepath.Join(bundlePath, "Contents", "Info.plist"))
	if err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(string(plist), "<string>local.Demo</string>") {
		t.Error("expected a fallback bundle identifier")
	}
	if strings.Contains(string(plist), "CFBundleIconFile") {
		t.Error("expected no icon entry without an icon")
	}
}
