package bundler

import (
	"io/fs"
	"os"
	"path/filepath"
	"text/template"

	"github.com/rotisserie/eris"
)

const infoPlistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleName</key>
	<string>{{.Name}}</string>
	<key>CFBundleDisplayName</key>
	<string>{{.Name}}</string>
	<key>CFBundleExecutable</key>
	<string>{{.Name}}</string>
	<key>CFBundleIdentifier</key>
	<string>{{.Identifier}}</string>
	<key>CFBundleShortVersionString</key>
	<string>{{.Version}}</string>
	<key>CFBundleVersion</key>
	<string>{{.Version}}</string>
	<key>CFBundlePackageType</key>
	<string>APPL</string>
	<key>CFBundleInfoDictionaryVersion</key>
	<string>6.0</string>
{{- if .IconFile}}
	<key>CFBundleIconFile</key>
	<string>{{.IconFile}}</string>
{{- end}}
	<key>NSHighResolutionCapable</key>
	<true/>
</dict>
</plist>
`

var plistTmpl = template.Must(template.New("Info.plist").Parse(infoPlistTemplate))

type plistInfo struct {
	Name       string
	Identifier string
	Version    string
	IconFile   string
}

// BuildAppBundle assembles the macOS application bundle from the collected
// directory. The collected tree becomes Contents/MacOS, the icon lands in
// Contents/Resources and Info.plist is generated from the app metadata.
func BuildAppBundle(outDir string, an *Analysis, collectedDir string) (string, error) {
	bundlePath := filepath.Join(outDir, an.App.Name+".app")
	contents := filepath.Join(bundlePath, "Contents")

	err := os.RemoveAll(bundlePath)
	if err != nil {
		return "", eris.Wrapf(err, "Failed to remove the previous bundle %s", bundlePath)
	}

	for _, dir := range []string{"MacOS", "Resources"} {
		err = os.MkdirAll(filepath.Join(contents, dir), os.FileMode(0770))
		if err != nil {
			return "", eris.Wrapf(err, "Failed to create the bundle skeleton in %s", bundlePath)
		}
	}

	err = copyTree(collectedDir, filepath.Join(contents, "MacOS"))
	if err != nil {
		return "", eris.Wrapf(err, "Failed to copy the collected files into %s", bundlePath)
	}

	info := plistInfo{
		Name:       an.App.Name,
		Identifier: an.App.Identifier,
		Version:    an.App.Version,
	}
	if info.Identifier == "" {
		info.Identifier = "local." + an.App.Name
	}
	if info.Version == "" {
		info.Version = "0.0.0"
	}

	if an.App.Icon != "" {
		iconSource := an.App.Icon
		if !filepath.IsAbs(iconSource) {
			iconSource = filepath.Join(an.Root, iconSource)
		}

		info.IconFile = filepath.Base(iconSource)
		err = copyFile(iconSource, filepath.Join(contents, "Resources", info.IconFile), os.FileMode(0644))
		if err != nil {
			return "", eris.Wrap(err, "Failed to copy the bundle icon")
		}
	}

	plistHandle, err := os.Create(filepath.Join(contents, "Info.plist"))
	if err != nil {
		return "", eris.Wrap(err, "Failed to create Info.plist")
	}

	err = plistTmpl.Execute(plistHandle, info)
	if err != nil {
		plistHandle.Close()
		return "", eris.Wrap(err, "Failed to render Info.plist")
	}

	err = plistHandle.Close()
	if err != nil {
		return "", eris.Wrap(err, "Failed to write Info.plist")
	}

	return bundlePath, nil
}

func copyTree(sourceDir, destDir string) error {
	return filepath.WalkDir(sourceDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return eris.Wrapf(err, "Failed to relativize %s", path)
		}

		info, err := entry.Info()
		if err != nil {
			return eris.Wrapf(err, "Failed to stat %s", path)
		}

		return copyFile(path, filepath.Join(destDir, relPath), info.Mode().Perm())
	})
}
