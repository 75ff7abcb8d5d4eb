package bundler

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// Analyze gathers the application's own files and merges them with the
// collected resources and the resolved tool paths. The entry file has to be
// part of the analyzed tree, otherwise the launcher would point at nothing.
func Analyze(projectRoot string, app App, res Resources, toolPaths map[string]string) (*Analysis, error) {
	if app.Name == "" {
		return nil, eris.New("the application needs a name")
	}
	if app.Entry == "" {
		return nil, eris.New("the application needs an entry file")
	}

	pure, err := resolvePatterns(projectRoot, "", app.Srcs)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to resolve the sources of %s", app.Name)
	}

	entryPath := filepath.Join(projectRoot, app.Entry)
	found := false
	for _, item := range pure {
		if item.Source == entryPath {
			found = true
			break
		}
	}

	if !found {
		info, err := os.Stat(entryPath)
		if err != nil {
			return nil, eris.Wrapf(err, "Entry file %s is missing", entryPath)
		}
		if info.IsDir() {
			return nil, eris.Errorf("Entry %s is a directory", entryPath)
		}

		pure = append(pure, ResourceEntry{Source: entryPath, Dest: app.Entry})
	}

	return &Analysis{
		App:      app,
		Root:     projectRoot,
		Pure:     pure,
		Datas:    res.Datas,
		Binaries: res.Binaries,
		Imports:  res.Imports,
		Tools:    toolPaths,
	}, nil
}
