package bundler

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// CollectAll resolves every collect spec and concatenates the results, in
// declaration order, into three flat sequences: data files, binaries and
// import names. A missing base directory aborts the collection since a
// bundle with silently dropped resources is broken in ways that only show up
// at runtime.
func CollectAll(projectRoot string, specs []CollectSpec) (Resources, error) {
	var res Resources

	for _, spec := range specs {
		base := spec.Base
		if !filepath.IsAbs(base) {
			base = filepath.Join(projectRoot, base)
		}

		info, err := os.Stat(base)
		if err != nil {
			return res, eris.Wrapf(err, "Failed to collect %s", spec.Name)
		}
		if !info.IsDir() {
			return res, eris.Errorf("Collect base %s of %s is not a directory", base, spec.Name)
		}

		datas, err := resolvePatterns(base, spec.Name, spec.Datas)
		if err != nil {
			return res, eris.Wrapf(err, "Failed to resolve data files of %s", spec.Name)
		}

		binaries, err := resolvePatterns(base, spec.Name, spec.Binaries)
		if err != nil {
			return res, eris.Wrapf(err, "Failed to resolve binaries of %s", spec.Name)
		}

		res.Datas = append(res.Datas, datas...)
		res.Binaries = append(res.Binaries, binaries...)
		res.Imports = append(res.Imports, spec.Imports...)
	}

	return res, nil
}

// resolvePatterns expands the given patterns below base. Plain patterns go
// through filepath.Glob; a trailing "..." element matches every file below
// the directory in front of it. Matches are prefixed with the collect name
// so each package keeps its own subtree in the bundle.
func resolvePatterns(base, name string, patterns []string) ([]ResourceEntry, error) {
	result := []ResourceEntry{}

	for _, pattern := range patterns {
		pattern = filepath.FromSlash(pattern)

		var matches []string
		var err error
		if dir, ok := strings.CutSuffix(pattern, "..."); ok {
			matches, err = walkFiles(filepath.Join(base, filepath.Clean(dir)))
		} else {
			matches, err = globFiles(filepath.Join(base, pattern))
		}
		if err != nil {
			return nil, err
		}

		if len(matches) == 0 {
			return nil, eris.Errorf("pattern %s produced no matches", pattern)
		}

		for _, match := range matches {
			relPath, err := filepath.Rel(base, match)
			if err != nil {
				return nil, eris.Wrapf(err, "failed to relativize %s", match)
			}

			result = append(result, ResourceEntry{
				Source: match,
				Dest:   filepath.Join(name, relPath),
			})
		}
	}

	return result, nil
}

func walkFiles(dir string) ([]string, error) {
	matches := []string{}
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !entry.IsDir() {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to walk %s", dir)
	}

	return matches, nil
}

func globFiles(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to resolve pattern %s", pattern)
	}

	files := matches[:0]
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to check %s", match)
		}

		if !info.IsDir() {
			files = append(files, match)
		}
	}

	sort.Strings(files)
	return files, nil
}
