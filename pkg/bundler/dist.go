package bundler

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
)

// CollectDist assembles the distributable directory: the launcher at the
// top, the resolved external tools next to it and the data files and
// binaries in their collected subtrees.
func CollectDist(distDir string, an *Analysis, launcherPath string) error {
	err := os.MkdirAll(distDir, os.FileMode(0770))
	if err != nil {
		return eris.Wrapf(err, "Failed to create %s", distDir)
	}

	launcherDest := filepath.Join(distDir, an.App.Name)
	err = copyFile(launcherPath, launcherDest, os.FileMode(0755))
	if err != nil {
		return err
	}

	for _, name := range sortedKeys(an.Tools) {
		err = copyFile(an.Tools[name], filepath.Join(distDir, name), os.FileMode(0755))
		if err != nil {
			return err
		}
	}

	for _, entry := range an.Binaries {
		err = copyFile(entry.Source, filepath.Join(distDir, entry.Dest), os.FileMode(0755))
		if err != nil {
			return err
		}
	}

	for _, entry := range an.Datas {
		err = copyFile(entry.Source, filepath.Join(distDir, entry.Dest), os.FileMode(0644))
		if err != nil {
			return err
		}
	}

	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	// map order isn't stable but build output should be
	sort.Strings(keys)
	return keys
}

func copyFile(source, dest string, mode os.FileMode) error {
	err := os.MkdirAll(filepath.Dir(dest), os.FileMode(0770))
	if err != nil {
		return eris.Wrapf(err, "Failed to create directory %s", filepath.Dir(dest))
	}

	in, err := os.Open(source)
	if err != nil {
		return eris.Wrapf(err, "Failed to open %s", source)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return eris.Wrapf(err, "Failed to create %s", dest)
	}

	_, err = io.Copy(out, in)
	if err != nil {
		out.Close()
		return eris.Wrapf(err, "Failed to copy %s to %s", source, dest)
	}

	err = out.Close()
	if err != nil {
		return eris.Wrapf(err, "Failed to finish %s", dest)
	}

	return nil
}
