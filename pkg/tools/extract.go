package tools

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/ulikunitz/xz"
)

// extractArchive unpacks the downloaded archive into destPath. The format is
// derived from the URL since the temporary download file has no meaningful
// extension.
func extractArchive(archivePath, url, destPath string, strip int) error {
	handle, err := os.Open(archivePath)
	if err != nil {
		return eris.Wrapf(err, "Failed to open archive %s", archivePath)
	}
	defer handle.Close()

	switch {
	case strings.HasSuffix(url, ".zip"):
		return extractZip(handle, destPath, strip)
	case strings.HasSuffix(url, ".tar.gz"):
		reader, err := gzip.NewReader(handle)
		if err != nil {
			return eris.Wrap(err, "Failed to open gzip stream")
		}
		defer reader.Close()

		return extractTar(reader, destPath, strip)
	case strings.HasSuffix(url, ".tar.bz2"):
		return extractTar(bzip2.NewReader(handle), destPath, strip)
	case strings.HasSuffix(url, ".tar.xz"):
		reader, err := xz.NewReader(handle)
		if err != nil {
			return eris.Wrap(err, "Failed to open xz stream")
		}

		return extractTar(reader, destPath, strip)
	}

	return eris.Errorf("Archive format of %s is not supported", url)
}

// stripEntryPath normalizes an archive entry path and removes the first
// strip elements. The empty result marks entries that vanish entirely once
// stripped.
func stripEntryPath(name string, strip int) string {
	parts := strings.Split(filepath.Clean(filepath.FromSlash(name)), string(filepath.Separator))
	if len(parts) <= strip {
		return ""
	}

	return filepath.Join(parts[strip:]...)
}

func createEntry(destPath, name string, strip int) (*os.File, string, error) {
	relPath := stripEntryPath(name, strip)
	if relPath == "" {
		return nil, "", nil
	}

	if filepath.IsAbs(relPath) || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return nil, "", eris.Errorf("Archive entry %s points outside the destination directory", name)
	}

	dest := filepath.Join(destPath, relPath)
	err := os.MkdirAll(filepath.Dir(dest), os.FileMode(0770))
	if err != nil {
		return nil, "", eris.Wrapf(err, "Failed to create directory %s", filepath.Dir(dest))
	}

	handle, err := os.Create(dest)
	if err != nil {
		return nil, "", eris.Wrapf(err, "Failed to create file %s", dest)
	}

	return handle, dest, nil
}

func extractZip(handle *os.File, destPath string, strip int) error {
	stat, err := handle.Stat()
	if err != nil {
		return eris.Wrap(err, "Failed to stat archive")
	}

	archive, err := zip.NewReader(handle, stat.Size())
	if err != nil {
		return eris.Wrap(err, "Failed to read zip index")
	}

	for _, item := range archive.File {
		if strings.HasSuffix(item.Name, "/") {
			continue
		}

		destHandle, dest, err := createEntry(destPath, item.Name, strip)
		if err != nil {
			return err
		}
		if destHandle == nil {
			continue
		}

		itemHandle, err := item.Open()
		if err != nil {
			destHandle.Close()
			return eris.Wrapf(err, "Failed to open archive entry %s", item.Name)
		}

		_, err = io.Copy(destHandle, itemHandle)
		itemHandle.Close()
		destHandle.Close()
		if err != nil {
			return eris.Wrapf(err, "Failed to write extracted file %s", dest)
		}
	}

	return nil
}

func extractTar(r io.Reader, destPath string, strip int) error {
	archive := tar.NewReader(r)

	for {
		item, err := archive.Next()
		if err != nil {
			if err == io.EOF {
				break
			}

			return eris.Wrap(err, "Failed to read archive entry")
		}

		fi := item.FileInfo()
		if fi.IsDir() {
			continue
		}

		destHandle, dest, err := createEntry(destPath, item.Name, strip)
		if err != nil {
			return err
		}
		if destHandle == nil {
			continue
		}

		if item.Typeflag == tar.TypeSymlink {
			destHandle.Close()
			err = os.Remove(dest)
			if err != nil {
				return eris.Wrapf(err, "Failed to remove placeholder file %s", dest)
			}

			err = os.Symlink(item.Linkname, dest)
			if err != nil {
				return eris.Wrapf(err, "Failed to create symlink %s pointing to %s", dest, item.Linkname)
			}
			continue
		}

		_, err = io.Copy(destHandle, archive)
		destHandle.Close()
		if err != nil {
			return eris.Wrapf(err, "Failed to write extracted file %s", dest)
		}

		err = os.Chmod(dest, fi.Mode())
		if err != nil {
			return eris.Wrapf(err, "Failed to restore permissions of %s", dest)
		}
	}

	return nil
}
