package bundler

import (
	"encoding/binary"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
)

// Payload archives store the application's own files inside the launcher.
// The layout is a 16 byte header (magic, format version, index offset, entry
// count), the brotli-compressed file contents and a flat index at the end.
const (
	payloadMagic   = "BNAR"
	payloadVersion = 1
	headerSize     = 16
)

type payloadEntry struct {
	name    string
	offset  uint32
	size    uint32
	decSize uint32
}

// PayloadWriter writes payload archives.
type PayloadWriter struct {
	hdl     *os.File
	entries []payloadEntry
	buffer  []byte
}

// NewPayloadWriter creates the archive file and prepares it for writing.
func NewPayloadWriter(filename string) (*PayloadWriter, error) {
	hdl, err := os.Create(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to create %s", filename)
	}

	// skip the header, it's written last
	_, err = hdl.Seek(headerSize, io.SeekStart)
	if err != nil {
		hdl.Close()
		return nil, eris.Wrap(err, "Failed to seek past the archive header")
	}

	return &PayloadWriter{
		hdl:    hdl,
		buffer: make([]byte, 4096),
	}, nil
}

// AddFile compresses the given reader into the archive under the passed
// slash-separated name.
func (w *PayloadWriter) AddFile(name string, reader io.Reader) error {
	offset, err := w.hdl.Seek(0, io.SeekCurrent)
	if err != nil {
		return eris.Wrap(err, "Failed to determine archive position")
	}

	brw := brotli.NewWriterLevel(w.hdl, brotli.BestCompression)
	decSize, err := io.CopyBuffer(brw, reader, w.buffer)
	if err != nil {
		return eris.Wrapf(err, "Failed to compress %s", name)
	}

	err = brw.Close()
	if err != nil {
		return eris.Wrapf(err, "Failed to finish compression of %s", name)
	}

	newPos, err := w.hdl.Seek(0, io.SeekCurrent)
	if err != nil {
		return eris.Wrap(err, "Failed to determine archive position")
	}

	// the index stores 32 bit offsets and sizes
	if newPos > math.MaxUint32 || decSize > math.MaxUint32 {
		return eris.Errorf("%s pushes the archive past the format's 4 GiB limit", name)
	}

	w.entries = append(w.entries, payloadEntry{
		name:    name,
		offset:  uint32(offset),
		size:    uint32(newPos - offset),
		decSize: uint32(decSize),
	})

	return nil
}

// AddEntries adds the given resource entries in a stable order.
func (w *PayloadWriter) AddEntries(entries []ResourceEntry) error {
	sorted := make([]ResourceEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].Dest < sorted[b].Dest })

	for _, entry := range sorted {
		handle, err := os.Open(entry.Source)
		if err != nil {
			return eris.Wrapf(err, "Failed to open %s", entry.Source)
		}

		err = w.AddFile(filepath.ToSlash(entry.Dest), handle)
		handle.Close()
		if err != nil {
			return err
		}
	}

	return nil
}

// AddTree packs every file below dir, keeping the relative paths.
func (w *PayloadWriter) AddTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return eris.Wrapf(err, "Failed to walk %s", dir)
		}

		if entry.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return eris.Wrapf(err, "Failed to relativize %s", path)
		}

		handle, err := os.Open(path)
		if err != nil {
			return eris.Wrapf(err, "Failed to open %s", path)
		}
		defer handle.Close()

		return w.AddFile(filepath.ToSlash(relPath), handle)
	})
}

// Close writes the index and the header and closes the archive.
func (w *PayloadWriter) Close() error {
	tocOffset, err := w.hdl.Seek(0, io.SeekCurrent)
	if err != nil {
		w.hdl.Close()
		return eris.Wrap(err, "Failed to determine index position")
	}

	buffer := make([]byte, headerSize)
	for _, entry := range w.entries {
		binary.LittleEndian.PutUint32(buffer[:4], entry.offset)
		binary.LittleEndian.PutUint32(buffer[4:8], entry.size)
		binary.LittleEndian.PutUint32(buffer[8:12], entry.decSize)
		binary.LittleEndian.PutUint16(buffer[12:14], uint16(len(entry.name)))

		_, err = w.hdl.Write(buffer[:14])
		if err != nil {
			w.hdl.Close()
			return eris.Wrap(err, "Failed to write index entry")
		}

		_, err = w.hdl.WriteString(entry.name)
		if err != nil {
			w.hdl.Close()
			return eris.Wrap(err, "Failed to write index entry")
		}
	}

	_, err = w.hdl.Seek(0, io.SeekStart)
	if err != nil {
		w.hdl.Close()
		return eris.Wrap(err, "Failed to seek to the archive header")
	}

	copy(buffer[:4], payloadMagic)
	binary.LittleEndian.PutUint32(buffer[4:8], payloadVersion)
	binary.LittleEndian.PutUint32(buffer[8:12], uint32(tocOffset))
	binary.LittleEndian.PutUint32(buffer[12:16], uint32(len(w.entries)))

	_, err = w.hdl.Write(buffer[:headerSize])
	if err != nil {
		w.hdl.Close()
		return eris.Wrap(err, "Failed to write the archive header")
	}

	return w.hdl.Close()
}
