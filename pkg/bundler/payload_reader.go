package bundler

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
)

// PayloadEntry describes a file stored in a payload archive.
type PayloadEntry struct {
	Name           string
	Offset         uint32
	CompressedSize uint32
	Size           uint32
}

// PayloadReader reads payload archives. It's mostly used by the launcher
// stub and to verify freshly written archives.
type PayloadReader struct {
	hdl     io.ReaderAt
	entries map[string]PayloadEntry
	order   []string
}

// OpenPayload opens the archive at the given path and parses the index.
func OpenPayload(filename string) (*PayloadReader, func() error, error) {
	hdl, err := os.Open(filename)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "Failed to open %s", filename)
	}

	reader, err := NewPayloadReader(hdl)
	if err != nil {
		hdl.Close()
		return nil, nil, err
	}

	return reader, hdl.Close, nil
}

// NewPayloadReader parses a payload archive from the given reader.
func NewPayloadReader(hdl io.ReaderAt) (*PayloadReader, error) {
	header := make([]byte, headerSize)
	_, err := hdl.ReadAt(header, 0)
	if err != nil {
		return nil, eris.Wrap(err, "Failed to read the archive header")
	}

	if !bytes.Equal(header[:4], []byte(payloadMagic)) {
		return nil, eris.New("not a payload archive")
	}

	version := binary.LittleEndian.Uint32(header[4:8])
	if version != payloadVersion {
		return nil, eris.Errorf("unsupported archive version %d", version)
	}

	tocOffset := int64(binary.LittleEndian.Uint32(header[8:12]))
	count := int(binary.LittleEndian.Uint32(header[12:16]))

	reader := &PayloadReader{
		hdl:     hdl,
		entries: make(map[string]PayloadEntry, count),
		order:   make([]string, 0, count),
	}

	buffer := make([]byte, 14)
	pos := tocOffset
	for idx := 0; idx < count; idx++ {
		_, err = hdl.ReadAt(buffer, pos)
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to read index entry %d", idx)
		}
		pos += 14

		nameLen := int64(binary.LittleEndian.Uint16(buffer[12:14]))
		name := make([]byte, nameLen)
		_, err = hdl.ReadAt(name, pos)
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to read the name of index entry %d", idx)
		}
		pos += nameLen

		entry := PayloadEntry{
			Name:           string(name),
			Offset:         binary.LittleEndian.Uint32(buffer[:4]),
			CompressedSize: binary.LittleEndian.Uint32(buffer[4:8]),
			Size:           binary.LittleEndian.Uint32(buffer[8:12]),
		}
		reader.entries[entry.Name] = entry
		reader.order = append(reader.order, entry.Name)
	}

	return reader, nil
}

// Names returns the stored file names in archive order.
func (r *PayloadReader) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Entry returns the index entry for the given name.
func (r *PayloadReader) Entry(name string) (PayloadEntry, bool) {
	entry, ok := r.entries[name]
	return entry, ok
}

// Open returns a reader for the decompressed content of the given file.
func (r *PayloadReader) Open(name string) (io.Reader, error) {
	entry, ok := r.entries[name]
	if !ok {
		return nil, eris.Errorf("file %s not found in archive", name)
	}

	section := io.NewSectionReader(r.hdl, int64(entry.Offset), int64(entry.CompressedSize))
	return brotli.NewReader(section), nil
}

// ReadFile returns the decompressed content of the given file.
func (r *PayloadReader) ReadFile(name string) ([]byte, error) {
	reader, err := r.Open(name)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to decompress %s", name)
	}

	return data, nil
}
