package bundler

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/rotisserie/eris"
)

// The launcher is the bootloader stub with the payload archive appended and
// a fixed-size trailer at the very end. The stub seeks to the trailer on
// startup to locate the embedded archive and the entry file it has to run.
const (
	trailerMagic   = "BNDL"
	trailerVersion = 1
	trailerSize    = 88
	maxEntryLen    = trailerSize - 16
)

// Trailer is the cookie appended to the launcher executable.
type Trailer struct {
	Version     uint32
	PayloadSize uint64
	Entry       string
}

func (t Trailer) encode() ([]byte, error) {
	if len(t.Entry) > maxEntryLen {
		return nil, eris.Errorf("entry name %s is too long for the launcher trailer", t.Entry)
	}

	buffer := make([]byte, trailerSize)
	copy(buffer[:4], trailerMagic)
	binary.LittleEndian.PutUint32(buffer[4:8], t.Version)
	binary.LittleEndian.PutUint64(buffer[8:16], t.PayloadSize)
	copy(buffer[16:], t.Entry)

	return buffer, nil
}

func decodeTrailer(buffer []byte) (Trailer, error) {
	var trailer Trailer

	if len(buffer) != trailerSize || !bytes.Equal(buffer[:4], []byte(trailerMagic)) {
		return trailer, eris.New("no launcher trailer found")
	}

	trailer.Version = binary.LittleEndian.Uint32(buffer[4:8])
	if trailer.Version != trailerVersion {
		return trailer, eris.Errorf("unsupported launcher trailer version %d", trailer.Version)
	}

	trailer.PayloadSize = binary.LittleEndian.Uint64(buffer[8:16])
	trailer.Entry = string(bytes.TrimRight(buffer[16:], "\x00"))

	return trailer, nil
}

// BuildLauncher assembles the executable: it copies the bootloader stub,
// appends the payload archive and finishes with the trailer. The result is
// marked executable.
func BuildLauncher(bootloaderPath, payloadPath, outPath, entry string) error {
	bootloader, err := os.Open(bootloaderPath)
	if err != nil {
		return eris.Wrapf(err, "Failed to open bootloader %s", bootloaderPath)
	}
	defer bootloader.Close()

	payload, err := os.Open(payloadPath)
	if err != nil {
		return eris.Wrapf(err, "Failed to open payload %s", payloadPath)
	}
	defer payload.Close()

	payloadInfo, err := payload.Stat()
	if err != nil {
		return eris.Wrapf(err, "Failed to stat payload %s", payloadPath)
	}

	trailer, err := Trailer{
		Version:     trailerVersion,
		PayloadSize: uint64(payloadInfo.Size()),
		Entry:       entry,
	}.encode()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(0755))
	if err != nil {
		return eris.Wrapf(err, "Failed to create launcher %s", outPath)
	}

	_, err = io.Copy(out, bootloader)
	if err != nil {
		out.Close()
		return eris.Wrapf(err, "Failed to copy the bootloader into %s", outPath)
	}

	_, err = io.Copy(out, payload)
	if err != nil {
		out.Close()
		return eris.Wrapf(err, "Failed to append the payload to %s", outPath)
	}

	_, err = out.Write(trailer)
	if err != nil {
		out.Close()
		return eris.Wrapf(err, "Failed to append the trailer to %s", outPath)
	}

	err = out.Close()
	if err != nil {
		return eris.Wrapf(err, "Failed to finish launcher %s", outPath)
	}

	return nil
}

// ReadTrailer reads the trailer from an assembled launcher and returns it
// together with the offset of the embedded payload archive.
func ReadTrailer(path string) (Trailer, int64, error) {
	handle, err := os.Open(path)
	if err != nil {
		return Trailer{}, 0, eris.Wrapf(err, "Failed to open %s", path)
	}
	defer handle.Close()

	info, err := handle.Stat()
	if err != nil {
		return Trailer{}, 0, eris.Wrapf(err, "Failed to stat %s", path)
	}

	if info.Size() < trailerSize {
		return Trailer{}, 0, eris.Errorf("%s is too small to contain a launcher trailer", path)
	}

	buffer := make([]byte, trailerSize)
	_, err = handle.ReadAt(buffer, info.Size()-trailerSize)
	if err != nil {
		return Trailer{}, 0, eris.Wrapf(err, "Failed to read the trailer of %s", path)
	}

	trailer, err := decodeTrailer(buffer)
	if err != nil {
		return Trailer{}, 0, eris.Wrapf(err, "%s is not a valid launcher", path)
	}

	payloadOffset := info.Size() - trailerSize - int64(trailer.PayloadSize)
	if payloadOffset < 0 {
		return Trailer{}, 0, eris.Errorf("the trailer of %s points outside the file", path)
	}

	return trailer, payloadOffset, nil
}
