package cart

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"sort"
	"strings"
)

// zipMagic is the PK\x03\x04 local-file-header signature used to
// auto-detect a zipped ROM, per the host's "load from path or bytes"
// contract: callers hand this raw bytes and never pre-unzip themselves.
var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// LoadROM returns the raw ROM bytes for data, transparently extracting
// a single entry from a zip archive when data is zip-magic. Entry choice
// prefers a .gb/.gbc extension, falling back to the largest entry.
func LoadROM(data []byte) ([]byte, error) {
	if len(data) < 4 || !bytes.Equal(data[:4], zipMagic) {
		return data, nil
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	if len(zr.File) == 0 {
		return nil, errors.New("zip archive contains no files")
	}
	entry := pickROMEntry(zr.File)
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func pickROMEntry(files []*zip.File) *zip.File {
	for _, f := range files {
		low := strings.ToLower(f.Name)
		if strings.HasSuffix(low, ".gb") || strings.HasSuffix(low, ".gbc") {
			return f
		}
	}
	sorted := append([]*zip.File(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UncompressedSize64 > sorted[j].UncompressedSize64 })
	return sorted[0]
}
