package assemble

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
)

// WriteArchive writes artifacts as deflate-compressed entries of a zip
// archive, in order.
func WriteArchive(w io.Writer, artifacts []Artifact) error {
	zw := zip.NewWriter(w)
	for _, a := range artifacts {
		f, err := zw.CreateHeader(&zip.FileHeader{Name: a.FileName(), Method: zip.Deflate})
		if err != nil {
			return fmt.Errorf("archive entry %s: %w", a.FileName(), err)
		}
		if _, err := f.Write(a.Data); err != nil {
			return fmt.Errorf("archive write %s: %w", a.FileName(), err)
		}
	}
	return zw.Close()
}

// Archive is WriteArchive into memory.
func Archive(artifacts []Artifact) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteArchive(&buf, artifacts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
