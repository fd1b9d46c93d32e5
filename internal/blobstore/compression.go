// Package blobstore implements content-addressed storage for module bytes,
// keyed by the sha256 hex digest the loader already verifies (spec §4.6,
// §6). Entries are brotli-compressed on write the way the teacher's
// compression.go backs CompressionStream, and decompressed transparently on
// read.
package blobstore

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// compress brotli-compresses b, the same writer the teacher's
// CompressionStream uses for format "br".
func compress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, fmt.Errorf("blobstore: compressing: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("blobstore: closing compressor: %w", err)
	}
	return buf.Bytes(), nil
}

// decompress reverses compress.
func decompress(b []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(b))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("blobstore: decompressing: %w", err)
	}
	return out, nil
}
