// Package moduledev builds Zipline module files: bundling application JS
// with esbuild (grounded on the teacher's bundle.go) and wrapping the result
// in spec §6's binary container.
package moduledev

import (
	"encoding/binary"
	"fmt"

	zipline "github.com/ziplinekit/zipline"
)

// CurrentZiplineVersion is the module file format version this build
// writes and requires on read (spec §6's CURRENT_ZIPLINE_VERSION).
const CurrentZiplineVersion uint32 = 1

// EncodeModule wraps bytecode in spec §6's `{ version:u32, bytecode:bytes }`
// container, version first, big-endian, followed by the raw bytes.
func EncodeModule(bytecode []byte) []byte {
	out := make([]byte, 4+len(bytecode))
	binary.BigEndian.PutUint32(out[:4], CurrentZiplineVersion)
	copy(out[4:], bytecode)
	return out
}

// DecodeModule unwraps a module file, rejecting anything whose version
// doesn't match CurrentZiplineVersion.
func DecodeModule(b []byte) ([]byte, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("moduledev: module file too short: %d bytes", len(b))
	}
	version := binary.BigEndian.Uint32(b[:4])
	if version != CurrentZiplineVersion {
		return nil, &zipline.VersionMismatchError{Want: CurrentZiplineVersion, Got: version}
	}
	return b[4:], nil
}
