package moduledev

import (
	"errors"
	"testing"

	zipline "github.com/ziplinekit/zipline"
)

func TestEncodeDecodeModuleRoundTrip(t *testing.T) {
	bytecode := []byte("function main() { return 1; }")
	encoded := EncodeModule(bytecode)

	decoded, err := DecodeModule(encoded)
	if err != nil {
		t.Fatalf("DecodeModule: %v", err)
	}
	if string(decoded) != string(bytecode) {
		t.Fatalf("got %q, want %q", decoded, bytecode)
	}
}

func TestDecodeModuleRejectsWrongVersion(t *testing.T) {
	encoded := EncodeModule([]byte("x"))
	encoded[3] = byte(CurrentZiplineVersion + 1) // corrupt the low version byte

	_, err := DecodeModule(encoded)
	if err == nil {
		t.Fatal("expected a version mismatch error")
	}
	var mismatch *zipline.VersionMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *VersionMismatchError, got %T: %v", err, err)
	}
}

func TestDecodeModuleRejectsShortInput(t *testing.T) {
	if _, err := DecodeModule([]byte{0, 0}); err == nil {
		t.Fatal("expected an error for a too-short module file")
	}
}
