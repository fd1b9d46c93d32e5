package loader

import (
	"context"
	"os"
	"path/filepath"
)

// Receiver hands verified module bytes to their destination in dependency
// order (spec §4.6: "install into JS engine" or "save to filesystem").
type Receiver interface {
	Receive(ctx context.Context, moduleID string, bytes []byte) error
}

// ReceiveFunc adapts a plain function to Receiver.
type ReceiveFunc func(ctx context.Context, moduleID string, bytes []byte) error

func (f ReceiveFunc) Receive(ctx context.Context, moduleID string, bytes []byte) error {
	return f(ctx, moduleID, bytes)
}

// Pinner persists a successfully loaded application for the next cold start
// (spec §4.6 "Pinning for next cold start").
type Pinner interface {
	Pin(appName string, manifestBytes []byte, moduleBytes map[string][]byte) error
}

// FilesystemReceiver saves each module's bytes as dir/<moduleID> and doubles
// as a Pinner, writing the manifest and modules an embedded fetcher can read
// back on the next cold start via EmbeddedFetcher.
type FilesystemReceiver struct {
	Dir string
}

var _ Receiver = (*FilesystemReceiver)(nil)
var _ Pinner = (*FilesystemReceiver)(nil)

func (r *FilesystemReceiver) Receive(_ context.Context, moduleID string, bytes []byte) error {
	return os.WriteFile(filepath.Join(r.Dir, moduleID), bytes, 0o644)
}

func (r *FilesystemReceiver) Pin(appName string, manifestBytes []byte, moduleBytes map[string][]byte) error {
	if err := os.WriteFile(filepath.Join(r.Dir, appName+".manifest.zipline.json"), manifestBytes, 0o644); err != nil {
		return err
	}
	for sha256Hex, bytes := range moduleBytes {
		if err := os.WriteFile(filepath.Join(r.Dir, sha256Hex), bytes, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// JSEngineReceiver installs module bytes into a JS engine, in the dependency
// order the loader guarantees.
type JSEngineReceiver struct {
	Install func(ctx context.Context, moduleID string, bytes []byte) error
}

var _ Receiver = (*JSEngineReceiver)(nil)

func (r *JSEngineReceiver) Receive(ctx context.Context, moduleID string, bytes []byte) error {
	return r.Install(ctx, moduleID, bytes)
}
