// Command ziplinebuild bundles a JS entry point with esbuild and writes it
// out as a Zipline module file: spec §6's `{ version:u32, bytecode:bytes }`
// container, named by its content-addressed sha256 hex digest so it can be
// dropped straight into an application's manifest and embedded fetcher
// directory (spec §4.6).
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ziplinekit/zipline/internal/moduledev"
)

func main() {
	entry := flag.String("entry", "", "path to the JS entry point to bundle")
	outDir := flag.String("out", ".", "directory to write the module file into")
	flag.Parse()

	if *entry == "" {
		fmt.Fprintln(os.Stderr, "ziplinebuild: -entry is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*entry, *outDir); err != nil {
		log.Fatalf("ziplinebuild: %v", err)
	}
}

func run(entry, outDir string) error {
	workingDir := filepath.Dir(entry)
	bundled, err := moduledev.BundleModuleScript(workingDir, entry)
	if err != nil {
		return fmt.Errorf("bundling %s: %w", entry, err)
	}

	moduleFile := moduledev.EncodeModule([]byte(bundled))
	sum := sha256.Sum256(moduleFile)
	sha256Hex := hex.EncodeToString(sum[:])

	outPath := filepath.Join(outDir, sha256Hex)
	if err := os.WriteFile(outPath, moduleFile, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}

	log.Printf("ziplinebuild: wrote %s (%d bytes)", outPath, len(moduleFile))
	return nil
}
