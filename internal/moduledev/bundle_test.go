package moduledev

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBundleModuleScript_WithImports(t *testing.T) {
	dir := t.TempDir()

	utilSrc := `export function greet(name) { return "Hello " + name; }`
	if err := os.WriteFile(filepath.Join(dir, "utils.js"), []byte(utilSrc), 0644); err != nil {
		t.Fatal(err)
	}

	entrySrc := `import { greet } from './utils.js';
export function main() {
  return greet("World");
}`
	entryPath := filepath.Join(dir, "main.js")
	if err := os.WriteFile(entryPath, []byte(entrySrc), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := BundleModuleScript(dir, entryPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(result) == 0 {
		t.Error("bundled output should not be empty")
	}
	if result == entrySrc {
		t.Error("bundled output should inline the imported module")
	}
}

func TestBundleModuleScript_MissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := BundleModuleScript(dir, filepath.Join(dir, "main.js"))
	if err == nil {
		t.Fatal("expected an error for a missing entry point")
	}
}
