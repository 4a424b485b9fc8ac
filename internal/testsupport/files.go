package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteText writes contents to path, creating parent directories.
func WriteText(t testing.TB, path, contents string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// NewMountDir creates a directory standing in for a mounted drive and
// places the named files in it.
func NewMountDir(t testing.TB, name string, files ...string) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	for _, file := range files {
		WriteText(t, filepath.Join(dir, file), "")
	}
	return dir
}
