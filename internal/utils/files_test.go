package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSafeWriteFileOverwrites(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "nested", "out.bin")
	if err := EnsureParentDir(p); err != nil {
		t.Fatalf("ensure parent: %v", err)
	}
	if err := SafeWriteFile(p, []byte("first")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := SafeWriteFile(p, []byte("second")); err != nil {
		t.Fatalf("second write: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "second" {
		t.Fatalf("unexpected content %q", b)
	}
	if _, err := os.Stat(p + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestEnsureDirNoopForCurrentDir(t *testing.T) {
	if err := EnsureDir("."); err != nil {
		t.Fatalf("ensure '.': %v", err)
	}
	if err := EnsureDir(""); err != nil {
		t.Fatalf("ensure '': %v", err)
	}
}
