package workbook

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSourceVersion(t *testing.T) {
	dir := t.TempDir()

	// No version file: empty, no error.
	v, err := SourceVersion(dir)
	if err != nil || v != "" {
		t.Fatalf("SourceVersion() = %q, %v; want empty", v, err)
	}

	if err := os.WriteFile(filepath.Join(dir, VersionFile), []byte("2025.2.1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	v, err = SourceVersion(dir)
	if err != nil {
		t.Fatalf("SourceVersion() error = %v", err)
	}
	if v != "2025.2.1" {
		t.Errorf("SourceVersion() = %q, want %q", v, "2025.2.1")
	}
}

func TestUpToDate(t *testing.T) {
	source := t.TempDir()
	extraction := t.TempDir()

	// Nothing recorded anywhere: fresh run proceeds.
	ok, err := UpToDate(source, extraction)
	if err != nil || ok {
		t.Fatalf("UpToDate() = %v, %v; want false", ok, err)
	}

	if err := os.WriteFile(filepath.Join(source, ShaFile), []byte("abc123\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Source hash known but never processed.
	ok, err = UpToDate(source, extraction)
	if err != nil || ok {
		t.Fatalf("UpToDate() after sha = %v, %v; want false", ok, err)
	}

	if err := MarkProcessed(source, extraction); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}

	ok, err = UpToDate(source, extraction)
	if err != nil {
		t.Fatalf("UpToDate() error = %v", err)
	}
	if !ok {
		t.Error("UpToDate() = false after MarkProcessed")
	}

	// New workbook release invalidates the extraction.
	if err := os.WriteFile(filepath.Join(source, ShaFile), []byte("def456\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ok, _ = UpToDate(source, extraction)
	if ok {
		t.Error("UpToDate() = true after source hash changed")
	}
}

func TestMarkProcessed_NoSourceHash(t *testing.T) {
	if err := MarkProcessed(t.TempDir(), t.TempDir()); err != nil {
		t.Errorf("MarkProcessed() without source hash = %v, want nil", err)
	}
}
