package workbook

// version.go tracks which source workbook release the extraction came from,
// so unchanged input is not reprocessed and output can be stamped with the
// upstream version.

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// VersionFile holds the upstream release label, written by the
	// download collaborator next to the workbook.
	VersionFile = "scf_latest.version"
	// ShaFile holds the content hash of the downloaded workbook.
	ShaFile = "scf_latest.sha"
	// trackingFile records the hash of the last extraction processed.
	trackingFile = ".version.sha"
)

// SourceVersion reads the upstream release label from the source directory.
// Returns "" without error when no version file exists.
func SourceVersion(sourceDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(sourceDir, VersionFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read source version: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// UpToDate reports whether the extraction in extractionDir was produced from
// the workbook hash recorded in sourceDir. Missing files mean "not up to
// date" so a fresh run always proceeds.
func UpToDate(sourceDir, extractionDir string) (bool, error) {
	source, err := os.ReadFile(filepath.Join(sourceDir, ShaFile))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read source sha: %w", err)
	}

	processed, err := os.ReadFile(filepath.Join(extractionDir, trackingFile))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read tracking sha: %w", err)
	}

	return strings.TrimSpace(string(source)) == strings.TrimSpace(string(processed)), nil
}

// MarkProcessed records the source workbook hash in the extraction
// directory. A missing source hash is not an error; there is just nothing
// to record.
func MarkProcessed(sourceDir, extractionDir string) error {
	source, err := os.ReadFile(filepath.Join(sourceDir, ShaFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read source sha: %w", err)
	}
	path := filepath.Join(extractionDir, trackingFile)
	if err := os.WriteFile(path, []byte(strings.TrimSpace(string(source))+"\n"), 0o644); err != nil {
		return fmt.Errorf("write tracking sha: %w", err)
	}
	return nil
}
