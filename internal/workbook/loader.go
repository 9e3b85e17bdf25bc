// Package workbook materializes the raw extraction: the in-memory mapping
// from sheet name to raw rows that the pipeline consumes. The workbook
// itself is split into per-sheet CSV files by an external collaborator; this
// package only reads that directory.
package workbook

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Sheet is one raw worksheet: ordered rows of column name to raw cell value.
type Sheet struct {
	Name    string
	Columns []string
	Rows    []map[string]string
}

// Extraction is the full raw workbook extraction, sheets in deterministic
// (name-sorted) order.
type Extraction struct {
	Sheets []Sheet
}

// Get returns the sheet with the given name.
func (e *Extraction) Get(name string) (*Sheet, bool) {
	for i := range e.Sheets {
		if e.Sheets[i].Name == name {
			return &e.Sheets[i], true
		}
	}
	return nil, false
}

// SkipFunc reports how many junk leading rows to drop from a sheet before
// its header row. A nil SkipFunc drops none.
type SkipFunc func(sheetName string) int

// LoadDir reads every *.csv file in dir into an Extraction. File base names
// (minus extension) become sheet names. Input is sanitized (BOM, invalid
// UTF-8) before parsing, and all cell values are kept as strings to preserve
// formatting such as leading zeros.
func LoadDir(dir string, skip SkipFunc) (*Extraction, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read extraction dir %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	ext := &Extraction{}
	for _, name := range names {
		sheetName := strings.TrimSuffix(name, filepath.Ext(name))
		skipRows := 0
		if skip != nil {
			skipRows = skip(sheetName)
		}

		sheet, err := loadSheet(filepath.Join(dir, name), sheetName, skipRows)
		if err != nil {
			return nil, err
		}
		ext.Sheets = append(ext.Sheets, *sheet)
	}
	return ext, nil
}

func loadSheet(path, name string, skipRows int) (*Sheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sheet %s: %w", path, err)
	}
	defer f.Close()

	return ReadSheet(SanitizeReader(f), name, skipRows)
}

// ReadSheet parses one sheet from r. The first row after skipRows is the
// header; rows shorter than the header are padded with blanks, longer rows
// are truncated.
func ReadSheet(r io.Reader, name string, skipRows int) (*Sheet, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	for i := 0; i < skipRows; i++ {
		if _, err := cr.Read(); err == io.EOF {
			return &Sheet{Name: name}, nil
		} else if err != nil {
			return nil, fmt.Errorf("sheet %s: skipping junk rows: %w", name, err)
		}
	}

	header, err := cr.Read()
	if err == io.EOF {
		return &Sheet{Name: name}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sheet %s: reading header: %w", name, err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	sheet := &Sheet{Name: name, Columns: columns}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("sheet %s: reading rows: %w", name, err)
		}

		rec := make(map[string]string, len(columns))
		for i, col := range columns {
			if col == "" {
				continue
			}
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		sheet.Rows = append(sheet.Rows, rec)
	}
	return sheet, nil
}

// versionSuffix matches trailing version or year markers in sheet names,
// e.g. " R5", " v1.2", " 2024.1".
var versionSuffix = regexp.MustCompile(`(?i)\s+(R\d+|v\d+|\d{4})(\.\d+)*$`)

var sheetNonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// SanitizeSheetName converts a worksheet title to a stable sheet name,
// dropping version suffixes so "Mappings - NIST 800-53 R5" and its R6
// successor resolve to the same name across workbook releases.
func SanitizeSheetName(name string) string {
	name = versionSuffix.ReplaceAllString(strings.TrimSpace(name), "")
	name = sheetNonAlnum.ReplaceAllString(name, "_")
	return strings.Trim(name, "_")
}
