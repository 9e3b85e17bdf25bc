// Package sink writes pipeline output to its destinations: flat CSV and
// JSON files, the risk-library YAML document, and a Postgres document store.
// All file formats are byte-deterministic for a given pipeline result.
package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wrisc/scfpipe/internal/core"
)

// Subdirectories for link-table output, keeping framework mappings apart
// from intra-catalog relationships.
const (
	SCFRelDir       = "scf_relationships"
	FrameworkRelDir = "framework_relationships"
)

// WriteTablesCSV writes each entity table to <dir>/<entity>.csv with the
// table's column order as the header. List values are joined with "; ".
func WriteTablesCSV(dir string, tables *core.TableSet) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, entity := range tables.Entities() {
		t, _ := tables.Get(entity)
		path := filepath.Join(dir, string(entity)+".csv")
		if err := writeTableCSV(path, t); err != nil {
			return err
		}
	}
	return nil
}

func writeTableCSV(path string, t *core.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Columns); err != nil {
		return fmt.Errorf("write header %s: %w", path, err)
	}
	row := make([]string, len(t.Columns))
	for _, rec := range t.Rows {
		for i, col := range t.Columns {
			row[i] = flatValue(rec[col])
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}

// WriteLinksCSV writes each link table as a two-column CSV under the
// scf_relationships or framework_relationships subdirectory, one file per
// relationship type, named <type>.csv.
func WriteLinksCSV(dir string, keyField string, links *core.LinkSet) error {
	for _, sub := range []string{SCFRelDir, FrameworkRelDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	for _, relType := range links.Types() {
		lt, _ := links.Get(relType)
		sub := SCFRelDir
		if lt.Framework {
			sub = FrameworkRelDir
		}
		path := filepath.Join(dir, sub, relType+".csv")
		if err := writeLinkCSV(path, keyField, lt); err != nil {
			return err
		}
	}
	return nil
}

func writeLinkCSV(path, keyField string, lt *core.LinkTable) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{keyField, lt.Field}); err != nil {
		return fmt.Errorf("write header %s: %w", path, err)
	}
	for _, l := range lt.Links {
		if err := w.Write([]string{l.SourceID, l.TargetID}); err != nil {
			return fmt.Errorf("write row %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}

// flatValue renders a cleaned field value for single-cell CSV output.
func flatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []string:
		return strings.Join(x, "; ")
	default:
		return fmt.Sprint(x)
	}
}
