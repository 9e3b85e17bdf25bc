package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wrisc/scfpipe/internal/core"
)

// WriteTablesJSON writes each entity table to <dir>/<entity>.json as an
// array of records. Map keys serialize in sorted order, so output bytes are
// stable across runs.
func WriteTablesJSON(dir string, tables *core.TableSet) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, entity := range tables.Entities() {
		t, _ := tables.Get(entity)
		rows := t.Rows
		if rows == nil {
			rows = []core.Record{}
		}
		path := filepath.Join(dir, string(entity)+".json")
		if err := writeJSON(path, rows); err != nil {
			return err
		}
	}
	return nil
}

// WriteLinksJSON writes each link table to a subdirectory mirroring the CSV
// layout, as an array of {source, target} pairs.
func WriteLinksJSON(dir string, links *core.LinkSet) error {
	for _, sub := range []string{SCFRelDir, FrameworkRelDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	type pair struct {
		Source string `json:"source"`
		Target string `json:"target"`
	}
	for _, relType := range links.Types() {
		lt, _ := links.Get(relType)
		sub := SCFRelDir
		if lt.Framework {
			sub = FrameworkRelDir
		}
		pairs := make([]pair, len(lt.Links))
		for i, l := range lt.Links {
			pairs[i] = pair{Source: l.SourceID, Target: l.TargetID}
		}
		path := filepath.Join(dir, sub, relType+".json")
		if err := writeJSON(path, pairs); err != nil {
			return err
		}
	}
	return nil
}

// WriteDocumentsJSON writes the assembled control documents as a single
// JSON array, in control master order.
func WriteDocumentsJSON(path string, docs []core.Document) error {
	if docs == nil {
		docs = []core.Document{}
	}
	return writeJSON(path, docs)
}

func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
