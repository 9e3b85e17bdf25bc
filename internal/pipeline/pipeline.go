package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/wrisc/scfpipe/internal/core"
	"github.com/wrisc/scfpipe/internal/registry"
	"github.com/wrisc/scfpipe/internal/workbook"
)

// Options configures a pipeline run.
type Options struct {
	// Strict aborts on the first value-conversion error. The default
	// collects every error into the report.
	Strict bool
	// DomainIDLength is how many leading characters of a control ID name
	// its domain (default 3).
	DomainIDLength int
	// Workers bounds parallel document assembly (default 1).
	Workers int
	// MaxWarnings escalates the run to a failure when integrity warnings
	// exceed it; 0 disables escalation.
	MaxWarnings int
	// FrameworkFilter restricts framework mappings in assembled documents.
	// Empty means all frameworks.
	FrameworkFilter []string
	// SourceVersion stamps the run report with the upstream release label.
	SourceVersion string
}

// Result is the complete output of one pipeline run: derived, immutable
// snapshots regenerated in full from the raw input.
type Result struct {
	Tables    *core.TableSet
	Links     *core.LinkSet
	Documents []core.Document
	Report    *Report
}

// Pipeline wires the stages together: normalize, extract relationships,
// validate integrity, assemble documents.
type Pipeline struct {
	Registry *registry.Registry
	Options  Options
	Logger   *slog.Logger
}

// Run executes all stages over the raw extraction. Record-level problems
// land in the result's report; only errors that compromise all downstream
// output (missing mandatory sheet, strict-mode conversion failure, warning
// escalation) abort the run.
func (p *Pipeline) Run(ctx context.Context, ext *workbook.Extraction) (*Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	report := NewReport()
	report.SourceVersion = p.Options.SourceVersion
	start := time.Now()

	normalizer := &Normalizer{Registry: p.Registry, Strict: p.Options.Strict, Logger: logger}
	tables, err := normalizer.Normalize(ext, report)
	if err != nil {
		return nil, err
	}

	extractor := &Extractor{
		Registry:       p.Registry,
		DomainIDLength: p.Options.DomainIDLength,
		Logger:         logger,
	}
	links := extractor.Extract(tables)

	report.Violations = Validate(tables, links)
	if err := report.CheckEscalation(p.Options.MaxWarnings); err != nil {
		report.Duration = time.Since(start)
		report.Log(logger)
		return nil, err
	}

	assembler := NewAssembler(tables, links, p.Registry, AssemblerOptions{
		DomainIDLength:  p.Options.DomainIDLength,
		Workers:         p.Options.Workers,
		FrameworkFilter: p.Options.FrameworkFilter,
	})
	docs, err := assembler.AssembleAll(ctx)
	if err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)

	logger.Info("pipeline complete",
		"run_id", report.RunID,
		"entities", len(tables.Entities()),
		"relationships", len(links.Types()),
		"documents", len(docs),
		"duration", report.Duration,
	)

	return &Result{
		Tables:    tables,
		Links:     links,
		Documents: docs,
		Report:    report,
	}, nil
}
