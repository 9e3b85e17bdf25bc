package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/wrisc/scfpipe/internal/config"
	"github.com/wrisc/scfpipe/internal/logging"
	"github.com/wrisc/scfpipe/internal/pipeline"
	"github.com/wrisc/scfpipe/internal/registry"
	"github.com/wrisc/scfpipe/internal/sink"
	"github.com/wrisc/scfpipe/internal/workbook"
)

// App carries the loaded configuration through the command tree.
type App struct {
	Config *config.Config
	Logger *slog.Logger
}

func (a *App) loadRegistry() (*registry.Registry, error) {
	return registry.Load(a.Config.Paths.RegisterFile)
}

// loadExtraction reads the raw per-sheet CSV directory, applying each
// sheet's register-declared leading junk-row count.
func (a *App) loadExtraction(reg *registry.Registry) (*workbook.Extraction, error) {
	skip := func(sheetName string) int {
		return reg.SkipRows(pipeline.EntityForSheet(sheetName))
	}
	return workbook.LoadDir(a.Config.Paths.InputDir, skip)
}

func (a *App) newPipeline(reg *registry.Registry) *pipeline.Pipeline {
	version, err := workbook.SourceVersion(a.Config.Paths.InputDir)
	if err != nil {
		a.Logger.Debug("no source version file", "error", err)
	}
	return &pipeline.Pipeline{
		Registry: reg,
		Options: pipeline.Options{
			Strict:          a.Config.Pipeline.Strict,
			DomainIDLength:  a.Config.Pipeline.DomainIDLength,
			Workers:         a.Config.Pipeline.Workers,
			MaxWarnings:     a.Config.Pipeline.MaxWarnings,
			FrameworkFilter: a.Config.Pipeline.Frameworks,
			SourceVersion:   version,
		},
		Logger: a.Logger,
	}
}

// runFull executes the complete pipeline against the configured input.
func (a *App) runFull(ctx context.Context) (*pipeline.Result, *registry.Registry, error) {
	reg, err := a.loadRegistry()
	if err != nil {
		return nil, nil, err
	}
	ext, err := a.loadExtraction(reg)
	if err != nil {
		return nil, nil, err
	}
	p := a.newPipeline(reg)
	result, err := p.Run(ctx, ext)
	if err != nil {
		return nil, nil, err
	}
	ctx = logging.WithRunID(ctx, result.Report.RunID)
	result.Report.Log(logging.FromContext(ctx))
	return result, reg, nil
}

// controlKeyField returns the control table's register-declared key field.
func controlKeyField(reg *registry.Registry) string {
	if k := reg.KeyField("control"); k != "" {
		return k
	}
	return "scf_id"
}

func runCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline and write all outputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, reg, err := app.runFull(cmd.Context())
			if err != nil {
				return err
			}

			out := app.Config.Paths.OutputDir
			keyField := controlKeyField(reg)
			if err := sink.WriteTablesCSV(filepath.Join(out, "csv_cleaned"), result.Tables); err != nil {
				return err
			}
			if err := sink.WriteLinksCSV(filepath.Join(out, "csv_cleaned"), keyField, result.Links); err != nil {
				return err
			}
			if err := sink.WriteDocumentsJSON(filepath.Join(out, "documents.json"), result.Documents); err != nil {
				return err
			}
			if err := workbook.MarkProcessed(app.Config.Paths.InputDir, out); err != nil {
				app.Logger.Warn("could not record source version", "error", err)
			}

			if result.Report.Failed() {
				return fmt.Errorf("run %s completed with errors: %d conversion failures, %d integrity errors",
					result.Report.RunID, len(result.Report.Conversions), len(result.Report.ErrorViolations()))
			}
			return nil
		},
	}
}

func cleanCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Normalize sheets into entity tables and write them as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := app.loadRegistry()
			if err != nil {
				return err
			}
			ext, err := app.loadExtraction(reg)
			if err != nil {
				return err
			}

			report := pipeline.NewReport()
			n := &pipeline.Normalizer{Registry: reg, Strict: app.Config.Pipeline.Strict, Logger: app.Logger}
			tables, err := n.Normalize(ext, report)
			if err != nil {
				return err
			}
			report.Log(app.Logger)

			return sink.WriteTablesCSV(filepath.Join(app.Config.Paths.OutputDir, "csv_cleaned"), tables)
		},
	}
}

func relationshipsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "relationships",
		Short: "Extract link tables and write them as two-column CSV files",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := app.loadRegistry()
			if err != nil {
				return err
			}
			ext, err := app.loadExtraction(reg)
			if err != nil {
				return err
			}

			report := pipeline.NewReport()
			n := &pipeline.Normalizer{Registry: reg, Strict: app.Config.Pipeline.Strict, Logger: app.Logger}
			tables, err := n.Normalize(ext, report)
			if err != nil {
				return err
			}
			ex := &pipeline.Extractor{
				Registry:       reg,
				DomainIDLength: app.Config.Pipeline.DomainIDLength,
				Logger:         app.Logger,
			}
			links := ex.Extract(tables)
			report.Log(app.Logger)

			return sink.WriteLinksCSV(filepath.Join(app.Config.Paths.OutputDir, "csv_cleaned"), controlKeyField(reg), links)
		},
	}
}

func validateCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check referential integrity across all link tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, _, err := app.runFull(cmd.Context())
			if err != nil {
				return err
			}
			if errs := result.Report.ErrorViolations(); len(errs) > 0 {
				return fmt.Errorf("%d integrity errors (%d warnings)", len(errs), result.Report.WarningCount())
			}
			app.Logger.Info("integrity check passed", "warnings", result.Report.WarningCount())
			return nil
		},
	}
}

func exportCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write JSON exports and the risk-library YAML document",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, _, err := app.runFull(cmd.Context())
			if err != nil {
				return err
			}

			out := app.Config.Paths.OutputDir
			jsonDir := filepath.Join(out, "json")
			if err := sink.WriteTablesJSON(jsonDir, result.Tables); err != nil {
				return err
			}
			if err := sink.WriteLinksJSON(jsonDir, result.Links); err != nil {
				return err
			}
			if err := sink.WriteDocumentsJSON(filepath.Join(jsonDir, "documents.json"), result.Documents); err != nil {
				return err
			}

			controls, ok := result.Tables.Get("control")
			if !ok {
				return fmt.Errorf("no control table in pipeline result")
			}
			version := result.Report.SourceVersion
			if version == "" {
				version = "unknown"
			}
			yamlName := fmt.Sprintf("scf-%s.yaml", strings.ReplaceAll(version, ".", "-"))
			return sink.WriteRiskLibraryYAML(filepath.Join(out, yamlName), controls, version, result.Report.StartedAt.Format("2006-01-02"))
		},
	}
}

func loadCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Run the pipeline and bulk-load documents into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Config.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL is required for load")
			}

			result, _, err := app.runFull(cmd.Context())
			if err != nil {
				return err
			}
			if result.Report.Failed() {
				return fmt.Errorf("refusing to load: run %s has errors", result.Report.RunID)
			}

			ctx := cmd.Context()
			poolConfig, err := pgxpool.ParseConfig(app.Config.Database.URL)
			if err != nil {
				return fmt.Errorf("parse database URL: %w", err)
			}
			poolConfig.MaxConns = int32(app.Config.Database.MaxConns)
			poolConfig.MinConns = int32(app.Config.Database.MinConns)

			pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			store := sink.NewStore(pool, app.Logger)
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}
			if _, err := store.LoadDocuments(ctx, result.Report.RunID, result.Documents); err != nil {
				return err
			}
			if _, err := store.LoadLinks(ctx, result.Report.RunID, result.Links); err != nil {
				return err
			}
			return nil
		},
	}
}

func versionCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print binary and source data versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
			if v, err := workbook.SourceVersion(app.Config.Paths.InputDir); err == nil {
				fmt.Printf("source data version: %s\n", v)
			}
			if ok, err := workbook.UpToDate(app.Config.Paths.InputDir, app.Config.Paths.OutputDir); err == nil {
				fmt.Printf("output up to date: %v\n", ok)
			}
			return nil
		},
	}
}
