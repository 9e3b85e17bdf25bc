// Package main provides the scfpipe binary entry point.
// Scfpipe transforms raw Secure Controls Framework workbook extractions
// into normalized tables, link tables and denormalized control documents.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wrisc/scfpipe/internal/config"
	"github.com/wrisc/scfpipe/internal/logging"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "scfpipe"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "SCF compliance-data transformation pipeline",
		Long: `Scfpipe transforms raw Secure Controls Framework workbook extractions
into clean relational form and denormalized control documents.

Stages:
- normalize every sheet into entity tables using the column register
- extract tag-driven link tables (catalog and framework relationships)
- validate referential integrity across all links
- assemble one denormalized document per control`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.String("input", "", "Directory of raw per-sheet CSV extractions (overrides SCF_INPUT_DIR)")
	pf.String("register", "", "Column register path (overrides SCF_REGISTER_FILE)")
	pf.String("output", "", "Output directory (overrides SCF_OUTPUT_DIR)")
	pf.Bool("strict", false, "Abort on the first value-conversion error")
	pf.StringSlice("frameworks", nil, "Framework keys to include in documents (default: all)")

	cmd.AddCommand(
		runCommand(app),
		cleanCommand(app),
		relationshipsCommand(app),
		validateCommand(app),
		exportCommand(app),
		loadCommand(app),
		versionCommand(app),
	)

	return cmd
}

// setup loads environment, configuration and logging. Flags override the
// corresponding config values.
func (a *App) setup(cmd *cobra.Command) error {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err == nil {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if v, _ := flags.GetString("input"); v != "" {
		cfg.Paths.InputDir = v
	}
	if v, _ := flags.GetString("register"); v != "" {
		cfg.Paths.RegisterFile = v
	}
	if v, _ := flags.GetString("output"); v != "" {
		cfg.Paths.OutputDir = v
	}
	if v, _ := flags.GetBool("strict"); v {
		cfg.Pipeline.Strict = true
	}
	if v, _ := flags.GetStringSlice("frameworks"); len(v) > 0 {
		cfg.Pipeline.Frameworks = v
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	a.Config = cfg
	a.Logger = slog.Default()
	return nil
}
