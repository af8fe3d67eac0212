package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/secmaster/internal/application"
	"github.com/JonMunkholm/secmaster/internal/config"
	"github.com/JonMunkholm/secmaster/internal/core"
)

// ReloadOptions holds reload flags.
type ReloadOptions struct {
	Workers   int
	BatchSize int
	Checksums bool
	NoReports bool
}

// NewReloadCommand creates the reload command.
func NewReloadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReloadOptions{}

	cmd := &cobra.Command{
		Use:   "reload [dir]",
		Short: "Rebuild the version store and snapshot cache from vendor files",
		Long: `Rebuild both stores from every vendor file in dir (default
PIPELINE_INPUT_DIR). The snapshot cache is cleared and the version table
recreated, then files load concurrently. Store settings come from the
environment and an optional .env file.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runReload(cmd.Context(), rootOpts, opts, dir, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent files (default PIPELINE_WORKERS)")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "rows per version store batch (default PIPELINE_BATCH_SIZE)")
	cmd.Flags().BoolVar(&opts.Checksums, "checksums", false, "verify identifier check digits")
	cmd.Flags().BoolVar(&opts.NoReports, "no-reports", false, "skip rule reports")

	return cmd
}

func runReload(ctx context.Context, rootOpts *RootOptions, opts *ReloadOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if err := godotenv.Load(); err == nil {
		f.VerboseLog("loaded .env")
	}
	cfg, err := config.Load()
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}
	applyReloadFlags(&cfg.Pipeline, opts)
	f.VerboseLog("%s", cfg.String())

	app, err := application.Open(ctx, cfg)
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}
	defer app.Close()

	sum, err := app.Service.Reload(ctx, dir)
	if err != nil {
		return f.Fail(ExitCommandError, err)
	}

	if err := f.Success(sum, func(w io.Writer) { printSummary(w, sum) }); err != nil {
		return err
	}
	if !sum.OK() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d file(s) failed to load", len(sum.Failures)))
	}
	return nil
}

// applyReloadFlags overrides pipeline settings with the flags that were set.
func applyReloadFlags(p *config.PipelineConfig, opts *ReloadOptions) {
	if opts.Workers > 0 {
		p.Workers = opts.Workers
	}
	if opts.BatchSize > 0 {
		p.BatchSize = opts.BatchSize
	}
	if opts.Checksums {
		p.VerifyChecksums = true
	}
	if opts.NoReports {
		p.WriteReports = false
	}
}

func printSummary(w io.Writer, sum *core.Summary) {
	mark := "✓"
	if !sum.OK() {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s Reload %s of %s\n", mark, sum.RunID, sum.Dir)
	fmt.Fprintf(w, "  columns:        %d\n", len(sum.Columns))
	fmt.Fprintf(w, "  rows read:      %d\n", sum.Rows)
	fmt.Fprintf(w, "  rows versioned: %d\n", sum.RowsVersioned)
	fmt.Fprintf(w, "  rows cached:    %d\n", sum.RowsCached)
	fmt.Fprintf(w, "  rows w/ issues: %d (%d warnings, %d errors)\n", sum.IssueRows, sum.Warnings, sum.Errors)
	fmt.Fprintf(w, "  duration:       %s\n", sum.Duration.Round(time.Millisecond))

	for _, r := range sum.Files {
		status := "ok"
		if r.Error != "" {
			status = r.Error
		}
		fmt.Fprintf(w, "  %-40s %6d rows  %s\n", r.File, r.Rows, status)
	}
}
