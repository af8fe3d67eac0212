package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/secmaster/internal/feed"
	"github.com/JonMunkholm/secmaster/internal/rules"
)

// ValidateOptions holds validate flags.
type ValidateOptions struct {
	OutDir    string
	Checksums bool
}

// FileValidation is the rule outcome for one file.
type FileValidation struct {
	File       string `json:"file"`
	Rows       int    `json:"rows"`
	IssueRows  int    `json:"issue_rows"`
	Warnings   int    `json:"warnings"`
	Errors     int    `json:"errors"`
	ReportFile string `json:"report_file,omitempty"`
}

// ValidationResult holds validation results for every file.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{}

	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check vendor files against the identifier rules",
		Long: `Evaluate every row of each file with the rule engine and report
blank and malformed identifiers. With --out, a rule report is written
per file. Exits 1 when any Error-severity issue is found.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.OutDir, "out", "o", "", "directory for rule reports")
	cmd.Flags().BoolVar(&opts.Checksums, "checksums", false, "verify identifier check digits")

	return cmd
}

func runValidate(rootOpts *RootOptions, opts *ValidateOptions, files []string, cmd *cobra.Command) error {
	f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	var ruleOpts []rules.Option
	if opts.Checksums {
		ruleOpts = append(ruleOpts, rules.WithChecksumVerification())
	}
	engine := rules.New(ruleOpts...)

	result := ValidationResult{Valid: true}
	for _, path := range files {
		tbl, err := feed.ReadFile(path)
		if err != nil {
			return f.Fail(ExitCommandError, err)
		}
		if missing := tbl.Mapping().Missing(); len(missing) > 0 {
			return f.Fail(ExitCommandError, &feed.HeaderError{File: tbl.Name, Missing: missing})
		}
		f.VerboseLog("Evaluating %s (%d rows)", tbl.Name, len(tbl.Rows))

		rep := engine.Evaluate(tbl.Name, tbl.Records())
		counts := rep.Counts()
		fv := FileValidation{
			File:      tbl.Name,
			Rows:      rep.TotalRows,
			IssueRows: rep.ErrorCount,
			Warnings:  counts[rules.Warning],
			Errors:    counts[rules.Error],
		}
		if opts.OutDir != "" {
			fv.ReportFile = rules.ReportPath(opts.OutDir, tbl.Name)
			if err := rules.WriteReportFile(fv.ReportFile, rep); err != nil {
				return f.Fail(ExitCommandError, err)
			}
		}
		if fv.Errors > 0 {
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	if err := f.Success(result, func(w io.Writer) { printValidation(w, result) }); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, "rule errors found")
	}
	return nil
}

func printValidation(w io.Writer, result ValidationResult) {
	for _, fv := range result.Files {
		mark := "✓"
		if fv.Errors > 0 {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s: %d rows, %d with issues (%d warnings, %d errors)\n",
			mark, fv.File, fv.Rows, fv.IssueRows, fv.Warnings, fv.Errors)
		if fv.ReportFile != "" {
			fmt.Fprintf(w, "  report: %s\n", fv.ReportFile)
		}
	}
}
