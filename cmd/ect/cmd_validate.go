package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ect/internal/summary"
	"ect/internal/trim"
	"ect/internal/validate"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <trimmed-snapshot>...",
		Short: "Score a candidate ensemble against a reference summary",
		Long: `Scores each variable of the candidate ensemble against the reference
summary and reports a terminal verdict. Exit codes: 0 the candidate is
consistent (PASS), 1 it is statistically distinguishable (FAIL), 2 the
comparison itself was invalid (ABORTED). A missing or empty snapshot,
or a summary built with a different exclusion list, aborts; it is never
reported as a pass or a failure.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			key, _ := cmd.Flags().GetString("summary")
			threshold, _ := cmd.Flags().GetFloat64("threshold")
			excludeFile, _ := cmd.Flags().GetString("exclude-file")
			markdownPath, _ := cmd.Flags().GetString("markdown")
			if !cmd.Flags().Changed("threshold") {
				threshold = cfg.Validate.Threshold
			}
			if excludeFile == "" {
				excludeFile = cfg.Trim.ExcludeFile
			}

			// Failing to even load the reference summary means the test
			// could not be completed, which is distinct from a FAIL verdict.
			var excluded []string
			if excludeFile != "" {
				excluded, err = trim.LoadExclusionList(excludeFile)
				if err != nil {
					return exitCodeError{code: 2, msg: err.Error()}
				}
			}

			store, err := summary.OpenStore(cmd.Context(), cfg.Store)
			if err != nil {
				return exitCodeError{code: 2, msg: err.Error()}
			}
			data, err := store.Get(cmd.Context(), key)
			if err != nil {
				return exitCodeError{code: 2, msg: err.Error()}
			}
			ref, err := summary.Decode(data)
			if err != nil {
				return exitCodeError{code: 2, msg: err.Error()}
			}

			logger := newLogger(cfg)
			report, runErr := validate.New(ref, threshold, logger).Run(cmd.Context(), args, excluded)

			if markdownPath != "" {
				md := report.RenderMarkdown("Ensemble Consistency")
				if err := os.WriteFile(markdownPath, []byte(md), 0644); err != nil {
					return fmt.Errorf("writing markdown summary: %w", err)
				}
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				if err := printJSON(report); err != nil {
					return err
				}
			} else {
				report.RenderText(os.Stdout, "Ensemble Consistency")
			}

			switch report.Verdict {
			case validate.VerdictPass:
				return nil
			case validate.VerdictFail:
				return exitCodeError{code: 1, msg: fmt.Sprintf("validation failed: %d variables over threshold", len(report.Failing))}
			default:
				return exitCodeError{code: 2, msg: fmt.Sprintf("validation aborted: %v", runErr)}
			}
		},
	}

	cmd.Flags().String("summary", "", "Store key of the reference summary")
	cmd.Flags().Float64("threshold", 3.0, "Critical score above which a variable fails")
	cmd.Flags().String("exclude-file", "", "File listing variables to exclude, one per line")
	cmd.Flags().String("markdown", "", "Write a markdown report to this path")
	cmd.MarkFlagRequired("summary")
	return cmd
}
