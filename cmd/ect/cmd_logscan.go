package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"ect/internal/logscan"
)

func newLogscanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logscan <test-log>...",
		Short: "Compare simulation logs against a reference by global min/max",
		Long: `Parses the per-timestep global min/max diagnostics that the solver
prints and compares each test log against the reference with percent
error thresholds. This is a coarse drift check for when no history
artifacts are available; "ect validate" is the authoritative check.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refPath, _ := cmd.Flags().GetString("ref")
			fields, _ := cmd.Flags().GetStringSlice("fields")
			allowMissing, _ := cmd.Flags().GetBool("allow-missing")
			markdownPath, _ := cmd.Flags().GetString("markdown")

			scanner, err := logscan.NewScanner(fields)
			if err != nil {
				return err
			}

			results := make([]logscan.Result, 0, len(args))
			for _, path := range args {
				name := filepath.Base(path)
				r, err := scanner.Compare(name, path, refPath)
				if err != nil {
					return err
				}
				results = append(results, r)
			}

			if markdownPath != "" {
				md := logscan.RenderMarkdown(results, "Log Validation Results")
				if err := os.WriteFile(markdownPath, []byte(md), 0644); err != nil {
					return fmt.Errorf("writing markdown summary: %w", err)
				}
			}
			line, ok := logscan.Summarize(results, allowMissing)
			if jsonFlag(cmd) {
				if err := printJSON(results); err != nil {
					return err
				}
			} else {
				logscan.RenderText(os.Stdout, results, "Log Validation Results")
				fmt.Printf("\nSummary: %s\n", line)
			}
			if !ok {
				return exitCodeError{code: 1, msg: "log comparison failed: " + line}
			}
			return nil
		},
	}

	cmd.Flags().String("ref", "", "Reference log file")
	cmd.Flags().StringSlice("fields", nil, "Fields to compare (default w,u)")
	cmd.Flags().Bool("allow-missing", false, "Do not fail when a test log is absent")
	cmd.Flags().String("markdown", "", "Write a markdown report to this path")
	cmd.MarkFlagRequired("ref")
	return cmd
}

func jsonFlag(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}
