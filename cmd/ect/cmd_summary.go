package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ect/internal/hist"
	"ect/internal/summary"
	"ect/internal/trim"
)

func newSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Manage reference ensemble summaries",
	}
	cmd.AddCommand(newSummaryBuildCmd(), newSummaryListCmd())
	return cmd
}

func newSummaryBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <trimmed-snapshot>...",
		Short: "Build a reference summary from trimmed ensemble snapshots",
		Long: `Computes per-element mean and standard deviation for every variable
across the trimmed snapshots of an accepted ensemble and publishes the
result to the configured store under --key. Summaries are immutable: a
key can be written once, and a revision needs a new key.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			key, _ := cmd.Flags().GetString("key")
			excludeFile, _ := cmd.Flags().GetString("exclude-file")
			if excludeFile == "" {
				excludeFile = cfg.Trim.ExcludeFile
			}

			var excluded []string
			if excludeFile != "" {
				excluded, err = trim.LoadExclusionList(excludeFile)
				if err != nil {
					return err
				}
			}

			snaps := make([]*hist.File, 0, len(args))
			for _, path := range args {
				f, err := hist.Load(path)
				if err != nil {
					return err
				}
				snaps = append(snaps, f)
			}

			s, err := summary.Build(snaps, excluded)
			if err != nil {
				return err
			}
			data, err := s.Encode()
			if err != nil {
				return err
			}

			store, err := summary.OpenStore(cmd.Context(), cfg.Store)
			if err != nil {
				return err
			}
			if err := store.Put(cmd.Context(), key, data); err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return printJSON(map[string]any{
					"key":           key,
					"ensemble_size": s.EnsembleSize,
					"variables":     s.VariableNames(),
					"excluded":      s.Excluded,
				})
			}
			fmt.Printf("Published summary %s (%d members, %d variables)\n",
				key, s.EnsembleSize, len(s.Variables))
			return nil
		},
	}

	cmd.Flags().String("key", "", "Store key for the summary artifact")
	cmd.Flags().String("exclude-file", "", "File listing variables to exclude, one per line")
	cmd.MarkFlagRequired("key")
	return cmd
}

func newSummaryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List summary artifacts in the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, err := summary.OpenStore(cmd.Context(), cfg.Store)
			if err != nil {
				return err
			}
			keys, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return printJSON(map[string]any{"keys": keys})
			}
			for _, key := range keys {
				fmt.Println(key)
			}
			return nil
		},
	}
}
