package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ect/internal/hist"
	"ect/internal/trim"
)

func newTrimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trim",
		Short: "Reduce a history file to a single comparable time slice",
		Long: `Keeps one time slice of a raw history file and drops the variables
named in the exclusion list. Trimming is idempotent: re-trimming a
trimmed snapshot with the same exclusion list returns it unchanged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			inPath, _ := cmd.Flags().GetString("in")
			outPath, _ := cmd.Flags().GetString("out")
			timeIndex, _ := cmd.Flags().GetInt("time-index")
			excludeFile, _ := cmd.Flags().GetString("exclude-file")
			memberIndex, _ := cmd.Flags().GetInt("member")
			if !cmd.Flags().Changed("time-index") {
				timeIndex = cfg.Trim.TimeIndex
			}
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

			f, err := hist.Load(inPath)
			if err != nil {
				return err
			}
			out, err := trim.Trim(f, trim.Options{
				TimeIndex:   timeIndex,
				Excluded:    excluded,
				Required:    cfg.Trim.Required,
				MemberIndex: memberIndex,
			})
			if err != nil {
				return err
			}
			if err := out.Save(outPath); err != nil {
				return err
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return printJSON(map[string]any{
					"in":        inPath,
					"out":       outPath,
					"variables": out.VariableNames(),
					"excluded":  excluded,
				})
			}
			fmt.Printf("Trimmed %s -> %s (%d variables, %d excluded)\n",
				inPath, outPath, len(out.Variables), len(excluded))
			return nil
		},
	}

	cmd.Flags().String("in", "", "Raw history file to trim")
	cmd.Flags().String("out", "", "Path for the trimmed snapshot")
	cmd.Flags().Int("time-index", trim.LastTimeIndex, "Time slice to keep (-1 for the last)")
	cmd.Flags().String("exclude-file", "", "File listing variables to exclude, one per line")
	cmd.Flags().Int("member", -1, "Ensemble member index to record on the snapshot")
	cmd.MarkFlagRequired("in")
	cmd.MarkFlagRequired("out")
	return cmd
}
