package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ect/internal/ensemble"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recorded ensemble runs, or the members of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workDir, _ := cmd.Flags().GetString("workdir")
			jsonOut, _ := cmd.Flags().GetBool("json")

			ledger, err := ensemble.OpenLedger(workDir)
			if err != nil {
				return err
			}
			defer ledger.Close()

			if len(args) == 1 {
				members, err := ledger.ListMembers(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(members)
				}
				fmt.Printf("%-6s %-20s %-10s %-6s %-10s %s\n", "Member", "Seed", "Status", "Exit", "Wall", "Detail")
				for _, m := range members {
					fmt.Printf("%-6d %-20d %-10s %-6d %-10s %s\n",
						m.Index, m.Seed, m.Status, m.ExitCode,
						(time.Duration(m.WallMS) * time.Millisecond).String(), m.Detail)
				}
				return nil
			}

			runs, err := ledger.ListRuns(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(runs)
			}
			fmt.Printf("%-22s %-22s %-10s %-10s %s\n", "Run", "Created", "State", "Succeeded", "Dropped")
			for _, r := range runs {
				fmt.Printf("%-22s %-22s %-10s %-10d %d\n",
					r.ID, r.CreatedAt.UTC().Format(time.RFC3339), r.State, r.Succeeded, r.Dropped)
			}
			return nil
		},
	}

	cmd.Flags().String("workdir", "work", "Directory holding the run ledger")
	return cmd
}
