package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"ect/internal/ensemble"
	"ect/internal/hist"
	"ect/internal/perturb"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Perturb, then run the full simulation ensemble",
		Long: `Generates the perturbed ensemble from the base initial condition and
runs the configured simulation binary once per member with bounded
parallelism. A member succeeds only if its history artifact exists and
is non-empty; exit codes alone are not trusted. The run is recorded in
a ledger under the work directory ("ect runs" lists it).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			icPath, _ := cmd.Flags().GetString("ic")
			workDir, _ := cmd.Flags().GetString("workdir")
			runID, _ := cmd.Flags().GetString("run-id")
			if runID == "" {
				runID = time.Now().UTC().Format("20060102T150405Z")
			}
			logger := newLogger(cfg)

			base, err := hist.Load(icPath)
			if err != nil {
				return err
			}
			gen, err := perturb.New(cfg.Perturb.BaseSeed, cfg.Perturb.Field, cfg.Perturb.Amplitude)
			if err != nil {
				return err
			}
			states, err := gen.Generate(base, cfg.Perturb.Size)
			if err != nil {
				return err
			}

			members := make([]ensemble.Member, len(states))
			for i, s := range states {
				dir := filepath.Join(workDir, fmt.Sprintf("member_%03d", s.Index))
				if err := os.MkdirAll(dir, 0755); err != nil {
					return fmt.Errorf("creating member directory: %w", err)
				}
				icOut := filepath.Join(dir, "ic.json")
				if err := s.File.Save(icOut); err != nil {
					return err
				}
				members[i] = ensemble.Member{
					Index:      s.Index,
					Seed:       s.Seed,
					ICPath:     icOut,
					OutputPath: filepath.Join(dir, "history.json"),
				}
			}

			ledger, err := ensemble.OpenLedger(workDir)
			if err != nil {
				return err
			}
			defer ledger.Close()
			events := newEventLogger(workDir, cfg)
			defer events.Close()

			runner := ensemble.NewRunner(
				ensemble.ExecDelegate{Binary: cfg.Ensemble.Binary},
				ensemble.Config{
					Concurrency:   cfg.Ensemble.Concurrency,
					MemberTimeout: cfg.Ensemble.MemberTimeout,
					FailThreshold: cfg.Ensemble.FailThreshold,
					Ranks:         cfg.Ensemble.Ranks,
					Duration:      cfg.Ensemble.Duration,
					WorkDir:       workDir,
				},
				logger,
			).WithEventLogger(events).WithLedger(ledger)

			result, runErr := runner.Run(cmd.Context(), runID, members)
			if runErr != nil && !errors.Is(runErr, ensemble.ErrEnsembleDegraded) {
				return runErr
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				if err := printJSON(result); err != nil {
					return err
				}
			} else {
				fmt.Printf("Run %s: %d/%d members succeeded, %d dropped\n",
					result.RunID, len(result.Succeeded), len(result.Members), result.Dropped)
				for _, m := range result.Members {
					if m.Status != ensemble.StatusSucceeded {
						fmt.Printf("  member %03d: %s %s\n", m.Index, m.Status, m.Detail)
					}
				}
			}
			return runErr
		},
	}

	cmd.Flags().String("ic", "", "Base initial condition history file")
	cmd.Flags().String("workdir", "work", "Directory for member inputs, outputs, and the run ledger")
	cmd.Flags().String("run-id", "", "Run identifier (default: UTC timestamp)")
	cmd.MarkFlagRequired("ic")
	return cmd
}
