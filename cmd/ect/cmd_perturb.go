package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"ect/internal/hist"
	"ect/internal/perturb"
)

func newPerturbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "perturb",
		Short: "Generate perturbed initial conditions from a base state",
		Long: `Applies a tiny multiplicative perturbation to the configured field of
the base initial condition, once per ensemble member. Member seeds are
derived deterministically from the base seed, so the same configuration
always reproduces the same ensemble bit for bit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			icPath, _ := cmd.Flags().GetString("ic")
			outDir, _ := cmd.Flags().GetString("out")
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

			if err := os.MkdirAll(outDir, 0755); err != nil {
				return fmt.Errorf("creating output directory: %w", err)
			}
			written := make([]map[string]any, 0, len(states))
			for _, s := range states {
				path := filepath.Join(outDir, fmt.Sprintf("member_%03d.ic.json", s.Index))
				if err := s.File.Save(path); err != nil {
					return err
				}
				logger.Debug("wrote initial condition", "member", s.Index, "seed", s.Seed, "path", path)
				written = append(written, map[string]any{"member": s.Index, "seed": s.Seed, "path": path})
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return printJSON(map[string]any{
					"field":     cfg.Perturb.Field,
					"amplitude": cfg.Perturb.Amplitude,
					"members":   written,
				})
			}
			fmt.Printf("Wrote %d perturbed initial conditions to %s (field %s, amplitude %g)\n",
				len(written), outDir, cfg.Perturb.Field, cfg.Perturb.Amplitude)
			return nil
		},
	}

	cmd.Flags().String("ic", "", "Base initial condition history file")
	cmd.Flags().String("out", "members", "Directory for perturbed initial conditions")
	cmd.MarkFlagRequired("ic")
	return cmd
}
