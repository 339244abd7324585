package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"ect/internal/config"
	"ect/internal/logging"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "ect",
		Short: "Ensemble consistency testing for simulation builds",
		Long: `ect decides whether a changed build of a chaotic simulation is
statistically consistent with a trusted reference build.

It perturbs a base initial condition into an ensemble, runs the
simulation once per member, trims each history to a single time slice,
and either summarizes the ensemble as a reference artifact or scores it
against one.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for CI consumption)")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")

	rootCmd.AddCommand(
		newVersionCmd(),
		newPerturbCmd(),
		newRunCmd(),
		newTrimCmd(),
		newSummaryCmd(),
		newValidateCmd(),
		newRunsCmd(),
		newLogscanCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ec exitCodeError
		if errors.As(err, &ec) {
			os.Exit(ec.code)
		}
		os.Exit(1)
	}
}

// exitCodeError carries a specific process exit code out of a RunE.
type exitCodeError struct {
	code int
	msg  string
}

func (e exitCodeError) Error() string { return e.msg }

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				json.NewEncoder(os.Stdout).Encode(map[string]string{"version": version})
			} else {
				fmt.Printf("ect version %s\n", version)
			}
		},
	}
}

// loadConfig resolves the effective configuration for a command:
// defaults, then the --config file, then environment overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, os.Stderr)
}

// newEventLogger returns the JSONL event trace for dir, or nil when the
// log level does not enable it. Nil is safe to use and close.
func newEventLogger(dir string, cfg *config.Config) *logging.EventLogger {
	return logging.NewEventLogger(dir, cfg.Logging.Level)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
