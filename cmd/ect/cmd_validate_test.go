package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

// testRoot wires a validate command under a root carrying the
// persistent flags the real binary provides.
func testRoot() *cobra.Command {
	root := &cobra.Command{Use: "ect", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().Bool("json", false, "")
	root.PersistentFlags().String("config", "", "")
	root.AddCommand(newValidateCmd())
	return root
}

func writeStoreConfig(t *testing.T, storeRoot string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := fmt.Sprintf("store:\n  driver: fs\n  root: %s\n", storeRoot)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestValidateMissingSummaryAborts(t *testing.T) {
	cfgPath := writeStoreConfig(t, t.TempDir())

	root := testRoot()
	root.SetArgs([]string{"validate", "--config", cfgPath, "--summary", "no-such-summary.json"})

	err := root.Execute()
	if err == nil {
		t.Fatal("expected an error for a missing reference summary")
	}
	var ec exitCodeError
	if !errors.As(err, &ec) {
		t.Fatalf("expected an exit code error, got %T: %v", err, err)
	}
	if ec.code != 2 {
		t.Errorf("exit code: got %d, want 2", ec.code)
	}
}

func TestValidateUndecodableSummaryAborts(t *testing.T) {
	storeRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(storeRoot, "ref.json"), []byte("not json"), 0644); err != nil {
		t.Fatalf("writing artifact: %v", err)
	}
	cfgPath := writeStoreConfig(t, storeRoot)

	root := testRoot()
	root.SetArgs([]string{"validate", "--config", cfgPath, "--summary", "ref.json"})

	err := root.Execute()
	var ec exitCodeError
	if !errors.As(err, &ec) {
		t.Fatalf("expected an exit code error, got %T: %v", err, err)
	}
	if ec.code != 2 {
		t.Errorf("exit code: got %d, want 2", ec.code)
	}
}
