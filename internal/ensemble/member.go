// Package ensemble runs the perturbed-member simulation ensemble: bounded
// parallel execution of an external delegate, per-member timeouts, and
// artifact postcondition checks. Delegate exit codes are treated as advisory
// only; a member succeeds only if its expected output artifact exists and is
// non-empty.
package ensemble

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Status is the lifecycle state of an ensemble member.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed-out"
)

// Terminal reports whether the status is a run-ending state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut:
		return true
	}
	return false
}

// ErrEnsembleDegraded is returned when the failed-member fraction exceeds
// the configured threshold.
var ErrEnsembleDegraded = errors.New("too many ensemble members failed")

// ErrMissingArtifact is returned when an expected output file is absent or
// empty. A delegate's zero exit code is never sufficient evidence of
// success on its own.
var ErrMissingArtifact = errors.New("expected output artifact missing or empty")

// Member is one run of the simulation from a perturbed initial condition.
// The Runner owns a member for its run lifetime; the perturbation inputs
// (seed, IC path) are immutable once created.
type Member struct {
	Index      int           `json:"index"`
	Seed       uint64        `json:"seed"`
	ICPath     string        `json:"ic_path"`
	OutputPath string        `json:"output_path"`
	Status     Status        `json:"status"`
	ExitCode   int           `json:"exit_code"`
	WallTime   time.Duration `json:"wall_time"`
	Detail     string        `json:"detail,omitempty"`
}

// CheckArtifact verifies that path exists and is non-empty.
func CheckArtifact(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrMissingArtifact, path)
		}
		return fmt.Errorf("checking artifact %s: %w", path, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrMissingArtifact, path)
	}
	return nil
}
