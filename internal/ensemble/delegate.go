package ensemble

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// RunSpec describes one delegate invocation.
type RunSpec struct {
	// Index is the ensemble member index, used for working directories.
	Index int

	// ICPath is the perturbed initial-condition file.
	ICPath string

	// OutputPath is where the delegate is expected to produce its artifact.
	OutputPath string

	// Ranks is the MPI rank count.
	Ranks int

	// Duration is the model run-duration parameter.
	Duration string

	// WorkDir is the member's working directory.
	WorkDir string
}

// RunOutcome reports how a delegate invocation ended. The exit code is
// advisory; callers must verify artifacts independently.
type RunOutcome struct {
	ExitCode int
	Stderr   string
}

// Delegate executes one simulation run. Implementations must honor ctx
// cancellation by terminating the underlying process.
type Delegate interface {
	Run(ctx context.Context, spec RunSpec) (RunOutcome, error)
}

// ExecDelegate invokes the external simulation binary.
type ExecDelegate struct {
	// Binary is the path to the simulation executable.
	Binary string
}

// Run starts the binary and waits for completion or ctx cancellation.
// On cancellation the whole process group is killed so MPI children do
// not outlive the member.
func (d ExecDelegate) Run(ctx context.Context, spec RunSpec) (RunOutcome, error) {
	args := []string{
		"--ic", spec.ICPath,
		"--output", spec.OutputPath,
		"--ranks", strconv.Itoa(spec.Ranks),
	}
	if spec.Duration != "" {
		args = append(args, "--duration", spec.Duration)
	}

	cmd := exec.CommandContext(ctx, d.Binary, args...)
	cmd.Dir = spec.WorkDir

	// Own process group so the full tree can be killed on timeout.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return RunOutcome{ExitCode: -1}, fmt.Errorf("starting delegate: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		<-done
		return RunOutcome{ExitCode: -1, Stderr: tail(stderr.String())}, ctx.Err()
	case waitErr = <-done:
	}

	exitCode := 0
	if waitErr != nil {
		exitErr, ok := waitErr.(*exec.ExitError)
		if !ok {
			return RunOutcome{ExitCode: -1}, fmt.Errorf("delegate failed: %w", waitErr)
		}
		exitCode = exitErr.ExitCode()
	}

	return RunOutcome{ExitCode: exitCode, Stderr: tail(stderr.String())}, nil
}

// tail keeps the last few lines of delegate stderr for diagnostics.
func tail(s string) string {
	const keep = 5
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) <= keep {
		return strings.TrimSpace(s)
	}
	return strings.Join(lines[len(lines)-keep:], "\n")
}
