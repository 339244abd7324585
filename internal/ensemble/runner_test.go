package ensemble

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// delegateFunc adapts a function to the Delegate interface.
type delegateFunc func(ctx context.Context, spec RunSpec) (RunOutcome, error)

func (f delegateFunc) Run(ctx context.Context, spec RunSpec) (RunOutcome, error) {
	return f(ctx, spec)
}

func testMembers(t *testing.T, n int) []Member {
	t.Helper()
	dir := t.TempDir()
	members := make([]Member, n)
	for i := range members {
		members[i] = Member{
			Index:      i,
			Seed:       uint64(1000 + i),
			ICPath:     filepath.Join(dir, fmt.Sprintf("member_%03d.ic.json", i)),
			OutputPath: filepath.Join(dir, fmt.Sprintf("member_%03d.history.json", i)),
		}
	}
	return members
}

func writeArtifact(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(`{"ok":true}`), 0644); err != nil {
		t.Fatalf("writing artifact: %v", err)
	}
}

func testConfig() Config {
	return Config{
		Concurrency:   3,
		MemberTimeout: 5 * time.Second,
		FailThreshold: 1.0 / 3.0,
		Ranks:         1,
	}
}

func TestRunAllSucceed(t *testing.T) {
	members := testMembers(t, 5)

	delegate := delegateFunc(func(ctx context.Context, spec RunSpec) (RunOutcome, error) {
		writeArtifact(t, spec.OutputPath)
		return RunOutcome{ExitCode: 0}, nil
	})

	r := NewRunner(delegate, testConfig(), nil)
	result, err := r.Run(context.Background(), "run-1", members)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Succeeded) != 5 {
		t.Errorf("expected 5 succeeded, got %d", len(result.Succeeded))
	}
	if result.Dropped != 0 {
		t.Errorf("expected 0 dropped, got %d", result.Dropped)
	}
	for _, m := range result.Members {
		if m.Status != StatusSucceeded {
			t.Errorf("member %d: status %s", m.Index, m.Status)
		}
	}
}

func TestRunNonZeroExitWithArtifactSucceeds(t *testing.T) {
	// The simulation is known to exit non-zero on harmless FP warnings.
	members := testMembers(t, 1)

	delegate := delegateFunc(func(ctx context.Context, spec RunSpec) (RunOutcome, error) {
		writeArtifact(t, spec.OutputPath)
		return RunOutcome{ExitCode: 2}, nil
	})

	r := NewRunner(delegate, testConfig(), nil)
	result, err := r.Run(context.Background(), "run-2", members)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Members[0].Status != StatusSucceeded {
		t.Errorf("expected succeeded despite exit code 2, got %s", result.Members[0].Status)
	}
	if result.Members[0].ExitCode != 2 {
		t.Errorf("exit code should be preserved, got %d", result.Members[0].ExitCode)
	}
}

func TestRunZeroExitWithoutArtifactFails(t *testing.T) {
	// The converse failure mode: exit 0 but nothing produced.
	members := testMembers(t, 1)

	delegate := delegateFunc(func(ctx context.Context, spec RunSpec) (RunOutcome, error) {
		return RunOutcome{ExitCode: 0}, nil
	})

	cfg := testConfig()
	cfg.FailThreshold = 1.0 // don't trip degradation for this test
	r := NewRunner(delegate, cfg, nil)
	result, err := r.Run(context.Background(), "run-3", members)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Members[0].Status != StatusFailed {
		t.Errorf("expected failed for missing artifact, got %s", result.Members[0].Status)
	}
	if result.Dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", result.Dropped)
	}
}

func TestRunEmptyArtifactFails(t *testing.T) {
	members := testMembers(t, 1)

	delegate := delegateFunc(func(ctx context.Context, spec RunSpec) (RunOutcome, error) {
		if err := os.WriteFile(spec.OutputPath, nil, 0644); err != nil {
			t.Errorf("writing empty artifact: %v", err)
		}
		return RunOutcome{ExitCode: 0}, nil
	})

	cfg := testConfig()
	cfg.FailThreshold = 1.0
	r := NewRunner(delegate, cfg, nil)
	result, err := r.Run(context.Background(), "run-4", members)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Members[0].Status != StatusFailed {
		t.Errorf("expected failed for empty artifact, got %s", result.Members[0].Status)
	}
}

func TestRunDegradedFailsFast(t *testing.T) {
	// 4 of 9 failing exceeds the 1/3 threshold.
	members := testMembers(t, 9)

	delegate := delegateFunc(func(ctx context.Context, spec RunSpec) (RunOutcome, error) {
		if spec.Index < 4 {
			return RunOutcome{ExitCode: 1}, nil // no artifact
		}
		writeArtifact(t, spec.OutputPath)
		return RunOutcome{ExitCode: 0}, nil
	})

	cfg := testConfig()
	cfg.Concurrency = 1 // deterministic order: failures first
	r := NewRunner(delegate, cfg, nil)
	result, err := r.Run(context.Background(), "run-5", members)
	if !errors.Is(err, ErrEnsembleDegraded) {
		t.Fatalf("expected ErrEnsembleDegraded, got %v", err)
	}
	if result == nil {
		t.Fatal("result should be returned even on degradation")
	}
	// Fail-fast: members after the threshold trip were never started.
	started := 0
	for _, m := range result.Members {
		if m.Status != StatusPending {
			started++
		}
	}
	if started == len(members) {
		t.Error("expected fail-fast to skip pending members")
	}
}

func TestRunBelowThresholdProceeds(t *testing.T) {
	// 2 of 9 failing stays under 1/3: the succeeded subset is kept and
	// the dropped count is carried.
	members := testMembers(t, 9)

	delegate := delegateFunc(func(ctx context.Context, spec RunSpec) (RunOutcome, error) {
		if spec.Index >= 7 {
			return RunOutcome{ExitCode: 1}, nil
		}
		writeArtifact(t, spec.OutputPath)
		return RunOutcome{ExitCode: 0}, nil
	})

	r := NewRunner(delegate, testConfig(), nil)
	result, err := r.Run(context.Background(), "run-6", members)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Succeeded) != 7 {
		t.Errorf("expected 7 succeeded, got %d", len(result.Succeeded))
	}
	if result.Dropped != 2 {
		t.Errorf("expected 2 dropped, got %d", result.Dropped)
	}
}

func TestRunMemberTimeout(t *testing.T) {
	members := testMembers(t, 2)

	delegate := delegateFunc(func(ctx context.Context, spec RunSpec) (RunOutcome, error) {
		if spec.Index == 0 {
			<-ctx.Done() // hang until the member timeout kills us
			return RunOutcome{ExitCode: -1}, ctx.Err()
		}
		writeArtifact(t, spec.OutputPath)
		return RunOutcome{ExitCode: 0}, nil
	})

	cfg := testConfig()
	cfg.MemberTimeout = 50 * time.Millisecond
	cfg.FailThreshold = 1.0
	r := NewRunner(delegate, cfg, nil)
	result, err := r.Run(context.Background(), "run-7", members)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Members[0].Status != StatusTimedOut {
		t.Errorf("expected timed-out, got %s", result.Members[0].Status)
	}
	// The sibling is unaffected.
	if result.Members[1].Status != StatusSucceeded {
		t.Errorf("sibling should succeed, got %s", result.Members[1].Status)
	}
}

func TestRunBoundedConcurrency(t *testing.T) {
	members := testMembers(t, 8)

	var running, peak atomic.Int32
	delegate := delegateFunc(func(ctx context.Context, spec RunSpec) (RunOutcome, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		writeArtifact(t, spec.OutputPath)
		return RunOutcome{ExitCode: 0}, nil
	})

	cfg := testConfig()
	cfg.Concurrency = 2
	r := NewRunner(delegate, cfg, nil)
	if _, err := r.Run(context.Background(), "run-8", members); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("concurrency limit exceeded: %d members ran at once", p)
	}
}

func TestCheckArtifact(t *testing.T) {
	dir := t.TempDir()

	missing := filepath.Join(dir, "nope.json")
	if err := CheckArtifact(missing); !errors.Is(err, ErrMissingArtifact) {
		t.Errorf("expected ErrMissingArtifact for missing file, got %v", err)
	}

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := CheckArtifact(empty); !errors.Is(err, ErrMissingArtifact) {
		t.Errorf("expected ErrMissingArtifact for empty file, got %v", err)
	}

	ok := filepath.Join(dir, "ok.json")
	if err := os.WriteFile(ok, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := CheckArtifact(ok); err != nil {
		t.Errorf("expected nil for non-empty file, got %v", err)
	}
}
