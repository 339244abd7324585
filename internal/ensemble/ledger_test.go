package ensemble

import (
	"context"
	"testing"
	"time"
)

func TestLedgerRoundTrip(t *testing.T) {
	l, err := OpenLedger(t.TempDir())
	if err != nil {
		t.Fatalf("OpenLedger failed: %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	if err := l.BeginRun(ctx, "run-a", 3); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	m := Member{
		Index:      1,
		Seed:       42,
		OutputPath: "/tmp/member_001.history.json",
		Status:     StatusRunning,
	}
	if err := l.RecordMember(ctx, "run-a", m); err != nil {
		t.Fatalf("RecordMember failed: %v", err)
	}

	// Terminal transition overwrites the running row.
	m.Status = StatusSucceeded
	m.ExitCode = 0
	m.WallTime = 1500 * time.Millisecond
	if err := l.RecordMember(ctx, "run-a", m); err != nil {
		t.Fatalf("RecordMember (update) failed: %v", err)
	}

	if err := l.FinishRun(ctx, "run-a", 3, 0, "complete"); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	runs, err := l.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].ID != "run-a" || runs[0].State != "complete" || runs[0].Succeeded != 3 {
		t.Errorf("unexpected run record: %+v", runs[0])
	}

	members, err := l.ListMembers(ctx, "run-a")
	if err != nil {
		t.Fatalf("ListMembers failed: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(members))
	}
	if members[0].Status != string(StatusSucceeded) || members[0].WallMS != 1500 {
		t.Errorf("unexpected member record: %+v", members[0])
	}
}

func TestLedgerDuplicateRunRejected(t *testing.T) {
	l, err := OpenLedger(t.TempDir())
	if err != nil {
		t.Fatalf("OpenLedger failed: %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	if err := l.BeginRun(ctx, "run-a", 3); err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	if err := l.BeginRun(ctx, "run-a", 3); err == nil {
		t.Error("expected duplicate run ID to be rejected")
	}
}

func TestLedgerNilSafe(t *testing.T) {
	var l *Ledger
	ctx := context.Background()

	if err := l.BeginRun(ctx, "x", 1); err != nil {
		t.Errorf("nil ledger BeginRun: %v", err)
	}
	if err := l.RecordMember(ctx, "x", Member{}); err != nil {
		t.Errorf("nil ledger RecordMember: %v", err)
	}
	if err := l.FinishRun(ctx, "x", 0, 0, "complete"); err != nil {
		t.Errorf("nil ledger FinishRun: %v", err)
	}
	if runs, err := l.ListRuns(ctx); err != nil || runs != nil {
		t.Errorf("nil ledger ListRuns: %v, %v", runs, err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("nil ledger Close: %v", err)
	}
}

func TestRunnerWritesLedger(t *testing.T) {
	dir := t.TempDir()
	l, err := OpenLedger(dir)
	if err != nil {
		t.Fatalf("OpenLedger failed: %v", err)
	}
	defer l.Close()

	members := testMembers(t, 2)
	delegate := delegateFunc(func(ctx context.Context, spec RunSpec) (RunOutcome, error) {
		writeArtifact(t, spec.OutputPath)
		return RunOutcome{ExitCode: 0}, nil
	})

	r := NewRunner(delegate, testConfig(), nil).WithLedger(l)
	if _, err := r.Run(context.Background(), "run-l", members); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	runs, err := l.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].State != "complete" || runs[0].Succeeded != 2 {
		t.Errorf("unexpected ledger state: %+v", runs)
	}

	recorded, err := l.ListMembers(context.Background(), "run-l")
	if err != nil {
		t.Fatalf("ListMembers failed: %v", err)
	}
	if len(recorded) != 2 {
		t.Errorf("expected 2 member records, got %d", len(recorded))
	}
}
