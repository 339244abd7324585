package ensemble

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"ect/internal/logging"
)

// Config holds runner settings.
type Config struct {
	// Concurrency is the maximum number of members running at once.
	Concurrency int

	// MemberTimeout bounds each member's wall-clock time.
	MemberTimeout time.Duration

	// FailThreshold is the failed fraction above which the ensemble is
	// abandoned.
	FailThreshold float64

	// Ranks and Duration are passed through to the delegate.
	Ranks    int
	Duration string

	// WorkDir is the root under which member working directories live.
	WorkDir string
}

// Result is the outcome of an ensemble run. Succeeded holds the members
// whose artifacts verified; Dropped counts members excluded from it.
type Result struct {
	RunID     string
	Members   []Member
	Succeeded []Member
	Dropped   int
}

// Runner executes ensemble members in parallel with bounded concurrency.
// Members are independent: one member's failure or timeout never cancels
// its siblings, until the degradation threshold trips.
type Runner struct {
	delegate Delegate
	cfg      Config
	logger   *slog.Logger
	events   *logging.EventLogger
	ledger   *Ledger
}

// NewRunner creates a Runner. logger may be nil, in which case output is
// discarded. events and ledger are optional (nil disables them).
func NewRunner(delegate Delegate, cfg Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Runner{delegate: delegate, cfg: cfg, logger: logger}
}

// WithEventLogger attaches a JSONL run-event trace.
func (r *Runner) WithEventLogger(el *logging.EventLogger) *Runner {
	r.events = el
	return r
}

// WithLedger attaches a run ledger; member transitions are persisted as
// the run progresses.
func (r *Runner) WithLedger(l *Ledger) *Runner {
	r.ledger = l
	return r
}

// Run executes the members and returns the aggregate result. It returns
// ErrEnsembleDegraded once the failed fraction exceeds the threshold;
// members not yet started at that point are left pending and counted as
// dropped. The result is valid (with partial statuses) even on error.
func (r *Runner) Run(ctx context.Context, runID string, members []Member) (*Result, error) {
	total := len(members)
	if total == 0 {
		return nil, fmt.Errorf("no ensemble members to run")
	}

	out := make([]Member, total)
	copy(out, members)
	for i := range out {
		out[i].Status = StatusPending
	}

	if err := r.ledger.BeginRun(ctx, runID, total); err != nil {
		return nil, fmt.Errorf("recording run start: %w", err)
	}
	r.events.Log(map[string]any{"event": "run_start", "run_id": runID, "members": total})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		failures int
		degraded bool
	)

	// A member is dropped when it fails, times out, or is never started.
	// Once dropped/total exceeds the threshold no further members start.
	recordTerminal := func(idx int, m Member) {
		mu.Lock()
		defer mu.Unlock()
		out[idx] = m
		if m.Status == StatusFailed || m.Status == StatusTimedOut {
			failures++
			if float64(failures)/float64(total) > r.cfg.FailThreshold {
				degraded = true
				cancel()
			}
		}
	}

	jobs := make(chan int, total)
	for i := range out {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < r.cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				select {
				case <-runCtx.Done():
					// Degraded or caller cancelled: leave the member pending.
					continue
				default:
				}
				m := r.runMember(runCtx, runID, out[idx])
				recordTerminal(idx, m)
			}
		}()
	}
	wg.Wait()

	result := &Result{RunID: runID, Members: out}
	for _, m := range out {
		if m.Status == StatusSucceeded {
			result.Succeeded = append(result.Succeeded, m)
		}
	}
	result.Dropped = total - len(result.Succeeded)

	if degraded {
		r.events.Log(map[string]any{"event": "run_degraded", "run_id": runID, "failed": failures, "total": total})
		if err := r.ledger.FinishRun(ctx, runID, len(result.Succeeded), result.Dropped, "degraded"); err != nil {
			r.logger.Warn("ledger update failed", "error", err)
		}
		return result, fmt.Errorf("%w: %d of %d members failed (threshold %.2f)",
			ErrEnsembleDegraded, failures, total, r.cfg.FailThreshold)
	}

	r.logger.Info("ensemble complete",
		"run_id", runID,
		"succeeded", len(result.Succeeded),
		"dropped", result.Dropped)
	r.events.Log(map[string]any{"event": "run_done", "run_id": runID, "succeeded": len(result.Succeeded), "dropped": result.Dropped})
	if err := r.ledger.FinishRun(ctx, runID, len(result.Succeeded), result.Dropped, "complete"); err != nil {
		r.logger.Warn("ledger update failed", "error", err)
	}

	return result, nil
}

// runMember executes a single member to a terminal status. The member's
// success is decided by its artifact, not the delegate's exit code: the
// simulation is known to exit non-zero on harmless floating-point warnings
// and to exit zero after producing nothing.
func (r *Runner) runMember(ctx context.Context, runID string, m Member) Member {
	m.Status = StatusRunning
	if err := r.ledger.RecordMember(ctx, runID, m); err != nil {
		r.logger.Warn("ledger update failed", "member", m.Index, "error", err)
	}
	r.logger.Debug("member started", "member", m.Index)

	mctx, cancel := context.WithTimeout(ctx, r.cfg.MemberTimeout)
	defer cancel()

	start := time.Now()
	outcome, runErr := r.delegate.Run(mctx, RunSpec{
		Index:      m.Index,
		ICPath:     m.ICPath,
		OutputPath: m.OutputPath,
		Ranks:      r.cfg.Ranks,
		Duration:   r.cfg.Duration,
		WorkDir:    r.cfg.WorkDir,
	})
	m.WallTime = time.Since(start)
	m.ExitCode = outcome.ExitCode

	switch {
	case mctx.Err() == context.DeadlineExceeded:
		m.Status = StatusTimedOut
		m.Detail = fmt.Sprintf("killed after %v", r.cfg.MemberTimeout)
	case runErr != nil && ctx.Err() != nil:
		// Run-level cancellation, not this member's fault.
		m.Status = StatusFailed
		m.Detail = "cancelled"
	default:
		if runErr != nil {
			// Could not even start the delegate.
			m.Status = StatusFailed
			m.Detail = runErr.Error()
			break
		}
		if err := CheckArtifact(m.OutputPath); err != nil {
			m.Status = StatusFailed
			m.Detail = err.Error()
			break
		}
		m.Status = StatusSucceeded
		if outcome.ExitCode != 0 {
			r.logger.Warn("delegate exited non-zero but artifact verified",
				"member", m.Index, "exit_code", outcome.ExitCode)
		}
	}

	r.logger.Log(ctx, logging.LevelTrace, "member finished",
		"member", m.Index,
		"status", string(m.Status),
		"exit_code", m.ExitCode,
		"wall", m.WallTime.Round(time.Millisecond),
		"stderr", outcome.Stderr)
	r.events.Log(map[string]any{
		"event":     "member_done",
		"run_id":    runID,
		"member":    m.Index,
		"status":    string(m.Status),
		"exit_code": m.ExitCode,
		"wall_ms":   m.WallTime.Milliseconds(),
	})
	if err := r.ledger.RecordMember(ctx, runID, m); err != nil {
		r.logger.Warn("ledger update failed", "member", m.Index, "error", err)
	}

	return m
}
