package tracker

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

type runStore interface {
	CreateRun(ctx context.Context, run *model.Run) error
	FinalizeRun(ctx context.Context, run *model.Run) error
	AppendSource(ctx context.Context, outcome *model.RunSource) error
	Run(ctx context.Context, runID string) (*model.Run, error)
	RunSources(ctx context.Context, runID string) ([]model.RunSource, error)
	ActiveRun(ctx context.Context) (*model.Run, error)
}

type driftCounter interface {
	CountBetween(ctx context.Context, from, to time.Time) (int64, error)
}

// Tracker records run lifecycle and produces run-over-run comparisons.
// At most one run may be active per process.
type Tracker struct {
	runs   runStore
	drifts driftCounter
	active atomic.Bool
	now    func() time.Time
}

func New(runs runStore, drifts driftCounter) *Tracker {
	return &Tracker{
		runs:   runs,
		drifts: drifts,
		now:    time.Now,
	}
}

// StartRun opens a new run and claims the process-wide run lock.
func (t *Tracker) StartRun(ctx context.Context) (string, error) {
	if t == nil {
		return "", errors.New("tracker: nil receiver")
	}

	if !t.active.CompareAndSwap(false, true) {
		return "", exception.ErrRunInProgress
	}

	// a running row left by another process, or by a crash, also blocks
	existing, err := t.runs.ActiveRun(ctx)
	if err != nil {
		t.active.Store(false)
		return "", errors.Wrap(err, "start run")
	}
	if existing != nil {
		t.active.Store(false)
		return "", errors.Wrap(exception.ErrRunInProgress, existing.RunID)
	}

	run := &model.Run{
		RunID:     uuid.NewString(),
		Status:    enum.RunStatusRunning,
		StartedAt: t.now().UTC(),
	}
	if err := t.runs.CreateRun(ctx, run); err != nil {
		t.active.Store(false)
		return "", errors.Wrap(err, "start run")
	}

	logs.Infof("run %s started", run.RunID)
	return run.RunID, nil
}

// RecordSourceOutcome appends one source's result to the run. Safe for
// concurrent callers; rows are append-only.
func (t *Tracker) RecordSourceOutcome(ctx context.Context, runID string, outcome model.RunSource) error {
	outcome.RunID = runID
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = t.now().UTC()
	}
	if err := t.runs.AppendSource(ctx, &outcome); err != nil {
		return errors.Wrap(err, "record source outcome")
	}
	return nil
}

// FinishRun derives the terminal status from the per-source outcomes,
// finalizes the run row and releases the run lock.
func (t *Tracker) FinishRun(ctx context.Context, runID string) (*model.Run, error) {
	defer t.active.Store(false)

	run, err := t.runs.Run(ctx, runID)
	if err != nil {
		return nil, err
	}

	outcomes, err := t.runs.RunSources(ctx, runID)
	if err != nil {
		return nil, err
	}

	completed := t.now().UTC()
	run.Status = deriveStatus(outcomes)
	run.CompletedAt = &completed
	run.Duration = completed.Sub(run.StartedAt)
	run.ErrorSummary = summarize(outcomes)

	if err := t.runs.FinalizeRun(ctx, run); err != nil {
		return nil, err
	}

	logs.Infof("run %s finished: %s in %s", run.RunID, run.Status, run.Duration)
	return run, nil
}

// AbortRun finalizes a run that could not complete normally and releases the
// run lock. The run row is closed as failed so it never blocks later runs.
func (t *Tracker) AbortRun(ctx context.Context, runID string, cause error) error {
	defer t.active.Store(false)

	run, err := t.runs.Run(ctx, runID)
	if err != nil {
		return err
	}

	completed := t.now().UTC()
	run.Status = enum.RunStatusFailed
	run.CompletedAt = &completed
	run.Duration = completed.Sub(run.StartedAt)
	if cause != nil {
		run.ErrorSummary = cause.Error()
	}

	if err := t.runs.FinalizeRun(ctx, run); err != nil {
		return err
	}

	logs.Warnf("run %s aborted: %v", run.RunID, cause)
	return nil
}

func deriveStatus(outcomes []model.RunSource) enum.RunStatus {
	if len(outcomes) == 0 {
		return enum.RunStatusFailed
	}
	failed := 0
	for _, o := range outcomes {
		if o.Status == enum.RunStatusFailed {
			failed++
		}
	}
	switch failed {
	case 0:
		return enum.RunStatusSuccess
	case len(outcomes):
		return enum.RunStatusFailed
	default:
		return enum.RunStatusPartial
	}
}

func summarize(outcomes []model.RunSource) string {
	var parts []string
	for _, o := range outcomes {
		if o.Status == enum.RunStatusFailed && o.Error != "" {
			parts = append(parts, o.SourceID+": "+o.Error)
		}
	}
	return strings.Join(parts, "; ")
}
