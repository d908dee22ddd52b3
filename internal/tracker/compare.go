package tracker

import (
	"context"
	"fmt"
	"time"

	"main/internal/model/enum"

	"github.com/yanun0323/errors"
)

const (
	// recordSwingThreshold flags a loaded-count change above 50 percent.
	recordSwingThreshold = 0.5
	// slowdownThreshold flags a run taking more than twice as long.
	slowdownThreshold = 1.0
)

// Comparison is the delta between two finished runs.
type Comparison struct {
	BaseRunID     string
	TargetRunID   string
	BaseStatus    enum.RunStatus
	TargetStatus  enum.RunStatus
	LoadedBase    int64
	LoadedTarget  int64
	LoadedDelta   int64
	LoadedPct     float64
	DurationBase  time.Duration
	DurationDelta time.Duration
	DurationPct   float64
	DriftBase     int64
	DriftTarget   int64
	Anomalies     []string
}

// Compare diffs two runs and flags anomalies: a loaded-record swing over
// 50 percent, a slowdown over 100 percent, or a status change.
func (t *Tracker) Compare(ctx context.Context, baseID, targetID string) (*Comparison, error) {
	base, err := t.runs.Run(ctx, baseID)
	if err != nil {
		return nil, err
	}
	target, err := t.runs.Run(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !base.Status.IsTerminal() || !target.Status.IsTerminal() {
		return nil, errors.New("tracker: compare requires finished runs")
	}

	cmp := &Comparison{
		BaseRunID:    base.RunID,
		TargetRunID:  target.RunID,
		BaseStatus:   base.Status,
		TargetStatus: target.Status,
		DurationBase: base.Duration,
	}

	for _, runID := range []string{baseID, targetID} {
		outcomes, err := t.runs.RunSources(ctx, runID)
		if err != nil {
			return nil, err
		}
		var loaded int64
		for _, o := range outcomes {
			loaded += o.Counts.Loaded
		}
		if runID == baseID {
			cmp.LoadedBase = loaded
		} else {
			cmp.LoadedTarget = loaded
		}
	}

	cmp.LoadedDelta = cmp.LoadedTarget - cmp.LoadedBase
	if cmp.LoadedBase > 0 {
		cmp.LoadedPct = float64(cmp.LoadedDelta) / float64(cmp.LoadedBase)
	}
	cmp.DurationDelta = target.Duration - base.Duration
	if base.Duration > 0 {
		cmp.DurationPct = float64(cmp.DurationDelta) / float64(base.Duration)
	}

	cmp.DriftBase, err = t.driftsDuring(ctx, base.StartedAt, base.CompletedAt)
	if err != nil {
		return nil, err
	}
	cmp.DriftTarget, err = t.driftsDuring(ctx, target.StartedAt, target.CompletedAt)
	if err != nil {
		return nil, err
	}

	if cmp.LoadedBase > 0 && abs(cmp.LoadedPct) > recordSwingThreshold {
		cmp.Anomalies = append(cmp.Anomalies,
			fmt.Sprintf("loaded records changed %+.0f%%", cmp.LoadedPct*100))
	}
	if base.Duration > 0 && cmp.DurationPct > slowdownThreshold {
		cmp.Anomalies = append(cmp.Anomalies,
			fmt.Sprintf("run %.0f%% slower", cmp.DurationPct*100))
	}
	if base.Status != target.Status {
		cmp.Anomalies = append(cmp.Anomalies,
			fmt.Sprintf("status changed %s -> %s", base.Status, target.Status))
	}
	if cmp.DriftTarget > cmp.DriftBase {
		cmp.Anomalies = append(cmp.Anomalies,
			fmt.Sprintf("%d new drift events", cmp.DriftTarget-cmp.DriftBase))
	}

	return cmp, nil
}

func (t *Tracker) driftsDuring(ctx context.Context, from time.Time, to *time.Time) (int64, error) {
	if to == nil {
		return 0, nil
	}
	return t.drifts.CountBetween(ctx, from, *to)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
