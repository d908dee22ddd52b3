package store

import (
	"context"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
)

// RunStore persists run lifecycle records.
type RunStore struct {
	db *gorm.DB
}

// CreateRun persists a freshly started run.
func (r *RunStore) CreateRun(ctx context.Context, run *model.Run) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return errors.Wrap(err, "create run")
	}
	return nil
}

// FinalizeRun writes the terminal status and timing. Finalized runs are
// never touched again.
func (r *RunStore) FinalizeRun(ctx context.Context, run *model.Run) error {
	res := r.db.WithContext(ctx).Model(&model.Run{}).
		Where("run_id = ? AND status = ?", run.RunID, enum.RunStatusRunning).
		Updates(map[string]any{
			"status":        run.Status,
			"completed_at":  run.CompletedAt,
			"duration":      run.Duration,
			"error_summary": run.ErrorSummary,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "finalize run "+run.RunID)
	}
	if res.RowsAffected == 0 {
		return errors.Wrap(exception.ErrUnknownRun, run.RunID)
	}
	return nil
}

// AppendSource records one source's outcome within a run.
func (r *RunStore) AppendSource(ctx context.Context, outcome *model.RunSource) error {
	if err := r.db.WithContext(ctx).Create(outcome).Error; err != nil {
		return errors.Wrap(err, "append run source "+outcome.SourceID)
	}
	return nil
}

// Run fetches one run by its id.
func (r *RunStore) Run(ctx context.Context, runID string) (*model.Run, error) {
	var run model.Run
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(exception.ErrUnknownRun, runID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get run "+runID)
	}
	return &run, nil
}

// ActiveRun returns the newest run still marked running, or nil.
func (r *RunStore) ActiveRun(ctx context.Context) (*model.Run, error) {
	var run model.Run
	err := r.db.WithContext(ctx).
		Where("status = ?", enum.RunStatusRunning).
		Order("started_at DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find active run")
	}
	return &run, nil
}

// RunSources lists the per-source outcomes of a run.
func (r *RunStore) RunSources(ctx context.Context, runID string) ([]model.RunSource, error) {
	var outcomes []model.RunSource
	if err := r.db.WithContext(ctx).Where("run_id = ?", runID).Find(&outcomes).Error; err != nil {
		return nil, errors.Wrap(err, "list run sources "+runID)
	}
	return outcomes, nil
}

// LastRuns returns the most recent runs, newest first.
func (r *RunStore) LastRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 10
	}
	var runs []model.Run
	if err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	return runs, nil
}
