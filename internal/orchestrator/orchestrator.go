package orchestrator

import (
	"context"
	"io"
	"time"

	"main/internal/extract"
	"main/internal/inject"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/store"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/sync/errgroup"
)

type checkpointStore interface {
	Get(ctx context.Context, sourceID string) (model.Cursor, error)
	Advance(ctx context.Context, sourceID string, sourceType enum.SourceType, cursor model.Cursor) error
	MarkRunning(ctx context.Context, sourceID string, sourceType enum.SourceType) error
	MarkIdle(ctx context.Context, sourceID string, sourceType enum.SourceType) error
	MarkFailed(ctx context.Context, sourceID string, sourceType enum.SourceType, cause error) error
}

type batchLoader interface {
	Load(ctx context.Context, raws []model.RawRecord, records []model.UnifiedRecord) (store.LoadResult, error)
}

type driftLog interface {
	Append(ctx context.Context, drifts []model.SchemaDrift) error
}

type runTracker interface {
	StartRun(ctx context.Context) (string, error)
	RecordSourceOutcome(ctx context.Context, runID string, outcome model.RunSource) error
	FinishRun(ctx context.Context, runID string) (*model.Run, error)
	AbortRun(ctx context.Context, runID string, cause error) error
}

type normalizer interface {
	Normalize(raw model.RawRecord) (*model.UnifiedRecord, []model.SchemaDrift, error)
}

type failureSwitch interface {
	Check(sourceID string, stage inject.Stage) error
}

// Config tunes one orchestration run.
type Config struct {
	// Parallel runs one worker per source instead of processing sources
	// in configuration order.
	Parallel bool
	// RunTimeout bounds the whole run's wall clock. Zero disables it.
	RunTimeout time.Duration
}

// Orchestrator drives the extract, normalize, load and checkpoint pipeline
// for every enabled source within a single tracked run.
type Orchestrator struct {
	cfg         Config
	extractors  []extract.Extractor
	checkpoints checkpointStore
	loader      batchLoader
	drifts      driftLog
	tracker     runTracker
	normalizer  normalizer
	injector    failureSwitch
	metrics     *obs.Metrics
	trace       *obs.TraceGenerator
}

func New(
	cfg Config,
	extractors []extract.Extractor,
	checkpoints checkpointStore,
	loader batchLoader,
	drifts driftLog,
	tracker runTracker,
	norm normalizer,
	injector failureSwitch,
	metrics *obs.Metrics,
) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		extractors:  extractors,
		checkpoints: checkpoints,
		loader:      loader,
		drifts:      drifts,
		tracker:     tracker,
		normalizer:  norm,
		injector:    injector,
		metrics:     metrics,
		trace:       obs.NewTraceGenerator(0),
	}
}

// Run executes one full pipeline run across all configured sources. A
// failing source never stops the others; the returned run carries the
// derived overall status.
func (o *Orchestrator) Run(ctx context.Context) (*model.Run, error) {
	if len(o.extractors) == 0 {
		return nil, errors.New("orchestrator: no sources configured")
	}

	runID, err := o.tracker.StartRun(ctx)
	if err != nil {
		return nil, err
	}
	o.metrics.IncRunStarted()

	runCtx := ctx
	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	// failed bookkeeping still closes the run row and releases the run lock
	abort := func(cause error) {
		if err := o.tracker.AbortRun(context.WithoutCancel(ctx), runID, cause); err != nil {
			logs.Errorf("abort run %s: %v", runID, err)
		}
	}

	if o.cfg.Parallel {
		group, groupCtx := errgroup.WithContext(runCtx)
		for _, ex := range o.extractors {
			group.Go(func() error {
				outcome := o.runSource(groupCtx, ex)
				return o.tracker.RecordSourceOutcome(ctx, runID, outcome)
			})
		}
		if err := group.Wait(); err != nil {
			abort(err)
			return nil, err
		}
	} else {
		for _, ex := range o.extractors {
			outcome := o.runSource(runCtx, ex)
			if err := o.tracker.RecordSourceOutcome(ctx, runID, outcome); err != nil {
				abort(err)
				return nil, err
			}
		}
	}

	run, err := o.tracker.FinishRun(context.WithoutCancel(ctx), runID)
	if err != nil {
		return nil, err
	}
	o.metrics.IncRunFinished()
	return run, nil
}

// runSource walks one source through the pipeline until its extractor
// reports done or a stage fails. Failures are captured in the outcome, not
// returned; the source's checkpoint stays at the last durable batch.
func (o *Orchestrator) runSource(ctx context.Context, ex extract.Extractor) model.RunSource {
	sourceID, sourceType := ex.SourceID(), ex.Type()
	defer func() {
		if closer, ok := ex.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				logs.Warnf("source %s: close extractor: %v", sourceID, err)
			}
		}
	}()
	m := newMachine(sourceID)
	outcome := model.RunSource{
		SourceID:   sourceID,
		SourceType: sourceType,
		Status:     enum.RunStatusSuccess,
	}

	fail := func(stage SourceState, cause error) model.RunSource {
		_ = m.to(SourceStateFailed)
		markCtx := context.WithoutCancel(ctx)
		if err := o.checkpoints.MarkFailed(markCtx, sourceID, sourceType, cause); err != nil {
			logs.Errorf("source %s: mark failed: %v", sourceID, err)
		}
		outcome.Status = enum.RunStatusFailed
		outcome.Error = stage.String() + ": " + cause.Error()
		logs.Warnf("source %s failed at %s: %v", sourceID, stage, cause)
		return outcome
	}

	if err := o.checkpoints.MarkRunning(ctx, sourceID, sourceType); err != nil {
		return fail(SourceStatePending, err)
	}
	cursor, err := o.checkpoints.Get(ctx, sourceID)
	if err != nil {
		return fail(SourceStatePending, err)
	}

	for {
		if err := m.to(SourceStateExtracting); err != nil {
			return fail(m.state, err)
		}
		if err := o.injector.Check(sourceID, inject.StageExtract); err != nil {
			return fail(SourceStateExtracting, err)
		}

		tid := o.trace.Next()
		started := time.Now()
		batch, err := ex.Extract(ctx, cursor)
		o.metrics.ObserveExtract(time.Since(started))
		if err != nil {
			return fail(SourceStateExtracting, err)
		}

		counts := model.Counts{Extracted: int64(len(batch.Records))}

		if len(batch.Records) > 0 {
			if err := m.to(SourceStateNormalizing); err != nil {
				return fail(m.state, err)
			}
			if err := o.injector.Check(sourceID, inject.StageNormalize); err != nil {
				return fail(SourceStateNormalizing, err)
			}

			records := make([]model.UnifiedRecord, 0, len(batch.Records))
			var drifts []model.SchemaDrift
			for _, raw := range batch.Records {
				record, recordDrifts, err := o.normalizer.Normalize(raw)
				drifts = append(drifts, recordDrifts...)
				if err != nil {
					counts.Skipped++
					logs.Warnf("source %s trace %d: skip record %s: %v",
						sourceID, tid, raw.SourceRecordID, err)
					continue
				}
				records = append(records, *record)
			}
			counts.Normalized = int64(len(records))
			counts.Drifts = int64(len(drifts))

			// drift is advisory and never blocks the batch
			if err := o.drifts.Append(ctx, drifts); err != nil {
				logs.Errorf("source %s: append drift events: %v", sourceID, err)
			}

			if err := m.to(SourceStateLoading); err != nil {
				return fail(m.state, err)
			}
			if err := o.injector.Check(sourceID, inject.StageLoad); err != nil {
				return fail(SourceStateLoading, err)
			}

			started = time.Now()
			result, err := o.loader.Load(ctx, batch.Records, records)
			o.metrics.ObserveLoad(time.Since(started))
			if err != nil {
				return fail(SourceStateLoading, err)
			}
			counts.Loaded = result.Inserted + result.Updated
			counts.Failed = result.Failed
		}

		if err := m.to(SourceStateCheckpointing); err != nil {
			return fail(m.state, err)
		}
		if err := o.injector.Check(sourceID, inject.StageCheckpoint); err != nil {
			return fail(SourceStateCheckpointing, err)
		}
		if !batch.Next.Equal(cursor) {
			if err := o.checkpoints.Advance(ctx, sourceID, sourceType, batch.Next); err != nil {
				return fail(SourceStateCheckpointing, err)
			}
			cursor = batch.Next
		}

		outcome.Counts.Add(counts)
		o.metrics.ObserveBatch(sourceID, counts)
		logs.Debugf("source %s trace %d: extracted %d loaded %d skipped %d",
			sourceID, tid, counts.Extracted, counts.Loaded, counts.Skipped)

		if batch.Done {
			break
		}
	}

	if err := m.to(SourceStateDone); err != nil {
		return fail(m.state, err)
	}
	if err := o.checkpoints.MarkIdle(context.WithoutCancel(ctx), sourceID, sourceType); err != nil {
		logs.Errorf("source %s: mark idle: %v", sourceID, err)
	}
	logs.Infof("source %s done: extracted %d loaded %d skipped %d failed %d",
		sourceID, outcome.Counts.Extracted, outcome.Counts.Loaded,
		outcome.Counts.Skipped, outcome.Counts.Failed)
	return outcome
}
