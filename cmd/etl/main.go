package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"main/internal/inject"
	"main/internal/model/enum"
	"main/internal/normalize"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/orchestrator"
	"main/internal/ratelimit"
	"main/internal/store"
	"main/internal/tracker"
	"main/pkg/conn"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

// errRunFailed maps to exit code 2 once every deferred cleanup has run.
var errRunFailed = errors.New("etl: run finished with all sources failed")

func main() {
	if err := run(); err != nil {
		if errors.Is(err, errRunFailed) {
			os.Exit(2)
		}
		logs.Errorf("etl: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configFlag := flag.String("config", "config.json", "path to the JSON config file")
	migrateFlag := flag.Bool("migrate-only", false, "run schema migration and exit")
	compareFlag := flag.String("compare", "", "compare two run ids, comma separated (or 'latest'), and exit")
	resetFlag := flag.String("reset", "", "clear the named source's checkpoint and exit")
	driftsFlag := flag.String("drifts", "", "list unresolved schema drifts ('all' or a source type) and exit")
	resolveFlag := flag.Uint("resolve", 0, "mark the drift record id resolved and exit")
	profileFlag := flag.String("profile", "", "pyroscope server address (optional)")
	flag.Parse()

	loaded, err := ops.Load(*configFlag)
	if err != nil {
		return err
	}

	if *profileFlag != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "etl",
			ServerAddress:   *profileFlag,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return err
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	client, err := conn.New(loaded.Database)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	repo := store.New(client.DB())
	if err := repo.Migrate(); err != nil {
		return err
	}
	if *migrateFlag {
		logs.Info("migration complete")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		select {
		case <-sys.Shutdown():
			stop()
		case <-ctx.Done():
		}
	}()

	switch {
	case *resetFlag != "":
		if err := repo.Checkpoints().Reset(ctx, *resetFlag); err != nil {
			return err
		}
		logs.Infof("checkpoint for %s cleared", *resetFlag)
		return nil
	case *driftsFlag != "":
		return listDrifts(ctx, repo.Drifts(), *driftsFlag)
	case *resolveFlag != 0:
		if err := repo.Drifts().Resolve(ctx, *resolveFlag); err != nil {
			return err
		}
		logs.Infof("drift %d resolved", *resolveFlag)
		return nil
	}

	trk := tracker.New(repo.Runs(), repo.Drifts())
	if *compareFlag != "" {
		return compareRuns(ctx, trk, repo.Runs(), *compareFlag)
	}

	injector, err := inject.New(loaded.Inject)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(loaded.RateLimit, loaded.Limits)
	norm := normalize.New(loaded.Drift, loaded.Mappings)
	metrics := obs.NewMetrics()
	limiter.NotifyBackoff(metrics.IncBackoff)

	orch := orchestrator.New(
		loaded.Run,
		loaded.BuildExtractors(limiter),
		repo.Checkpoints(),
		repo.Loader(),
		repo.Drifts(),
		trk,
		norm,
		injector,
		metrics,
	)

	runRecord, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	snapshot := metrics.Snapshot()
	for sourceID, counts := range snapshot.Sources {
		logs.Infof("source %s: extracted %d normalized %d loaded %d skipped %d failed %d drifts %d",
			sourceID, counts.Extracted, counts.Normalized, counts.Loaded,
			counts.Skipped, counts.Failed, counts.Drifts)
	}
	logs.Infof("run %s finished with status %s", runRecord.RunID, runRecord.Status)

	if runRecord.Status == enum.RunStatusFailed {
		return errRunFailed
	}
	return nil
}

func compareRuns(ctx context.Context, trk *tracker.Tracker, runs *store.RunStore, arg string) error {
	var baseID, targetID string
	if arg == "latest" {
		last, err := runs.LastRuns(ctx, 2)
		if err != nil {
			return err
		}
		if len(last) < 2 {
			return errors.New("compare latest needs at least two recorded runs")
		}
		baseID, targetID = last[1].RunID, last[0].RunID
	} else {
		var ok bool
		baseID, targetID, ok = splitPair(arg)
		if !ok {
			return errors.New("compare expects two run ids separated by a comma")
		}
	}
	cmp, err := trk.Compare(ctx, baseID, targetID)
	if err != nil {
		return err
	}
	logs.Infof("runs %s -> %s: loaded %d -> %d (%+.0f%%), duration %s -> %s",
		cmp.BaseRunID, cmp.TargetRunID, cmp.LoadedBase, cmp.LoadedTarget,
		cmp.LoadedPct*100, cmp.DurationBase, cmp.DurationBase+cmp.DurationDelta)
	if len(cmp.Anomalies) == 0 {
		logs.Info("no anomalies")
		return nil
	}
	for _, anomaly := range cmp.Anomalies {
		logs.Warnf("anomaly: %s", anomaly)
	}
	return nil
}

func listDrifts(ctx context.Context, drifts *store.DriftLog, filter string) error {
	sourceType := enum.SourceTypeUnknown
	if filter != "all" {
		sourceType = enum.SourceType(filter)
		if !sourceType.IsAvailable() {
			return errors.Errorf("unknown source type %q", filter)
		}
	}
	open, err := drifts.Unresolved(ctx, sourceType)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		logs.Info("no unresolved drifts")
		return nil
	}
	for _, d := range open {
		logs.Infof("drift %d [%s/%s] %s %q -> %q (confidence %.2f, detected %s)",
			d.ID, d.Severity, d.Kind, d.SourceType, d.FieldName, d.TargetField,
			d.Confidence, d.DetectedAt.Format(time.RFC3339))
	}
	return nil
}

func splitPair(arg string) (string, string, bool) {
	for i := range arg {
		if arg[i] == ',' {
			return arg[:i], arg[i+1:], arg[:i] != "" && arg[i+1:] != ""
		}
	}
	return "", "", false
}
