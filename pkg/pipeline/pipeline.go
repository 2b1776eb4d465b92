// Package pipeline runs a complete threat graph build: availability checks,
// flow fetch, enrichment, assembly and load.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-threatgraph/pkg/archive"
	"github.com/dd0wney/cluso-threatgraph/pkg/flow"
	"github.com/dd0wney/cluso-threatgraph/pkg/graph"
	"github.com/dd0wney/cluso-threatgraph/pkg/health"
	"github.com/dd0wney/cluso-threatgraph/pkg/intel"
	"github.com/dd0wney/cluso-threatgraph/pkg/loader"
	"github.com/dd0wney/cluso-threatgraph/pkg/logging"
	"github.com/dd0wney/cluso-threatgraph/pkg/metrics"
)

// Step names used in logs and metrics.
const (
	StepCheck    = "check"
	StepFetch    = "fetch"
	StepEnrich   = "enrich"
	StepArchive  = "archive"
	StepAssemble = "assemble"
	StepLoad     = "load"
)

// ErrUnavailable is returned when an availability check fails.
var ErrUnavailable = errors.New("dependency unavailable")

// Config wires a Runner.
type Config struct {
	Flows  flow.Source
	Lookup intel.Lookup
	Store  loader.Store

	// Checks runs before anything else. Nil skips the checks.
	Checks *health.HealthChecker

	Index      string
	Window     string
	NoName     string
	Clean      bool
	ArchiveDir string

	Logger  logging.Logger
	Metrics *metrics.Registry
}

// Report summarizes a run.
type Report struct {
	RunID       string
	Started     time.Time
	Duration    time.Duration
	Flows       int
	Enrichments int
	Anomalies   int
	Graph       graph.Stats
	Load        loader.Result
	Archive     string
	Health      *health.Response
}

// Runner executes runs. It holds no per-run state.
type Runner struct {
	cfg    Config
	logger logging.Logger
}

// New creates a runner.
func New(cfg Config) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	if cfg.NoName == "" {
		cfg.NoName = flow.DefaultNoName
	}
	if cfg.Window == "" {
		cfg.Window = flow.DefaultWindow
	}
	return &Runner{cfg: cfg, logger: cfg.Logger.With(logging.Component("pipeline"))}
}

// Check runs the availability checks only.
func (r *Runner) Check(ctx context.Context) (*health.Response, error) {
	if r.cfg.Checks == nil {
		return nil, nil
	}
	start := time.Now()
	resp := r.cfg.Checks.Check(ctx)
	r.cfg.Metrics.RecordStep(StepCheck, time.Since(start))

	for _, name := range resp.Order {
		c := resp.Checks[name]
		r.logger.Info("availability check",
			logging.String("check", name),
			logging.String("status", string(c.Status)),
			logging.String("message", c.Message))
	}
	if failed := resp.Failed(); len(failed) > 0 {
		return &resp, fmt.Errorf("%w: %s", ErrUnavailable, strings.Join(failed, ", "))
	}
	return &resp, nil
}

// Run performs a full run against the live sources.
func (r *Runner) Run(ctx context.Context) (report *Report, err error) {
	report = &Report{RunID: uuid.NewString(), Started: time.Now()}
	logger := r.logger.With(logging.RunID(report.RunID))
	defer r.finish(logger, report, &err)

	logger.Info("run started",
		logging.String("index", r.cfg.Index),
		logging.String("window", r.cfg.Window),
		logging.Bool("clean", r.cfg.Clean))

	report.Health, err = r.Check(ctx)
	if err != nil {
		return report, err
	}

	var records []flow.Record
	if err = r.step(ctx, logger, StepFetch, func() (err error) {
		records, err = r.cfg.Flows.Fetch(ctx, r.cfg.Index, r.cfg.Window)
		return err
	}); err != nil {
		return report, err
	}
	report.Flows = len(records)
	r.cfg.Metrics.RecordFlowsFetched(len(records))

	var arc *archive.Archive
	defer func() {
		if arc == nil || err == nil {
			return
		}
		if aerr := arc.Abort(); aerr != nil {
			logger.Warn("failed to remove incomplete archive", logging.String("path", arc.Path()), logging.Error(aerr))
			return
		}
		report.Archive = ""
	}()
	if r.cfg.ArchiveDir != "" {
		if err = r.step(ctx, logger, StepArchive, func() (err error) {
			if arc, err = archive.Create(r.cfg.ArchiveDir, report.RunID); err != nil {
				return err
			}
			return arc.AppendFlows(records)
		}); err != nil {
			return report, err
		}
		report.Archive = arc.Path()
		logger.Info("archiving inputs", logging.String("path", arc.Path()))
	}

	var enrichments []intel.Enrichment
	if err = r.step(ctx, logger, StepEnrich, func() (err error) {
		enricher := intel.NewEnricher(r.cfg.Lookup, r.cfg.NoName, logger, r.cfg.Metrics)
		enrichments, err = enricher.Enrich(ctx, records)
		return err
	}); err != nil {
		return report, err
	}
	report.Enrichments = len(enrichments)
	r.cfg.Metrics.RecordEnrichments(len(enrichments))

	if arc != nil {
		if err = arc.AppendEnrichments(enrichments); err == nil {
			err = arc.Close()
		}
		if err != nil {
			return report, fmt.Errorf("%s: %w", StepArchive, err)
		}
	}

	err = r.assembleAndLoad(ctx, logger, report, records, enrichments)
	return report, err
}

// Replay rebuilds the graph from an archived run without contacting the
// flow index or the portal.
func (r *Runner) Replay(ctx context.Context, path string) (report *Report, err error) {
	report = &Report{RunID: uuid.NewString(), Started: time.Now(), Archive: path}
	logger := r.logger.With(logging.RunID(report.RunID))
	defer r.finish(logger, report, &err)

	logger.Info("replay started", logging.String("archive", path), logging.Bool("clean", r.cfg.Clean))

	contents, err := archive.Read(path)
	if err != nil {
		return report, fmt.Errorf("read archive: %w", err)
	}
	report.Flows = len(contents.Flows)
	report.Enrichments = len(contents.Enrichments)

	err = r.assembleAndLoad(ctx, logger, report, contents.Flows, contents.Enrichments)
	return report, err
}

func (r *Runner) assembleAndLoad(ctx context.Context, logger logging.Logger, report *Report, records []flow.Record, enrichments []intel.Enrichment) error {
	var assembly *Assembly
	if err := r.step(ctx, logger, StepAssemble, func() (err error) {
		assembly, err = Build(records, enrichments, r.cfg.NoName, logger, r.cfg.Metrics)
		return err
	}); err != nil {
		return err
	}
	report.Anomalies = assembly.Anomalies
	report.Graph = assembly.Graph.Stats()

	return r.step(ctx, logger, StepLoad, func() (err error) {
		report.Load, err = loader.New(r.cfg.Store, logger, r.cfg.Metrics).Load(ctx, assembly.Graph, r.cfg.Clean)
		return err
	})
}

// step runs fn unless ctx is already cancelled, timing it.
func (r *Runner) step(ctx context.Context, logger logging.Logger, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	timer := logging.StartTimer(logger, "step finished", logging.Step(name))
	err := fn()
	var elapsed time.Duration
	if err != nil {
		elapsed = timer.EndError(err)
	} else {
		elapsed = timer.End()
	}
	r.cfg.Metrics.RecordStep(name, elapsed)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (r *Runner) finish(logger logging.Logger, report *Report, errp *error) {
	report.Duration = time.Since(report.Started)
	r.cfg.Metrics.RecordRun(*errp == nil, time.Now())
	if *errp != nil {
		logger.Error("run failed", logging.Duration("duration", report.Duration), logging.Error(*errp))
		return
	}
	logger.Info("run finished", logging.Duration("duration", report.Duration))
}
