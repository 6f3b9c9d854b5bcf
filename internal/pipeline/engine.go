package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/permitscope/permitscope/internal/config"
	"github.com/permitscope/permitscope/internal/db"
	"github.com/permitscope/permitscope/internal/model"
	"github.com/permitscope/permitscope/internal/socrata"
)

// Deps bundles the shared collaborators every stage needs.
type Deps struct {
	Pool     db.Pool
	Source   socrata.Source
	Socrata  config.SocrataConfig
	Pipeline config.PipelineConfig
}

// Engine holds the registered stages and wraps every invocation with
// audit logging. Dry runs execute but leave no trace, including no audit row.
type Engine struct {
	stages  map[string]Stage
	jobRuns *JobRuns
}

// NewEngine builds an engine with the full stage set registered.
func NewEngine(deps Deps) *Engine {
	e := &Engine{
		stages:  make(map[string]Stage),
		jobRuns: NewJobRuns(deps.Pool),
	}
	e.Register(NewPermitSync(deps))
	e.Register(NewInspectionSync(deps))
	e.Register(NewAmendmentSync(deps))
	e.Register(NewCertificateSync(deps))
	e.Register(NewFinaledDateSync(deps))
	e.Register(NewDurationCompute(deps))
	e.Register(NewContractorMetrics(deps))
	return e
}

// Register adds a stage under its name, replacing any previous registration.
func (e *Engine) Register(s Stage) {
	e.stages[s.Name()] = s
}

// StageNames returns the registered stage names, sorted.
func (e *Engine) StageNames() []string {
	names := make([]string, 0, len(e.stages))
	for name := range e.stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// JobRuns exposes the audit log for read paths.
func (e *Engine) JobRuns() *JobRuns {
	return e.jobRuns
}

// Run executes one stage by name and records the outcome in the audit log.
func (e *Engine) Run(ctx context.Context, name string, opts RunOpts) (*Result, error) {
	stage, ok := e.stages[name]
	if !ok {
		return nil, eris.Errorf("pipeline: unknown stage %q", name)
	}

	log := zap.L().With(zap.String("stage", name))
	log.Info("stage starting", zap.Bool("dry_run", opts.DryRun))
	startedAt := time.Now().UTC()

	res, err := stage.Run(ctx, opts)
	finishedAt := time.Now().UTC()

	if err != nil {
		if !opts.DryRun {
			if recErr := e.jobRuns.Record(ctx, name, stage.SourceKey(), model.JobFailed, 0, err.Error(), startedAt, finishedAt); recErr != nil {
				log.Warn("failed to record job run", zap.Error(recErr))
			}
		}
		log.Error("stage failed", zap.Error(err))
		return nil, err
	}

	if !opts.DryRun {
		if recErr := e.jobRuns.Record(ctx, name, stage.SourceKey(), model.JobSuccess, res.Rows, "", startedAt, finishedAt); recErr != nil {
			log.Warn("failed to record job run", zap.Error(recErr))
		}
	}
	log.Info("stage finished",
		zap.Int64("rows", res.Rows),
		zap.Duration("elapsed", finishedAt.Sub(startedAt)),
	)
	return res, nil
}
