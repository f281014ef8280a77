// Package pipeline drives activated plugins through one run: Services provide
// shared values, Collectors gather data, Stats compute values from the
// collected data and from each other, and Views render the stats.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/dispatchbuilder/internal/logfields"
	"git.home.luguber.info/inful/dispatchbuilder/internal/metrics"
	"git.home.luguber.info/inful/dispatchbuilder/internal/params"
	"git.home.luguber.info/inful/dispatchbuilder/internal/plugin"
)

// Stage names used in logs and metrics.
const (
	StageServices   = "services"
	StageCollectors = "collectors"
	StageStats      = "stats"
	StageViews      = "views"
)

// Source supplies activated plugins by category.
type Source interface {
	GetByCategory(category string) ([]*plugin.Instance, error)
}

// Result holds the values produced by a run, keyed by plugin name.
type Result struct {
	Services  map[string]any
	Collected map[string]any
	Stats     map[string]any
	// Failures maps plugin names to the error they failed with. Only filled
	// when the pipeline continues on error.
	Failures map[string]error
	// Passes is the number of stat passes that ran.
	Passes int
}

// Pipeline runs plugins category by category.
type Pipeline struct {
	logger      *slog.Logger
	recorder    metrics.Recorder
	stopOnError bool
	maxPasses   int
}

// Option configures pipeline behavior.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(recorder metrics.Recorder) Option {
	return func(p *Pipeline) {
		if recorder != nil {
			p.recorder = recorder
		}
	}
}

// WithStopOnError configures whether the pipeline stops on the first plugin error.
func WithStopOnError(stop bool) Option {
	return func(p *Pipeline) {
		p.stopOnError = stop
	}
}

// WithMaxPasses bounds the number of stat passes. Zero means one pass per stat.
func WithMaxPasses(n int) Option {
	return func(p *Pipeline) {
		p.maxPasses = n
	}
}

// New creates a pipeline that stops on the first error.
func New(options ...Option) *Pipeline {
	p := &Pipeline{
		logger:      slog.Default(),
		recorder:    metrics.NoopRecorder{},
		stopOnError: true,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Run executes every stage in order. Services are absent from the result when
// the source has no Service category.
func (p *Pipeline) Run(ctx context.Context, src Source) (*Result, error) {
	res := &Result{
		Services:  make(map[string]any),
		Collected: make(map[string]any),
		Stats:     make(map[string]any),
		Failures:  make(map[string]error),
	}

	stages := []struct {
		name string
		run  func(context.Context, Source, *Result) error
	}{
		{StageServices, p.runServices},
		{StageCollectors, p.runCollectors},
		{StageStats, p.runStats},
		{StageViews, p.runViews},
	}

	for _, stage := range stages {
		start := time.Now()
		err := stage.run(ctx, src, res)
		elapsed := time.Since(start)
		p.recorder.ObserveStageDuration(stage.name, elapsed)
		p.logger.Debug("Stage finished", logfields.Stage(stage.name),
			logfields.DurationMS(float64(elapsed.Microseconds())/1000))
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

func (p *Pipeline) instances(src Source, category plugin.Category) ([]*plugin.Instance, error) {
	list, err := src.GetByCategory(string(category))
	if err != nil && errors.HasCategory(err, errors.CategoryInvalidCategory) && category == plugin.CategoryService {
		return nil, nil
	}
	return list, err
}

// fail records err for name. It returns err when the pipeline stops on error.
func (p *Pipeline) fail(res *Result, stage, name string, err error) error {
	p.recorder.IncStageResult(stage, metrics.ResultFailed)
	wrapped := errors.WrapError(err, errors.CategoryPlugin, "plugin failed").
		WithContext("plugin", name).
		WithContext("stage", stage).
		Build()
	p.logger.Error("Plugin failed", logfields.Stage(stage), logfields.Plugin(name), logfields.Error(err))
	if p.stopOnError {
		return wrapped
	}
	res.Failures[name] = wrapped
	return nil
}

func (p *Pipeline) succeed(stage, name string) {
	p.recorder.IncStageResult(stage, metrics.ResultSuccess)
	p.logger.Debug("Plugin finished", logfields.Stage(stage), logfields.Plugin(name))
}

func (p *Pipeline) runServices(ctx context.Context, src Source, res *Result) error {
	list, err := p.instances(src, plugin.CategoryService)
	if err != nil {
		return err
	}
	for _, inst := range list {
		if err := ctx.Err(); err != nil {
			return err
		}
		value, err := inst.Plugin.(plugin.Service).Provide(ctx)
		if err != nil {
			if ferr := p.fail(res, StageServices, inst.Name(), err); ferr != nil {
				return ferr
			}
			continue
		}
		res.Services[inst.Name()] = value
		p.succeed(StageServices, inst.Name())
	}
	return nil
}

func (p *Pipeline) runCollectors(ctx context.Context, src Source, res *Result) error {
	list, err := p.instances(src, plugin.CategoryCollector)
	if err != nil {
		return err
	}
	services := params.FromMap(res.Services, false)
	for _, inst := range list {
		if err := ctx.Err(); err != nil {
			return err
		}
		value, err := inst.Plugin.(plugin.Collector).Gather(ctx, services)
		if err != nil {
			if ferr := p.fail(res, StageCollectors, inst.Name(), err); ferr != nil {
				return ferr
			}
			continue
		}
		res.Collected[inst.Name()] = value
		p.succeed(StageCollectors, inst.Name())
	}
	return nil
}

// runStats computes stats in passes. A stat that reports NotYetExist is
// retried in the next pass; passes stop when a pass makes no progress.
func (p *Pipeline) runStats(ctx context.Context, src Source, res *Result) error {
	pending, err := p.instances(src, plugin.CategoryStat)
	if err != nil {
		return err
	}
	collected := params.FromMap(res.Collected, false)
	computed := params.FromMap(res.Stats, true)

	maxPasses := p.maxPasses
	if maxPasses <= 0 {
		maxPasses = len(pending)
	}

	deferredErr := make(map[string]error)
	for len(pending) > 0 && res.Passes < maxPasses {
		if err := ctx.Err(); err != nil {
			return err
		}
		res.Passes++
		var deferred []*plugin.Instance
		progress := false

		for _, inst := range pending {
			value, err := inst.Plugin.(plugin.Stat).Compute(ctx, collected, computed)
			switch {
			case err == nil:
				res.Stats[inst.Name()] = value
				delete(deferredErr, inst.Name())
				progress = true
				p.succeed(StageStats, inst.Name())
			case errors.IsNotYetExist(err):
				deferred = append(deferred, inst)
				deferredErr[inst.Name()] = err
				p.recorder.IncStageResult(StageStats, metrics.ResultDeferred)
				p.logger.Debug("Stat deferred", logfields.Plugin(inst.Name()), logfields.Pass(res.Passes), logfields.Error(err))
			default:
				if ferr := p.fail(res, StageStats, inst.Name(), err); ferr != nil {
					return ferr
				}
			}
		}

		pending = deferred
		if !progress {
			break
		}
	}

	for _, inst := range pending {
		err := errors.RuntimeError("stat inputs never became available").
			WithCause(deferredErr[inst.Name()]).
			WithContext("plugin", inst.Name()).
			WithContext("passes", res.Passes).
			Build()
		if ferr := p.fail(res, StageStats, inst.Name(), err); ferr != nil {
			return ferr
		}
	}
	return nil
}

func (p *Pipeline) runViews(ctx context.Context, src Source, res *Result) error {
	list, err := p.instances(src, plugin.CategoryView)
	if err != nil {
		return err
	}
	stats := params.FromMap(res.Stats, false)
	for _, inst := range list {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := inst.Plugin.(plugin.View).Render(ctx, stats); err != nil {
			if ferr := p.fail(res, StageViews, inst.Name(), err); ferr != nil {
				return ferr
			}
			continue
		}
		p.succeed(StageViews, inst.Name())
	}
	return nil
}
