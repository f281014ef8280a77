package commands

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/dispatchbuilder/internal/config"
	"git.home.luguber.info/inful/dispatchbuilder/internal/dispatch"
	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/dispatchbuilder/internal/history"
	"git.home.luguber.info/inful/dispatchbuilder/internal/logfields"
	"git.home.luguber.info/inful/dispatchbuilder/internal/metrics"
	"git.home.luguber.info/inful/dispatchbuilder/internal/pipeline"
	"git.home.luguber.info/inful/dispatchbuilder/internal/plugin"
	"git.home.luguber.info/inful/dispatchbuilder/internal/retry"
)

// RunCmd implements the 'run' command.
type RunCmd struct {
	NoPublish       bool `help:"Run plugins but do not publish dispatches"`
	ContinueOnError bool `help:"Keep running the remaining plugins after one fails"`
}

func (r *RunCmd) Run(g *Global, root *CLI) error {
	cfg, runID, err := g.loadConfig(root)
	if err != nil {
		return err
	}
	_, err = Execute(g.ctx(), cfg, RunOptions{
		RunID:           runID,
		Logger:          g.Logger,
		NoPublish:       r.NoPublish,
		ContinueOnError: r.ContinueOnError,
	})
	return err
}

// RunOptions tunes Execute.
type RunOptions struct {
	RunID           string
	Logger          *slog.Logger
	NoPublish       bool
	ContinueOnError bool
	// Modules overrides the default module table.
	Modules *plugin.ModuleTable
	// Client overrides the HTTP client built from the publish configuration.
	Client dispatch.Client
}

// RunSummary reports what a run did.
type RunSummary struct {
	Plugins  int
	Pipeline *pipeline.Result
	Publish  *dispatch.Report
}

// Execute performs one complete run: activate plugins, run the pipeline,
// publish dispatches, save the ID store once and export metrics.
func Execute(ctx context.Context, cfg *config.Config, opts RunOptions) (*RunSummary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	recorder := metrics.NewPrometheusRecorder(nil)
	defer func() {
		recorder.ObserveRunDuration(time.Since(start))
		if path := cfg.Resolve(cfg.Metrics.Textfile); path != "" {
			if err := recorder.WriteTextfile(path); err != nil {
				logger.Warn("Failed to write metrics", logfields.Path(path), logfields.Error(err))
			}
		}
	}()

	reg, err := activatePlugins(ctx, cfg, logger, recorder, opts.Modules)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reg.Deactivate(); err != nil {
			logger.Warn("Plugin deactivation failed", logfields.Error(err))
		}
	}()

	summary := &RunSummary{Plugins: len(reg.All())}
	result, err := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithRecorder(recorder),
		pipeline.WithStopOnError(!opts.ContinueOnError),
	).Run(ctx, reg)
	summary.Pipeline = result
	if err != nil {
		return summary, err
	}

	if opts.NoPublish || (!cfg.Publish.Enabled && opts.Client == nil) {
		logger.Info("Publishing disabled, skipping dispatches")
		return summary, nil
	}

	report, err := publish(ctx, cfg, opts, logger, recorder, result.Stats)
	summary.Publish = report
	if err != nil {
		return summary, err
	}

	logger.Info("Run finished",
		logfields.Count(len(report.Created)+len(report.Edited)),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	if !report.OK() {
		return summary, errors.PluginError("some dispatches failed to publish").
			WithContext("failed", len(report.Failed)).
			Build()
	}
	return summary, nil
}

func activatePlugins(ctx context.Context, cfg *config.Config, logger *slog.Logger, recorder metrics.Recorder, modules *plugin.ModuleTable) (*plugin.Registry, error) {
	reg := plugin.NewRegistry(
		plugin.WithLogger(logger),
		plugin.WithRecorder(recorder),
		plugin.WithModules(modules),
	)
	if _, err := reg.Discover(cfg.Resolve(cfg.Plugins.Directory), cfg.Plugins.Extension); err != nil {
		return nil, err
	}
	if _, err := reg.LoadAndActivate(ctx); err != nil {
		return nil, err
	}
	return reg, nil
}

func publish(ctx context.Context, cfg *config.Config, opts RunOptions, logger *slog.Logger, recorder metrics.Recorder, stats map[string]any) (*dispatch.Report, error) {
	paths := make([]string, len(cfg.Dispatches.Files))
	for i, f := range cfg.Dispatches.Files {
		paths[i] = cfg.Resolve(f)
	}
	defs, err := dispatch.LoadDefinitions(logger, paths...)
	if err != nil {
		return nil, err
	}

	store, err := dispatch.LoadIDStore(cfg.Resolve(cfg.Dispatches.IDStore), logger)
	if err != nil {
		return nil, err
	}
	if err := store.SeedFromDefinitions(defs); err != nil {
		return nil, err
	}

	var hist history.Recorder = history.Noop{}
	if path := cfg.Resolve(cfg.History.Path); path != "" {
		sqlite, err := history.NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = sqlite.Close()
		}()
		hist = sqlite
	}

	client := opts.Client
	if client == nil {
		client = dispatch.NewHTTPClient(cfg.Publish.Endpoint, cfg.Publish.UserAgent,
			dispatch.WithHeaders(cfg.Publish.Headers),
			dispatch.WithTimeout(cfg.Publish.Timeout))
	}

	funcs, err := dispatch.DefaultFuncs().Select(cfg.Dispatches.Funcs)
	if err != nil {
		return nil, err
	}

	pub := dispatch.NewPublisher(client, store,
		dispatch.WithFuncs(funcs),
		dispatch.WithTemplatesDir(cfg.Resolve(cfg.Dispatches.TemplatesDir)),
		dispatch.WithPlaceholder(cfg.Publish.Placeholder),
		dispatch.WithInterval(cfg.Publish.Interval),
		dispatch.WithRetry(retry.FromConfig(cfg.Publish.Retry)),
		dispatch.WithHistory(hist),
		dispatch.WithMetrics(recorder),
		dispatch.WithPublisherLogger(logger),
		dispatch.WithRunID(opts.RunID),
	)

	report, err := pub.PublishAll(ctx, defs, stats)
	if err != nil {
		// An aborted run leaves the store file untouched.
		return report, err
	}

	if err := store.Save(); err != nil {
		recorder.IncStoreSave(metrics.ResultFailed)
		return report, err
	}
	recorder.IncStoreSave(metrics.ResultSuccess)
	return report, nil
}
