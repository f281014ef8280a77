package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	registry         *prom.Registry
	pluginsActivated *prom.CounterVec
	configSkipped    *prom.CounterVec
	stageDuration    *prom.HistogramVec
	stageResults     *prom.CounterVec
	publishes        *prom.CounterVec
	publishRetries   prom.Counter
	storeSaves       *prom.CounterVec
	runDuration      prom.Gauge
	lastRun          prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{registry: reg}
	pr.once.Do(func() {
		pr.pluginsActivated = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dispatchbuilder",
			Name:      "plugins_activated_total",
			Help:      "Activated plugins by category",
		}, []string{"category"})
		pr.configSkipped = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dispatchbuilder",
			Name:      "plugin_config_skipped_total",
			Help:      "Plugins activated without configuration, by reason",
		}, []string{"reason"})
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "dispatchbuilder",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dispatchbuilder",
			Name:      "stage_results_total",
			Help:      "Plugin invocation results by stage",
		}, []string{"stage", "result"})
		pr.publishes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dispatchbuilder",
			Name:      "publishes_total",
			Help:      "Dispatch publish attempts by action and result",
		}, []string{"action", "result"})
		pr.publishRetries = prom.NewCounter(prom.CounterOpts{
			Namespace: "dispatchbuilder",
			Name:      "publish_retries_total",
			Help:      "Dispatch edits repeated after a transient failure",
		})
		pr.storeSaves = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dispatchbuilder",
			Name:      "id_store_saves_total",
			Help:      "Dispatch ID store save attempts by result",
		}, []string{"result"})
		pr.runDuration = prom.NewGauge(prom.GaugeOpts{
			Namespace: "dispatchbuilder",
			Name:      "run_duration_seconds",
			Help:      "Duration of the last run",
		})
		pr.lastRun = prom.NewGauge(prom.GaugeOpts{
			Namespace: "dispatchbuilder",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		})
		reg.MustRegister(pr.pluginsActivated, pr.configSkipped, pr.stageDuration, pr.stageResults, pr.publishes, pr.publishRetries, pr.storeSaves, pr.runDuration, pr.lastRun)
	})
	return pr
}

func (p *PrometheusRecorder) IncPluginActivated(category string) {
	if p == nil || p.pluginsActivated == nil {
		return
	}
	p.pluginsActivated.WithLabelValues(category).Inc()
}

func (p *PrometheusRecorder) IncPluginConfigSkipped(reason string) {
	if p == nil || p.configSkipped == nil {
		return
	}
	p.configSkipped.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncPublish(action string, result ResultLabel) {
	if p == nil || p.publishes == nil {
		return
	}
	p.publishes.WithLabelValues(action, string(result)).Inc()
}

func (p *PrometheusRecorder) IncPublishRetry() {
	if p == nil || p.publishRetries == nil {
		return
	}
	p.publishRetries.Inc()
}

func (p *PrometheusRecorder) IncStoreSave(result ResultLabel) {
	if p == nil || p.storeSaves == nil {
		return
	}
	p.storeSaves.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Set(d.Seconds())
	p.lastRun.SetToCurrentTime()
}

// WriteTextfile writes every registered metric in the text exposition format,
// for pickup by the node exporter textfile collector.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if p == nil || p.registry == nil {
		return nil
	}
	if err := prom.WriteToTextfile(path, p.registry); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write metrics textfile").
			WithContext("path", path).
			Build()
	}
	return nil
}
