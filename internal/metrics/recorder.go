package metrics

import "time"

// ResultLabel enumerates result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultSkipped  ResultLabel = "skipped"
	ResultDeferred ResultLabel = "deferred"
	ResultFailed   ResultLabel = "failed"
)

// Recorder defines observability hooks for plugin activation, the pipeline and publishing.
type Recorder interface {
	IncPluginActivated(category string)
	IncPluginConfigSkipped(reason string)
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncPublish(action string, result ResultLabel)
	IncPublishRetry()
	IncStoreSave(result ResultLabel)
	ObserveRunDuration(d time.Duration)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncPluginActivated(string)                 {}
func (NoopRecorder) IncPluginConfigSkipped(string)             {}
func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncPublish(string, ResultLabel)             {}
func (NoopRecorder) IncPublishRetry()                           {}
func (NoopRecorder) IncStoreSave(ResultLabel)                   {}
func (NoopRecorder) ObserveRunDuration(time.Duration)           {}
