package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.IncPluginActivated("Collector")
	pr.IncPluginConfigSkipped("no_config_file")
	pr.ObserveStageDuration("collector", 150*time.Millisecond)
	pr.IncStageResult("stat", ResultDeferred)
	pr.IncPublish("create", ResultSuccess)
	pr.IncPublishRetry()
	pr.IncStoreSave(ResultSuccess)
	pr.ObserveRunDuration(500 * time.Millisecond)
	// Basic scrape to ensure metrics encode without panic
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected metrics, got none")
	}
}

func TestPrometheusRecorderWriteTextfile(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.IncPublish("edit", ResultFailed)

	path := filepath.Join(t.TempDir(), "dispatchbuilder.prom")
	if err := pr.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `dispatchbuilder_publishes_total{action="edit",result="failed"} 1`) {
		t.Fatalf("textfile missing publish counter:\n%s", data)
	}
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.IncPublish("create", ResultSuccess)
	pr.ObserveRunDuration(time.Second)
	if err := pr.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Fatalf("nil recorder WriteTextfile: %v", err)
	}
}

var _ Recorder = NoopRecorder{}
var _ Recorder = (*PrometheusRecorder)(nil)
