// Package metrics records run metrics for dispatchbuilder.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no nil checks are needed at call sites. A batch run has no
// scrape endpoint; the Prometheus implementation is gathered once at the end of
// the run and written to a node-exporter textfile with WriteTextfile.
package metrics
