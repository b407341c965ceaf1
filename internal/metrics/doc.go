// Package metrics records build, host restart and live-reload observations.
//
// Components receive a Recorder through their options and default to
// NoopRecorder, so call sites never check for nil. The dev command swaps in a
// PrometheusRecorder and exposes its registry on the dev server.
package metrics
