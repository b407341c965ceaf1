package metrics

import (
	"net/http"
	"strconv"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg           *prom.Registry
	buildDuration *prom.HistogramVec
	buildOutcome  *prom.CounterVec
	hostRestarts  prom.Counter
	hostExits     *prom.CounterVec
	reloads       prom.Counter
	reloadClients prom.Gauge
}

// NewPrometheusRecorder constructs the metrics and registers them on reg
// (a fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		buildDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "tachyon",
			Name:      "build_duration_seconds",
			Help:      "Duration of target builds and rebuilds",
			Buckets:   prom.DefBuckets,
		}, []string{"target"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "tachyon",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by target",
		}, []string{"target", "outcome"}),
		hostRestarts: prom.NewCounter(prom.CounterOpts{
			Namespace: "tachyon",
			Name:      "host_restarts_total",
			Help:      "Host application instances spawned",
		}),
		hostExits: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "tachyon",
			Name:      "host_exits_total",
			Help:      "Host application exits observed by exit code",
		}, []string{"code"}),
		reloads: prom.NewCounter(prom.CounterOpts{
			Namespace: "tachyon",
			Name:      "livereload_broadcasts_total",
			Help:      "Full-reload messages sent to renderer pages",
		}),
		reloadClients: prom.NewGauge(prom.GaugeOpts{
			Namespace: "tachyon",
			Name:      "livereload_clients",
			Help:      "Connected live-reload clients",
		}),
	}
	reg.MustRegister(pr.buildDuration, pr.buildOutcome, pr.hostRestarts, pr.hostExits, pr.reloads, pr.reloadClients)
	return pr
}

func (p *PrometheusRecorder) ObserveBuildDuration(target string, d time.Duration) {
	p.buildDuration.WithLabelValues(target).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(target string, outcome Outcome) {
	p.buildOutcome.WithLabelValues(target, string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncHostRestart() { p.hostRestarts.Inc() }

func (p *PrometheusRecorder) IncHostExit(code int) {
	p.hostExits.WithLabelValues(strconv.Itoa(code)).Inc()
}

func (p *PrometheusRecorder) IncReloadBroadcast() { p.reloads.Inc() }

func (p *PrometheusRecorder) SetReloadClients(n int) { p.reloadClients.Set(float64(n)) }

// Handler serves the recorder's registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return HTTPHandler(p.reg)
}

// HTTPHandler returns an http.Handler that serves Prometheus metrics for the provided registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
