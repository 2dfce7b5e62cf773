// Package metrics exporta contadores Prometheus do gateway: checagens de admissão,
// resultado e duração dos pipelines e ocupação do pool de concorrência.
package metrics

import (
	"context"
	"net/http"
	"time"

	"docqa-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docqa"

// Recorder implementa domain.StatsStore e docqa.Observer sobre um registry próprio.
type Recorder struct {
	reg       *prometheus.Registry
	checks    *prometheus.CounterVec
	pipelines *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

var _ domain.StatsStore = (*Recorder)(nil)

func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_checks_total",
			Help:      "Sliding window admission checks by scope and outcome.",
		}, []string{"scope", "outcome"}),
		pipelines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_requests_total",
			Help:      "Pipeline executions by pipeline and result code.",
		}, []string{"pipeline", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Pipeline latency.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"pipeline"}),
	}
	r.reg.MustRegister(
		r.checks, r.pipelines, r.durations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Record conta uma decisão de admissão. Nunca falha.
func (r *Recorder) Record(_ context.Context, ev domain.StatsEvent) error {
	outcome := "admitted"
	if !ev.Allowed {
		outcome = "rejected"
	}
	r.checks.WithLabelValues(ev.Scope, outcome).Inc()
	return nil
}

func (r *Recorder) ObservePipeline(pipeline, result string, elapsed time.Duration) {
	r.pipelines.WithLabelValues(pipeline, result).Inc()
	r.durations.WithLabelValues(pipeline).Observe(elapsed.Seconds())
}

// TrackInUse publica um gauge lido na hora do scrape (ex.: ChanPool.InUse).
func (r *Recorder) TrackInUse(name, help string, fn func() int) {
	r.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(fn()) }))
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
