// Package metrics exports pipeline run metrics in the Prometheus text format.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stevehiehn/piperun/internal/engine"
	"github.com/stevehiehn/piperun/internal/runner"
)

const namespace = "piperun"

// Collector wraps Prometheus metrics for pipeline runs. It uses its own
// registry so only piperun series end up in the textfile.
type Collector struct {
	registry *prometheus.Registry
	textfile string

	PipelineRuns  *prometheus.CounterVec
	StepResults   *prometheus.CounterVec
	StepDuration  *prometheus.HistogramVec
	StepsInFlight *prometheus.GaugeVec
}

// NewCollector creates a collector. When textfile is non-empty, every
// recorded run rewrites it.
func NewCollector(textfile string) *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		textfile: textfile,
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs by final status",
		}, []string{"pipeline", "status"}),
		StepResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_results_total",
			Help:      "Total number of step outcomes",
		}, []string{"pipeline", "step", "status"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of executed steps in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"pipeline", "step"}),
		StepsInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "steps_in_flight",
			Help:      "Number of steps currently executing",
		}, []string{"pipeline"}),
	}
	reg.MustRegister(c.PipelineRuns, c.StepResults, c.StepDuration, c.StepsInFlight)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Observer returns a runner observer that times the steps of pipeline.
func (c *Collector) Observer(pipeline string) runner.Observer {
	return &stepObserver{c: c, pipeline: pipeline}
}

type stepObserver struct {
	c        *Collector
	pipeline string
}

func (o *stepObserver) StepStarted(_ string, _ int) {
	o.c.StepsInFlight.WithLabelValues(o.pipeline).Inc()
}

func (o *stepObserver) StepFinished(step string, _ int, _ error, elapsed time.Duration) {
	o.c.StepsInFlight.WithLabelValues(o.pipeline).Dec()
	o.c.StepDuration.WithLabelValues(o.pipeline, step).Observe(elapsed.Seconds())
}

// Record counts a finished run and its step outcomes, then rewrites the
// textfile if one is configured.
func (c *Collector) Record(_ context.Context, res *engine.Result) error {
	status := "succeeded"
	if !res.Success {
		status = "failed"
	}
	c.PipelineRuns.WithLabelValues(res.Pipeline, status).Inc()
	for _, s := range res.Steps {
		c.StepResults.WithLabelValues(res.Pipeline, s.ID, s.Status).Inc()
	}
	if c.textfile == "" {
		return nil
	}
	return c.WriteTextfile(c.textfile)
}

// WriteTextfile writes all metrics to path for the node exporter textfile
// collector.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
