package metrics

import (
	"log/slog"
	"time"

	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/scenario"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	prometheusNamespace = "skr"
	prometheusSubsystem = "scenarios"
)

// Collector records step durations and scenario verdicts.
type Collector struct {
	stepDuration *prometheus.HistogramVec
	scenarios    *prometheus.CounterVec
	log          *slog.Logger
}

var (
	_ scenario.StepObserver     = &Collector{}
	_ scenario.ScenarioObserver = &Collector{}
)

func NewCollector(log *slog.Logger) *Collector {
	return &Collector{
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: prometheusNamespace,
			Subsystem: prometheusSubsystem,
			Name:      "step_duration_seconds",
			Help:      "Duration of executed scenario steps.",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 10800},
		}, []string{"step", "result"}),
		scenarios: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: prometheusNamespace,
			Subsystem: prometheusSubsystem,
			Name:      "scenario_total",
			Help:      "Finished scenarios by state.",
		}, []string{"state"}),
		log: log,
	}
}

func (c *Collector) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(c.stepDuration, c.scenarios)
}

func (c *Collector) ObserveStep(phrase string, duration time.Duration, kind scenario.Kind) {
	result := "passed"
	if kind != scenario.KindNone {
		result = string(kind)
	}
	c.stepDuration.WithLabelValues(phrase, result).Observe(duration.Seconds())
}

func (c *Collector) ObserveScenario(name string, state scenario.State) {
	c.log.Info("scenario finished", "scenario", name, "state", state)
	c.scenarios.WithLabelValues(string(state)).Inc()
}
