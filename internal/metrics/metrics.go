// Package metrics exposes Prometheus instrumentation for the pointing
// engine and the mount command layer.
package metrics

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the mount metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Resolutions *prometheus.CounterVec
	Commands    *prometheus.CounterVec
	Target      *prometheus.GaugeVec
	ModelSwaps  prometheus.Counter
}

// NewCollector registers the metrics against reg, defaulting to the global
// Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{
		gatherer: gatherer,
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rotse_mount_resolutions_total",
			Help: "Pointing resolutions, labeled by model kind and outcome.",
		}, []string{"model", "outcome"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rotse_mount_commands_total",
			Help: "Command lines written to the mount, labeled by command and result.",
		}, []string{"command", "result"}),
		Target: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rotse_mount_target_encoder",
			Help: "Last encoder setpoint sent to the mount, per axis.",
		}, []string{"axis"}),
		ModelSwaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rotse_mount_model_swaps_total",
			Help: "Number of times the active pointing model was replaced.",
		}),
	}

	var err error
	if c.Resolutions, err = register(reg, c.Resolutions); err != nil {
		return nil, err
	}
	if c.Commands, err = register(reg, c.Commands); err != nil {
		return nil, err
	}
	if c.Target, err = register(reg, c.Target); err != nil {
		return nil, err
	}
	if c.ModelSwaps, err = register(reg, c.ModelSwaps); err != nil {
		return nil, err
	}
	return c, nil
}

// register adds col to reg, reusing an identical collector that is
// already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return col, fmt.Errorf("failed to register metric: %w", err)
	}
	return col, nil
}

// ObserveResolution counts one pointing resolution.
func (c *Collector) ObserveResolution(model, outcome string) {
	if c == nil {
		return
	}
	c.Resolutions.WithLabelValues(model, outcome).Inc()
}

// ObserveCommand counts one command line written to the mount.
func (c *Collector) ObserveCommand(command string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Commands.WithLabelValues(command, result).Inc()
}

// SetTarget records the last setpoint sent to the mount.
func (c *Collector) SetTarget(x, y int) {
	if c == nil {
		return
	}
	c.Target.WithLabelValues("ra").Set(float64(x))
	c.Target.WithLabelValues("dec").Set(float64(y))
}

// ObserveModelSwap counts one replacement of the active model.
func (c *Collector) ObserveModelSwap() {
	if c == nil {
		return
	}
	c.ModelSwaps.Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
