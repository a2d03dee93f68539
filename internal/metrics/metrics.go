// Package metrics agrupa las métricas Prometheus del broadcaster.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector expone contadores de envíos y broadcasts.
type Collector struct {
	gatherer prometheus.Gatherer

	Sends      *prometheus.CounterVec // tier, result (delivered|simulated|failed)
	Broadcasts *prometheus.CounterVec // result (completed|rejected)
	Duration   prometheus.Histogram
	Reports    *prometheus.CounterVec // severity
}

// New registra las métricas en reg (el registro global si es nil).
// Registrar dos veces sobre el mismo registro reutiliza los colectores existentes.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	sends, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agriqnet_alert_sends_total",
		Help: "SMS alert sends, labeled by risk tier and result.",
	}, []string{"tier", "result"}))
	if err != nil {
		return nil, err
	}
	broadcasts, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agriqnet_broadcasts_total",
		Help: "Pest outbreak broadcasts, labeled by result.",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "agriqnet_broadcast_duration_seconds",
		Help:    "Time to complete a broadcast across all tiers.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	}))
	if err != nil {
		return nil, err
	}
	reports, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agriqnet_field_reports_total",
		Help: "Field reports processed, labeled by detected severity.",
	}, []string{"severity"}))
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:   gatherer,
		Sends:      sends,
		Broadcasts: broadcasts,
		Duration:   duration,
		Reports:    reports,
	}, nil
}

// Handler sirve /metrics para el registro asociado.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return c, nil
}
