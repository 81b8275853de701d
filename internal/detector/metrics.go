package detector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the detector. A nil *Metrics records nothing.
type Metrics struct {
	GamesRunning prometheus.Gauge
	Polls        *prometheus.CounterVec // result
	Toggles      *prometheus.CounterVec // action
}

// NewMetrics registers the detector metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GamesRunning: f.NewGauge(prometheus.GaugeOpts{
			Name: "gameboost_detector_games_running",
			Help: "Catalog games seen in the last process snapshot",
		}),
		Polls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gameboost_detector_polls_total",
			Help: "Detector polls by result",
		}, []string{"result"}),
		Toggles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gameboost_detector_toggles_total",
			Help: "Session toggles issued by the detector",
		}, []string{"action"}),
	}
}

func (m *Metrics) poll(result string, games int) {
	if m == nil {
		return
	}
	m.Polls.WithLabelValues(result).Inc()
	if result == "ok" {
		m.GamesRunning.Set(float64(games))
	}
}

func (m *Metrics) toggle(action string) {
	if m == nil {
		return
	}
	m.Toggles.WithLabelValues(action).Inc()
}
