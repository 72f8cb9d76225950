// Package metrics holds the broker's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lobbyd"

type Metrics struct {
	registry *prometheus.Registry

	lobbies        *prometheus.GaugeVec
	players        prometheus.Gauge
	portsLeased    prometheus.Gauge
	requests       *prometheus.CounterVec
	matchesStarted prometheus.Counter
	processExits   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		lobbies: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lobbies_open",
			Help:      "Live lobbies by visibility.",
		}, []string{"visibility"}),
		players: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "players_in_lobbies",
			Help:      "Players currently seated in a lobby.",
		}),
		portsLeased: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ports_leased",
			Help:      "Game server ports currently leased from the pool.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Protocol requests by verb and outcome.",
		}, []string{"verb", "result"}),
		matchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_started_total",
			Help:      "Successful start requests.",
		}),
		processExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "game_server_exits_total",
			Help:      "Game server process exits by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.lobbies, m.players, m.portsLeased, m.requests, m.matchesStarted, m.processExits)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Snapshot is set from the registry after every mutating operation.
func (m *Metrics) Snapshot(public, private, players, ports int) {
	if m == nil {
		return
	}
	m.lobbies.WithLabelValues("public").Set(float64(public))
	m.lobbies.WithLabelValues("private").Set(float64(private))
	m.players.Set(float64(players))
	m.portsLeased.Set(float64(ports))
}

func (m *Metrics) Request(verb, result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(verb, result).Inc()
}

func (m *Metrics) MatchStarted() {
	if m == nil {
		return
	}
	m.matchesStarted.Inc()
}

func (m *Metrics) ProcessExit(code int) {
	if m == nil {
		return
	}
	outcome := "clean"
	if code != 0 {
		outcome = "error"
	}
	m.processExits.WithLabelValues(outcome).Inc()
}
