// Package metrics exposes prometheus counters for the session controller.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	resultOK    = "ok"
	resultError = "error"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all session metrics.
type Registry struct {
	reg *prometheus.Registry

	// CommandsTotal counts outbound commands by name and send result.
	CommandsTotal *prometheus.CounterVec
	// RejectedTotal counts user intents refused locally by a guard.
	RejectedTotal *prometheus.CounterVec
	// InboundMessages counts decoded inbound messages by type.
	InboundMessages *prometheus.CounterVec
	// ServerErrors counts inbound error messages by classification.
	ServerErrors *prometheus.CounterVec
	// Connected is 1 while the message channel is up.
	Connected prometheus.Gauge
}

// Get returns the process-wide registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = New()
	})
	return registry
}

// New returns a registry backed by its own prometheus registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "noderunner_commands_total",
			Help: "Outbound commands sent to the execution host",
		}, []string{"command", "result"}),
		RejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "noderunner_rejected_total",
			Help: "User intents rejected before anything was sent",
		}, []string{"reason"}),
		InboundMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "noderunner_inbound_messages_total",
			Help: "Inbound messages received from the execution host",
		}, []string{"type"}),
		ServerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "noderunner_server_errors_total",
			Help: "Inbound error messages by classification",
		}, []string{"class"}),
		Connected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "noderunner_connected",
			Help: "Whether the message channel is connected",
		}),
	}
}

// RecordCommand records one send attempt.
func (r *Registry) RecordCommand(command string, err error) {
	r.CommandsTotal.WithLabelValues(command, resultString(err)).Inc()
}

// RecordRejected records a locally refused intent.
func (r *Registry) RecordRejected(reason string) {
	r.RejectedTotal.WithLabelValues(reason).Inc()
}

// RecordInbound records one decoded inbound message.
func (r *Registry) RecordInbound(msgType string) {
	r.InboundMessages.WithLabelValues(msgType).Inc()
}

// RecordServerError records one inbound error message.
func (r *Registry) RecordServerError(class string) {
	r.ServerErrors.WithLabelValues(class).Inc()
}

// SetConnected updates the connection gauge.
func (r *Registry) SetConnected(connected bool) {
	if connected {
		r.Connected.Set(1)
		return
	}
	r.Connected.Set(0)
}

// Gatherer returns the underlying prometheus gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func resultString(err error) string {
	if err != nil {
		return resultError
	}
	return resultOK
}
