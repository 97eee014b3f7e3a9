// Package metrics exports the atomic counters of command channels and datagram servers
// as Prometheus metrics.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-fri/fricmd"
	"github.com/arloliu/go-fri/udpserver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fri"

// ErrAlreadyRegistered indicates that a component was registered twice under the same name.
var ErrAlreadyRegistered = errors.New("component already registered")

// Registry owns a Prometheus registry holding the runtime collectors and the counters of
// the registered components.
type Registry struct {
	mu         sync.Mutex
	reg        *prometheus.Registry
	registered map[string][]prometheus.Collector
}

// NewRegistry creates a registry with the Go runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{reg: reg, registered: make(map[string][]prometheus.Collector)}
}

// Prometheus returns the underlying Prometheus registry.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.reg
}

// Handler returns the HTTP handler serving the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

type counterSpec struct {
	name  string
	help  string
	value *atomic.Uint64
}

// RegisterChannel exports the counters of a command channel, labeled channel=name.
func (r *Registry) RegisterChannel(name string, m *fricmd.ChannelMetrics) error {
	return r.register("channel", name, "command", []counterSpec{
		{"sent_total", "Commands sent to the controller.", &m.CommandSendCount},
		{"errors_total", "Commands that ended without an outcome.", &m.CommandErrCount},
		{"contract_violations_total", "Commands submitted while another one was outstanding.", &m.ContractViolationCount},
		{"accepted_total", "Accepted outcomes received.", &m.AcceptedCount},
		{"rejected_total", "Rejected outcomes received.", &m.RejectedCount},
		{"unrecognized_total", "Unrecognized outcomes received.", &m.UnrecognizedCount},
		{"session_ended_total", "Session-end notifications received.", &m.SessionEndedCount},
		{"protocol_errors_total", "Malformed or mismatched outcomes.", &m.ProtocolErrCount},
		{"unsolicited_total", "Outcomes dropped because no command awaited them.", &m.UnsolicitedCount},
		{"connection_lost_total", "Link losses.", &m.ConnLostCount},
		{"reconnects_total", "Automatic reconnect attempts.", &m.ReconnectCount},
	})
}

// RegisterServer exports the counters of a datagram server, labeled server=name.
func (r *Registry) RegisterServer(name string, m *udpserver.ServerMetrics) error {
	return r.register("server", name, "datagram", []counterSpec{
		{"received_total", "Datagrams received.", &m.RecvCount},
		{"receive_errors_total", "Failed reads, expired read deadlines included.", &m.RecvErrCount},
		{"sent_total", "Replies sent.", &m.SendCount},
		{"send_errors_total", "Replies that could not be sent.", &m.SendErrCount},
		{"consumer_panics_total", "Consumer calls that panicked.", &m.CallbackPanicCount},
	})
}

// Unregister removes every collector registered under kind and name.
func (r *Registry) Unregister(kind string, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := kind + "." + name
	cs, ok := r.registered[key]
	if !ok {
		return false
	}
	for _, c := range cs {
		r.reg.Unregister(c)
	}
	delete(r.registered, key)

	return true
}

func (r *Registry) register(kind string, name string, subsystem string, specs []counterSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := kind + "." + name
	if _, exists := r.registered[key]; exists {
		return fmt.Errorf("%w: %s %q", ErrAlreadyRegistered, kind, name)
	}

	cs := make([]prometheus.Collector, 0, len(specs))
	for _, spec := range specs {
		value := spec.value
		c := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        spec.name,
			Help:        spec.help,
			ConstLabels: prometheus.Labels{kind: name},
		}, func() float64 { return float64(value.Load()) })

		if err := r.reg.Register(c); err != nil {
			for _, registered := range cs {
				r.reg.Unregister(registered)
			}
			return fmt.Errorf("register %s_%s_%s: %w", namespace, subsystem, spec.name, err)
		}
		cs = append(cs, c)
	}
	r.registered[key] = cs

	return nil
}
