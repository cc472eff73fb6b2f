// Package observability exposes Prometheus metrics for the coordination protocol.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ProtocolCollector records mesh traffic, task firings and sleep cycles of one module.
// A nil collector is valid and records nothing.
type ProtocolCollector struct {
	gatherer prometheus.Gatherer

	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	TasksFired       *prometheus.CounterVec
	CyclesCompleted  prometheus.Counter
	LastSleepSeconds prometheus.Gauge
	BatteryVolts     prometheus.Gauge
	CollectedStates  prometheus.Gauge
}

// NewProtocolCollector registers protocol metrics against the provided registerer.
func NewProtocolCollector(reg prometheus.Registerer) (*ProtocolCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	sent, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trap_mesh_messages_sent_total",
		Help: "Mesh documents sent by kind and outcome.",
	}, []string{"kind", "result"}), "trap_mesh_messages_sent_total")
	if err != nil {
		return nil, err
	}
	received, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trap_mesh_messages_received_total",
		Help: "Decoded mesh messages by kind.",
	}, []string{"kind"}), "trap_mesh_messages_received_total")
	if err != nil {
		return nil, err
	}
	tasks, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trap_tasks_fired_total",
		Help: "Task callbacks fired by the cooperative scheduler.",
	}, []string{"task"}), "trap_tasks_fired_total")
	if err != nil {
		return nil, err
	}
	cycles, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trap_cycles_completed_total",
		Help: "Armed cycles that ended in a deep sleep.",
	}), "trap_cycles_completed_total")
	if err != nil {
		return nil, err
	}
	lastSleep, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trap_last_sleep_seconds",
		Help: "Length of the last requested hardware sleep segment.",
	}), "trap_last_sleep_seconds")
	if err != nil {
		return nil, err
	}
	battery, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trap_battery_volts",
		Help: "Last measured battery voltage.",
	}), "trap_battery_volts")
	if err != nil {
		return nil, err
	}
	collected, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trap_collected_states",
		Help: "Peer states collected in the current aggregation round.",
	}), "trap_collected_states")
	if err != nil {
		return nil, err
	}

	return &ProtocolCollector{
		gatherer:         gatherer,
		MessagesSent:     sent,
		MessagesReceived: received,
		TasksFired:       tasks,
		CyclesCompleted:  cycles,
		LastSleepSeconds: lastSleep,
		BatteryVolts:     battery,
		CollectedStates:  collected,
	}, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (c *ProtocolCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *ProtocolCollector) ObserveSend(kind string, ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	c.MessagesSent.WithLabelValues(kind, result).Inc()
}

func (c *ProtocolCollector) ObserveReceive(kind string) {
	if c == nil {
		return
	}
	c.MessagesReceived.WithLabelValues(kind).Inc()
}

func (c *ProtocolCollector) ObserveTask(name string) {
	if c == nil {
		return
	}
	c.TasksFired.WithLabelValues(name).Inc()
}

func (c *ProtocolCollector) ObserveSleep(d time.Duration) {
	if c == nil {
		return
	}
	c.CyclesCompleted.Inc()
	c.LastSleepSeconds.Set(d.Seconds())
}

func (c *ProtocolCollector) SetBattery(volts float64) {
	if c == nil {
		return
	}
	c.BatteryVolts.Set(volts)
}

func (c *ProtocolCollector) SetCollectedStates(count int) {
	if c == nil {
		return
	}
	c.CollectedStates.Set(float64(count))
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
