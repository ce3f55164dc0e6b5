// Package metrics exposes reconciliation outcomes as Prometheus collectors
// registered on the controller-runtime registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const namespace = "ykddns"

var (
	cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_total",
		Help:      "Reconciliation cycles by task and result.",
	}, []string{"task", "result"})

	providerCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_calls_total",
		Help:      "DNS provider calls by task, operation and result.",
	}, []string{"task", "op", "result"})

	consecutiveFailures = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "consecutive_failures",
		Help:      "Number of failed cycles since the last successful one.",
	}, []string{"task"})

	lastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last successful cycle.",
	}, []string{"task"})
)

func init() {
	metrics.Registry.MustRegister(cycles, providerCalls, consecutiveFailures, lastSuccess)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Recorder implements task.Metrics.
type Recorder struct{}

// ObserveCycle records the outcome of one cycle.
func (Recorder) ObserveCycle(task string, err error, failures int) {
	cycles.WithLabelValues(task, result(err)).Inc()
	consecutiveFailures.WithLabelValues(task).Set(float64(failures))
	if err == nil {
		lastSuccess.WithLabelValues(task).Set(float64(time.Now().Unix()))
	}
}

// ObserveProviderCall records the outcome of one provider call.
func (Recorder) ObserveProviderCall(task, op string, err error) {
	providerCalls.WithLabelValues(task, op, result(err)).Inc()
}
