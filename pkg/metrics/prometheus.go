// Package metrics exposes Prometheus collectors for master requests and the
// proxy lifecycle.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/3leaps/mesosproxy/pkg/mesos"
	"github.com/3leaps/mesosproxy/pkg/processproxy"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "mesosproxy"

// Collector implements mesos.RequestObserver and processproxy.Observer with
// Prometheus metrics. Kernel ids are not used as labels.
type Collector struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retries         *prometheus.CounterVec

	transitions     *prometheus.CounterVec
	startupDuration *prometheus.HistogramVec
	runningKernels  prometheus.Gauge
	sweeps          *prometheus.CounterVec

	registry *prometheus.Registry
}

var (
	_ mesos.RequestObserver = (*Collector)(nil)
	_ processproxy.Observer = (*Collector)(nil)
)

// NewCollector creates a Collector with its own registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "master_requests_total",
			Help:      "Total number of master request attempts",
		},
		[]string{"method", "status", "outcome"},
	)

	c.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "master_request_duration_seconds",
			Help:      "Duration of master request attempts",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	c.retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "master_request_retries_total",
			Help:      "Total number of retried master request attempts",
		},
		[]string{"method"},
	)

	c.transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_state_transitions_total",
			Help:      "Total number of proxy state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	c.startupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proxy_startup_duration_seconds",
			Help:      "Duration from launch to confirmed startup or failure",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	c.runningKernels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "proxy_running_kernels",
			Help:      "Number of kernel sessions found RUNNING by the last session sweep",
		},
	)

	c.sweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_sweeps_total",
			Help:      "Total number of session monitor sweeps",
		},
		[]string{"outcome"},
	)

	c.registry.MustRegister(
		c.requests,
		c.requestDuration,
		c.retries,
		c.transitions,
		c.startupDuration,
		c.runningKernels,
		c.sweeps,
	)
	return c
}

// ObserveRequest records one master request attempt.
func (c *Collector) ObserveRequest(method string, status int, attempt int, duration time.Duration, err error) {
	statusLabel := "none"
	if status > 0 {
		statusLabel = strconv.Itoa(status)
	}
	c.requests.WithLabelValues(method, statusLabel, requestOutcome(err)).Inc()
	c.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
	if attempt > 1 {
		c.retries.WithLabelValues(method).Inc()
	}
}

func requestOutcome(err error) string {
	var httpErr *mesos.HTTPError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &httpErr):
		return "http_error"
	default:
		return "transport_error"
	}
}

// ObserveTransition records a proxy state transition. Proxies restored from
// a session record enter RUNNING without a transition, so the running gauge
// is owned by ObserveSweep instead.
func (c *Collector) ObserveTransition(from, to processproxy.State) {
	c.transitions.WithLabelValues(from.String(), to.String()).Inc()
}

// ObserveSweep records a session monitor sweep. A failed sweep leaves the
// running gauge at its last known value.
func (c *Collector) ObserveSweep(running int, err error) {
	if err != nil {
		c.sweeps.WithLabelValues("error").Inc()
		return
	}
	c.sweeps.WithLabelValues("success").Inc()
	c.runningKernels.Set(float64(running))
}

// ObserveStartup records a launch outcome.
func (c *Collector) ObserveStartup(d time.Duration, err error) {
	c.startupDuration.WithLabelValues(startupOutcome(err)).Observe(d.Seconds())
}

func startupOutcome(err error) string {
	var se *processproxy.StartupError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, processproxy.ErrLaunchTimeout):
		return "timeout"
	case errors.As(err, &se):
		return "startup_failure"
	default:
		return "error"
	}
}

// Registry returns the Prometheus registry for HTTP handler setup.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
