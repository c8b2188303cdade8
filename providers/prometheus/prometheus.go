// Package prometheus adapts the applier's MetricsProvider contract to a
// ready-to-use Prometheus collector, the same experimental-but-ready role
// the teacher's own prometheus provider plays for go-vshard-router.
package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/R-omk/cartridge/applier"
)

// Check that Provider implements applier.MetricsProvider.
var _ applier.MetricsProvider = (*Provider)(nil)

// Check that Provider implements prometheus.Collector.
var _ prometheus.Collector = (*Provider)(nil)

// Provider implements both applier.MetricsProvider and prometheus.Collector,
// so registering it with a Prometheus registry and handing it to
// applier.Config.Metrics is the only wiring a caller needs to do.
type Provider struct {
	applyDuration   *prometheus.HistogramVec
	twoPCEvent      *prometheus.CounterVec
	failoverRunning prometheus.Gauge
}

// Describe sends the descriptors of each metric to the provided channel.
func (pp *Provider) Describe(ch chan<- *prometheus.Desc) {
	pp.applyDuration.Describe(ch)
	pp.twoPCEvent.Describe(ch)
	pp.failoverRunning.Describe(ch)
}

// Collect gathers the metrics and sends them to the provided channel.
func (pp *Provider) Collect(ch chan<- prometheus.Metric) {
	pp.applyDuration.Collect(ch)
	pp.twoPCEvent.Collect(ch)
	pp.failoverRunning.Collect(ch)
}

// ApplyDuration records how long one local apply pipeline run took.
func (pp *Provider) ApplyDuration(d time.Duration, success bool) {
	pp.applyDuration.With(prometheus.Labels{
		"ok": strconv.FormatBool(success),
	}).Observe(d.Seconds())
}

// TwoPCEvent increments the per-phase, per-peer counter for one prepare,
// commit, or abort outcome during a patch_clusterwide round.
func (pp *Provider) TwoPCEvent(phase string, success bool, peerURI string) {
	pp.twoPCEvent.With(prometheus.Labels{
		"phase": phase,
		"ok":    strconv.FormatBool(success),
		"peer":  peerURI,
	}).Inc()
}

// FailoverRunning sets the gauge tracking whether this instance's failover
// worker is currently subscribed to membership events.
func (pp *Provider) FailoverRunning(running bool) {
	if running {
		pp.failoverRunning.Set(1)
		return
	}

	pp.failoverRunning.Set(0)
}

// NewPrometheusProvider returns a ready-to-register Provider: pass it to
// registry.MustRegister and to applier.Config.Metrics.
func NewPrometheusProvider() *Provider {
	return &Provider{
		applyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:      "apply_duration_seconds",
			Namespace: "cartridge",
		}, []string{"ok"}),

		twoPCEvent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      "two_pc_event_total",
			Namespace: "cartridge",
		}, []string{"phase", "ok", "peer"}),

		failoverRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      "failover_running",
			Namespace: "cartridge",
		}),
	}
}
