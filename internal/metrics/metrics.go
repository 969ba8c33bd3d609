// Package metrics exposes the wallet service's ambient observability
// surface: scan-lag, mirror-tip, and submission-queue-depth gauges plus
// submission retry/rejection counters, all served from a private
// *prometheus.Registry rather than the global default one (so a process
// embedding multiple wallet services never collides on metric names).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the coordinator, scanner, and submitter
// update over their lifetime.
type Registry struct {
	registry *prometheus.Registry

	mirrorTip               prometheus.Gauge
	scanLag                 *prometheus.GaugeVec
	submissionQueueDepth    prometheus.Gauge
	submissionAttemptsTotal *prometheus.CounterVec
	submissionRetriesTotal  prometheus.Counter
}

// New constructs a Registry with every metric registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,

		mirrorTip: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "walletd_mirror_tip_block_index",
			Help: "Highest block index present in the local Ledger Mirror",
		}),

		scanLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "walletd_scan_lag_blocks",
			Help: "Blocks between an account's scan cursor and the local Mirror tip",
		}, []string{"account_id"}),

		submissionQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "walletd_submission_queue_depth",
			Help: "Number of built TxProposals waiting for a submission worker",
		}),

		submissionAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walletd_submission_attempts_total",
			Help: "Submission attempts by outcome (accepted, rejected, network_error)",
		}, []string{"outcome"}),

		submissionRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "walletd_submission_retries_total",
			Help: "Submission attempts that failed against one peer and moved to the next",
		}),
	}

	reg.MustRegister(
		r.mirrorTip,
		r.scanLag,
		r.submissionQueueDepth,
		r.submissionAttemptsTotal,
		r.submissionRetriesTotal,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return r
}

// Handler returns the HTTP handler to mount at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// SetMirrorTip records the local Ledger Mirror's highest block index.
func (r *Registry) SetMirrorTip(tip uint64) {
	r.mirrorTip.Set(float64(tip))
}

// SetScanLag records how many blocks behind the Mirror tip an account's
// scan cursor is. A lag of 0 means the account is fully caught up.
func (r *Registry) SetScanLag(accountID string, lag uint64) {
	r.scanLag.WithLabelValues(accountID).Set(float64(lag))
}

// SetSubmissionQueueDepth records how many built proposals are waiting on
// a submission worker.
func (r *Registry) SetSubmissionQueueDepth(depth int) {
	r.submissionQueueDepth.Set(float64(depth))
}

// ObserveSubmissionAccepted records a peer accepting a submitted proposal.
func (r *Registry) ObserveSubmissionAccepted() {
	r.submissionAttemptsTotal.WithLabelValues("accepted").Inc()
}

// ObserveSubmissionRejected records a peer rejecting a submitted proposal
// at the protocol level (non-retryable).
func (r *Registry) ObserveSubmissionRejected() {
	r.submissionAttemptsTotal.WithLabelValues("rejected").Inc()
}

// ObserveSubmissionNetworkError records a transport-level failure against
// one peer. retriesTotal also increments unless this was the final,
// exhausting attempt — callers pass that via ObserveSubmissionRetry.
func (r *Registry) ObserveSubmissionNetworkError() {
	r.submissionAttemptsTotal.WithLabelValues("network_error").Inc()
}

// ObserveSubmissionRetry records that submission moved on to the next
// peer after a failed attempt.
func (r *Registry) ObserveSubmissionRetry() {
	r.submissionRetriesTotal.Inc()
}
