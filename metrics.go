// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package sshagent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "sshagent"

// Metrics holds the Prometheus instrumentation for one or more [Client]s.
// A nil *Metrics is valid everywhere it is used: every recording method is
// a no-op on a nil receiver, so tests and simple callers never need a
// registry.
type Metrics struct {
	TransactionsTotal      *prometheus.CounterVec
	TransactionErrorsTotal *prometheus.CounterVec
	TransactionLatency     prometheus.Histogram
	BytesSent              prometheus.Counter
	BytesReceived          prometheus.Counter
	IdentitiesCached       prometheus.Gauge
}

// NewMetrics registers a fresh set of metrics with reg and returns them.
// Pass [prometheus.DefaultRegisterer] to use the global registry, or see
// [NewDefaultMetrics], which does exactly that.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TransactionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transactions_total",
			Help:      "Total transactions submitted, by request type.",
		}, []string{"request_type"}),
		TransactionErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transaction_errors_total",
			Help:      "Total transactions that resolved with an error, by error kind.",
		}, []string{"error_kind"}),
		TransactionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "transaction_latency_seconds",
			Help:      "Time from submitting a transaction to its resolution.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bytes_sent_total",
			Help:      "Total bytes written to agent connections.",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bytes_received_total",
			Help:      "Total bytes read from agent connections.",
		}),
		IdentitiesCached: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "identities_cached",
			Help:      "Size of the Facade identity cache, or 0 if empty/invalidated.",
		}),
	}
}

// NewDefaultMetrics registers against [prometheus.DefaultRegisterer].
func NewDefaultMetrics() *Metrics { return NewMetrics(prometheus.DefaultRegisterer) }

func (m *Metrics) observeSubmit(req Request) {
	if m == nil {
		return
	}
	m.TransactionsTotal.WithLabelValues(requestTypeLabel(req)).Inc()
}

func (m *Metrics) observeResolve(seconds float64, err error) {
	if m == nil {
		return
	}
	m.TransactionLatency.Observe(seconds)
	if err != nil {
		m.TransactionErrorsTotal.WithLabelValues(errorKindLabel(err)).Inc()
	}
}

func (m *Metrics) observeSent(n int) {
	if m == nil {
		return
	}
	m.BytesSent.Add(float64(n))
}

func (m *Metrics) observeReceived(n int) {
	if m == nil {
		return
	}
	m.BytesReceived.Add(float64(n))
}

func (m *Metrics) setIdentitiesCached(n int) {
	if m == nil {
		return
	}
	m.IdentitiesCached.Set(float64(n))
}

func requestTypeLabel(req Request) string {
	switch req.(type) {
	case RequestIdentities:
		return "request_identities"
	case SignRequest:
		return "sign_request"
	case AddIdentity:
		return "add_identity"
	default:
		return "unknown"
	}
}

func errorKindLabel(err error) string {
	switch err.(type) {
	case *AgentNotAvailableError:
		return "agent_not_available"
	case *OperationInProgressError:
		return "operation_in_progress"
	case *TrailingBytesError:
		return "trailing_bytes"
	case *BadResponseError:
		return "bad_response"
	case NotYetSupported:
		return "not_yet_supported"
	default:
		return "other"
	}
}
