// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metric exposes the prometheus instrumentation shared by the
// PayAttn coordinator daemon and retry worker.
package metric

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter, gauge and histogram PayAttn's binaries
// register against a dedicated registry (never the global default, so
// multiple instances can run in-process during tests without collisions).
type Metrics struct {
	registry   *prometheus.Registry
	gatherer   prometheus.Gatherer
	registerer prometheus.Registerer

	OffersSubmitted  prometheus.Counter
	OffersAccepted   prometheus.Counter
	OffersRejected   prometheus.Counter
	OffersSettled    prometheus.Counter
	OffersRefunded   prometheus.Counter

	EscrowInstructions *prometheus.CounterVec

	SettlementLegsSent   *prometheus.CounterVec
	SettlementLegLatency prometheus.Histogram
	SettlementFailures   *prometheus.CounterVec

	RetryAttempts  *prometheus.CounterVec
	RetryQueueSize prometheus.Gauge

	ProofVerifications *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
}

// New creates a Metrics instance bound to a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:   reg,
		gatherer:   reg,
		registerer: reg,
	}

	m.OffersSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payattn_offers_submitted_total",
		Help: "Total number of offers submitted by advertisers.",
	})
	m.OffersAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payattn_offers_accepted_total",
		Help: "Total number of offers accepted by publishers.",
	})
	m.OffersRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payattn_offers_rejected_total",
		Help: "Total number of offers rejected by the policy oracle.",
	})
	m.OffersSettled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payattn_offers_settled_total",
		Help: "Total number of offers fully settled on-chain.",
	})
	m.OffersRefunded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payattn_offers_refunded_total",
		Help: "Total number of offers refunded after the escrow timeout.",
	})

	m.EscrowInstructions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payattn_escrow_instructions_total",
		Help: "Total escrow program instructions executed, by instruction and result.",
	}, []string{"instruction", "result"})

	m.SettlementLegsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payattn_settlement_legs_total",
		Help: "Total settlement legs dispatched, by tx type and result.",
	}, []string{"tx_type", "result"})
	m.SettlementLegLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "payattn_settlement_leg_latency_seconds",
		Help:    "Time to submit and confirm a single settlement leg.",
		Buckets: prometheus.DefBuckets,
	})
	m.SettlementFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payattn_settlement_failures_total",
		Help: "Total settlement legs that failed and were queued for retry, by reason.",
	}, []string{"reason"})

	m.RetryAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payattn_retry_attempts_total",
		Help: "Total retry attempts made by the durable retry worker, by result.",
	}, []string{"result"})
	m.RetryQueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "payattn_retry_queue_size",
		Help: "Current number of pending entries in the retry queue.",
	})

	m.ProofVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payattn_proof_verifications_total",
		Help: "Total zero-knowledge proof verifications, by circuit and result.",
	}, []string{"circuit", "result"})

	m.HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payattn_http_requests_total",
		Help: "Total HTTP requests processed, by route and status.",
	}, []string{"route", "status"})

	reg.MustRegister(
		m.OffersSubmitted, m.OffersAccepted, m.OffersRejected, m.OffersSettled, m.OffersRefunded,
		m.EscrowInstructions,
		m.SettlementLegsSent, m.SettlementLegLatency, m.SettlementFailures,
		m.RetryAttempts, m.RetryQueueSize,
		m.ProofVerifications,
		m.HTTPRequests,
	)

	return m
}

// GetGatherer returns the prometheus gatherer for metrics export over HTTP.
func (m *Metrics) GetGatherer() prometheus.Gatherer {
	return m.gatherer
}

// GetRegisterer returns the prometheus registerer, for components that
// register their own collectors (e.g. a connection-pool gauge).
func (m *Metrics) GetRegisterer() prometheus.Registerer {
	return m.registerer
}
