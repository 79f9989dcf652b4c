// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

// Package metrics provides Prometheus instrumentation for the sync engine.
//
// Metrics are exposed by the tail binary at /metrics in Prometheus text
// format. They are the observability sink for skipped events: a malformed
// event never stalls the ingestion loop, it only increments a counter here
// and produces a log line.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsApplied counts events applied to the entity store, by event type.
	EventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftline_events_applied_total",
			Help: "Total number of events applied to the entity store",
		},
		[]string{"type"},
	)

	// EventsSkipped counts events dropped without mutating the store.
	// Reasons: "malformed" (recognized type, bad envelope), "decode"
	// (payload decode failure), "store" (write-path failure).
	EventsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftline_events_skipped_total",
			Help: "Total number of events skipped by the apply pipeline",
		},
		[]string{"reason"},
	)

	// UnknownEvents counts envelopes with an unrecognized type discriminator.
	// These are a successful decode, not an error.
	UnknownEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftline_unknown_events_total",
			Help: "Total number of events decoded into the unknown variant",
		},
	)

	// PayloadsIngested counts bulk payload ingestions (channel state fetches).
	PayloadsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driftline_payloads_ingested_total",
			Help: "Total number of bulk payloads ingested",
		},
	)

	// StoreWriteDuration observes the latency of serialized store mutations.
	StoreWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "driftline_store_write_duration_seconds",
			Help:    "Duration of entity store write transactions in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// SnapshotsPublished counts snapshot notifications, by topic.
	SnapshotsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftline_snapshots_published_total",
			Help: "Total number of entity snapshots published to listeners",
		},
		[]string{"topic"},
	)

	// APIRequests counts outbound API requests, by endpoint and status.
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftline_api_requests_total",
			Help: "Total number of outbound API requests",
		},
		[]string{"endpoint", "status"},
	)
)
