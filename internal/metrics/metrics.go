// Package metrics holds the Prometheus collectors shared by the link core and its front ends.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LinksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snaplink_links_created_total",
		Help: "Number of link records created",
	})

	LinksDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snaplink_links_deleted_total",
		Help: "Number of link records deleted",
	})

	// Resolutions is partitioned by outcome: redirect, expired, not_found, error.
	Resolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snaplink_resolutions_total",
			Help: "Number of short code resolutions by outcome",
		},
		[]string{"outcome"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snaplink_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snaplink_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
