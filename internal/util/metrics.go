package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_received_total",
		Help: "Total number of webhook calls received",
	}, []string{"event_type"})

	WebhooksProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_processed_total",
		Help: "Total number of webhook calls by terminal status",
	}, []string{"status"})

	WebhookProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "webhook_processing_latency_seconds",
		Help:    "Latency of webhook processing",
		Buckets: prometheus.DefBuckets,
	})

	OrdersIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_ingested_total",
		Help: "Total number of orders created by ingestion",
	}, []string{"marketplace"})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of orders cancelled with stock restored",
	})

	StockMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_mutations_total",
		Help: "Total number of stock ledger mutations applied",
	}, []string{"type"})

	UnmatchedLinesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unmatched_lines_total",
		Help: "Total number of order lines resolved to a placeholder product",
	})

	PollBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poll_batches_total",
		Help: "Total number of poll batches by result",
	}, []string{"result"})

	PollPackagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poll_packages_total",
		Help: "Total number of polled packages by outcome",
	}, []string{"outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
