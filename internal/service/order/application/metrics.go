package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 结果标签取值
const (
	outcomeSuccess    = "success"
	outcomeValidation = "validation"
	outcomeDeclined   = "payment_declined"
	outcomeStock      = "stock"
	outcomeRetryable  = "retryable"
	outcomeError      = "error"
)

var (
	checkoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "order",
		Name:      "checkouts_total",
		Help:      "Checkouts by outcome.",
	}, []string{"outcome"})

	checkoutDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storefront",
		Subsystem: "order",
		Name:      "checkout_duration_seconds",
		Help:      "Latency of checkout requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})

	ordersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "order",
		Name:      "orders_created_total",
		Help:      "Per-shop orders created.",
	})

	stockRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "order",
		Name:      "stock_rejections_total",
		Help:      "Checkouts rejected by stock validation, by reason.",
	}, []string{"reason"})

	eventPublishFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "order",
		Name:      "event_publish_failures_total",
		Help:      "OrderPlaced events that could not be published.",
	})
)
