package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoansBorrowedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "library_loans_borrowed_total",
		Help: "Total number of loans opened by successful borrow requests.",
	})

	LoansReturnedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "library_loans_returned_total",
		Help: "Total number of loans closed by successful return requests.",
	})

	BorrowConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "library_borrow_conflicts_total",
		Help: "Total number of borrow requests rejected because a book was already on loan.",
	})

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "library_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)

	OutboxPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "library_outbox_published_total",
		Help: "Total number of outbox tasks delivered to the broker.",
	},
		[]string{"topic"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "library_http_requests_total",
		Help: "Total number of HTTP requests by route, method and status code.",
	},
		[]string{"route", "method", "code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "library_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	},
		[]string{"route", "method"},
	)
)
