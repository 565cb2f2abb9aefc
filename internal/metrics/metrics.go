// Package metrics holds the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StockMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "katalog",
		Name:      "stock_mutations_total",
		Help:      "Stock increase/decrease attempts by outcome.",
	}, []string{"operation", "result"})

	AvailabilityChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "katalog",
		Name:      "availability_changes_total",
		Help:      "Availability flag writes by the action that made them.",
	}, []string{"source"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "katalog",
		Name:      "events_published_total",
		Help:      "Product events handed to the broker by outcome.",
	}, []string{"routing_key", "result"})
)

// Result labels.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)
