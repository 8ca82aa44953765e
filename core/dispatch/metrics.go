package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	bookingsDispatched *prometheus.CounterVec
	bookingsRetried    prometheus.Counter
	batchSize          prometheus.Histogram
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, prometheus.Counter, prometheus.Histogram) {
	dispatched := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_dispatched_total",
			Help: "Number of bookings handed to a vehicle",
		},
		[]string{"booking_type"},
	)
	retried := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookings_retried_total",
			Help: "Number of bookings re-entering the dispatch buffer after a failed round",
		},
	)
	batch := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_batch_size",
			Help:    "Bookings per dispatch round",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 200, 300},
		},
	)
	return dispatched, retried, batch
}

func init() {
	bookingsDispatched, bookingsRetried, batchSize = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used. Re-registration
// reuses the existing collectors, so tests sharing the default registry do
// not panic.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{bookingsDispatched, bookingsRetried, batchSize} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}
