package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ReservationOpsTotal counts engine operations by outcome.
	ReservationOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "openpark",
		Name:      "reservation_operations_total",
		Help:      "Reservation engine operations by operation and result.",
	}, []string{"op", "result"})

	SweeperTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "openpark",
		Subsystem: "sweeper",
		Name:      "ticks_total",
		Help:      "Expiry sweeper ticks, including ones skipped by a follower.",
	})

	SweeperReclaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "openpark",
		Subsystem: "sweeper",
		Name:      "reclaimed_total",
		Help:      "Stale reservations deleted by the expiry sweeper.",
	})

	SweeperErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "openpark",
		Subsystem: "sweeper",
		Name:      "errors_total",
		Help:      "Expiry sweeper failures by stage.",
	}, []string{"stage"})

	SweeperDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "openpark",
		Subsystem: "sweeper",
		Name:      "duration_seconds",
		Help:      "Time spent in one sweep.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	// LeaderElectionStatus is 1 while the instance holds the sweeper lease.
	LeaderElectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "openpark",
		Subsystem: "leader",
		Name:      "status",
		Help:      "Whether this instance is the sweeper leader.",
	}, []string{"instance_id"})

	LeaderElectionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "openpark",
		Subsystem: "leader",
		Name:      "changes_total",
		Help:      "Leadership transitions by instance and direction.",
	}, []string{"instance_id", "transition"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "openpark",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "openpark",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
