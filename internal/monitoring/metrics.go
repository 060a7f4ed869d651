package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tierAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ticket_tier_available",
			Help: "Units still sellable per tier",
		},
		[]string{"event_id", "tier_id"},
	)

	tierReserved = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ticket_tier_reserved",
			Help: "Units held by in-flight checkouts per tier",
		},
		[]string{"event_id", "tier_id"},
	)

	reservationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_operations_total",
			Help: "Reservation lifecycle operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	ticketsMinted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_minted_total",
			Help: "Tickets minted on confirmation",
		},
		[]string{"event_id"},
	)

	ticketsRefunded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_refunded_total",
			Help: "Tickets refunded",
		},
		[]string{"event_id"},
	)

	waitlistOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_operations_total",
			Help: "Waitlist joins, offers, conversions and expiries",
		},
		[]string{"operation"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reservation_sweep_duration_seconds",
			Help:    "Duration of expiry sweeps",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	ledgerRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_commit_retries_total",
			Help: "Ledger commits retried after a concurrency conflict",
		},
	)
)

func SetTierCounters(eventID, tierID string, available, reserved int) {
	tierAvailable.WithLabelValues(eventID, tierID).Set(float64(available))
	tierReserved.WithLabelValues(eventID, tierID).Set(float64(reserved))
}

// TrackReservation records operation (reserve, confirm, expire, cancel) with outcome.
func TrackReservation(operation, outcome string) {
	reservationOutcomes.WithLabelValues(operation, outcome).Inc()
}

func TrackTicketsMinted(eventID string, n int) {
	ticketsMinted.WithLabelValues(eventID).Add(float64(n))
}

func TrackTicketRefunded(eventID string) {
	ticketsRefunded.WithLabelValues(eventID).Inc()
}

func TrackWaitlist(operation string) {
	waitlistOperations.WithLabelValues(operation).Inc()
}

func ObserveSweep(seconds float64) {
	sweepDuration.Observe(seconds)
}

func TrackLedgerRetry() {
	ledgerRetries.Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
