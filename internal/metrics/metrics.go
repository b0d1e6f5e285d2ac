// Package metrics exposes Prometheus collectors for the seat engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/limited-seats/internal/model"
)

var (
	reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seats_reservations_total",
			Help: "Reservation attempts by tier, kind and outcome",
		},
		[]string{"tier", "kind", "outcome"},
	)

	promoRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seats_promo_redemptions_total",
			Help: "Promo code redemption attempts by outcome",
		},
		[]string{"outcome"},
	)

	giftClaims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seats_gift_claims_total",
			Help: "Gift claim attempts by outcome",
		},
		[]string{"outcome"},
	)

	gatewayInitiations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seats_gateway_initiations_total",
			Help: "Payment initiations by outcome",
		},
		[]string{"outcome"},
	)

	webhookResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seats_webhook_results_total",
			Help: "Gateway result deliveries by disposition",
		},
		[]string{"disposition"},
	)

	invalidSignatures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seats_webhook_invalid_signatures_total",
			Help: "Gateway result deliveries rejected for a bad signature",
		},
	)

	sweepReleased = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seats_sweeper_released_total",
			Help: "Reservations expired by the sweeper, by tier",
		},
		[]string{"tier"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seats_sweep_duration_seconds",
			Help:    "Duration of one sweep",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	seatsRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seats_remaining",
			Help: "Seats open for new holds, per tier",
		},
		[]string{"tier"},
	)

	rateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seats_rate_limited_total",
			Help: "Requests rejected by the token bucket, per route",
		},
		[]string{"route"},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seats_response_cache_total",
			Help: "Response cache lookups by result (hit or miss)",
		},
		[]string{"result"},
	)

	seatsSold = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seats_sold",
			Help: "Seats sold, per tier",
		},
		[]string{"tier"},
	)
)

func Reservation(tier model.Tier, kind model.Kind, outcome string) {
	reservations.WithLabelValues(string(tier), string(kind), outcome).Inc()
}

func PromoRedemption(outcome string) { promoRedemptions.WithLabelValues(outcome).Inc() }

func GiftClaim(outcome string) { giftClaims.WithLabelValues(outcome).Inc() }

func GatewayInitiation(outcome string) { gatewayInitiations.WithLabelValues(outcome).Inc() }

func WebhookResult(disposition string) { webhookResults.WithLabelValues(disposition).Inc() }

func InvalidSignature() { invalidSignatures.Inc() }

func RateLimited(route string) { rateLimited.WithLabelValues(route).Inc() }

func CacheResult(result string) { cacheResults.WithLabelValues(result).Inc() }

func SweepReleased(tier model.Tier) { sweepReleased.WithLabelValues(string(tier)).Inc() }

func SweepDuration(d time.Duration) { sweepDuration.Observe(d.Seconds()) }

// Ledger refreshes the per-tier gauges from a ledger snapshot.
func Ledger(entries []model.LedgerEntry) {
	for _, e := range entries {
		seatsRemaining.WithLabelValues(string(e.Tier)).Set(float64(e.Remaining()))
		seatsSold.WithLabelValues(string(e.Tier)).Set(float64(e.Sold))
	}
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
