// Package pricing computes the effective unit price of a seat tier at a
// given instant.  Everything in this package is pure; the caller passes
// the instant explicitly so that a quote can be frozen into a reservation
// and never re-derived from the wall clock afterwards.
package pricing

import (
    "errors"
    "time"

    "github.com/iliyamo/limited-seats/internal/model"
)

// ErrUnknownTier is returned when a tier has no pricing configured.
var ErrUnknownTier = errors.New("pricing: unknown tier")

// Quote returns the unit price of t at instant at.  The fire-sale price
// applies only when both the price and the end time are set and at is
// strictly before the end time.
func Quote(t model.SeatTier, at time.Time) int64 {
    if FireSaleActive(t, at) {
        return *t.FireSalePriceCents
    }
    return t.BasePriceCents
}

// FireSaleActive reports whether the discounted price of t is in effect at
// instant at.
func FireSaleActive(t model.SeatTier, at time.Time) bool {
    return t.FireSalePriceCents != nil && t.FireSaleEndsAt != nil && at.Before(*t.FireSaleEndsAt)
}

// Policy is an immutable catalog of tier pricing.
type Policy struct {
    tiers map[model.Tier]model.SeatTier
}

// NewPolicy builds a catalog from the given tiers.  A later entry for the
// same tier replaces an earlier one.
func NewPolicy(tiers ...model.SeatTier) *Policy {
    p := &Policy{tiers: make(map[model.Tier]model.SeatTier, len(tiers))}
    for _, t := range tiers {
        p.tiers[t.Tier] = t
    }
    return p
}

// Tier returns the pricing of t.
func (p *Policy) Tier(t model.Tier) (model.SeatTier, error) {
    st, ok := p.tiers[t]
    if !ok {
        return model.SeatTier{}, ErrUnknownTier
    }
    return st, nil
}

// Quote returns the unit price of tier t at instant at.
func (p *Policy) Quote(t model.Tier, at time.Time) (int64, error) {
    st, err := p.Tier(t)
    if err != nil {
        return 0, err
    }
    return Quote(st, at), nil
}
