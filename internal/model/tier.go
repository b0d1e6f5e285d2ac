package model

import (
    "strings"
    "time"
)

// Tier identifies one of the seat tiers sold on the launch site.  The
// value is stored verbatim in the seat_ledger.tier, reservations.tier and
// promo_codes.granted_tier columns.
type Tier string

const (
    TierFounder Tier = "founder"
    TierPatron  Tier = "patron"
)

// SeatsPerTier is the fixed inventory of every tier.  The ledger rows are
// seeded with this value and it never changes at runtime.
const SeatsPerTier = 50

// Tiers lists every tier in display order.
var Tiers = []Tier{TierFounder, TierPatron}

// ParseTier normalizes s and reports whether it names a known tier.
func ParseTier(s string) (Tier, bool) {
    t := Tier(strings.ToLower(strings.TrimSpace(s)))
    return t, t.Valid()
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
    switch t {
    case TierFounder, TierPatron:
        return true
    }
    return false
}

// SeatTier describes the pricing of a tier.  FireSalePriceCents only
// applies while the quoting instant is strictly before FireSaleEndsAt; a
// nil FireSaleEndsAt means no fire sale is configured.
//
// Fields:
//  Tier               – identity of the tier.
//  TotalAvailable     – number of seats in the tier (SeatsPerTier).
//  BasePriceCents     – regular unit price.
//  FireSalePriceCents – discounted unit price (nullable).
//  FireSaleEndsAt     – hard end of the discount window (nullable).
type SeatTier struct {
    Tier               Tier
    TotalAvailable     int
    BasePriceCents     int64
    FireSalePriceCents *int64
    FireSaleEndsAt     *time.Time
}

// LedgerEntry mirrors one seat_ledger row.  Sold only grows on payment
// confirmation (or an admin correction); ActiveHolds counts seats that are
// provisionally taken by unpaid reservations.
type LedgerEntry struct {
    Tier           Tier      // seat_ledger.tier
    TotalAvailable int       // seat_ledger.total_available
    Sold           int       // seat_ledger.sold
    ActiveHolds    int       // seat_ledger.active_holds
    Version        uint64    // seat_ledger.version
    UpdatedAt      time.Time // seat_ledger.updated_at
}

// Remaining returns the number of seats still open for new holds.
func (e LedgerEntry) Remaining() int {
    r := e.TotalAvailable - e.Sold - e.ActiveHolds
    if r < 0 {
        return 0
    }
    return r
}
