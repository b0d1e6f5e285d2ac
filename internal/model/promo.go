package model

import (
    "strings"
    "time"
)

// PromoCode is a one-time code that grants a seat of GrantedTier without a
// payment step.  Codes are stored upper-case and matched
// case-insensitively.
type PromoCode struct {
    Code                    string     // promo_codes.code
    GrantedTier             Tier       // promo_codes.granted_tier
    UsesRemaining           int        // promo_codes.uses_remaining
    RedeemedByReservationID *string    // promo_codes.redeemed_by_reservation_id (nullable)
    RedeemedAt              *time.Time // promo_codes.redeemed_at (nullable)
    CreatedAt               time.Time  // promo_codes.created_at
}

// NormalizeCode trims and upper-cases a user supplied code.
func NormalizeCode(code string) string {
    return strings.ToUpper(strings.TrimSpace(code))
}
