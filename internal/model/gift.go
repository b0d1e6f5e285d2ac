package model

import "time"

// ClaimStatus tracks whether a gifted reservation has been linked to the
// recipient's account.
type ClaimStatus string

const (
    ClaimUnclaimed ClaimStatus = "unclaimed"
    ClaimClaimed   ClaimStatus = "claimed"
)

// GiftAssignment accompanies a reservation bought as a gift.  It starts
// unclaimed and moves to claimed exactly once.  Only the bcrypt hash of
// the claim token handed to the buyer is stored.
type GiftAssignment struct {
    ReservationID   string      // gift_assignments.reservation_id
    ClaimStatus     ClaimStatus // gift_assignments.claim_status
    ClaimedByUserID *string     // gift_assignments.claimed_by_user_id (nullable)
    GiftMessage     string      // gift_assignments.gift_message
    ClaimTokenHash  string      // gift_assignments.claim_token_hash
    ClaimedAt       *time.Time  // gift_assignments.claimed_at (nullable)
    CreatedAt       time.Time   // gift_assignments.created_at
}
