package model

import (
    "strings"
    "time"
)

// State is the lifecycle position of a reservation.  Every change of state
// goes through a guarded write that compares the persisted state with the
// expected one, so the values below are the only ones ever stored.
type State string

const (
    StatePending         State = "pending"
    StateAwaitingPayment State = "awaiting_payment"
    StatePaid            State = "paid"
    StateExpired         State = "expired"
    StateCancelled       State = "cancelled"
)

// transitions lists, for every non-terminal state, the states it may move
// to.  Terminal states have no entry.
var transitions = map[State][]State{
    StatePending:         {StateAwaitingPayment, StateExpired, StateCancelled},
    StateAwaitingPayment: {StatePaid, StatePending, StateExpired, StateCancelled},
}

// CanTransition reports whether from -> to is an allowed edge of the
// reservation state machine.  Unknown states fail closed.
func CanTransition(from, to State) bool {
    for _, s := range transitions[from] {
        if s == to {
            return true
        }
    }
    return false
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
    switch s {
    case StatePaid, StateExpired, StateCancelled:
        return true
    }
    return false
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
    switch s {
    case StatePending, StateAwaitingPayment, StatePaid, StateExpired, StateCancelled:
        return true
    }
    return false
}

// Releasable reports whether a reservation in state s still holds seats
// that an expiry or cancellation must hand back to the ledger.
func (s State) Releasable() bool {
    return s == StatePending || s == StateAwaitingPayment
}

// Kind distinguishes how a reservation was obtained.
type Kind string

const (
    KindHold24h        Kind = "hold_24h"
    KindDepositSecured Kind = "deposit_secured"
    KindPromoRedeemed  Kind = "promo_redeemed"
)

// ParseKind returns the Kind named by s.  Only the buyer-selectable kinds
// are accepted; promo reservations are created by code redemption.
func ParseKind(s string) (Kind, bool) {
    switch Kind(s) {
    case KindHold24h:
        return KindHold24h, true
    case KindDepositSecured:
        return KindDepositSecured, true
    }
    return "", false
}

// Quantity bounds for a single reservation.
const (
    MinQuantity = 1
    MaxQuantity = 10
)

// BuyerIdentity identifies who made a reservation.  Email is always
// present; UserID is set when the request carried a verified identity.
type BuyerIdentity struct {
    Email  string
    UserID *string
}

// Reservation is a hold, deposit or promo-backed claim on seats of one
// tier.  PriceQuotedCents is the unit price frozen at creation time and is
// never re-derived afterwards.
//
// Fields:
//  ID               – opaque unique identifier (uuid).
//  Tier             – tier the seats belong to.
//  Quantity         – number of seats (MinQuantity..MaxQuantity).
//  Buyer            – email and optional verified user id.
//  Kind             – hold, deposit or promo.
//  State            – lifecycle state.
//  PriceQuotedCents – unit price quoted at creation.
//  BalanceDueCents  – remainder owed after a deposit (out-of-model follow-up).
//  AsGift           – whether a gift assignment accompanies the reservation.
//  PaymentReference – gateway reference, set when payment is initiated.
//  CreatedAt        – creation timestamp.
//  ExpiresAt        – end of the hold for unpaid reservations.
//  UpdatedAt        – last state change.
type Reservation struct {
    ID               string        // reservations.id
    Tier             Tier          // reservations.tier
    Quantity         int           // reservations.quantity
    Buyer            BuyerIdentity // reservations.buyer_email / buyer_user_id
    Kind             Kind          // reservations.kind
    State            State         // reservations.state
    PriceQuotedCents int64         // reservations.price_quoted_cents
    BalanceDueCents  int64         // reservations.balance_due_cents
    AsGift           bool          // reservations.as_gift
    PaymentReference *string       // reservations.payment_reference (nullable)
    CreatedAt        time.Time     // reservations.created_at
    ExpiresAt        time.Time     // reservations.expires_at
    UpdatedAt        time.Time     // reservations.updated_at
}

// TotalCents is the full price of the reservation at the quoted unit price.
func (r Reservation) TotalCents() int64 {
    return r.PriceQuotedCents * int64(r.Quantity)
}

// HoldElapsed reports whether the reservation is unpaid and its hold
// window has passed at now.
func (r Reservation) HoldElapsed(now time.Time) bool {
    return r.State.Releasable() && r.ExpiresAt.Before(now)
}

// OwnedBy reports whether the given identity matches the buyer.  A
// verified user id wins; otherwise the email is compared.
func (r Reservation) OwnedBy(userID, email string) bool {
    if r.Buyer.UserID != nil && userID != "" {
        return *r.Buyer.UserID == userID
    }
    return email != "" && strings.EqualFold(r.Buyer.Email, email)
}
