package handler

import (
    "time"

    "github.com/iliyamo/limited-seats/internal/model"
)

type reserveRequest struct {
    Tier        string `json:"tier" validate:"required"`
    Quantity    int    `json:"quantity" validate:"required,min=1,max=10"`
    Kind        string `json:"kind" validate:"required,oneof=hold_24h deposit_secured"`
    Email       string `json:"email" validate:"omitempty,email,max=255"`
    AsGift      bool   `json:"as_gift"`
    GiftMessage string `json:"gift_message" validate:"max=500"`
}

type payRequest struct {
    // AmountCents defaults to the amount due when omitted.
    AmountCents *int64 `json:"amount_cents" validate:"omitempty,gt=0"`
}

type redeemRequest struct {
    Code  string `json:"code" validate:"required,max=64"`
    Email string `json:"email" validate:"omitempty,email,max=255"`
}

type claimRequest struct {
    ReservationID string `json:"reservation_id" validate:"required,uuid"`
    Token         string `json:"token" validate:"required,max=128"`
}

type issuePromoRequest struct {
    Code string `json:"code" validate:"omitempty,min=4,max=64"`
    Tier string `json:"tier" validate:"required"`
    Uses int    `json:"uses" validate:"omitempty,min=1,max=1"`
}

type correctionRequest struct {
    Delta  int    `json:"delta" validate:"required"`
    Reason string `json:"reason" validate:"required,max=255"`
}

// reservationResponse is the public view of a reservation.  The buyer's
// email is left out because reservations are readable by id.
type reservationResponse struct {
    ID               string      `json:"id"`
    Tier             model.Tier  `json:"tier"`
    Quantity         int         `json:"quantity"`
    Kind             model.Kind  `json:"kind"`
    State            model.State `json:"state"`
    PriceQuotedCents int64       `json:"price_quoted_cents"`
    TotalCents       int64       `json:"total_cents"`
    AmountDueCents   int64       `json:"amount_due_cents"`
    BalanceDueCents  int64       `json:"balance_due_cents,omitempty"`
    AsGift           bool        `json:"as_gift"`
    PaymentReference *string     `json:"payment_reference,omitempty"`
    CreatedAt        time.Time   `json:"created_at"`
    ExpiresAt        *time.Time  `json:"expires_at,omitempty"`
    UpdatedAt        time.Time   `json:"updated_at"`
}

func toReservationResponse(r *model.Reservation, amountDue int64) reservationResponse {
    out := reservationResponse{
        ID:               r.ID,
        Tier:             r.Tier,
        Quantity:         r.Quantity,
        Kind:             r.Kind,
        State:            r.State,
        PriceQuotedCents: r.PriceQuotedCents,
        TotalCents:       r.TotalCents(),
        BalanceDueCents:  r.BalanceDueCents,
        AsGift:           r.AsGift,
        PaymentReference: r.PaymentReference,
        CreatedAt:        r.CreatedAt,
        UpdatedAt:        r.UpdatedAt,
    }
    if r.State.Releasable() {
        exp := r.ExpiresAt
        out.ExpiresAt = &exp
        out.AmountDueCents = amountDue
    }
    return out
}

type promoResponse struct {
    Code          string     `json:"code"`
    Tier          model.Tier `json:"tier"`
    UsesRemaining int        `json:"uses_remaining"`
    CreatedAt     time.Time  `json:"created_at"`
}
