// Package queue defines the domain events of the seat engine and moves them
// over RabbitMQ.  Events are published after the state change they describe
// has been committed; they inform downstream consumers and never feed back
// into the ledger.
package queue

import "time"

// Exchange is the durable topic exchange every event is published to.  The
// routing key is the event type.
const Exchange = "seats.events"

// AuditQueue receives every event for the audit log consumer.
const AuditQueue = "seats.audit"

const (
    EventSeatConfirmed       = "seat.confirmed"
    EventGiftClaimed         = "gift.claimed"
    EventReservationReleased = "reservation.released"
    EventLedgerCorrected     = "ledger.corrected"
)

// Event carries enough information for consumers to log, notify or feed
// analytics without querying the primary database.
type Event struct {
    Type          string    `json:"type"`
    ReservationID string    `json:"reservation_id,omitempty"`
    Tier          string    `json:"tier"`
    Quantity      int       `json:"quantity"`
    Kind          string    `json:"kind,omitempty"`
    State         string    `json:"state,omitempty"`
    AmountCents   int64     `json:"amount_cents,omitempty"`
    BuyerEmail    string    `json:"buyer_email,omitempty"`
    UserID        string    `json:"user_id,omitempty"`
    Reason        string    `json:"reason,omitempty"`
    OccurredAt    time.Time `json:"occurred_at"`
}
