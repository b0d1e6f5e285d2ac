package service

import (
    "context"
    "time"

    "github.com/iliyamo/limited-seats/internal/gateway"
    "github.com/iliyamo/limited-seats/internal/logger"
    "github.com/iliyamo/limited-seats/internal/model"
    "github.com/iliyamo/limited-seats/internal/queue"
    "github.com/iliyamo/limited-seats/internal/repository"
)

// Transactor runs fn atomically.  Repository calls made with the context
// passed to fn join the same transaction.
type Transactor interface {
    WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Ledger is the authoritative per-tier seat counter.
type Ledger interface {
    TryReserve(ctx context.Context, tier model.Tier, qty int) (repository.Outcome, error)
    Release(ctx context.Context, tier model.Tier, qty int) error
    Confirm(ctx context.Context, reservationID string, tier model.Tier, qty int) (bool, error)
    AdjustSold(ctx context.Context, tier model.Tier, delta int) error
    Snapshot(ctx context.Context) ([]model.LedgerEntry, error)
}

// ReservationStore persists reservations behind guarded transitions.
type ReservationStore interface {
    Create(ctx context.Context, res *model.Reservation) error
    GetByID(ctx context.Context, id string) (*model.Reservation, error)
    Transition(ctx context.Context, id string, from, to model.State, at time.Time) error
    TransitionWithReference(ctx context.Context, id string, from, to model.State, ref string, at time.Time) error
    ListExpiring(ctx context.Context, now time.Time, after repository.ExpiryCursor, limit int) ([]model.Reservation, error)
}

type PromoStore interface {
    Create(ctx context.Context, p *model.PromoCode) error
    Get(ctx context.Context, code string) (*model.PromoCode, error)
    Consume(ctx context.Context, code, reservationID string, at time.Time) (bool, error)
}

type GiftStore interface {
    Create(ctx context.Context, g *model.GiftAssignment) error
    Get(ctx context.Context, reservationID string) (*model.GiftAssignment, error)
    Claim(ctx context.Context, reservationID, userID string, at time.Time) (bool, error)
}

type EventPublisher interface {
    Publish(ctx context.Context, ev queue.Event) error
}

// Gateway starts hosted payments.
type Gateway interface {
    Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.Redirect, error)
}

type Clock interface {
    Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = systemClock{}

// Deps bundles the collaborators shared by every service.
type Deps struct {
    Tx           Transactor
    Ledger       Ledger
    Reservations ReservationStore
    Promos       PromoStore
    Gifts        GiftStore
    Events       EventPublisher
    Clock        Clock
    Log          logger.Logger
}

func (d Deps) now() time.Time {
    if d.Clock == nil {
        return SystemClock.Now()
    }
    return d.Clock.Now()
}

// publish sends ev after the change it describes has been committed.
// Failures are logged; they never undo or block the change.
func (d Deps) publish(ctx context.Context, ev queue.Event) {
    if d.Events == nil {
        return
    }
    if ev.OccurredAt.IsZero() {
        ev.OccurredAt = d.now()
    }
    pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
    defer cancel()
    if err := d.Events.Publish(pctx, ev); err != nil {
        d.Log.Warnf(ctx, "publish %s for %s failed: %v", ev.Type, ev.ReservationID, err)
    }
}

// release hands seats back after a failed multi-step write.  Inside a
// database transaction the rollback already undoes the hold; stores
// without transactions rely on this explicit release.
func (d Deps) release(ctx context.Context, tier model.Tier, qty int) {
    if err := d.Ledger.Release(ctx, tier, qty); err != nil {
        d.Log.Warnf(ctx, "compensating release of %d %s seats failed: %v", qty, tier, err)
    }
}

func reservationEvent(typ string, res *model.Reservation) queue.Event {
    ev := queue.Event{
        Type:          typ,
        ReservationID: res.ID,
        Tier:          string(res.Tier),
        Quantity:      res.Quantity,
        Kind:          string(res.Kind),
        State:         string(res.State),
        AmountCents:   res.TotalCents(),
        BuyerEmail:    res.Buyer.Email,
    }
    if res.Buyer.UserID != nil {
        ev.UserID = *res.Buyer.UserID
    }
    return ev
}
