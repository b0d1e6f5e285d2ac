package service

import (
    "context"
    "errors"
    "fmt"

    "github.com/google/uuid"

    "github.com/iliyamo/limited-seats/internal/metrics"
    "github.com/iliyamo/limited-seats/internal/model"
    "github.com/iliyamo/limited-seats/internal/queue"
    "github.com/iliyamo/limited-seats/internal/repository"
    "github.com/iliyamo/limited-seats/internal/utils"
)

// PromoRegistry redeems and issues one-time promo codes.  A redeemed code
// is the payment instrument: the backing reservation is created paid.
type PromoRegistry struct {
    d Deps
}

func NewPromoRegistry(d Deps) *PromoRegistry { return &PromoRegistry{d: d} }

// Redeem exchanges code for one paid seat of the code's tier.  The seat is
// admitted by the ledger first; the code is then consumed with a
// conditional write, and a lost race hands the seat back and reports
// ErrAlreadyUsed.
func (r *PromoRegistry) Redeem(ctx context.Context, code string, buyer model.BuyerIdentity) (*model.Reservation, error) {
    code = model.NormalizeCode(code)
    if code == "" {
        return nil, ErrInvalidCode
    }
    if buyer.Email == "" {
        return nil, ErrInvalidBuyer
    }
    promo, err := r.d.Promos.Get(ctx, code)
    if errors.Is(err, repository.ErrNotFound) {
        metrics.PromoRedemption("invalid")
        return nil, ErrInvalidCode
    }
    if err != nil {
        return nil, err
    }
    if promo.UsesRemaining <= 0 {
        metrics.PromoRedemption("already_used")
        return nil, ErrAlreadyUsed
    }

    now := r.d.now()
    res := &model.Reservation{
        ID:        uuid.NewString(),
        Tier:      promo.GrantedTier,
        Quantity:  1,
        Buyer:     buyer,
        Kind:      model.KindPromoRedeemed,
        State:     model.StatePaid,
        CreatedAt: now,
        ExpiresAt: now,
        UpdatedAt: now,
    }
    err = r.d.Tx.WithTx(ctx, func(ctx context.Context) error {
        out, err := r.d.Ledger.TryReserve(ctx, res.Tier, res.Quantity)
        if err != nil {
            return err
        }
        if out != repository.Granted {
            return ErrSoldOut
        }
        ok, err := r.d.Promos.Consume(ctx, code, res.ID, now)
        if err != nil {
            r.d.release(ctx, res.Tier, res.Quantity)
            return err
        }
        if !ok {
            r.d.release(ctx, res.Tier, res.Quantity)
            return ErrAlreadyUsed
        }
        if err := r.d.Reservations.Create(ctx, res); err != nil {
            r.d.release(ctx, res.Tier, res.Quantity)
            return err
        }
        _, err = r.d.Ledger.Confirm(ctx, res.ID, res.Tier, res.Quantity)
        return err
    })
    switch {
    case errors.Is(err, ErrSoldOut):
        metrics.PromoRedemption("sold_out")
        return nil, ErrSoldOut
    case errors.Is(err, ErrAlreadyUsed):
        metrics.PromoRedemption("already_used")
        return nil, ErrAlreadyUsed
    case err != nil:
        metrics.PromoRedemption("error")
        return nil, fmt.Errorf("redeem promo code: %w", err)
    }

    metrics.PromoRedemption("redeemed")
    r.d.publish(ctx, reservationEvent(queue.EventSeatConfirmed, res))
    r.d.Log.Infof(ctx, "promo code %s redeemed for reservation %s (%s)", code, res.ID, res.Tier)
    return res, nil
}

type IssuePromoInput struct {
    // Code is optional; a random code is generated when empty.
    Code string
    Tier model.Tier
    // Uses may be left zero.  Anything above one is refused: a code backs
    // at most one reservation.
    Uses int
}

// Issue creates a single-use promo code.  An explicit code that already
// exists yields ErrCodeExists; generated codes are retried on collision.
func (r *PromoRegistry) Issue(ctx context.Context, in IssuePromoInput) (*model.PromoCode, error) {
    if !in.Tier.Valid() {
        return nil, ErrUnknownTier
    }
    if in.Uses > 1 {
        return nil, ErrMultiUseCode
    }
    in.Uses = 1
    explicit := model.NormalizeCode(in.Code)
    for attempt := 0; attempt < 3; attempt++ {
        code := explicit
        if code == "" {
            var err error
            if code, err = utils.RandomCode(2); err != nil {
                return nil, err
            }
        }
        p := &model.PromoCode{Code: code, GrantedTier: in.Tier, UsesRemaining: in.Uses, CreatedAt: r.d.now()}
        err := r.d.Promos.Create(ctx, p)
        if err == nil {
            r.d.Log.Infof(ctx, "promo code %s issued for tier %s", code, in.Tier)
            return p, nil
        }
        if !errors.Is(err, repository.ErrConflict) {
            return nil, err
        }
        if explicit != "" {
            return nil, ErrCodeExists
        }
    }
    return nil, ErrCodeExists
}
