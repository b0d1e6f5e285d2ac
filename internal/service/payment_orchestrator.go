package service

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/google/uuid"

    "github.com/iliyamo/limited-seats/internal/gateway"
    "github.com/iliyamo/limited-seats/internal/metrics"
    "github.com/iliyamo/limited-seats/internal/model"
    "github.com/iliyamo/limited-seats/internal/queue"
)

type PaymentConfig struct {
    DepositCents int64
    // Timeout bounds one Initiate call to the gateway.
    Timeout time.Duration
}

// PaymentOrchestrator moves reservations through payment.  Results from
// the gateway arrive as independent messages (at least once, in any order)
// and are applied through guarded transitions, so a duplicate or late
// delivery never changes the ledger twice.
type PaymentOrchestrator struct {
    d   Deps
    gw  Gateway
    cfg PaymentConfig
}

func NewPaymentOrchestrator(d Deps, gw Gateway, cfg PaymentConfig) *PaymentOrchestrator {
    if cfg.Timeout <= 0 {
        cfg.Timeout = 10 * time.Second
    }
    return &PaymentOrchestrator{d: d, gw: gw, cfg: cfg}
}

// AmountDue is what the buyer pays now: the full price for a hold, the
// per-seat deposit for a deposit reservation.
func (p *PaymentOrchestrator) AmountDue(res *model.Reservation) int64 {
    if res.Kind == model.KindDepositSecured {
        return p.cfg.DepositCents * int64(res.Quantity)
    }
    return res.TotalCents()
}

// InitiatePayment starts a gateway payment for a pending reservation and
// returns the redirect for the buyer.  The reservation moves to
// awaiting_payment before the gateway is called.  When the outcome at the
// provider is unknown (timeout, 5xx) it stays there until the webhook or
// the sweeper settles it; when the provider certainly has no payment it
// returns to pending.
func (p *PaymentOrchestrator) InitiatePayment(ctx context.Context, id string, amountCents int64) (*gateway.Redirect, error) {
    res, err := p.d.Reservations.GetByID(ctx, id)
    if err != nil {
        return nil, storeErr(err)
    }
    if res.Kind == model.KindPromoRedeemed {
        return nil, ErrNotPayable
    }
    if res.State != model.StatePending {
        return nil, ErrInvalidTransition
    }
    now := p.d.now()
    if !now.Before(res.ExpiresAt) {
        return nil, ErrHoldExpired
    }
    if amountCents != p.AmountDue(res) {
        return nil, ErrAmountMismatch
    }

    ref := "pay_" + strings.ReplaceAll(uuid.NewString(), "-", "")
    if err := p.d.Reservations.TransitionWithReference(ctx, res.ID, model.StatePending, model.StateAwaitingPayment, ref, now); err != nil {
        return nil, storeErr(err)
    }

    gctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
    defer cancel()
    red, err := p.gw.Initiate(gctx, gateway.InitiateRequest{
        ReservationID: res.ID,
        Reference:     ref,
        AmountCents:   amountCents,
        Description:   fmt.Sprintf("%d x %s seat", res.Quantity, res.Tier),
    })
    switch {
    case err == nil:
        metrics.GatewayInitiation("ok")
        p.d.Log.Infof(ctx, "payment %s initiated for reservation %s (%d cents)", ref, res.ID, amountCents)
        return red, nil
    case errors.Is(err, gateway.ErrNotSent) || errors.Is(err, gateway.ErrRejected):
        // No payment exists at the provider: hand the reservation back so
        // the buyer can try again.
        outcome := "rejected"
        if errors.Is(err, gateway.ErrNotSent) {
            outcome = "not_sent"
        }
        metrics.GatewayInitiation(outcome)
        if terr := p.d.Reservations.Transition(ctx, res.ID, model.StateAwaitingPayment, model.StatePending, p.d.now()); terr != nil {
            p.d.Log.Warnf(ctx, "reservation %s: revert after %s payment failed: %v", res.ID, outcome, terr)
        }
        p.d.Log.Warnf(ctx, "payment %s for reservation %s %s: %v", ref, res.ID, outcome, err)
        return nil, ErrGatewayUnavailable
    default:
        // Timeouts and 5xx answers: the provider may have registered the
        // payment, so the webhook or the sweeper settles the reservation.
        outcome := "unavailable"
        if errors.Is(err, gateway.ErrTimeout) || errors.Is(gctx.Err(), context.DeadlineExceeded) {
            outcome = "timeout"
        }
        metrics.GatewayInitiation(outcome)
        p.d.Log.Warnf(ctx, "payment %s for reservation %s: %s, left awaiting_payment: %v", ref, res.ID, outcome, err)
        return nil, ErrGatewayTimeout
    }
}

// GatewayResult is one webhook delivery after signature checking.
type GatewayResult struct {
    ReservationID    string
    PaymentReference string
    Outcome          gateway.Outcome
    AmountCents      int64 // zero when the gateway omitted it
    SignatureValid   bool
    RemoteAddr       string
}

// Disposition reports what a gateway result did.
type Disposition string

const (
    DispositionPaid              Disposition = "paid"
    DispositionAlreadyPaid       Disposition = "already_paid"
    DispositionReturnedToPending Disposition = "returned_to_pending"
    DispositionIgnored           Disposition = "ignored"
    DispositionLatePayment       Disposition = "late_payment"
)

// HandleGatewayResult applies one webhook delivery.  It is idempotent: a
// result for an already paid reservation reports DispositionAlreadyPaid
// and changes nothing.
func (p *PaymentOrchestrator) HandleGatewayResult(ctx context.Context, r GatewayResult) (Disposition, error) {
    if !r.SignatureValid {
        metrics.InvalidSignature()
        p.d.Log.Errorf(ctx, "SECURITY: gateway result with invalid signature rejected: reservation_id=%s reference=%s remote=%s",
            r.ReservationID, r.PaymentReference, r.RemoteAddr)
        return "", ErrSignatureInvalid
    }
    res, err := p.d.Reservations.GetByID(ctx, r.ReservationID)
    if err != nil {
        return "", storeErr(err)
    }
    if res.PaymentReference == nil || *res.PaymentReference != r.PaymentReference {
        p.d.Log.Warnf(ctx, "gateway result for reservation %s carries unknown reference %s", res.ID, r.PaymentReference)
        metrics.WebhookResult("reference_mismatch")
        return "", ErrReferenceMismatch
    }

    var disp Disposition
    if r.Outcome == gateway.OutcomeSuccess {
        disp, err = p.applySuccess(ctx, res, r)
    } else {
        disp, err = p.applyFailure(ctx, res)
    }
    if err != nil {
        return "", err
    }
    metrics.WebhookResult(string(disp))
    return disp, nil
}

func (p *PaymentOrchestrator) applySuccess(ctx context.Context, res *model.Reservation, r GatewayResult) (Disposition, error) {
    switch res.State {
    case model.StatePaid:
        return DispositionAlreadyPaid, nil
    case model.StateExpired, model.StateCancelled:
        p.d.Log.Errorf(ctx, "payment %s succeeded for %s reservation %s; seats were already released, refund required",
            r.PaymentReference, res.State, res.ID)
        return DispositionLatePayment, nil
    }
    if r.AmountCents != 0 && r.AmountCents != p.AmountDue(res) {
        p.d.Log.Errorf(ctx, "payment %s for reservation %s reports %d cents, expected %d",
            r.PaymentReference, res.ID, r.AmountCents, p.AmountDue(res))
        return "", ErrAmountMismatch
    }

    now := p.d.now()
    from := res.State
    err := p.d.Tx.WithTx(ctx, func(ctx context.Context) error {
        // A failure delivery may have overtaken this success and returned
        // the reservation to pending under the same reference.
        if from == model.StatePending {
            if err := p.d.Reservations.Transition(ctx, res.ID, model.StatePending, model.StateAwaitingPayment, now); err != nil {
                return storeErr(err)
            }
        }
        if err := p.d.Reservations.Transition(ctx, res.ID, model.StateAwaitingPayment, model.StatePaid, now); err != nil {
            return storeErr(err)
        }
        applied, err := p.d.Ledger.Confirm(ctx, res.ID, res.Tier, res.Quantity)
        if err != nil {
            return err
        }
        if !applied {
            p.d.Log.Warnf(ctx, "ledger already confirmed reservation %s", res.ID)
        }
        return nil
    })
    if errors.Is(err, ErrInvalidTransition) {
        // Lost a race; report what the winner did.
        cur, gerr := p.d.Reservations.GetByID(ctx, res.ID)
        if gerr == nil && cur.State == model.StatePaid {
            return DispositionAlreadyPaid, nil
        }
        if gerr == nil && (cur.State == model.StateExpired || cur.State == model.StateCancelled) {
            p.d.Log.Errorf(ctx, "payment %s succeeded for %s reservation %s; refund required", r.PaymentReference, cur.State, res.ID)
            return DispositionLatePayment, nil
        }
        return "", ErrInvalidTransition
    }
    if err != nil {
        return "", fmt.Errorf("confirm reservation %s: %w", res.ID, err)
    }

    res.State = model.StatePaid
    res.UpdatedAt = now
    p.d.publish(ctx, reservationEvent(queue.EventSeatConfirmed, res))
    p.d.Log.Infof(ctx, "reservation %s paid (%s)", res.ID, r.PaymentReference)
    return DispositionPaid, nil
}

func (p *PaymentOrchestrator) applyFailure(ctx context.Context, res *model.Reservation) (Disposition, error) {
    switch res.State {
    case model.StatePaid:
        p.d.Log.Warnf(ctx, "failure result for paid reservation %s ignored", res.ID)
        return DispositionAlreadyPaid, nil
    case model.StateAwaitingPayment:
    default:
        return DispositionIgnored, nil
    }
    err := p.d.Reservations.Transition(ctx, res.ID, model.StateAwaitingPayment, model.StatePending, p.d.now())
    if errors.Is(storeErr(err), ErrInvalidTransition) {
        return DispositionIgnored, nil
    }
    if err != nil {
        return "", err
    }
    p.d.Log.Infof(ctx, "payment for reservation %s failed; hold kept until %s", res.ID, res.ExpiresAt.Format(time.RFC3339))
    return DispositionReturnedToPending, nil
}
