package handler

import (
    "context"

    "github.com/iliyamo/limited-seats/internal/gateway"
    "github.com/iliyamo/limited-seats/internal/model"
    "github.com/iliyamo/limited-seats/internal/service"
)

// The handlers depend on these narrow views of the services so tests can
// swap them for mocks.

type Reservations interface {
    Create(ctx context.Context, in service.CreateReservationInput) (*service.CreateReservationResult, error)
    Get(ctx context.Context, id string) (*model.Reservation, error)
    Cancel(ctx context.Context, id string, who service.Requester) (*model.Reservation, error)
    Availability(ctx context.Context) ([]service.TierAvailability, error)
    AdjustSold(ctx context.Context, tier model.Tier, delta int, reason string) error
}

type Payments interface {
    AmountDue(res *model.Reservation) int64
    InitiatePayment(ctx context.Context, id string, amountCents int64) (*gateway.Redirect, error)
    HandleGatewayResult(ctx context.Context, r service.GatewayResult) (service.Disposition, error)
}

type Promos interface {
    Redeem(ctx context.Context, code string, buyer model.BuyerIdentity) (*model.Reservation, error)
    Issue(ctx context.Context, in service.IssuePromoInput) (*model.PromoCode, error)
}

type Gifts interface {
    Claim(ctx context.Context, reservationID, claimantUserID, token string) (service.ClaimOutcome, error)
}

type Sweeps interface {
    SweepOnce(ctx context.Context) (service.SweepReport, error)
    Status() service.SweeperStatus
}
