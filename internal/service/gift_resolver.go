package service

import (
    "context"
    "errors"

    "github.com/iliyamo/limited-seats/internal/metrics"
    "github.com/iliyamo/limited-seats/internal/model"
    "github.com/iliyamo/limited-seats/internal/queue"
    "github.com/iliyamo/limited-seats/internal/repository"
    "github.com/iliyamo/limited-seats/internal/utils"
)

type ClaimOutcome string

const (
    ClaimOutcomeClaimed        ClaimOutcome = "claimed"
    ClaimOutcomeAlreadyClaimed ClaimOutcome = "already_claimed"
    ClaimOutcomeNotFound       ClaimOutcome = "not_found"
)

// GiftResolver links a paid gift reservation to the recipient's account.
type GiftResolver struct {
    d Deps
}

func NewGiftResolver(d Deps) *GiftResolver { return &GiftResolver{d: d} }

// Claim assigns the gift of reservationID to claimantUserID.  The
// assignment is a conditional write, so among concurrent claimants exactly
// one gets ClaimOutcomeClaimed and the others ClaimOutcomeAlreadyClaimed.
// A gift whose reservation is not paid yet reports ClaimOutcomeNotFound.
func (g *GiftResolver) Claim(ctx context.Context, reservationID, claimantUserID, token string) (ClaimOutcome, error) {
    if claimantUserID == "" {
        return "", ErrForbidden
    }
    gift, err := g.d.Gifts.Get(ctx, reservationID)
    if errors.Is(err, repository.ErrNotFound) {
        metrics.GiftClaim(string(ClaimOutcomeNotFound))
        return ClaimOutcomeNotFound, nil
    }
    if err != nil {
        return "", err
    }
    if !utils.VerifySecret(gift.ClaimTokenHash, token) {
        metrics.GiftClaim("invalid_token")
        g.d.Log.Warnf(ctx, "gift %s: claim with invalid token by user %s", reservationID, claimantUserID)
        return "", ErrInvalidClaimToken
    }

    ok, err := g.d.Gifts.Claim(ctx, reservationID, claimantUserID, g.d.now())
    if err != nil {
        return "", err
    }
    if ok {
        metrics.GiftClaim(string(ClaimOutcomeClaimed))
        g.d.Log.Infof(ctx, "gift %s claimed by user %s", reservationID, claimantUserID)
        ev := queue.Event{Type: queue.EventGiftClaimed, ReservationID: reservationID, UserID: claimantUserID}
        if res, err := g.d.Reservations.GetByID(ctx, reservationID); err == nil {
            ev.Tier = string(res.Tier)
            ev.Quantity = res.Quantity
        }
        g.d.publish(ctx, ev)
        return ClaimOutcomeClaimed, nil
    }

    // The guard failed: either someone claimed first or the reservation
    // is not paid.  Re-read to tell which.
    cur, err := g.d.Gifts.Get(ctx, reservationID)
    if err != nil {
        return "", err
    }
    if cur.ClaimStatus == model.ClaimClaimed {
        if cur.ClaimedByUserID != nil && *cur.ClaimedByUserID == claimantUserID {
            return ClaimOutcomeClaimed, nil
        }
        metrics.GiftClaim(string(ClaimOutcomeAlreadyClaimed))
        return ClaimOutcomeAlreadyClaimed, nil
    }
    metrics.GiftClaim(string(ClaimOutcomeNotFound))
    return ClaimOutcomeNotFound, nil
}
