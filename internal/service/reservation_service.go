package service

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/go-playground/validator/v10"
    "github.com/google/uuid"

    "github.com/iliyamo/limited-seats/internal/metrics"
    "github.com/iliyamo/limited-seats/internal/model"
    "github.com/iliyamo/limited-seats/internal/pricing"
    "github.com/iliyamo/limited-seats/internal/queue"
    "github.com/iliyamo/limited-seats/internal/repository"
    "github.com/iliyamo/limited-seats/internal/utils"
)

// fieldCheck validates single values with the same rules the HTTP layer
// applies to request bodies.
var fieldCheck = validator.New()

type ReservationConfig struct {
    HoldTTL      time.Duration
    DepositTTL   time.Duration
    DepositCents int64
    // BcryptCost for gift claim tokens; zero selects bcrypt's default.
    BcryptCost int
}

// ReservationService creates, reads and cancels reservations and reports
// availability.  Every seat it hands out is first admitted by the ledger.
type ReservationService struct {
    d       Deps
    pricing *pricing.Policy
    cfg     ReservationConfig
}

func NewReservationService(d Deps, p *pricing.Policy, cfg ReservationConfig) *ReservationService {
    return &ReservationService{d: d, pricing: p, cfg: cfg}
}

type CreateReservationInput struct {
    Tier        model.Tier
    Quantity    int
    Buyer       model.BuyerIdentity
    Kind        model.Kind
    AsGift      bool
    GiftMessage string
}

// CreateReservationResult carries the new reservation and, for gifts, the
// claim token.  The token is only ever returned here; the store keeps its
// hash.
type CreateReservationResult struct {
    Reservation    *model.Reservation
    GiftClaimToken string
}

// Requester identifies who asks for a buyer-scoped operation.
type Requester struct {
    UserID string
    Email  string
    Admin  bool
}

// Create admits a hold of in.Quantity seats and records a pending
// reservation at the price quoted now.  ErrSoldOut means the ledger had no
// room and nothing was written.
func (s *ReservationService) Create(ctx context.Context, in CreateReservationInput) (*CreateReservationResult, error) {
    tier, err := s.pricing.Tier(in.Tier)
    if err != nil {
        return nil, ErrUnknownTier
    }
    if in.Quantity < model.MinQuantity || in.Quantity > model.MaxQuantity {
        return nil, ErrInvalidQuantity
    }
    email := strings.TrimSpace(in.Buyer.Email)
    if err := fieldCheck.Var(email, "required,email"); err != nil {
        return nil, ErrInvalidBuyer
    }

    now := s.d.now()
    res := &model.Reservation{
        ID:               uuid.NewString(),
        Tier:             in.Tier,
        Quantity:         in.Quantity,
        Buyer:            model.BuyerIdentity{Email: email, UserID: in.Buyer.UserID},
        Kind:             in.Kind,
        State:            model.StatePending,
        PriceQuotedCents: pricing.Quote(tier, now),
        AsGift:           in.AsGift,
        CreatedAt:        now,
        UpdatedAt:        now,
    }
    switch in.Kind {
    case model.KindHold24h:
        res.ExpiresAt = now.Add(s.cfg.HoldTTL)
    case model.KindDepositSecured:
        res.ExpiresAt = now.Add(s.cfg.DepositTTL)
        res.BalanceDueCents = max(res.TotalCents()-s.cfg.DepositCents*int64(in.Quantity), 0)
    default:
        return nil, ErrInvalidKind
    }

    var token string
    var gift *model.GiftAssignment
    if in.AsGift {
        if token, err = utils.RandomHex(16); err != nil {
            return nil, fmt.Errorf("gift token: %w", err)
        }
        hash, err := utils.HashSecret(token, s.cfg.BcryptCost)
        if err != nil {
            return nil, fmt.Errorf("gift token hash: %w", err)
        }
        gift = &model.GiftAssignment{
            ReservationID:  res.ID,
            ClaimStatus:    model.ClaimUnclaimed,
            GiftMessage:    strings.TrimSpace(in.GiftMessage),
            ClaimTokenHash: hash,
            CreatedAt:      now,
        }
    }

    err = s.d.Tx.WithTx(ctx, func(ctx context.Context) error {
        out, err := s.d.Ledger.TryReserve(ctx, res.Tier, res.Quantity)
        if err != nil {
            return err
        }
        if out != repository.Granted {
            return ErrSoldOut
        }
        if err := s.d.Reservations.Create(ctx, res); err != nil {
            s.d.release(ctx, res.Tier, res.Quantity)
            return err
        }
        if gift != nil {
            if err := s.d.Gifts.Create(ctx, gift); err != nil {
                s.d.release(ctx, res.Tier, res.Quantity)
                return err
            }
        }
        return nil
    })
    if errors.Is(err, ErrSoldOut) {
        metrics.Reservation(res.Tier, res.Kind, "sold_out")
        s.d.Log.Infof(ctx, "reserve %d %s seats: sold out", res.Quantity, res.Tier)
        return nil, ErrSoldOut
    }
    if err != nil {
        metrics.Reservation(res.Tier, res.Kind, "error")
        return nil, fmt.Errorf("create reservation: %w", err)
    }
    metrics.Reservation(res.Tier, res.Kind, "created")
    s.d.Log.Infof(ctx, "reservation %s created: %d %s seats at %d cents, expires %s",
        res.ID, res.Quantity, res.Tier, res.PriceQuotedCents, res.ExpiresAt.Format(time.RFC3339))
    return &CreateReservationResult{Reservation: res, GiftClaimToken: token}, nil
}

// Get returns the stored reservation.  The quoted price is returned as
// persisted and never recomputed.
func (s *ReservationService) Get(ctx context.Context, id string) (*model.Reservation, error) {
    res, err := s.d.Reservations.GetByID(ctx, id)
    if err != nil {
        return nil, storeErr(err)
    }
    return res, nil
}

// Cancel moves an unpaid reservation to cancelled and returns its seats to
// the ledger.  Buyers may only cancel their own reservations.
func (s *ReservationService) Cancel(ctx context.Context, id string, who Requester) (*model.Reservation, error) {
    res, err := s.Get(ctx, id)
    if err != nil {
        return nil, err
    }
    if !who.Admin && !res.OwnedBy(who.UserID, who.Email) {
        return nil, ErrForbidden
    }
    if !res.State.Releasable() {
        return nil, ErrInvalidTransition
    }
    now := s.d.now()
    err = s.d.Tx.WithTx(ctx, func(ctx context.Context) error {
        if err := s.d.Reservations.Transition(ctx, res.ID, res.State, model.StateCancelled, now); err != nil {
            return storeErr(err)
        }
        return s.d.Ledger.Release(ctx, res.Tier, res.Quantity)
    })
    if err != nil {
        return nil, err
    }
    res.State = model.StateCancelled
    res.UpdatedAt = now

    ev := reservationEvent(queue.EventReservationReleased, res)
    ev.Reason = "cancelled"
    if who.Admin {
        ev.Reason = "cancelled by admin"
    }
    s.d.publish(ctx, ev)
    s.d.Log.Infof(ctx, "reservation %s cancelled (admin=%t)", res.ID, who.Admin)
    return res, nil
}

// TierAvailability is the public view of one tier.
type TierAvailability struct {
    Tier           model.Tier `json:"tier"`
    TotalAvailable int        `json:"total_available"`
    Sold           int        `json:"sold"`
    ActiveHolds    int        `json:"active_holds"`
    Remaining      int        `json:"remaining"`
    PriceCents     int64      `json:"price_cents"`
    BasePriceCents int64      `json:"base_price_cents"`
    FireSaleActive bool       `json:"fire_sale_active"`
    FireSaleEndsAt *time.Time `json:"fire_sale_ends_at,omitempty"`
}

// Availability reports remaining seats and the current effective price of
// every tier.
func (s *ReservationService) Availability(ctx context.Context) ([]TierAvailability, error) {
    entries, err := s.d.Ledger.Snapshot(ctx)
    if err != nil {
        return nil, fmt.Errorf("ledger snapshot: %w", err)
    }
    metrics.Ledger(entries)

    now := s.d.now()
    out := make([]TierAvailability, 0, len(entries))
    for _, e := range entries {
        tier, err := s.pricing.Tier(e.Tier)
        if err != nil {
            s.d.Log.Warnf(ctx, "ledger row %s has no pricing; skipped", e.Tier)
            continue
        }
        ta := TierAvailability{
            Tier:           e.Tier,
            TotalAvailable: e.TotalAvailable,
            Sold:           e.Sold,
            ActiveHolds:    e.ActiveHolds,
            Remaining:      e.Remaining(),
            PriceCents:     pricing.Quote(tier, now),
            BasePriceCents: tier.BasePriceCents,
            FireSaleActive: pricing.FireSaleActive(tier, now),
        }
        if ta.FireSaleActive {
            ta.FireSaleEndsAt = tier.FireSaleEndsAt
        }
        out = append(out, ta)
    }
    return out, nil
}

// AdjustSold applies an admin correction to the sold counter of tier.
func (s *ReservationService) AdjustSold(ctx context.Context, tier model.Tier, delta int, reason string) error {
    if !tier.Valid() {
        return ErrUnknownTier
    }
    if delta == 0 {
        return ErrLedgerBounds
    }
    if err := s.d.Ledger.AdjustSold(ctx, tier, delta); err != nil {
        if errors.Is(err, repository.ErrConflict) {
            return ErrLedgerBounds
        }
        return err
    }
    s.d.Log.Warnf(ctx, "ledger correction applied: tier=%s delta=%d reason=%q", tier, delta, reason)
    s.d.publish(ctx, queue.Event{Type: queue.EventLedgerCorrected, Tier: string(tier), Quantity: delta, Reason: reason})
    return nil
}
