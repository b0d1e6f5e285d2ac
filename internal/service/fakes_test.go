package service

import (
    "context"
    "sort"
    "sync"
    "testing"
    "time"

    "github.com/iliyamo/limited-seats/internal/gateway"
    "github.com/iliyamo/limited-seats/internal/logger"
    "github.com/iliyamo/limited-seats/internal/model"
    "github.com/iliyamo/limited-seats/internal/pricing"
    "github.com/iliyamo/limited-seats/internal/queue"
    "github.com/iliyamo/limited-seats/internal/repository"
)

// memStore keeps every table in memory behind one mutex.  Each method is a
// single critical section, which gives it the same atomic conditional
// write semantics the MySQL repositories get from guarded UPDATEs.
type memStore struct {
    mu        sync.Mutex
    ledger    map[model.Tier]*model.LedgerEntry
    confirmed map[string]bool
    res       map[string]*model.Reservation
    promos    map[string]*model.PromoCode
    gifts     map[string]*model.GiftAssignment

    // transitionErr, when set, can fail a reservation transition before
    // it is applied.
    transitionErr func(id string, to model.State) error
}

func newMemStore() *memStore {
    s := &memStore{
        ledger:    make(map[model.Tier]*model.LedgerEntry),
        confirmed: make(map[string]bool),
        res:       make(map[string]*model.Reservation),
        promos:    make(map[string]*model.PromoCode),
        gifts:     make(map[string]*model.GiftAssignment),
    }
    for _, t := range model.Tiers {
        s.ledger[t] = &model.LedgerEntry{Tier: t, TotalAvailable: model.SeatsPerTier}
    }
    return s
}

func (s *memStore) entry(t model.Tier) model.LedgerEntry {
    s.mu.Lock()
    defer s.mu.Unlock()
    return *s.ledger[t]
}

func (s *memStore) setSold(t model.Tier, sold int) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.ledger[t].Sold = sold
}

// ledger

func (s *memStore) TryReserve(_ context.Context, t model.Tier, qty int) (repository.Outcome, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    e, ok := s.ledger[t]
    if !ok || qty <= 0 {
        return repository.Insufficient, nil
    }
    if e.TotalAvailable-e.Sold-e.ActiveHolds < qty {
        return repository.Insufficient, nil
    }
    e.ActiveHolds += qty
    e.Version++
    return repository.Granted, nil
}

func (s *memStore) Release(_ context.Context, t model.Tier, qty int) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    e := s.ledger[t]
    if e == nil || e.ActiveHolds < qty {
        return repository.ErrConflict
    }
    e.ActiveHolds -= qty
    e.Version++
    return nil
}

func (s *memStore) Confirm(_ context.Context, id string, t model.Tier, qty int) (bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.confirmed[id] {
        return false, nil
    }
    e := s.ledger[t]
    if e == nil || e.ActiveHolds < qty {
        return false, repository.ErrConflict
    }
    s.confirmed[id] = true
    e.ActiveHolds -= qty
    e.Sold += qty
    e.Version++
    return true, nil
}

func (s *memStore) AdjustSold(_ context.Context, t model.Tier, delta int) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    e := s.ledger[t]
    if e == nil {
        return repository.ErrNotFound
    }
    if e.Sold+delta < 0 || e.Sold+delta+e.ActiveHolds > e.TotalAvailable {
        return repository.ErrConflict
    }
    e.Sold += delta
    e.Version++
    return nil
}

func (s *memStore) Snapshot(context.Context) ([]model.LedgerEntry, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    out := make([]model.LedgerEntry, 0, len(s.ledger))
    for _, t := range model.Tiers {
        out = append(out, *s.ledger[t])
    }
    return out, nil
}

// reservations

type memReservations struct{ *memStore }

func (r memReservations) Create(_ context.Context, res *model.Reservation) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    if _, ok := r.res[res.ID]; ok {
        return repository.ErrConflict
    }
    cp := *res
    r.res[res.ID] = &cp
    return nil
}

func (r memReservations) GetByID(_ context.Context, id string) (*model.Reservation, error) {
    r.mu.Lock()
    defer r.mu.Unlock()
    res, ok := r.res[id]
    if !ok {
        return nil, repository.ErrNotFound
    }
    cp := *res
    return &cp, nil
}

func (r memReservations) Transition(ctx context.Context, id string, from, to model.State, at time.Time) error {
    return r.transition(id, from, to, nil, at)
}

func (r memReservations) TransitionWithReference(ctx context.Context, id string, from, to model.State, ref string, at time.Time) error {
    return r.transition(id, from, to, &ref, at)
}

func (r memReservations) transition(id string, from, to model.State, ref *string, at time.Time) error {
    if !model.CanTransition(from, to) {
        return repository.ErrInvalidTransition
    }
    r.mu.Lock()
    defer r.mu.Unlock()
    if r.transitionErr != nil {
        if err := r.transitionErr(id, to); err != nil {
            return err
        }
    }
    res, ok := r.res[id]
    if !ok || res.State != from {
        return repository.ErrInvalidTransition
    }
    res.State = to
    res.UpdatedAt = at
    if ref != nil {
        res.PaymentReference = ref
    }
    return nil
}

func (r memReservations) ListExpiring(_ context.Context, now time.Time, after repository.ExpiryCursor, limit int) ([]model.Reservation, error) {
    r.mu.Lock()
    defer r.mu.Unlock()
    var out []model.Reservation
    for _, res := range r.res {
        if !res.State.Releasable() || !res.ExpiresAt.Before(now) {
            continue
        }
        if after.ID != "" && (res.ExpiresAt.Before(after.ExpiresAt) ||
            (res.ExpiresAt.Equal(after.ExpiresAt) && res.ID <= after.ID)) {
            continue
        }
        out = append(out, *res)
    }
    sort.Slice(out, func(i, j int) bool {
        if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
            return out[i].ExpiresAt.Before(out[j].ExpiresAt)
        }
        return out[i].ID < out[j].ID
    })
    if len(out) > limit {
        out = out[:limit]
    }
    return out, nil
}

// promos

type memPromos struct{ *memStore }

func (p memPromos) Create(_ context.Context, promo *model.PromoCode) error {
    p.mu.Lock()
    defer p.mu.Unlock()
    if _, ok := p.promos[promo.Code]; ok {
        return repository.ErrConflict
    }
    cp := *promo
    p.promos[promo.Code] = &cp
    return nil
}

func (p memPromos) Get(_ context.Context, code string) (*model.PromoCode, error) {
    p.mu.Lock()
    defer p.mu.Unlock()
    promo, ok := p.promos[code]
    if !ok {
        return nil, repository.ErrNotFound
    }
    cp := *promo
    return &cp, nil
}

func (p memPromos) Consume(_ context.Context, code, reservationID string, at time.Time) (bool, error) {
    p.mu.Lock()
    defer p.mu.Unlock()
    promo, ok := p.promos[code]
    if !ok || promo.UsesRemaining <= 0 {
        return false, nil
    }
    promo.UsesRemaining--
    promo.RedeemedByReservationID = &reservationID
    promo.RedeemedAt = &at
    return true, nil
}

// gifts

type memGifts struct{ *memStore }

func (g memGifts) Create(_ context.Context, gift *model.GiftAssignment) error {
    g.mu.Lock()
    defer g.mu.Unlock()
    if _, ok := g.gifts[gift.ReservationID]; ok {
        return repository.ErrConflict
    }
    cp := *gift
    g.gifts[gift.ReservationID] = &cp
    return nil
}

func (g memGifts) Get(_ context.Context, id string) (*model.GiftAssignment, error) {
    g.mu.Lock()
    defer g.mu.Unlock()
    gift, ok := g.gifts[id]
    if !ok {
        return nil, repository.ErrNotFound
    }
    cp := *gift
    return &cp, nil
}

func (g memGifts) Claim(_ context.Context, id, userID string, at time.Time) (bool, error) {
    g.mu.Lock()
    defer g.mu.Unlock()
    gift, ok := g.gifts[id]
    res, rok := g.res[id]
    if !ok || !rok || res.State != model.StatePaid || gift.ClaimStatus != model.ClaimUnclaimed {
        return false, nil
    }
    gift.ClaimStatus = model.ClaimClaimed
    gift.ClaimedByUserID = &userID
    gift.ClaimedAt = &at
    return true, nil
}

// collaborators

type passTx struct{}

func (passTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type fakeClock struct {
    mu  sync.Mutex
    now time.Time
}

func (c *fakeClock) Now() time.Time {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.now = c.now.Add(d)
}

type recordingPublisher struct {
    mu     sync.Mutex
    events []queue.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.Event) error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.events = append(p.events, ev)
    return nil
}

func (p *recordingPublisher) ofType(typ string) []queue.Event {
    p.mu.Lock()
    defer p.mu.Unlock()
    var out []queue.Event
    for _, ev := range p.events {
        if ev.Type == typ {
            out = append(out, ev)
        }
    }
    return out
}

type fakeGateway struct {
    mu    sync.Mutex
    calls []gateway.InitiateRequest
    fn    func(ctx context.Context, req gateway.InitiateRequest) (*gateway.Redirect, error)
}

func (g *fakeGateway) Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.Redirect, error) {
    g.mu.Lock()
    g.calls = append(g.calls, req)
    g.mu.Unlock()
    if g.fn != nil {
        return g.fn(ctx, req)
    }
    return &gateway.Redirect{URL: "https://pay.example.test/" + req.Reference, Reference: req.Reference}, nil
}

// env wires every service over one memStore.
type env struct {
    store    *memStore
    clock    *fakeClock
    events   *recordingPublisher
    gw       *fakeGateway
    deps     Deps
    res      *ReservationService
    payments *PaymentOrchestrator
    promos   *PromoRegistry
    gifts    *GiftResolver
    sweeper  *Sweeper
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const (
    founderBase = int64(50000)
    founderSale = int64(35000)
    patronBase  = int64(20000)
    deposit     = int64(5000)
)

func newEnv(t *testing.T) *env {
    t.Helper()
    store := newMemStore()
    e := &env{
        store:  store,
        clock:  &fakeClock{now: t0},
        events: &recordingPublisher{},
        gw:     &fakeGateway{},
    }
    e.deps = Deps{
        Tx:           passTx{},
        Ledger:       store,
        Reservations: memReservations{store},
        Promos:       memPromos{store},
        Gifts:        memGifts{store},
        Events:       e.events,
        Clock:        e.clock,
        Log:          logger.NewNop(),
    }
    sale := founderSale
    ends := t0.Add(time.Hour)
    policy := pricing.NewPolicy(
        model.SeatTier{Tier: model.TierFounder, TotalAvailable: model.SeatsPerTier, BasePriceCents: founderBase, FireSalePriceCents: &sale, FireSaleEndsAt: &ends},
        model.SeatTier{Tier: model.TierPatron, TotalAvailable: model.SeatsPerTier, BasePriceCents: patronBase},
    )
    e.res = NewReservationService(e.deps, policy, ReservationConfig{
        HoldTTL:      24 * time.Hour,
        DepositTTL:   48 * time.Hour,
        DepositCents: deposit,
        BcryptCost:   4,
    })
    e.payments = NewPaymentOrchestrator(e.deps, e.gw, PaymentConfig{DepositCents: deposit, Timeout: time.Second})
    e.promos = NewPromoRegistry(e.deps)
    e.gifts = NewGiftResolver(e.deps)
    e.sweeper = NewSweeper(e.deps, SweeperConfig{Interval: time.Hour, Batch: 10})
    return e
}

func (e *env) reserve(t *testing.T, tier model.Tier, qty int, kind model.Kind) *model.Reservation {
    t.Helper()
    out, err := e.res.Create(context.Background(), CreateReservationInput{
        Tier:     tier,
        Quantity: qty,
        Buyer:    model.BuyerIdentity{Email: "buyer@example.com"},
        Kind:     kind,
    })
    if err != nil {
        t.Fatalf("reserve: %v", err)
    }
    return out.Reservation
}

// pay initiates a payment and delivers a signed success result for it.
func (e *env) pay(t *testing.T, res *model.Reservation) Disposition {
    t.Helper()
    ctx := context.Background()
    red, err := e.payments.InitiatePayment(ctx, res.ID, e.payments.AmountDue(res))
    if err != nil {
        t.Fatalf("initiate: %v", err)
    }
    disp, err := e.payments.HandleGatewayResult(ctx, GatewayResult{
        ReservationID:    res.ID,
        PaymentReference: red.Reference,
        Outcome:          gateway.OutcomeSuccess,
        SignatureValid:   true,
    })
    if err != nil {
        t.Fatalf("gateway result: %v", err)
    }
    return disp
}
