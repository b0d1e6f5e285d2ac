package service

import (
    "context"
    "errors"
    "sync"
    "time"

    "github.com/iliyamo/limited-seats/internal/metrics"
    "github.com/iliyamo/limited-seats/internal/model"
    "github.com/iliyamo/limited-seats/internal/queue"
    "github.com/iliyamo/limited-seats/internal/repository"
)

type SweeperConfig struct {
    Interval time.Duration // how often to sweep
    Batch    int           // max reservations loaded per query
}

// SweepReport summarizes one sweep.
type SweepReport struct {
    Scanned  int           `json:"scanned"`
    Expired  int           `json:"expired"`
    Skipped  int           `json:"skipped"`
    Failed   int           `json:"failed"`
    Duration time.Duration `json:"duration_ns"`
}

type SweeperStatus struct {
    IsRunning    bool      `json:"is_running"`
    StartedAt    time.Time `json:"started_at,omitempty"`
    LastSweep    time.Time `json:"last_sweep,omitempty"`
    TotalExpired int64     `json:"total_expired"`
    ErrorCount   int64     `json:"error_count"`
}

// Sweeper expires unpaid reservations whose hold ended and hands their
// seats back to the ledger.  Each expiry is a guarded transition followed
// by a release in one transaction, so re-running a sweep (after a crash,
// or concurrently on two instances) never releases a reservation twice.
type Sweeper struct {
    d   Deps
    cfg SweeperConfig

    mu           sync.RWMutex
    isRunning    bool
    startedAt    time.Time
    lastSweep    time.Time
    totalExpired int64
    errorCount   int64
    stopCh       chan struct{}
    wg           sync.WaitGroup

    // serializes sweeps started by the loop and by SweepOnce callers
    sweepMu sync.Mutex
}

func NewSweeper(d Deps, cfg SweeperConfig) *Sweeper {
    if cfg.Interval <= 0 {
        cfg.Interval = time.Minute
    }
    if cfg.Batch <= 0 {
        cfg.Batch = 100
    }
    return &Sweeper{d: d, cfg: cfg}
}

// Start runs a sweep immediately and then every Interval until Stop is
// called or ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.isRunning {
        return errors.New("sweeper is already running")
    }
    s.isRunning = true
    s.startedAt = s.d.now()
    s.stopCh = make(chan struct{})

    s.wg.Add(1)
    go s.loop(ctx, s.stopCh)
    s.d.Log.Infof(ctx, "sweeper started: interval=%s batch=%d", s.cfg.Interval, s.cfg.Batch)
    return nil
}

// Stop signals the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() error {
    s.mu.Lock()
    if !s.isRunning {
        s.mu.Unlock()
        return errors.New("sweeper is not running")
    }
    close(s.stopCh)
    s.isRunning = false
    s.mu.Unlock()

    s.wg.Wait()
    s.d.Log.Info(context.Background(), "sweeper stopped")
    return nil
}

func (s *Sweeper) Status() SweeperStatus {
    s.mu.RLock()
    defer s.mu.RUnlock()
    return SweeperStatus{
        IsRunning:    s.isRunning,
        StartedAt:    s.startedAt,
        LastSweep:    s.lastSweep,
        TotalExpired: s.totalExpired,
        ErrorCount:   s.errorCount,
    }
}

func (s *Sweeper) loop(ctx context.Context, stop <-chan struct{}) {
    defer s.wg.Done()
    ticker := time.NewTicker(s.cfg.Interval)
    defer ticker.Stop()

    for {
        if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
            s.d.Log.Errorf(ctx, "sweep failed: %v", err)
        }
        select {
        case <-ctx.Done():
            return
        case <-stop:
            return
        case <-ticker.C:
        }
    }
}

// SweepOnce expires every reservation whose hold ended before now.  Rows
// that fail the guard (paid or cancelled meanwhile) are skipped; rows that
// fail for other reasons are counted and retried on the next sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
    s.sweepMu.Lock()
    defer s.sweepMu.Unlock()

    start := time.Now()
    now := s.d.now()
    var rep SweepReport
    var after repository.ExpiryCursor

    for {
        batch, err := s.d.Reservations.ListExpiring(ctx, now, after, s.cfg.Batch)
        if err != nil {
            s.record(rep, now, 1)
            return rep, err
        }
        for i := range batch {
            res := &batch[i]
            rep.Scanned++
            switch err := s.expire(ctx, res, now); {
            case err == nil:
                rep.Expired++
            case errors.Is(err, ErrInvalidTransition):
                rep.Skipped++
            default:
                rep.Failed++
                s.d.Log.Errorf(ctx, "sweeper: expire reservation %s failed: %v", res.ID, err)
            }
        }
        if len(batch) < s.cfg.Batch || ctx.Err() != nil {
            break
        }
        after = repository.CursorAfter(batch[len(batch)-1])
    }

    rep.Duration = time.Since(start)
    metrics.SweepDuration(rep.Duration)
    if entries, err := s.d.Ledger.Snapshot(ctx); err == nil {
        metrics.Ledger(entries)
    }
    s.record(rep, now, rep.Failed)
    if rep.Scanned > 0 {
        s.d.Log.Infof(ctx, "sweep done: scanned=%d expired=%d skipped=%d failed=%d in %s",
            rep.Scanned, rep.Expired, rep.Skipped, rep.Failed, rep.Duration)
    }
    return rep, nil
}

func (s *Sweeper) expire(ctx context.Context, res *model.Reservation, now time.Time) error {
    err := s.d.Tx.WithTx(ctx, func(ctx context.Context) error {
        if err := s.d.Reservations.Transition(ctx, res.ID, res.State, model.StateExpired, now); err != nil {
            return storeErr(err)
        }
        return s.d.Ledger.Release(ctx, res.Tier, res.Quantity)
    })
    if err != nil {
        return err
    }
    metrics.SweepReleased(res.Tier)
    res.State = model.StateExpired
    ev := reservationEvent(queue.EventReservationReleased, res)
    ev.Reason = "expired"
    s.d.publish(ctx, ev)
    return nil
}

func (s *Sweeper) record(rep SweepReport, at time.Time, errs int) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.lastSweep = at
    s.totalExpired += int64(rep.Expired)
    s.errorCount += int64(errs)
}
