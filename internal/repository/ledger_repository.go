package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"

    "github.com/iliyamo/limited-seats/internal/model"
)

// Outcome is the result of a hold attempt.  Running out of seats is an
// expected result, not an error.
type Outcome int

const (
    Insufficient Outcome = iota
    Granted
)

func (o Outcome) String() string {
    if o == Granted {
        return "granted"
    }
    return "insufficient"
}

// LedgerRepo owns the seat_ledger table: one row per tier holding the
// authoritative sold and active_holds counters.  Rows are never read and
// then written back; each mutation is a single UPDATE whose WHERE clause
// carries the bound it must respect.
type LedgerRepo struct {
    db *sql.DB
    tx *TxManager
}

// NewLedgerRepo returns a LedgerRepo bound to db.
func NewLedgerRepo(db *sql.DB, tx *TxManager) *LedgerRepo { return &LedgerRepo{db: db, tx: tx} }

// TryReserve admits a hold of qty seats when at least qty seats remain.
// The remaining check and the increment of active_holds happen in the
// same statement, so concurrent callers can never push the tier past its
// total.
func (r *LedgerRepo) TryReserve(ctx context.Context, tier model.Tier, qty int) (Outcome, error) {
    const q = `UPDATE seat_ledger
        SET active_holds = active_holds + ?, version = version + 1
        WHERE tier = ? AND total_available - sold - active_holds >= ?`
    res, err := conn(ctx, r.db).ExecContext(ctx, q, qty, string(tier), qty)
    if err != nil {
        return Insufficient, fmt.Errorf("ledger reserve %s: %w", tier, err)
    }
    n, err := res.RowsAffected()
    if err != nil {
        return Insufficient, err
    }
    if n == 0 {
        return Insufficient, nil
    }
    return Granted, nil
}

// Release hands qty held seats back to the tier.  It returns ErrConflict
// when fewer than qty seats are currently held.
func (r *LedgerRepo) Release(ctx context.Context, tier model.Tier, qty int) error {
    const q = `UPDATE seat_ledger
        SET active_holds = active_holds - ?, version = version + 1
        WHERE tier = ? AND active_holds >= ?`
    res, err := conn(ctx, r.db).ExecContext(ctx, q, qty, string(tier), qty)
    if err != nil {
        return fmt.Errorf("ledger release %s: %w", tier, err)
    }
    return requireOne(res)
}

// Confirm moves qty seats of the given reservation from active_holds to
// sold.  The reservation id is recorded in ledger_confirmations first;
// when it is already there the call is a no-op and reports false.
func (r *LedgerRepo) Confirm(ctx context.Context, reservationID string, tier model.Tier, qty int) (bool, error) {
    applied := false
    err := r.tx.WithTx(ctx, func(ctx context.Context) error {
        db := conn(ctx, r.db)
        const ins = `INSERT IGNORE INTO ledger_confirmations (reservation_id, tier, quantity) VALUES (?, ?, ?)`
        res, err := db.ExecContext(ctx, ins, reservationID, string(tier), qty)
        if err != nil {
            return fmt.Errorf("ledger confirm record: %w", err)
        }
        n, err := res.RowsAffected()
        if err != nil {
            return err
        }
        if n == 0 {
            return nil
        }
        const upd = `UPDATE seat_ledger
            SET active_holds = active_holds - ?, sold = sold + ?, version = version + 1
            WHERE tier = ? AND active_holds >= ?`
        res, err = db.ExecContext(ctx, upd, qty, qty, string(tier), qty)
        if err != nil {
            return fmt.Errorf("ledger confirm %s: %w", tier, err)
        }
        if err := requireOne(res); err != nil {
            return err
        }
        applied = true
        return nil
    })
    if err != nil {
        return false, err
    }
    return applied, nil
}

// AdjustSold applies an administrative correction to sold.  The update is
// refused with ErrConflict when it would make sold negative or leave too
// few seats for the current holds.
func (r *LedgerRepo) AdjustSold(ctx context.Context, tier model.Tier, delta int) error {
    const q = `UPDATE seat_ledger
        SET sold = sold + ?, version = version + 1
        WHERE tier = ? AND sold + ? >= 0 AND sold + ? + active_holds <= total_available`
    res, err := conn(ctx, r.db).ExecContext(ctx, q, delta, string(tier), delta, delta)
    if err != nil {
        return fmt.Errorf("ledger adjust %s: %w", tier, err)
    }
    return requireOne(res)
}

// Get returns the ledger row of tier.
func (r *LedgerRepo) Get(ctx context.Context, tier model.Tier) (*model.LedgerEntry, error) {
    const q = `SELECT tier, total_available, sold, active_holds, version, updated_at FROM seat_ledger WHERE tier = ?`
    var e model.LedgerEntry
    var t string
    err := conn(ctx, r.db).QueryRowContext(ctx, q, string(tier)).Scan(&t, &e.TotalAvailable, &e.Sold, &e.ActiveHolds, &e.Version, &e.UpdatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    e.Tier = model.Tier(t)
    return &e, nil
}

// Snapshot returns every ledger row ordered by tier.
func (r *LedgerRepo) Snapshot(ctx context.Context) ([]model.LedgerEntry, error) {
    const q = `SELECT tier, total_available, sold, active_holds, version, updated_at FROM seat_ledger ORDER BY tier`
    rows, err := conn(ctx, r.db).QueryContext(ctx, q)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.LedgerEntry
    for rows.Next() {
        var e model.LedgerEntry
        var t string
        if err := rows.Scan(&t, &e.TotalAvailable, &e.Sold, &e.ActiveHolds, &e.Version, &e.UpdatedAt); err != nil {
            return nil, err
        }
        e.Tier = model.Tier(t)
        out = append(out, e)
    }
    return out, rows.Err()
}

// requireOne maps a conditional UPDATE that matched no row to ErrConflict.
func requireOne(res sql.Result) error {
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrConflict
    }
    return nil
}
