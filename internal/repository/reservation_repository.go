package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "time"

    "github.com/iliyamo/limited-seats/internal/model"
)

// ReservationRepo persists reservations.  State changes go through
// Transition, which only applies when the stored state still equals the
// expected one.  That guard is what lets the sweeper, the webhook and
// buyer cancellations race on the same row without a global lock.
type ReservationRepo struct {
    db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, tier, quantity, buyer_email, buyer_user_id, kind, state,
    price_quoted_cents, balance_due_cents, as_gift, payment_reference, created_at, expires_at, updated_at`

// Create inserts res.  The caller fills every field, including the id and
// the timestamps.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
    const q = `INSERT INTO reservations (` + reservationColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    _, err := conn(ctx, r.db).ExecContext(ctx, q,
        res.ID, string(res.Tier), res.Quantity, res.Buyer.Email, nullString(res.Buyer.UserID),
        string(res.Kind), string(res.State), res.PriceQuotedCents, res.BalanceDueCents, res.AsGift,
        nullString(res.PaymentReference), res.CreatedAt, res.ExpiresAt, res.UpdatedAt,
    )
    if err != nil {
        if isDuplicate(err) {
            return ErrConflict
        }
        return fmt.Errorf("insert reservation: %w", err)
    }
    return nil
}

// GetByID returns the reservation with the given id or ErrNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
    q := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
    res, err := scanReservation(conn(ctx, r.db).QueryRowContext(ctx, q, id))
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    return res, nil
}

// Transition moves reservation id from state from to state to.  It returns
// ErrInvalidTransition when the edge is not allowed or the stored state is
// no longer from.
func (r *ReservationRepo) Transition(ctx context.Context, id string, from, to model.State, at time.Time) error {
    if !model.CanTransition(from, to) {
        return ErrInvalidTransition
    }
    const q = `UPDATE reservations SET state = ?, updated_at = ? WHERE id = ? AND state = ?`
    res, err := conn(ctx, r.db).ExecContext(ctx, q, string(to), at, id, string(from))
    if err != nil {
        return fmt.Errorf("transition reservation %s: %w", id, err)
    }
    return guardResult(res)
}

// TransitionWithReference is Transition that also stores the gateway
// payment reference in the same statement.
func (r *ReservationRepo) TransitionWithReference(ctx context.Context, id string, from, to model.State, ref string, at time.Time) error {
    if !model.CanTransition(from, to) {
        return ErrInvalidTransition
    }
    const q = `UPDATE reservations SET state = ?, payment_reference = ?, updated_at = ? WHERE id = ? AND state = ?`
    res, err := conn(ctx, r.db).ExecContext(ctx, q, string(to), ref, at, id, string(from))
    if err != nil {
        return fmt.Errorf("transition reservation %s: %w", id, err)
    }
    return guardResult(res)
}

// ExpiryCursor marks the last row of a ListExpiring page.  The zero value
// starts from the oldest row.
type ExpiryCursor struct {
    ExpiresAt time.Time
    ID        string
}

// CursorAfter returns the cursor that continues past res.
func CursorAfter(res model.Reservation) ExpiryCursor {
    return ExpiryCursor{ExpiresAt: res.ExpiresAt, ID: res.ID}
}

// ListExpiring returns at most limit unpaid reservations whose hold ended
// before now, ordered by (expires_at, id) and strictly after the cursor.
func (r *ReservationRepo) ListExpiring(ctx context.Context, now time.Time, after ExpiryCursor, limit int) ([]model.Reservation, error) {
    q := `SELECT ` + reservationColumns + ` FROM reservations
        WHERE state IN (?, ?) AND expires_at < ?`
    args := []any{string(model.StatePending), string(model.StateAwaitingPayment), now}
    if after.ID != "" {
        q += ` AND (expires_at > ? OR (expires_at = ? AND id > ?))`
        args = append(args, after.ExpiresAt, after.ExpiresAt, after.ID)
    }
    q += ` ORDER BY expires_at, id LIMIT ?`
    args = append(args, limit)

    rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.Reservation
    for rows.Next() {
        res, err := scanReservation(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *res)
    }
    return out, rows.Err()
}

type rowScanner interface {
    Scan(dest ...any) error
}

func scanReservation(s rowScanner) (*model.Reservation, error) {
    var (
        res                model.Reservation
        tier, kind, state  string
        userID, paymentRef sql.NullString
    )
    err := s.Scan(&res.ID, &tier, &res.Quantity, &res.Buyer.Email, &userID, &kind, &state,
        &res.PriceQuotedCents, &res.BalanceDueCents, &res.AsGift, &paymentRef,
        &res.CreatedAt, &res.ExpiresAt, &res.UpdatedAt)
    if err != nil {
        return nil, err
    }
    res.Tier = model.Tier(tier)
    res.Kind = model.Kind(kind)
    res.State = model.State(state)
    res.Buyer.UserID = stringPtr(userID)
    res.PaymentReference = stringPtr(paymentRef)
    return &res, nil
}

func guardResult(res sql.Result) error {
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrInvalidTransition
    }
    return nil
}

func nullString(s *string) sql.NullString {
    if s == nil {
        return sql.NullString{}
    }
    return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
    if !ns.Valid {
        return nil
    }
    v := ns.String
    return &v
}

func timePtr(nt sql.NullTime) *time.Time {
    if !nt.Valid {
        return nil
    }
    v := nt.Time
    return &v
}
