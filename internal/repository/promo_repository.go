package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "time"

    "github.com/go-sql-driver/mysql"

    "github.com/iliyamo/limited-seats/internal/model"
)

// PromoRepo persists one-time promo codes.  Codes are stored normalized
// (upper-case) so lookups are case-insensitive.
type PromoRepo struct {
    db *sql.DB
}

// NewPromoRepo returns a PromoRepo bound to db.
func NewPromoRepo(db *sql.DB) *PromoRepo { return &PromoRepo{db: db} }

// Create inserts a new code.  A duplicate code yields ErrConflict.
func (r *PromoRepo) Create(ctx context.Context, p *model.PromoCode) error {
    const q = `INSERT INTO promo_codes (code, granted_tier, uses_remaining, created_at) VALUES (?, ?, ?, ?)`
    _, err := conn(ctx, r.db).ExecContext(ctx, q, model.NormalizeCode(p.Code), string(p.GrantedTier), p.UsesRemaining, p.CreatedAt)
    if err != nil {
        if isDuplicate(err) {
            return ErrConflict
        }
        return fmt.Errorf("insert promo code: %w", err)
    }
    return nil
}

// Get returns the code or ErrNotFound.
func (r *PromoRepo) Get(ctx context.Context, code string) (*model.PromoCode, error) {
    const q = `SELECT code, granted_tier, uses_remaining, redeemed_by_reservation_id, redeemed_at, created_at
        FROM promo_codes WHERE code = ?`
    var (
        p          model.PromoCode
        tier       string
        redeemedBy sql.NullString
        redeemedAt sql.NullTime
    )
    err := conn(ctx, r.db).QueryRowContext(ctx, q, model.NormalizeCode(code)).
        Scan(&p.Code, &tier, &p.UsesRemaining, &redeemedBy, &redeemedAt, &p.CreatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    p.GrantedTier = model.Tier(tier)
    p.RedeemedByReservationID = stringPtr(redeemedBy)
    p.RedeemedAt = timePtr(redeemedAt)
    return &p, nil
}

// Consume takes one use of code on behalf of reservationID.  It reports
// false when no use was left at write time.
func (r *PromoRepo) Consume(ctx context.Context, code, reservationID string, at time.Time) (bool, error) {
    const q = `UPDATE promo_codes
        SET uses_remaining = uses_remaining - 1, redeemed_by_reservation_id = ?, redeemed_at = ?
        WHERE code = ? AND uses_remaining > 0`
    res, err := conn(ctx, r.db).ExecContext(ctx, q, reservationID, at, model.NormalizeCode(code))
    if err != nil {
        return false, fmt.Errorf("consume promo code: %w", err)
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}

// isDuplicate reports whether err is a MySQL duplicate key error.
func isDuplicate(err error) bool {
    var me *mysql.MySQLError
    return errors.As(err, &me) && me.Number == 1062
}
