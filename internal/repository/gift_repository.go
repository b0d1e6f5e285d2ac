package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "time"

    "github.com/iliyamo/limited-seats/internal/model"
)

// GiftRepo persists gift assignments, one per gifted reservation.
type GiftRepo struct {
    db *sql.DB
}

// NewGiftRepo returns a GiftRepo bound to db.
func NewGiftRepo(db *sql.DB) *GiftRepo { return &GiftRepo{db: db} }

// Create inserts an unclaimed assignment.
func (r *GiftRepo) Create(ctx context.Context, g *model.GiftAssignment) error {
    const q = `INSERT INTO gift_assignments (reservation_id, claim_status, gift_message, claim_token_hash, created_at)
        VALUES (?, ?, ?, ?, ?)`
    _, err := conn(ctx, r.db).ExecContext(ctx, q, g.ReservationID, string(model.ClaimUnclaimed), g.GiftMessage, g.ClaimTokenHash, g.CreatedAt)
    if err != nil {
        if isDuplicate(err) {
            return ErrConflict
        }
        return fmt.Errorf("insert gift assignment: %w", err)
    }
    return nil
}

// Get returns the assignment of reservationID or ErrNotFound.
func (r *GiftRepo) Get(ctx context.Context, reservationID string) (*model.GiftAssignment, error) {
    const q = `SELECT reservation_id, claim_status, claimed_by_user_id, gift_message, claim_token_hash, claimed_at, created_at
        FROM gift_assignments WHERE reservation_id = ?`
    var (
        g         model.GiftAssignment
        status    string
        claimedBy sql.NullString
        claimedAt sql.NullTime
    )
    err := conn(ctx, r.db).QueryRowContext(ctx, q, reservationID).
        Scan(&g.ReservationID, &status, &claimedBy, &g.GiftMessage, &g.ClaimTokenHash, &claimedAt, &g.CreatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    g.ClaimStatus = model.ClaimStatus(status)
    g.ClaimedByUserID = stringPtr(claimedBy)
    g.ClaimedAt = timePtr(claimedAt)
    return &g, nil
}

// Claim links the gift to userID.  The update only applies while the gift
// is unclaimed and its reservation is paid; it reports false otherwise,
// so of two concurrent claimants exactly one sees true.
func (r *GiftRepo) Claim(ctx context.Context, reservationID, userID string, at time.Time) (bool, error) {
    const q = `UPDATE gift_assignments g
        JOIN reservations r ON r.id = g.reservation_id
        SET g.claim_status = ?, g.claimed_by_user_id = ?, g.claimed_at = ?
        WHERE g.reservation_id = ? AND g.claim_status = ? AND r.state = ?`
    res, err := conn(ctx, r.db).ExecContext(ctx, q,
        string(model.ClaimClaimed), userID, at, reservationID, string(model.ClaimUnclaimed), string(model.StatePaid))
    if err != nil {
        return false, fmt.Errorf("claim gift %s: %w", reservationID, err)
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}
