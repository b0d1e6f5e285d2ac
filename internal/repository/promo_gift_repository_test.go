package repository

import (
    "context"
    "database/sql"
    "regexp"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/go-sql-driver/mysql"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/limited-seats/internal/model"
)

func TestPromoCreateNormalizes(t *testing.T) {
    db, mock := newMock(t)
    repo := NewPromoRepo(db)
    now := time.Now().UTC()

    mock.ExpectExec(regexp.QuoteMeta("INSERT INTO promo_codes")).
        WithArgs("LAUNCH-01", "founder", 1, now).WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(regexp.QuoteMeta("INSERT INTO promo_codes")).
        WillReturnError(&mysql.MySQLError{Number: 1062})

    p := &model.PromoCode{Code: "  launch-01 ", GrantedTier: model.TierFounder, UsesRemaining: 1, CreatedAt: now}
    require.NoError(t, repo.Create(context.Background(), p))
    assert.ErrorIs(t, repo.Create(context.Background(), p), ErrConflict)
}

func TestPromoGet(t *testing.T) {
    db, mock := newMock(t)
    repo := NewPromoRepo(db)
    now := time.Now().UTC()
    cols := []string{"code", "granted_tier", "uses_remaining", "redeemed_by_reservation_id", "redeemed_at", "created_at"}

    mock.ExpectQuery(regexp.QuoteMeta("FROM promo_codes WHERE code = ?")).WithArgs("VIP").
        WillReturnRows(sqlmock.NewRows(cols).AddRow("VIP", "patron", 0, "r-9", now, now))
    mock.ExpectQuery(regexp.QuoteMeta("FROM promo_codes WHERE code = ?")).WithArgs("NOPE").
        WillReturnError(sql.ErrNoRows)

    p, err := repo.Get(context.Background(), "vip")
    require.NoError(t, err)
    assert.Equal(t, 0, p.UsesRemaining)
    require.NotNil(t, p.RedeemedByReservationID)
    assert.Equal(t, "r-9", *p.RedeemedByReservationID)

    _, err = repo.Get(context.Background(), "nope")
    assert.ErrorIs(t, err, ErrNotFound)
}

func TestPromoConsume(t *testing.T) {
    db, mock := newMock(t)
    repo := NewPromoRepo(db)
    now := time.Now().UTC()
    q := regexp.QuoteMeta("WHERE code = ? AND uses_remaining > 0")

    mock.ExpectExec(q).WithArgs("r-1", now, "VIP").WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(q).WithArgs("r-2", now, "VIP").WillReturnResult(sqlmock.NewResult(0, 0))

    ok, err := repo.Consume(context.Background(), "vip", "r-1", now)
    require.NoError(t, err)
    assert.True(t, ok)

    ok, err = repo.Consume(context.Background(), "VIP", "r-2", now)
    require.NoError(t, err)
    assert.False(t, ok, "a used code cannot be consumed again")
}

func TestGiftCreateAndGet(t *testing.T) {
    db, mock := newMock(t)
    repo := NewGiftRepo(db)
    now := time.Now().UTC()
    cols := []string{"reservation_id", "claim_status", "claimed_by_user_id", "gift_message", "claim_token_hash", "claimed_at", "created_at"}

    mock.ExpectExec(regexp.QuoteMeta("INSERT INTO gift_assignments")).
        WithArgs("r-1", "unclaimed", "enjoy", "$2a$hash", now).WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectQuery(regexp.QuoteMeta("FROM gift_assignments WHERE reservation_id = ?")).WithArgs("r-1").
        WillReturnRows(sqlmock.NewRows(cols).AddRow("r-1", "claimed", "u-5", "enjoy", "$2a$hash", now, now))

    require.NoError(t, repo.Create(context.Background(), &model.GiftAssignment{
        ReservationID: "r-1", GiftMessage: "enjoy", ClaimTokenHash: "$2a$hash", CreatedAt: now,
    }))

    g, err := repo.Get(context.Background(), "r-1")
    require.NoError(t, err)
    assert.Equal(t, model.ClaimClaimed, g.ClaimStatus)
    require.NotNil(t, g.ClaimedByUserID)
    assert.Equal(t, "u-5", *g.ClaimedByUserID)
    require.NotNil(t, g.ClaimedAt)
}

func TestGiftClaimFirstWriterWins(t *testing.T) {
    db, mock := newMock(t)
    repo := NewGiftRepo(db)
    now := time.Now().UTC()
    q := regexp.QuoteMeta("WHERE g.reservation_id = ? AND g.claim_status = ? AND r.state = ?")

    mock.ExpectExec(q).WithArgs("claimed", "u-1", now, "r-1", "unclaimed", "paid").WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(q).WithArgs("claimed", "u-2", now, "r-1", "unclaimed", "paid").WillReturnResult(sqlmock.NewResult(0, 0))

    ok, err := repo.Claim(context.Background(), "r-1", "u-1", now)
    require.NoError(t, err)
    assert.True(t, ok)

    ok, err = repo.Claim(context.Background(), "r-1", "u-2", now)
    require.NoError(t, err)
    assert.False(t, ok)
}
