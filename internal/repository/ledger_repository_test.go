package repository

import (
    "context"
    "database/sql"
    "errors"
    "regexp"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/limited-seats/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
    t.Helper()
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    t.Cleanup(func() {
        assert.NoError(t, mock.ExpectationsWereMet())
        _ = db.Close()
    })
    return db, mock
}

func TestLedgerTryReserve(t *testing.T) {
    db, mock := newMock(t)
    repo := NewLedgerRepo(db, NewTxManager(db))
    q := regexp.QuoteMeta("UPDATE seat_ledger SET active_holds = active_holds + ?")

    mock.ExpectExec(q).WithArgs(2, "founder", 2).WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(q).WithArgs(1, "founder", 1).WillReturnResult(sqlmock.NewResult(0, 0))

    out, err := repo.TryReserve(context.Background(), model.TierFounder, 2)
    require.NoError(t, err)
    assert.Equal(t, Granted, out)

    out, err = repo.TryReserve(context.Background(), model.TierFounder, 1)
    require.NoError(t, err)
    assert.Equal(t, Insufficient, out, "no matching row means the tier has no room")
}

func TestLedgerTryReserveGuardInWhereClause(t *testing.T) {
    db, mock := newMock(t)
    repo := NewLedgerRepo(db, NewTxManager(db))

    mock.ExpectExec(regexp.QuoteMeta("WHERE tier = ? AND total_available - sold - active_holds >= ?")).
        WithArgs(3, "patron", 3).WillReturnResult(sqlmock.NewResult(0, 1))

    _, err := repo.TryReserve(context.Background(), model.TierPatron, 3)
    require.NoError(t, err)
}

func TestLedgerRelease(t *testing.T) {
    db, mock := newMock(t)
    repo := NewLedgerRepo(db, NewTxManager(db))
    q := regexp.QuoteMeta("SET active_holds = active_holds - ?, version = version + 1")

    mock.ExpectExec(q).WithArgs(1, "patron", 1).WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(q).WithArgs(4, "patron", 4).WillReturnResult(sqlmock.NewResult(0, 0))

    require.NoError(t, repo.Release(context.Background(), model.TierPatron, 1))
    assert.ErrorIs(t, repo.Release(context.Background(), model.TierPatron, 4), ErrConflict)
}

func TestLedgerConfirmIsIdempotent(t *testing.T) {
    db, mock := newMock(t)
    repo := NewLedgerRepo(db, NewTxManager(db))
    ins := regexp.QuoteMeta("INSERT IGNORE INTO ledger_confirmations")
    upd := regexp.QuoteMeta("SET active_holds = active_holds - ?, sold = sold + ?")

    mock.ExpectBegin()
    mock.ExpectExec(ins).WithArgs("r-1", "founder", 2).WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(upd).WithArgs(2, 2, "founder", 2).WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectCommit()

    mock.ExpectBegin()
    mock.ExpectExec(ins).WithArgs("r-1", "founder", 2).WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectCommit()

    applied, err := repo.Confirm(context.Background(), "r-1", model.TierFounder, 2)
    require.NoError(t, err)
    assert.True(t, applied)

    applied, err = repo.Confirm(context.Background(), "r-1", model.TierFounder, 2)
    require.NoError(t, err)
    assert.False(t, applied, "second confirm of the same reservation must not touch sold")
}

func TestLedgerConfirmRollsBackWithoutHold(t *testing.T) {
    db, mock := newMock(t)
    repo := NewLedgerRepo(db, NewTxManager(db))

    mock.ExpectBegin()
    mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO ledger_confirmations")).WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(regexp.QuoteMeta("sold = sold + ?")).WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectRollback()

    applied, err := repo.Confirm(context.Background(), "r-2", model.TierPatron, 1)
    assert.ErrorIs(t, err, ErrConflict)
    assert.False(t, applied)
}

func TestLedgerConfirmJoinsOuterTransaction(t *testing.T) {
    db, mock := newMock(t)
    txm := NewTxManager(db)
    repo := NewLedgerRepo(db, txm)

    mock.ExpectBegin()
    mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO ledger_confirmations")).WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(regexp.QuoteMeta("sold = sold + ?")).WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectCommit()

    err := txm.WithTx(context.Background(), func(ctx context.Context) error {
        _, err := repo.Confirm(ctx, "r-3", model.TierFounder, 1)
        return err
    })
    require.NoError(t, err)
}

func TestLedgerAdjustSold(t *testing.T) {
    db, mock := newMock(t)
    repo := NewLedgerRepo(db, NewTxManager(db))
    q := regexp.QuoteMeta("WHERE tier = ? AND sold + ? >= 0 AND sold + ? + active_holds <= total_available")

    mock.ExpectExec(q).WithArgs(-1, "founder", -1, -1).WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(q).WithArgs(60, "founder", 60, 60).WillReturnResult(sqlmock.NewResult(0, 0))

    require.NoError(t, repo.AdjustSold(context.Background(), model.TierFounder, -1))
    assert.ErrorIs(t, repo.AdjustSold(context.Background(), model.TierFounder, 60), ErrConflict)
}

func TestLedgerSnapshotAndGet(t *testing.T) {
    db, mock := newMock(t)
    repo := NewLedgerRepo(db, NewTxManager(db))
    now := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
    cols := []string{"tier", "total_available", "sold", "active_holds", "version", "updated_at"}

    mock.ExpectQuery(regexp.QuoteMeta("FROM seat_ledger ORDER BY tier")).WillReturnRows(
        sqlmock.NewRows(cols).
            AddRow("founder", 50, 49, 1, 120, now).
            AddRow("patron", 50, 10, 5, 30, now))
    mock.ExpectQuery(regexp.QuoteMeta("FROM seat_ledger WHERE tier = ?")).WithArgs("patron").
        WillReturnRows(sqlmock.NewRows(cols).AddRow("patron", 50, 10, 5, 30, now))
    mock.ExpectQuery(regexp.QuoteMeta("FROM seat_ledger WHERE tier = ?")).WithArgs("gold").
        WillReturnError(sql.ErrNoRows)

    entries, err := repo.Snapshot(context.Background())
    require.NoError(t, err)
    require.Len(t, entries, 2)
    assert.Equal(t, 0, entries[0].Remaining())
    assert.Equal(t, 35, entries[1].Remaining())

    e, err := repo.Get(context.Background(), model.TierPatron)
    require.NoError(t, err)
    assert.Equal(t, uint64(30), e.Version)

    _, err = repo.Get(context.Background(), model.Tier("gold"))
    assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithTxRollsBackOnError(t *testing.T) {
    db, mock := newMock(t)
    txm := NewTxManager(db)
    boom := errors.New("boom")

    mock.ExpectBegin()
    mock.ExpectRollback()

    err := txm.WithTx(context.Background(), func(ctx context.Context) error { return boom })
    assert.ErrorIs(t, err, boom)
}
