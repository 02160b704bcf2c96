package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/wildpark/pointwatch-api/internal/models"
	appErrors "github.com/wildpark/pointwatch-api/pkg/errors"
)

func newClearingRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func clearingTerm() *models.Term {
	return &models.Term{
		ID:        "term-1",
		Name:      "1st Semester 2025",
		Type:      models.TermTypeRegular,
		StartDate: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC),
	}
}

func expectGrantTotals(mock sqlmock.Sqlmock, term *models.Term, valid, pending, invalid float64) {
	rows := sqlmock.NewRows([]string{"valid_points", "pending_points", "invalid_points"}).
		AddRow(valid, pending, invalid)
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(SUM(points) FILTER")).
		WithArgs("user-1", term.StartDate, term.EndDate).
		WillReturnRows(rows)
}

func TestClearingRepositoryGrantLacking(t *testing.T) {
	db, mock, cleanup := newClearingRepoMock(t)
	defer cleanup()

	repo := NewClearingRepository(db)
	term := clearingTerm()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT point_balance FROM users")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"point_balance"}).AddRow(15.0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM clearings")).
		WithArgs("user-1", "term-1").
		WillReturnError(sql.ErrNoRows)
	expectGrantTotals(mock, term, 40, 0, 0)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET point_balance = point_balance + $2")).
		WithArgs("user-1", -10.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO clearings")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	clearing, err := repo.Grant(context.Background(), "user-1", "head-1", term, 50)
	require.NoError(t, err)
	require.Equal(t, float64(10), clearing.AppliedPoints)
	require.Equal(t, "head-1", clearing.ClearerID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearingRepositoryGrantExcess(t *testing.T) {
	db, mock, cleanup := newClearingRepoMock(t)
	defer cleanup()

	repo := NewClearingRepository(db)
	term := clearingTerm()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT point_balance FROM users")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"point_balance"}).AddRow(0.0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM clearings")).
		WithArgs("user-1", "term-1").
		WillReturnError(sql.ErrNoRows)
	expectGrantTotals(mock, term, 60, 0, 0)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET point_balance = point_balance + $2")).
		WithArgs("user-1", 10.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO clearings")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	clearing, err := repo.Grant(context.Background(), "user-1", "head-1", term, 50)
	require.NoError(t, err)
	require.Zero(t, clearing.AppliedPoints)
	require.NoError(t, mock.ExpectationsWereMet())
}

// The sufficiency check must act on the totals read inside the
// transaction, after the user-row lock, never on an earlier snapshot.
func TestClearingRepositoryGrantInsufficient(t *testing.T) {
	db, mock, cleanup := newClearingRepoMock(t)
	defer cleanup()

	repo := NewClearingRepository(db)
	term := clearingTerm()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT point_balance FROM users")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"point_balance"}).AddRow(5.0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM clearings")).
		WithArgs("user-1", "term-1").
		WillReturnError(sql.ErrNoRows)
	expectGrantTotals(mock, term, 30, 10, 0)
	mock.ExpectRollback()

	_, err := repo.Grant(context.Background(), "user-1", "head-1", term, 50)
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrInsufficientPoints.Code, appErr.Code)
	require.Equal(t, 15.0, appErr.Details["lacking_points"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearingRepositoryGrantAlreadyCleared(t *testing.T) {
	db, mock, cleanup := newClearingRepoMock(t)
	defer cleanup()

	repo := NewClearingRepository(db)
	term := clearingTerm()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT point_balance FROM users")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"point_balance"}).AddRow(0.0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM clearings")).
		WithArgs("user-1", "term-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.Grant(context.Background(), "user-1", "head-1", term, 50)
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearingRepositoryRevoke(t *testing.T) {
	db, mock, cleanup := newClearingRepoMock(t)
	defer cleanup()

	repo := NewClearingRepository(db)
	term := clearingTerm()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT point_balance FROM users")).
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	rows := sqlmock.NewRows([]string{"id", "user_id", "term_id", "clearer_id", "applied_points", "is_deleted", "date_created", "date_modified"}).
		AddRow("clr-1", "user-1", "term-1", "head-1", 0.0, false, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, term_id, clearer_id")).
		WithArgs("user-1", "term-1").
		WillReturnRows(rows)
	expectGrantTotals(mock, term, 55, 0, 0)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET point_balance = point_balance - $2")).
		WithArgs("user-1", 5.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE clearings SET is_deleted = TRUE")).
		WithArgs("clr-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	revoked, err := repo.Revoke(context.Background(), "user-1", term, 50)
	require.NoError(t, err)
	require.True(t, revoked.IsDeleted)
	require.Equal(t, "clr-1", revoked.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearingRepositoryRevokeMissing(t *testing.T) {
	db, mock, cleanup := newClearingRepoMock(t)
	defer cleanup()

	repo := NewClearingRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT point_balance FROM users")).
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, term_id, clearer_id")).
		WithArgs("user-1", "term-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Revoke(context.Background(), "user-1", clearingTerm(), 50)
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
