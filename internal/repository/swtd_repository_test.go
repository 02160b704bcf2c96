package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/wildpark/pointwatch-api/internal/models"
)

func newSWTDRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSWTDRepositoryCreateDefaultsPending(t *testing.T) {
	db, mock, cleanup := newSWTDRepoMock(t)
	defer cleanup()

	repo := NewSWTDRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO swtd_records")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.SWTDRecord{
		AuthorID:  "user-1",
		TermID:    "term-1",
		Title:     "Data Governance Workshop",
		Venue:     "Online",
		Category:  "Workshop",
		Role:      "Participant",
		Points:    4.5,
		StartDate: time.Now(),
		EndDate:   time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), record))
	require.NotEmpty(t, record.ID)
	require.Equal(t, models.ValidationPending, record.ValidationStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSWTDRepositorySumPointsByStatus(t *testing.T) {
	db, mock, cleanup := newSWTDRepoMock(t)
	defer cleanup()

	repo := NewSWTDRepository(db)
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"valid_points", "pending_points", "invalid_points"}).
		AddRow(42.5, 6.0, 3.0)
	mock.ExpectQuery(regexp.QuoteMeta("FROM swtd_records")).
		WithArgs("user-1", start, end).
		WillReturnRows(rows)

	totals, err := repo.SumPointsByStatus(context.Background(), "user-1", start, end)
	require.NoError(t, err)
	require.Equal(t, 42.5, totals.ValidPoints)
	require.Equal(t, 6.0, totals.PendingPoints)
	require.Equal(t, 3.0, totals.InvalidPoints)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSWTDRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newSWTDRepoMock(t)
	defer cleanup()

	repo := NewSWTDRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "author_id", "term_id", "title", "venue", "category", "role", "points", "benefits", "start_date", "end_date", "validation_status", "validator_id", "validated_at", "is_deleted", "created_at", "updated_at"}).
		AddRow("swtd-1", "user-1", "term-1", "Seminar", "Campus", "Seminar", "Speaker", 8.0, "", now, now, "PENDING", nil, nil, false, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, author_id, term_id, title")).
		WithArgs("user-1", "PENDING").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("user-1", "PENDING").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	records, total, err := repo.List(context.Background(), models.SWTDFilter{
		AuthorID: "user-1",
		Status:   models.ValidationPending,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, records, 1)
	require.Equal(t, "swtd-1", records[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSWTDRepositorySetValidationStatus(t *testing.T) {
	db, mock, cleanup := newSWTDRepoMock(t)
	defer cleanup()

	repo := NewSWTDRepository(db)
	validatorID := "head-1"
	validatedAt := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE swtd_records SET validation_status = $2")).
		WithArgs("swtd-1", string(models.ValidationApproved), "head-1", validatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetValidationStatus(context.Background(), "swtd-1", models.ValidationApproved, &validatorID, validatedAt)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
