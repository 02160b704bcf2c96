package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/wildpark/pointwatch-api/internal/models"
	appErrors "github.com/wildpark/pointwatch-api/pkg/errors"
)

const pqUniqueViolation = "23505"

const clearingColumns = `id, user_id, term_id, clearer_id, applied_points, is_deleted, date_created, date_modified`

// ClearingRepository owns the clearance ledger. Grant and Revoke run as
// single transactions that pair every point_balance write with its
// Clearing insert or soft-delete; the balance is never written anywhere
// else.
type ClearingRepository struct {
	db *sqlx.DB
}

// NewClearingRepository instantiates a clearing repository.
func NewClearingRepository(db *sqlx.DB) *ClearingRepository {
	return &ClearingRepository{db: db}
}

// FindActive returns the non-deleted clearing for (user, term), if any.
func (r *ClearingRepository) FindActive(ctx context.Context, userID, termID string) (*models.Clearing, error) {
	query := fmt.Sprintf(`SELECT %s FROM clearings WHERE user_id = $1 AND term_id = $2 AND is_deleted = FALSE LIMIT 1`, clearingColumns)
	var clearing models.Clearing
	if err := r.db.GetContext(ctx, &clearing, query, userID, termID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active clearing: %w", err)
	}
	return &clearing, nil
}

// ListByTerm returns all active clearings for a term.
func (r *ClearingRepository) ListByTerm(ctx context.Context, termID string) ([]models.Clearing, error) {
	query := fmt.Sprintf(`SELECT %s FROM clearings WHERE term_id = $1 AND is_deleted = FALSE ORDER BY date_created DESC`, clearingColumns)
	var clearings []models.Clearing
	if err := r.db.SelectContext(ctx, &clearings, query, termID); err != nil {
		return nil, fmt.Errorf("list clearings by term: %w", err)
	}
	return clearings, nil
}

// Grant applies a clearance in one transaction. The target's user row is
// locked for the duration so the balance check and write cannot race with
// another grant or revoke for the same user (any term). The point totals
// are aggregated inside the transaction, after the lock, so the
// sufficiency check and the delta both see the validation states as of
// the locked read and not an earlier snapshot; on failure nothing is
// written.
func (r *ClearingRepository) Grant(ctx context.Context, userID, clearerID string, term *models.Term, requiredPoints float64) (clearing *models.Clearing, err error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("begin grant tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var balance float64
	if err = tx.GetContext(ctx, &balance, `SELECT point_balance FROM users WHERE id = $1 AND is_deleted = FALSE FOR UPDATE`, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, fmt.Errorf("lock user row: %w", err)
	}

	var existing int
	err = tx.GetContext(ctx, &existing, `SELECT 1 FROM clearings WHERE user_id = $1 AND term_id = $2 AND is_deleted = FALSE LIMIT 1`, userID, term.ID)
	if err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user already cleared for term")
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check active clearing: %w", err)
	}
	err = nil

	var totals models.PointTotals
	if err = tx.GetContext(ctx, &totals, pointTotalsQuery, userID, term.StartDate, term.EndDate); err != nil {
		return nil, fmt.Errorf("sum points in grant tx: %w", err)
	}
	summary := models.NewPointSummary(totals, requiredPoints)

	available := summary.ValidPoints + balance
	if available < summary.RequiredPoints {
		return nil, appErrors.InsufficientPoints(summary.RequiredPoints - available)
	}

	delta := summary.ExcessPoints - summary.LackingPoints
	if _, err = tx.ExecContext(ctx, `UPDATE users SET point_balance = point_balance + $2, updated_at = $3 WHERE id = $1`,
		userID, delta, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("apply balance delta: %w", err)
	}

	now := time.Now().UTC()
	clearing = &models.Clearing{
		ID:            uuid.NewString(),
		UserID:        userID,
		TermID:        term.ID,
		ClearerID:     clearerID,
		AppliedPoints: summary.LackingPoints,
		DateCreated:   now,
		DateModified:  now,
	}

	const insert = `INSERT INTO clearings (id, user_id, term_id, clearer_id, applied_points, is_deleted, date_created, date_modified)
		VALUES (:id, :user_id, :term_id, :clearer_id, :applied_points, :is_deleted, :date_created, :date_modified)`
	if _, err = tx.NamedExecContext(ctx, insert, clearing); err != nil {
		// The partial unique index on (user_id, term_id) WHERE NOT
		// is_deleted catches grants racing ahead of our lock.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			err = appErrors.Clone(appErrors.ErrConflict, "user already cleared for term")
			return nil, err
		}
		return nil, fmt.Errorf("insert clearing: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit grant tx: %w", err)
	}
	return clearing, nil
}

// Revoke soft-deletes the active clearing for (user, term) and reverses
// its balance contribution in the same transaction. The summary is
// recomputed from validation states read under the lock, so validation
// changes made since the grant are reflected; the delta subtracted is
// summary.ExcessPoints - clearing.AppliedPoints.
func (r *ClearingRepository) Revoke(ctx context.Context, userID string, term *models.Term, requiredPoints float64) (clearing *models.Clearing, err error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("begin revoke tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT point_balance FROM users WHERE id = $1 FOR UPDATE`, userID); err != nil {
		return nil, fmt.Errorf("lock user row: %w", err)
	}

	var found models.Clearing
	query := fmt.Sprintf(`SELECT %s FROM clearings WHERE user_id = $1 AND term_id = $2 AND is_deleted = FALSE LIMIT 1 FOR UPDATE`, clearingColumns)
	if err = tx.GetContext(ctx, &found, query, userID, term.ID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active clearance for term")
		}
		return nil, fmt.Errorf("find active clearing: %w", err)
	}

	var totals models.PointTotals
	if err = tx.GetContext(ctx, &totals, pointTotalsQuery, userID, term.StartDate, term.EndDate); err != nil {
		return nil, fmt.Errorf("sum points in revoke tx: %w", err)
	}
	summary := models.NewPointSummary(totals, requiredPoints)

	delta := summary.ExcessPoints - found.AppliedPoints
	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE users SET point_balance = point_balance - $2, updated_at = $3 WHERE id = $1`,
		userID, delta, now); err != nil {
		return nil, fmt.Errorf("reverse balance delta: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE clearings SET is_deleted = TRUE, date_modified = $2 WHERE id = $1`,
		found.ID, now); err != nil {
		return nil, fmt.Errorf("soft delete clearing: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit revoke tx: %w", err)
	}
	found.IsDeleted = true
	found.DateModified = now
	return &found, nil
}
