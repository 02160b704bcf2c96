package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/wildpark/pointwatch-api/internal/models"
)

const swtdColumns = `id, author_id, term_id, title, venue, category, role, points, benefits, start_date, end_date, validation_status, validator_id, validated_at, is_deleted, created_at, updated_at`

// SWTDRepository handles persistence for SWTD activity records.
type SWTDRepository struct {
	db *sqlx.DB
}

// NewSWTDRepository instantiates an SWTD repository.
func NewSWTDRepository(db *sqlx.DB) *SWTDRepository {
	return &SWTDRepository{db: db}
}

// FindByID loads a record by identifier.
func (r *SWTDRepository) FindByID(ctx context.Context, id string) (*models.SWTDRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM swtd_records WHERE id = $1 AND is_deleted = FALSE LIMIT 1`, swtdColumns)
	var record models.SWTDRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find swtd record by id: %w", err)
	}
	return &record, nil
}

// List returns records matching the filter with a total count.
func (r *SWTDRepository) List(ctx context.Context, filter models.SWTDFilter) ([]models.SWTDRecord, int, error) {
	base := "FROM swtd_records WHERE is_deleted = FALSE"
	var conditions []string
	var args []interface{}

	if filter.AuthorID != "" {
		conditions = append(conditions, fmt.Sprintf("author_id = $%d", len(args)+1))
		args = append(args, filter.AuthorID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("validation_status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"title":      true,
		"start_date": true,
		"points":     true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "start_date"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", swtdColumns, base, sortBy, order, size, offset)

	var records []models.SWTDRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list swtd records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count swtd records: %w", err)
	}

	return records, total, nil
}

// ListByAuthorWindow returns the author's non-deleted records dated
// within [start, end].
func (r *SWTDRepository) ListByAuthorWindow(ctx context.Context, authorID string, start, end time.Time) ([]models.SWTDRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM swtd_records WHERE author_id = $1 AND is_deleted = FALSE AND start_date >= $2 AND end_date <= $3 ORDER BY start_date ASC`, swtdColumns)
	var records []models.SWTDRecord
	if err := r.db.SelectContext(ctx, &records, query, authorID, start, end); err != nil {
		return nil, fmt.Errorf("list swtd records by window: %w", err)
	}
	return records, nil
}

// pointTotalsQuery aggregates an author's points per validation status
// over records dated within a window. Shared with the clearing
// repository, which runs the same aggregation inside its grant and
// revoke transactions.
const pointTotalsQuery = `SELECT
		COALESCE(SUM(points) FILTER (WHERE validation_status = 'APPROVED'), 0) AS valid_points,
		COALESCE(SUM(points) FILTER (WHERE validation_status = 'PENDING'), 0) AS pending_points,
		COALESCE(SUM(points) FILTER (WHERE validation_status = 'REJECTED'), 0) AS invalid_points
	FROM swtd_records
	WHERE author_id = $1 AND is_deleted = FALSE AND start_date >= $2 AND end_date <= $3`

// SumPointsByStatus aggregates the author's points per validation status
// over records dated within [start, end]. Computed in SQL so the
// summary always reflects the latest committed validation states.
func (r *SWTDRepository) SumPointsByStatus(ctx context.Context, authorID string, start, end time.Time) (models.PointTotals, error) {
	var totals models.PointTotals
	if err := r.db.GetContext(ctx, &totals, pointTotalsQuery, authorID, start, end); err != nil {
		return models.PointTotals{}, fmt.Errorf("sum swtd points: %w", err)
	}
	return totals, nil
}

// Create inserts a new SWTD record.
func (r *SWTDRepository) Create(ctx context.Context, record *models.SWTDRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.ValidationStatus == "" {
		record.ValidationStatus = models.ValidationPending
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	const query = `INSERT INTO swtd_records (id, author_id, term_id, title, venue, category, role, points, benefits, start_date, end_date, validation_status, validator_id, validated_at, is_deleted, created_at, updated_at)
		VALUES (:id, :author_id, :term_id, :title, :venue, :category, :role, :points, :benefits, :start_date, :end_date, :validation_status, :validator_id, :validated_at, :is_deleted, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create swtd record: %w", err)
	}
	return nil
}

// Update modifies the submitted fields of a record. Editing resets the
// validation outcome to pending, mirroring resubmission for review.
func (r *SWTDRepository) Update(ctx context.Context, record *models.SWTDRecord) error {
	record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE swtd_records SET title = :title, venue = :venue, category = :category, role = :role, points = :points, benefits = :benefits, start_date = :start_date, end_date = :end_date, term_id = :term_id, validation_status = :validation_status, validator_id = :validator_id, validated_at = :validated_at, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("update swtd record: %w", err)
	}
	return nil
}

// SetValidationStatus records a review outcome with its validator and timestamp.
func (r *SWTDRepository) SetValidationStatus(ctx context.Context, id string, status models.ValidationStatus, validatorID *string, validatedAt time.Time) error {
	const query = `UPDATE swtd_records SET validation_status = $2, validator_id = $3, validated_at = $4, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, validatorID, validatedAt); err != nil {
		return fmt.Errorf("set validation status: %w", err)
	}
	return nil
}

// Delete soft-deletes a record.
func (r *SWTDRepository) Delete(ctx context.Context, id string) error {
	const query = `UPDATE swtd_records SET is_deleted = TRUE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("delete swtd record: %w", err)
	}
	return nil
}
