package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/wildpark/pointwatch-api/internal/models"
)

const swtdCommentColumns = `id, swtd_id, author_id, message, is_edited, is_deleted, created_at, updated_at`

// SWTDCommentRepository handles persistence for SWTD record comments.
type SWTDCommentRepository struct {
	db *sqlx.DB
}

// NewSWTDCommentRepository instantiates an SWTD comment repository.
func NewSWTDCommentRepository(db *sqlx.DB) *SWTDCommentRepository {
	return &SWTDCommentRepository{db: db}
}

// Create inserts a comment row.
func (r *SWTDCommentRepository) Create(ctx context.Context, comment *models.SWTDComment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = now
	}
	comment.UpdatedAt = now

	const query = `INSERT INTO swtd_comments (id, swtd_id, author_id, message, is_edited, is_deleted, created_at, updated_at)
		VALUES (:id, :swtd_id, :author_id, :message, :is_edited, :is_deleted, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, comment); err != nil {
		return fmt.Errorf("create swtd comment: %w", err)
	}
	return nil
}

// FindByID loads a comment by identifier.
func (r *SWTDCommentRepository) FindByID(ctx context.Context, id string) (*models.SWTDComment, error) {
	query := fmt.Sprintf(`SELECT %s FROM swtd_comments WHERE id = $1 AND is_deleted = FALSE LIMIT 1`, swtdCommentColumns)
	var comment models.SWTDComment
	if err := r.db.GetContext(ctx, &comment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find swtd comment by id: %w", err)
	}
	return &comment, nil
}

// ListBySWTD returns a record's comments, oldest first.
func (r *SWTDCommentRepository) ListBySWTD(ctx context.Context, swtdID string) ([]models.SWTDComment, error) {
	query := fmt.Sprintf(`SELECT %s FROM swtd_comments WHERE swtd_id = $1 AND is_deleted = FALSE ORDER BY created_at ASC`, swtdCommentColumns)
	var comments []models.SWTDComment
	if err := r.db.SelectContext(ctx, &comments, query, swtdID); err != nil {
		return nil, fmt.Errorf("list swtd comments: %w", err)
	}
	return comments, nil
}

// Update replaces a comment's message and marks it edited.
func (r *SWTDCommentRepository) Update(ctx context.Context, comment *models.SWTDComment) error {
	comment.IsEdited = true
	comment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE swtd_comments SET message = :message, is_edited = :is_edited, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, comment); err != nil {
		return fmt.Errorf("update swtd comment: %w", err)
	}
	return nil
}

// Delete soft-deletes a comment.
func (r *SWTDCommentRepository) Delete(ctx context.Context, id string) error {
	const query = `UPDATE swtd_comments SET is_deleted = TRUE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("delete swtd comment: %w", err)
	}
	return nil
}
