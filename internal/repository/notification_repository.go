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

const notificationColumns = `id, actor_id, target_id, data, is_viewed, is_deleted, created_at`

// NotificationRepository handles persistence for notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository instantiates a notification repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification row.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO notifications (id, actor_id, target_id, data, is_viewed, is_deleted, created_at)
		VALUES (:id, :actor_id, :target_id, :data, :is_viewed, :is_deleted, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListByTarget returns a user's notifications, newest first.
func (r *NotificationRepository) ListByTarget(ctx context.Context, targetID string, unviewedOnly bool) ([]models.Notification, error) {
	base := fmt.Sprintf(`SELECT %s FROM notifications WHERE target_id = $1 AND is_deleted = FALSE`, notificationColumns)
	if unviewedOnly {
		base += " AND is_viewed = FALSE"
	}
	base += " ORDER BY created_at DESC LIMIT 100"

	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, base, targetID); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// FindByID loads a notification by identifier.
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE id = $1 AND is_deleted = FALSE LIMIT 1`, notificationColumns)
	var notification models.Notification
	if err := r.db.GetContext(ctx, &notification, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find notification by id: %w", err)
	}
	return &notification, nil
}

// MarkViewed flips the viewed flag for a target's notification.
func (r *NotificationRepository) MarkViewed(ctx context.Context, id, targetID string) error {
	const query = `UPDATE notifications SET is_viewed = TRUE WHERE id = $1 AND target_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, targetID)
	if err != nil {
		return fmt.Errorf("mark notification viewed: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
