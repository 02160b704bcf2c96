package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/wildpark/pointwatch-api/internal/models"
	appErrors "github.com/wildpark/pointwatch-api/pkg/errors"
	"github.com/wildpark/pointwatch-api/pkg/mailer"
)

// Realtime event names pushed over the websocket hub.
const (
	EventValidationUpdate = "swtd_validation_update"
	EventClearingUpdate   = "term_clearing_update"
)

type notificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByTarget(ctx context.Context, targetID string, unviewedOnly bool) ([]models.Notification, error)
	MarkViewed(ctx context.Context, id, targetID string) error
}

type eventEmitter interface {
	Emit(event string, payload interface{}, userID string)
}

// NotificationService persists notifications and fans them out over the
// realtime hub and mail. Every dispatch path is best effort: callers
// invoke it after their own transaction has committed, and no failure
// here ever rolls that work back or surfaces to the API client.
type NotificationService struct {
	repo   notificationRepository
	hub    eventEmitter
	mail   mailer.Sender
	logger *zap.Logger
}

// NewNotificationService constructs NotificationService.
func NewNotificationService(repo notificationRepository, hub eventEmitter, mail mailer.Sender, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, hub: hub, mail: mail, logger: logger}
}

// List returns the target's notifications.
func (s *NotificationService) List(ctx context.Context, targetID string, unviewedOnly bool) ([]models.Notification, error) {
	notifications, err := s.repo.ListByTarget(ctx, targetID, unviewedOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

// MarkViewed flags one of the target's notifications as seen.
func (s *NotificationService) MarkViewed(ctx context.Context, id, targetID string) error {
	if err := s.repo.MarkViewed(ctx, id, targetID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification viewed")
	}
	return nil
}

// ValidationStatusChanged notifies the record's author of a review
// outcome. Mail is only sent for final outcomes, never for a reset back
// to pending.
func (s *NotificationService) ValidationStatusChanged(ctx context.Context, actor, target *models.User, record *models.SWTDRecord) {
	payload := models.ValidationNotificationData{
		RecordID: record.ID,
		Title:    record.Title,
		Status:   record.ValidationStatus,
	}
	s.persist(ctx, actor.ID, target.ID, payload)
	s.hub.Emit(EventValidationUpdate, payload, target.ID)

	if record.ValidationStatus != models.ValidationPending {
		subject := fmt.Sprintf("SWTD %s: %s", record.ValidationStatus, record.Title)
		reviewedAt := "just now"
		if record.ValidatedAt != nil {
			reviewedAt = record.ValidatedAt.UTC().Format("January 2, 2006 at 15:04 MST")
		}
		body := fmt.Sprintf("Dear %s,\n\nYour SWTD submission %q has been %s by %s on %s.\n\nPointWatch",
			target.FullName(), record.Title, record.ValidationStatus, actor.FullName(), reviewedAt)
		s.deliver(subject, target.Email, body)
	}
}

// ClearanceGranted notifies the target that a term clearance was issued.
func (s *NotificationService) ClearanceGranted(ctx context.Context, actor, target *models.User, term *models.Term) {
	payload := models.ClearanceNotificationData{
		TermID:    term.ID,
		TermName:  term.Name,
		TermType:  term.Type,
		StartDate: term.StartDate,
		EndDate:   term.EndDate,
	}
	s.persist(ctx, actor.ID, target.ID, payload)
	s.hub.Emit(EventClearingUpdate, payload, target.ID)

	subject := fmt.Sprintf("Term clearance granted: %s", term.Name)
	body := fmt.Sprintf("Dear %s,\n\nYou have been granted clearance for %s by %s.\n\nPointWatch",
		target.FullName(), term.Name, actor.FullName())
	s.deliver(subject, target.Email, body)
}

// ClearanceRevoked notifies the target that a term clearance was withdrawn.
func (s *NotificationService) ClearanceRevoked(ctx context.Context, actor, target *models.User, term *models.Term) {
	payload := models.ClearanceNotificationData{
		TermID:    term.ID,
		TermName:  term.Name,
		TermType:  term.Type,
		StartDate: term.StartDate,
		EndDate:   term.EndDate,
		Revoked:   true,
	}
	s.persist(ctx, actor.ID, target.ID, payload)
	s.hub.Emit(EventClearingUpdate, payload, target.ID)

	subject := fmt.Sprintf("Term clearance revoked: %s", term.Name)
	body := fmt.Sprintf("Dear %s,\n\nYour clearance for %s has been revoked by %s.\n\nPointWatch",
		target.FullName(), term.Name, actor.FullName())
	s.deliver(subject, target.Email, body)
}

func (s *NotificationService) persist(ctx context.Context, actorID, targetID string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("notification payload not serializable", zap.Error(err))
		return
	}
	notification := &models.Notification{
		ActorID:  actorID,
		TargetID: targetID,
		Data:     raw,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		s.logger.Warn("failed to persist notification",
			zap.String("target_id", targetID), zap.Error(err))
	}
}

func (s *NotificationService) deliver(subject, recipient, body string) {
	if s.mail == nil {
		return
	}
	if err := s.mail.Send(subject, []string{recipient}, body); err != nil {
		s.logger.Warn("failed to send notification mail",
			zap.String("subject", subject), zap.Error(err))
	}
}
