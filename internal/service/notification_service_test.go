package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wildpark/pointwatch-api/internal/models"
)

type mockNotificationRepo struct {
	created []models.Notification
	viewed  []string
	failing bool
}

func (m *mockNotificationRepo) Create(ctx context.Context, notification *models.Notification) error {
	if m.failing {
		return fmt.Errorf("storage down")
	}
	if notification.ID == "" {
		notification.ID = fmt.Sprintf("ntf-%d", len(m.created)+1)
	}
	m.created = append(m.created, *notification)
	return nil
}

func (m *mockNotificationRepo) ListByTarget(ctx context.Context, targetID string, unviewedOnly bool) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range m.created {
		if n.TargetID == targetID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockNotificationRepo) MarkViewed(ctx context.Context, id, targetID string) error {
	m.viewed = append(m.viewed, id)
	return nil
}

type spyEmitter struct {
	events []string
	users  []string
}

func (s *spyEmitter) Emit(event string, payload interface{}, userID string) {
	s.events = append(s.events, event)
	s.users = append(s.users, userID)
}

type spyMailer struct {
	subjects   []string
	recipients [][]string
	bodies     []string
	failing    bool
}

func (s *spyMailer) Send(subject string, recipients []string, body string) error {
	if s.failing {
		return fmt.Errorf("smtp down")
	}
	s.subjects = append(s.subjects, subject)
	s.recipients = append(s.recipients, recipients)
	s.bodies = append(s.bodies, body)
	return nil
}

func notificationFixture() (*NotificationService, *mockNotificationRepo, *spyEmitter, *spyMailer) {
	repo := &mockNotificationRepo{}
	emitter := &spyEmitter{}
	mail := &spyMailer{}
	svc := NewNotificationService(repo, emitter, mail, zap.NewNop())
	return svc, repo, emitter, mail
}

func TestValidationStatusChangedDispatch(t *testing.T) {
	svc, repo, emitter, mail := notificationFixture()
	actor := &models.User{ID: "head-1", FirstName: "Liza", LastName: "Cruz"}
	target := &models.User{ID: "emp-1", Email: "emp1@example.edu", FirstName: "Ana", LastName: "Reyes"}
	reviewedAt := time.Date(2025, 9, 15, 14, 30, 0, 0, time.UTC)
	record := &models.SWTDRecord{ID: "swtd-1", Title: "AI Seminar", ValidationStatus: models.ValidationApproved, ValidatedAt: &reviewedAt}

	svc.ValidationStatusChanged(context.Background(), actor, target, record)

	require.Len(t, repo.created, 1)
	assert.Equal(t, "emp-1", repo.created[0].TargetID)
	assert.Equal(t, "head-1", repo.created[0].ActorID)

	var payload models.ValidationNotificationData
	require.NoError(t, json.Unmarshal(repo.created[0].Data, &payload))
	assert.Equal(t, "swtd-1", payload.RecordID)
	assert.Equal(t, models.ValidationApproved, payload.Status)

	assert.Equal(t, []string{EventValidationUpdate}, emitter.events)
	assert.Equal(t, []string{"emp-1"}, emitter.users)
	require.Len(t, mail.recipients, 1)
	assert.Equal(t, []string{"emp1@example.edu"}, mail.recipients[0])
	require.Len(t, mail.bodies, 1)
	assert.Contains(t, mail.bodies[0], "September 15, 2025 at 14:30 UTC")
}

func TestValidationResetToPendingSkipsMail(t *testing.T) {
	svc, _, emitter, mail := notificationFixture()
	actor := &models.User{ID: "head-1"}
	target := &models.User{ID: "emp-1", Email: "emp1@example.edu"}
	record := &models.SWTDRecord{ID: "swtd-1", Title: "AI Seminar", ValidationStatus: models.ValidationPending}

	svc.ValidationStatusChanged(context.Background(), actor, target, record)

	assert.Len(t, emitter.events, 1)
	assert.Empty(t, mail.subjects)
}

func TestClearanceGrantedAndRevokedEvents(t *testing.T) {
	svc, repo, emitter, mail := notificationFixture()
	actor := &models.User{ID: "staff-1", FirstName: "Mia", LastName: "Tan"}
	target := &models.User{ID: "emp-1", Email: "emp1@example.edu", FirstName: "Ana", LastName: "Reyes"}
	term := &models.Term{ID: "term-1", Name: "1st Semester 2025", Type: models.TermTypeRegular}

	svc.ClearanceGranted(context.Background(), actor, target, term)
	svc.ClearanceRevoked(context.Background(), actor, target, term)

	assert.Equal(t, []string{EventClearingUpdate, EventClearingUpdate}, emitter.events)
	require.Len(t, repo.created, 2)

	var granted, revoked models.ClearanceNotificationData
	require.NoError(t, json.Unmarshal(repo.created[0].Data, &granted))
	require.NoError(t, json.Unmarshal(repo.created[1].Data, &revoked))
	assert.False(t, granted.Revoked)
	assert.True(t, revoked.Revoked)
	assert.Len(t, mail.subjects, 2)
}

func TestDispatchFailuresAreSwallowed(t *testing.T) {
	repo := &mockNotificationRepo{failing: true}
	mail := &spyMailer{failing: true}
	svc := NewNotificationService(repo, &spyEmitter{}, mail, zap.NewNop())

	actor := &models.User{ID: "staff-1"}
	target := &models.User{ID: "emp-1", Email: "emp1@example.edu"}
	term := &models.Term{ID: "term-1", Name: "1st Semester 2025"}

	// Must not panic or surface errors.
	svc.ClearanceGranted(context.Background(), actor, target, term)
	assert.Empty(t, repo.created)
}

func TestListAndMarkViewed(t *testing.T) {
	svc, repo, _, _ := notificationFixture()
	actor := &models.User{ID: "staff-1"}
	target := &models.User{ID: "emp-1", Email: "emp1@example.edu"}
	term := &models.Term{ID: "term-1", Name: "1st Semester 2025"}
	svc.ClearanceGranted(context.Background(), actor, target, term)

	list, err := svc.List(context.Background(), "emp-1", false)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, svc.MarkViewed(context.Background(), list[0].ID, "emp-1"))
	assert.Equal(t, []string{list[0].ID}, repo.viewed)
}
