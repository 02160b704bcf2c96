package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wildpark/pointwatch-api/internal/models"
	appErrors "github.com/wildpark/pointwatch-api/pkg/errors"
)

type mockSWTDRepo struct {
	records map[string]models.SWTDRecord
}

func newMockSWTDRepo() *mockSWTDRepo {
	return &mockSWTDRepo{records: make(map[string]models.SWTDRecord)}
}

func (m *mockSWTDRepo) FindByID(ctx context.Context, id string) (*models.SWTDRecord, error) {
	if r, ok := m.records[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSWTDRepo) List(ctx context.Context, filter models.SWTDFilter) ([]models.SWTDRecord, int, error) {
	var out []models.SWTDRecord
	for _, r := range m.records {
		if filter.AuthorID != "" && r.AuthorID != filter.AuthorID {
			continue
		}
		out = append(out, r)
	}
	return out, len(out), nil
}

func (m *mockSWTDRepo) Create(ctx context.Context, record *models.SWTDRecord) error {
	if record.ID == "" {
		record.ID = fmt.Sprintf("swtd-%d", len(m.records)+1)
	}
	m.records[record.ID] = *record
	return nil
}

func (m *mockSWTDRepo) Update(ctx context.Context, record *models.SWTDRecord) error {
	m.records[record.ID] = *record
	return nil
}

func (m *mockSWTDRepo) SetValidationStatus(ctx context.Context, id string, status models.ValidationStatus, validatorID *string, validatedAt time.Time) error {
	r, ok := m.records[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.ValidationStatus = status
	r.ValidatorID = validatorID
	m.records[id] = r
	return nil
}

func (m *mockSWTDRepo) Delete(ctx context.Context, id string) error {
	r, ok := m.records[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.IsDeleted = true
	m.records[id] = r
	return nil
}

type mockCommentRepo struct {
	comments map[string]models.SWTDComment
	seq      int
}

func newMockCommentRepo() *mockCommentRepo {
	return &mockCommentRepo{comments: make(map[string]models.SWTDComment)}
}

func (m *mockCommentRepo) Create(ctx context.Context, comment *models.SWTDComment) error {
	if comment.ID == "" {
		m.seq++
		comment.ID = fmt.Sprintf("cmt-%d", m.seq)
	}
	m.comments[comment.ID] = *comment
	return nil
}

func (m *mockCommentRepo) FindByID(ctx context.Context, id string) (*models.SWTDComment, error) {
	if c, ok := m.comments[id]; ok && !c.IsDeleted {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCommentRepo) ListBySWTD(ctx context.Context, swtdID string) ([]models.SWTDComment, error) {
	var out []models.SWTDComment
	for _, c := range m.comments {
		if c.SWTDID == swtdID && !c.IsDeleted {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCommentRepo) Update(ctx context.Context, comment *models.SWTDComment) error {
	comment.IsEdited = true
	m.comments[comment.ID] = *comment
	return nil
}

func (m *mockCommentRepo) Delete(ctx context.Context, id string) error {
	c, ok := m.comments[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.IsDeleted = true
	m.comments[id] = c
	return nil
}

type spyValidationNotifier struct {
	notified []models.ValidationStatus
}

func (s *spyValidationNotifier) ValidationStatusChanged(ctx context.Context, actor, target *models.User, record *models.SWTDRecord) {
	s.notified = append(s.notified, record.ValidationStatus)
}

func swtdFixture() (*SWTDService, *mockSWTDRepo, *spyValidationNotifier) {
	repo := newMockSWTDRepo()
	users := &mockUserReader{users: map[string]*models.User{
		"emp-1":   {ID: "emp-1", DepartmentID: deptPtr("dept-1"), AccessLevel: models.AccessNone},
		"head-1":  {ID: "head-1", DepartmentID: deptPtr("dept-1"), AccessLevel: models.AccessHead},
		"staff-1": {ID: "staff-1", AccessLevel: models.AccessStaff},
	}}
	terms := &mockTermReader{terms: map[string]*models.Term{
		"term-1": {
			ID:        "term-1",
			Name:      "1st Semester 2025",
			Type:      models.TermTypeRegular,
			StartDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC),
		},
	}}
	notifier := &spyValidationNotifier{}
	svc := NewSWTDService(repo, newMockCommentRepo(), users, terms, notifier, nil, nil, zap.NewNop())
	return svc, repo, notifier
}

func validSubmitRequest() SubmitSWTDRequest {
	return SubmitSWTDRequest{
		TermID:    "term-1",
		Title:     "Research Writing Workshop",
		Venue:     "Main Campus",
		Category:  "Workshop",
		Role:      "Participant",
		Points:    6,
		StartDate: time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 7, 12, 0, 0, 0, 0, time.UTC),
	}
}

func TestSubmitSWTDStartsPending(t *testing.T) {
	svc, repo, _ := swtdFixture()
	author := &models.User{ID: "emp-1"}

	record, err := svc.Submit(context.Background(), author, validSubmitRequest())
	require.NoError(t, err)
	assert.Equal(t, models.ValidationPending, record.ValidationStatus)
	assert.Equal(t, "emp-1", record.AuthorID)
	assert.Contains(t, repo.records, record.ID)
}

func TestSubmitSWTDOutsideTermWindow(t *testing.T) {
	svc, _, _ := swtdFixture()
	req := validSubmitRequest()
	req.EndDate = time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Submit(context.Background(), &models.User{ID: "emp-1"}, req)
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestUpdateSWTDResetsValidation(t *testing.T) {
	svc, repo, notifier := swtdFixture()
	author := &models.User{ID: "emp-1"}
	record, err := svc.Submit(context.Background(), author, validSubmitRequest())
	require.NoError(t, err)

	validatorID := "head-1"
	now := time.Now()
	stored := repo.records[record.ID]
	stored.ValidationStatus = models.ValidationApproved
	stored.ValidatorID = &validatorID
	stored.ValidatedAt = &now
	repo.records[record.ID] = stored

	title := "Revised Workshop Title"
	updated, err := svc.Update(context.Background(), author, record.ID, UpdateSWTDRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, models.ValidationPending, updated.ValidationStatus)
	assert.Nil(t, updated.ValidatorID)
	assert.Nil(t, updated.ValidatedAt)
	assert.Equal(t, title, updated.Title)

	// Undoing a recorded outcome dispatches like any other transition.
	assert.Equal(t, []models.ValidationStatus{models.ValidationPending}, notifier.notified)
}

func TestUpdateSWTDPendingRecordStaysSilent(t *testing.T) {
	svc, _, notifier := swtdFixture()
	author := &models.User{ID: "emp-1"}
	record, err := svc.Submit(context.Background(), author, validSubmitRequest())
	require.NoError(t, err)

	venue := "Annex Building"
	_, err = svc.Update(context.Background(), author, record.ID, UpdateSWTDRequest{Venue: &venue})
	require.NoError(t, err)
	assert.Empty(t, notifier.notified)
}

func TestUpdateSWTDOnlyAuthor(t *testing.T) {
	svc, _, _ := swtdFixture()
	record, err := svc.Submit(context.Background(), &models.User{ID: "emp-1"}, validSubmitRequest())
	require.NoError(t, err)

	title := "Hijacked"
	_, err = svc.Update(context.Background(), &models.User{ID: "staff-1", AccessLevel: models.AccessStaff}, record.ID, UpdateSWTDRequest{Title: &title})
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestValidateSWTDNotifiesAuthor(t *testing.T) {
	svc, _, notifier := swtdFixture()
	record, err := svc.Submit(context.Background(), &models.User{ID: "emp-1"}, validSubmitRequest())
	require.NoError(t, err)

	head := &models.User{ID: "head-1", DepartmentID: deptPtr("dept-1"), AccessLevel: models.AccessHead}
	validated, err := svc.Validate(context.Background(), head, record.ID, models.ValidationApproved)
	require.NoError(t, err)
	assert.Equal(t, models.ValidationApproved, validated.ValidationStatus)
	require.NotNil(t, validated.ValidatorID)
	assert.Equal(t, "head-1", *validated.ValidatorID)
	assert.Equal(t, []models.ValidationStatus{models.ValidationApproved}, notifier.notified)
}

func TestValidateSWTDSelfReviewForbidden(t *testing.T) {
	svc, _, _ := swtdFixture()
	head := &models.User{ID: "head-1", DepartmentID: deptPtr("dept-1"), AccessLevel: models.AccessHead}
	req := validSubmitRequest()
	record, err := svc.Submit(context.Background(), head, req)
	require.NoError(t, err)

	_, err = svc.Validate(context.Background(), head, record.ID, models.ValidationApproved)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestValidateSWTDOtherDepartmentForbidden(t *testing.T) {
	svc, _, _ := swtdFixture()
	record, err := svc.Submit(context.Background(), &models.User{ID: "emp-1"}, validSubmitRequest())
	require.NoError(t, err)

	otherHead := &models.User{ID: "head-9", DepartmentID: deptPtr("dept-9"), AccessLevel: models.AccessHead}
	_, err = svc.Validate(context.Background(), otherHead, record.ID, models.ValidationApproved)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestCommentThreadRoundTrip(t *testing.T) {
	svc, _, _ := swtdFixture()
	author := &models.User{ID: "emp-1"}
	record, err := svc.Submit(context.Background(), author, validSubmitRequest())
	require.NoError(t, err)

	head := &models.User{ID: "head-1", DepartmentID: deptPtr("dept-1"), AccessLevel: models.AccessHead}
	posted, err := svc.AddComment(context.Background(), head, record.ID, CommentRequest{Message: "Please attach the certificate."})
	require.NoError(t, err)
	assert.Equal(t, "head-1", posted.AuthorID)
	assert.False(t, posted.IsEdited)

	reply, err := svc.AddComment(context.Background(), author, record.ID, CommentRequest{Message: "Uploaded, thanks."})
	require.NoError(t, err)

	thread, err := svc.ListComments(context.Background(), author, record.ID)
	require.NoError(t, err)
	assert.Len(t, thread, 2)

	edited, err := svc.UpdateComment(context.Background(), author, record.ID, reply.ID, CommentRequest{Message: "Uploaded just now, thanks."})
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)
	assert.Equal(t, "Uploaded just now, thanks.", edited.Message)
}

func TestCommentVisibilityFollowsRecordAccess(t *testing.T) {
	svc, _, _ := swtdFixture()
	record, err := svc.Submit(context.Background(), &models.User{ID: "emp-1"}, validSubmitRequest())
	require.NoError(t, err)

	stranger := &models.User{ID: "emp-2", AccessLevel: models.AccessNone}
	_, err = svc.AddComment(context.Background(), stranger, record.ID, CommentRequest{Message: "Congrats!"})
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.ListComments(context.Background(), stranger, record.ID)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestCommentEditOnlyAuthorDeleteAllowsStaff(t *testing.T) {
	svc, _, _ := swtdFixture()
	author := &models.User{ID: "emp-1"}
	record, err := svc.Submit(context.Background(), author, validSubmitRequest())
	require.NoError(t, err)

	posted, err := svc.AddComment(context.Background(), author, record.ID, CommentRequest{Message: "First draft."})
	require.NoError(t, err)

	head := &models.User{ID: "head-1", DepartmentID: deptPtr("dept-1"), AccessLevel: models.AccessHead}
	_, err = svc.UpdateComment(context.Background(), head, record.ID, posted.ID, CommentRequest{Message: "Rewritten."})
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	err = svc.DeleteComment(context.Background(), head, record.ID, posted.ID)
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	staff := &models.User{ID: "staff-1", AccessLevel: models.AccessStaff}
	require.NoError(t, svc.DeleteComment(context.Background(), staff, record.ID, posted.ID))

	thread, err := svc.ListComments(context.Background(), author, record.ID)
	require.NoError(t, err)
	assert.Empty(t, thread)
}

func TestCommentOnOtherRecordNotFound(t *testing.T) {
	svc, _, _ := swtdFixture()
	author := &models.User{ID: "emp-1"}
	first, err := svc.Submit(context.Background(), author, validSubmitRequest())
	require.NoError(t, err)
	second, err := svc.Submit(context.Background(), author, validSubmitRequest())
	require.NoError(t, err)

	posted, err := svc.AddComment(context.Background(), author, first.ID, CommentRequest{Message: "On the first record."})
	require.NoError(t, err)

	// The comment id must be addressed through its own record.
	_, err = svc.UpdateComment(context.Background(), author, second.ID, posted.ID, CommentRequest{Message: "Moved?"})
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestListScopesPlainEmployeesToOwnRecords(t *testing.T) {
	svc, _, _ := swtdFixture()
	_, err := svc.Submit(context.Background(), &models.User{ID: "emp-1"}, validSubmitRequest())
	require.NoError(t, err)

	records, _, err := svc.List(context.Background(), &models.User{ID: "emp-2", AccessLevel: models.AccessNone}, models.SWTDFilter{AuthorID: "emp-1"})
	require.NoError(t, err)
	assert.Empty(t, records)
}
