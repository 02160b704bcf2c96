package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/wildpark/pointwatch-api/internal/models"
	appErrors "github.com/wildpark/pointwatch-api/pkg/errors"
)

type swtdRepository interface {
	FindByID(ctx context.Context, id string) (*models.SWTDRecord, error)
	List(ctx context.Context, filter models.SWTDFilter) ([]models.SWTDRecord, int, error)
	Create(ctx context.Context, record *models.SWTDRecord) error
	Update(ctx context.Context, record *models.SWTDRecord) error
	SetValidationStatus(ctx context.Context, id string, status models.ValidationStatus, validatorID *string, validatedAt time.Time) error
	Delete(ctx context.Context, id string) error
}

type commentRepository interface {
	Create(ctx context.Context, comment *models.SWTDComment) error
	FindByID(ctx context.Context, id string) (*models.SWTDComment, error)
	ListBySWTD(ctx context.Context, swtdID string) ([]models.SWTDComment, error)
	Update(ctx context.Context, comment *models.SWTDComment) error
	Delete(ctx context.Context, id string) error
}

type validationNotifier interface {
	ValidationStatusChanged(ctx context.Context, actor, target *models.User, record *models.SWTDRecord)
}

type validationMetrics interface {
	ValidationRecorded(status string)
}

// SubmitSWTDRequest is the payload for submitting an activity record.
type SubmitSWTDRequest struct {
	TermID    string    `json:"term_id" validate:"required"`
	Title     string    `json:"title" validate:"required,max=255"`
	Venue     string    `json:"venue" validate:"required,max=255"`
	Category  string    `json:"category" validate:"required,max=100"`
	Role      string    `json:"role" validate:"required,max=100"`
	Points    float64   `json:"points" validate:"required,gt=0"`
	Benefits  string    `json:"benefits"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
}

// CommentRequest carries a comment message for posting or editing.
type CommentRequest struct {
	Message string `json:"message" validate:"required,max=255"`
}

// UpdateSWTDRequest carries editable fields. Any accepted edit resets
// the record to pending review.
type UpdateSWTDRequest struct {
	Title     *string    `json:"title" validate:"omitempty,max=255"`
	Venue     *string    `json:"venue" validate:"omitempty,max=255"`
	Category  *string    `json:"category" validate:"omitempty,max=100"`
	Role      *string    `json:"role" validate:"omitempty,max=100"`
	Points    *float64   `json:"points" validate:"omitempty,gt=0"`
	Benefits  *string    `json:"benefits"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

// SWTDService manages activity record submission, review, listing and
// the per-record comment thread.
type SWTDService struct {
	repo      swtdRepository
	comments  commentRepository
	users     userReader
	terms     termReader
	notifier  validationNotifier
	metrics   validationMetrics
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSWTDService constructs SWTDService.
func NewSWTDService(repo swtdRepository, comments commentRepository, users userReader, terms termReader, notifier validationNotifier, metrics validationMetrics, validate *validator.Validate, logger *zap.Logger) *SWTDService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SWTDService{repo: repo, comments: comments, users: users, terms: terms, notifier: notifier, metrics: metrics, validator: validate, logger: logger}
}

// Submit records a new SWTD for the author. The record starts pending
// and must fall within the chosen term's window.
func (s *SWTDService) Submit(ctx context.Context, author *models.User, req SubmitSWTDRequest) (*models.SWTDRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid swtd payload")
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date precedes start date")
	}

	term, err := s.terms.FindByID(ctx, req.TermID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	if req.StartDate.Before(term.StartDate) || req.EndDate.After(term.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "activity dates fall outside the term window")
	}

	record := &models.SWTDRecord{
		AuthorID:         author.ID,
		TermID:           term.ID,
		Title:            req.Title,
		Venue:            req.Venue,
		Category:         req.Category,
		Role:             req.Role,
		Points:           req.Points,
		Benefits:         req.Benefits,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		ValidationStatus: models.ValidationPending,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create swtd record")
	}
	return record, nil
}

// Get loads a record, visible to its author and to managers.
func (s *SWTDService) Get(ctx context.Context, actor *models.User, id string) (*models.SWTDRecord, error) {
	record, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.AuthorID != actor.ID && !actor.AccessLevel.AtLeast(models.AccessHead) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this record")
	}
	return record, nil
}

// List returns records matching the filter. Plain employees only ever
// see their own submissions regardless of the requested filter.
func (s *SWTDService) List(ctx context.Context, actor *models.User, filter models.SWTDFilter) ([]models.SWTDRecord, *models.Pagination, error) {
	if !actor.AccessLevel.AtLeast(models.AccessHead) {
		filter.AuthorID = actor.ID
	}
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list swtd records")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return records, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update edits a record. Only the author may edit, and the edit resets
// the validation outcome so the record re-enters review.
func (s *SWTDService) Update(ctx context.Context, actor *models.User, id string, req UpdateSWTDRequest) (*models.SWTDRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid swtd payload")
	}

	record, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.AuthorID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the author may edit a record")
	}

	if req.Title != nil {
		record.Title = *req.Title
	}
	if req.Venue != nil {
		record.Venue = *req.Venue
	}
	if req.Category != nil {
		record.Category = *req.Category
	}
	if req.Role != nil {
		record.Role = *req.Role
	}
	if req.Points != nil {
		record.Points = *req.Points
	}
	if req.Benefits != nil {
		record.Benefits = *req.Benefits
	}
	if req.StartDate != nil {
		record.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		record.EndDate = *req.EndDate
	}
	if record.EndDate.Before(record.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date precedes start date")
	}

	priorStatus := record.ValidationStatus
	record.ValidationStatus = models.ValidationPending
	record.ValidatorID = nil
	record.ValidatedAt = nil

	if err := s.repo.Update(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update swtd record")
	}

	// An edit that undoes a recorded outcome is a status transition and
	// dispatches like one, so open sessions see the record re-enter
	// review. Edits to still-pending records stay silent.
	if priorStatus != models.ValidationPending && s.notifier != nil {
		s.notifier.ValidationStatusChanged(ctx, actor, actor, record)
	}
	return record, nil
}

// Validate records a review outcome and notifies the author. Authors
// cannot review their own submissions.
func (s *SWTDService) Validate(ctx context.Context, actor *models.User, id string, status models.ValidationStatus) (*models.SWTDRecord, error) {
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown validation status")
	}

	record, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.AuthorID == actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot validate your own record")
	}

	target, err := s.users.FindByID(ctx, record.AuthorID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record author not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record author")
	}
	if !canManage(actor, target) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to validate records for this user")
	}

	now := time.Now().UTC()
	var validatorID *string
	var validatedAt *time.Time
	if status != models.ValidationPending {
		validatorID = &actor.ID
		validatedAt = &now
	}
	if err := s.repo.SetValidationStatus(ctx, record.ID, status, validatorID, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set validation status")
	}

	record.ValidationStatus = status
	record.ValidatorID = validatorID
	record.ValidatedAt = validatedAt

	s.logger.Info("swtd validation recorded",
		zap.String("record_id", record.ID),
		zap.String("validator_id", actor.ID),
		zap.String("status", string(status)),
	)
	if s.metrics != nil {
		s.metrics.ValidationRecorded(string(status))
	}
	if s.notifier != nil {
		s.notifier.ValidationStatusChanged(ctx, actor, target, record)
	}
	return record, nil
}

// Delete soft-deletes a record. Authors delete their own; staff can
// remove any record.
func (s *SWTDService) Delete(ctx context.Context, actor *models.User, id string) error {
	record, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if record.AuthorID != actor.ID && !actor.AccessLevel.AtLeast(models.AccessStaff) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to delete this record")
	}
	if err := s.repo.Delete(ctx, record.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete swtd record")
	}
	return nil
}

// AddComment posts a comment on a record's thread. Anyone who may view
// the record may comment on it.
func (s *SWTDService) AddComment(ctx context.Context, actor *models.User, swtdID string, req CommentRequest) (*models.SWTDComment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}
	if _, err := s.Get(ctx, actor, swtdID); err != nil {
		return nil, err
	}

	comment := &models.SWTDComment{
		SWTDID:   swtdID,
		AuthorID: actor.ID,
		Message:  req.Message,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create comment")
	}
	return comment, nil
}

// ListComments returns a record's comment thread, oldest first.
func (s *SWTDService) ListComments(ctx context.Context, actor *models.User, swtdID string) ([]models.SWTDComment, error) {
	if _, err := s.Get(ctx, actor, swtdID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListBySWTD(ctx, swtdID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list comments")
	}
	return comments, nil
}

// UpdateComment edits a comment's message. Only its author may edit, and
// the comment is marked edited for everyone reading the thread.
func (s *SWTDService) UpdateComment(ctx context.Context, actor *models.User, swtdID, commentID string, req CommentRequest) (*models.SWTDComment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}

	comment, err := s.findComment(ctx, swtdID, commentID)
	if err != nil {
		return nil, err
	}
	if comment.AuthorID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the author may edit a comment")
	}

	comment.Message = req.Message
	if err := s.comments.Update(ctx, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update comment")
	}
	return comment, nil
}

// DeleteComment soft-deletes a comment. Authors remove their own; staff
// can moderate any thread.
func (s *SWTDService) DeleteComment(ctx context.Context, actor *models.User, swtdID, commentID string) error {
	comment, err := s.findComment(ctx, swtdID, commentID)
	if err != nil {
		return err
	}
	if comment.AuthorID != actor.ID && !actor.AccessLevel.AtLeast(models.AccessStaff) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to delete this comment")
	}
	if err := s.comments.Delete(ctx, comment.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete comment")
	}
	return nil
}

func (s *SWTDService) findComment(ctx context.Context, swtdID, commentID string) (*models.SWTDComment, error) {
	comment, err := s.comments.FindByID(ctx, commentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "comment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load comment")
	}
	if comment.SWTDID != swtdID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "comment not found")
	}
	return comment, nil
}

func (s *SWTDService) find(ctx context.Context, id string) (*models.SWTDRecord, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "swtd record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load swtd record")
	}
	return record, nil
}
