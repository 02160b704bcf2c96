package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/wildpark/pointwatch-api/internal/models"
	appErrors "github.com/wildpark/pointwatch-api/pkg/errors"
)

type clearingLedger interface {
	FindActive(ctx context.Context, userID, termID string) (*models.Clearing, error)
	ListByTerm(ctx context.Context, termID string) ([]models.Clearing, error)
	Grant(ctx context.Context, userID, clearerID string, term *models.Term, requiredPoints float64) (*models.Clearing, error)
	Revoke(ctx context.Context, userID string, term *models.Term, requiredPoints float64) (*models.Clearing, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type termReader interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

type summaryProvider interface {
	GetPointSummary(ctx context.Context, user *models.User, term *models.Term) (models.PointSummary, error)
	RequiredFor(ctx context.Context, user *models.User, term *models.Term) float64
}

type clearanceNotifier interface {
	ClearanceGranted(ctx context.Context, actor, target *models.User, term *models.Term)
	ClearanceRevoked(ctx context.Context, actor, target *models.User, term *models.Term)
}

type clearanceMetrics interface {
	ClearanceGranted()
	ClearanceRevoked()
}

// ClearanceService orchestrates clearance grants and revocations. It
// resolves the parties, checks authorization, resolves the applicable
// quota, then delegates the atomic ledger mutation to the clearing
// repository, which aggregates the point totals under its own lock.
// Notifications go out only after the mutation committed.
type ClearanceService struct {
	clearings clearingLedger
	users     userReader
	terms     termReader
	summaries summaryProvider
	notifier  clearanceNotifier
	metrics   clearanceMetrics
	logger    *zap.Logger
}

// NewClearanceService constructs ClearanceService.
func NewClearanceService(clearings clearingLedger, users userReader, terms termReader, summaries summaryProvider, notifier clearanceNotifier, metrics clearanceMetrics, logger *zap.Logger) *ClearanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClearanceService{
		clearings: clearings,
		users:     users,
		terms:     terms,
		summaries: summaries,
		notifier:  notifier,
		metrics:   metrics,
		logger:    logger,
	}
}

// canManage reports whether the actor may clear or revoke for the
// target. HR staff and superusers manage anyone; department heads only
// members of their own department.
func canManage(actor, target *models.User) bool {
	if actor.AccessLevel.AtLeast(models.AccessStaff) {
		return true
	}
	if actor.AccessLevel != models.AccessHead {
		return false
	}
	return actor.DepartmentID != nil && target.DepartmentID != nil &&
		*actor.DepartmentID == *target.DepartmentID
}

// GrantClearance clears the target user for the term. Only the quota is
// resolved up front; the point totals are aggregated inside the grant
// transaction, under the user-row lock, so the sufficiency check cannot
// act on a summary that a concurrent validation change made stale.
func (s *ClearanceService) GrantClearance(ctx context.Context, actor *models.User, userID, termID string) (*models.Clearing, error) {
	target, term, err := s.resolve(ctx, actor, userID, termID)
	if err != nil {
		return nil, err
	}

	required := s.summaries.RequiredFor(ctx, target, term)

	clearing, err := s.clearings.Grant(ctx, target.ID, actor.ID, term, required)
	if err != nil {
		return nil, err
	}

	s.logger.Info("clearance granted",
		zap.String("user_id", target.ID),
		zap.String("term_id", term.ID),
		zap.String("clearer_id", actor.ID),
		zap.Float64("applied_points", clearing.AppliedPoints),
	)
	if s.metrics != nil {
		s.metrics.ClearanceGranted()
	}
	if s.notifier != nil {
		s.notifier.ClearanceGranted(ctx, actor, target, term)
	}
	return clearing, nil
}

// RevokeClearance withdraws the target's active clearance for the term.
// The reversal delta uses the summary as it stands at the locked read
// inside the revoke transaction, so validation changes made since the
// grant are reflected, paired with the shortfall recorded on the
// clearing itself.
func (s *ClearanceService) RevokeClearance(ctx context.Context, actor *models.User, userID, termID string) (*models.Clearing, error) {
	target, term, err := s.resolve(ctx, actor, userID, termID)
	if err != nil {
		return nil, err
	}

	required := s.summaries.RequiredFor(ctx, target, term)

	clearing, err := s.clearings.Revoke(ctx, target.ID, term, required)
	if err != nil {
		return nil, err
	}

	s.logger.Info("clearance revoked",
		zap.String("user_id", target.ID),
		zap.String("term_id", term.ID),
		zap.String("revoker_id", actor.ID),
		zap.Float64("applied_points", clearing.AppliedPoints),
	)
	if s.metrics != nil {
		s.metrics.ClearanceRevoked()
	}
	if s.notifier != nil {
		s.notifier.ClearanceRevoked(ctx, actor, target, term)
	}
	return clearing, nil
}

// GetTermSummary reports the target's clearance state and point summary
// for a term. Users may always view their own; managing others requires
// the same authority as granting.
func (s *ClearanceService) GetTermSummary(ctx context.Context, actor *models.User, userID, termID string) (*models.TermSummary, error) {
	target, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if actor.ID != target.ID && !canManage(actor, target) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this user's summary")
	}

	term, err := s.terms.FindByID(ctx, termID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}

	summary, err := s.summaries.GetPointSummary(ctx, target, term)
	if err != nil {
		return nil, err
	}

	cleared := true
	if _, err := s.clearings.FindActive(ctx, target.ID, term.ID); err != nil {
		if err != sql.ErrNoRows {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check clearance")
		}
		cleared = false
	}

	return &models.TermSummary{IsCleared: cleared, Points: summary}, nil
}

// ListTermClearances returns the active clearances issued for a term.
func (s *ClearanceService) ListTermClearances(ctx context.Context, termID string) ([]models.Clearing, error) {
	if _, err := s.terms.FindByID(ctx, termID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}

	clearings, err := s.clearings.ListByTerm(ctx, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list clearances")
	}
	return clearings, nil
}

func (s *ClearanceService) resolve(ctx context.Context, actor *models.User, userID, termID string) (*models.User, *models.Term, error) {
	target, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if target.IsDeleted {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	if !canManage(actor, target) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to manage clearance for this user")
	}

	term, err := s.terms.FindByID(ctx, termID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	return target, term, nil
}
