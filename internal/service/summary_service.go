package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wildpark/pointwatch-api/internal/models"
	appErrors "github.com/wildpark/pointwatch-api/pkg/errors"
)

type pointTotalsReader interface {
	SumPointsByStatus(ctx context.Context, authorID string, start, end time.Time) (models.PointTotals, error)
}

type departmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Department, error)
}

// SummaryService computes per-user, per-term point summaries. Totals are
// always aggregated from the current validation states in the database;
// nothing here is cached or memoised.
type SummaryService struct {
	swtds       pointTotalsReader
	departments departmentReader
	logger      *zap.Logger
}

// NewSummaryService constructs SummaryService.
func NewSummaryService(swtds pointTotalsReader, departments departmentReader, logger *zap.Logger) *SummaryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryService{swtds: swtds, departments: departments, logger: logger}
}

// GetPointSummary aggregates the user's points over the term window and
// resolves the applicable department quota.
func (s *SummaryService) GetPointSummary(ctx context.Context, user *models.User, term *models.Term) (models.PointSummary, error) {
	totals, err := s.swtds.SumPointsByStatus(ctx, user.ID, term.StartDate, term.EndDate)
	if err != nil {
		return models.PointSummary{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate points")
	}
	return models.NewPointSummary(totals, s.RequiredFor(ctx, user, term)), nil
}

// RequiredFor resolves the department quota applying to the user for the
// term. Users without a department carry a zero quota, which makes them
// trivially clearable; that state is logged because it usually means
// onboarding is incomplete.
func (s *SummaryService) RequiredFor(ctx context.Context, user *models.User, term *models.Term) float64 {
	if user.DepartmentID == nil {
		s.logger.Warn("point quota for user without department defaults to zero",
			zap.String("user_id", user.ID),
			zap.String("term_id", term.ID),
		)
		return 0
	}
	dept, err := s.departments.FindByID(ctx, *user.DepartmentID)
	if err != nil {
		s.logger.Warn("department lookup failed, quota defaults to zero",
			zap.String("user_id", user.ID),
			zap.String("department_id", *user.DepartmentID),
			zap.Error(err),
		)
		return 0
	}
	return dept.QuotaFor(term.Type)
}
