package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/wildpark/pointwatch-api/internal/models"
	appErrors "github.com/wildpark/pointwatch-api/pkg/errors"
)

const departmentCachePrefix = "departments"

type departmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Department, error)
	List(ctx context.Context) ([]models.Department, error)
	ListMembers(ctx context.Context, id string) ([]models.User, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, dept *models.Department) error
	Update(ctx context.Context, dept *models.Department) error
	Delete(ctx context.Context, id string) error
}

// CreateDepartmentRequest is the payload for registering a department.
type CreateDepartmentRequest struct {
	Code           string  `json:"code" validate:"required,max=20"`
	Name           string  `json:"name" validate:"required,max=255"`
	HeadID         *string `json:"head_id"`
	RequiredPoints float64 `json:"required_points" validate:"gte=0"`
	MidyearPoints  float64 `json:"midyear_points" validate:"gte=0"`
}

// UpdateDepartmentRequest carries mutable department fields.
type UpdateDepartmentRequest struct {
	Code           *string  `json:"code" validate:"omitempty,max=20"`
	Name           *string  `json:"name" validate:"omitempty,max=255"`
	HeadID         *string  `json:"head_id"`
	RequiredPoints *float64 `json:"required_points" validate:"omitempty,gte=0"`
	MidyearPoints  *float64 `json:"midyear_points" validate:"omitempty,gte=0"`
}

// DepartmentService manages departments and their quotas. Reads go
// through the cache; any write invalidates the whole department keyspace.
type DepartmentService struct {
	repo      departmentRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDepartmentService constructs DepartmentService.
func NewDepartmentService(repo departmentRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *DepartmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DepartmentService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// Get loads a department, preferring the cache.
func (s *DepartmentService) Get(ctx context.Context, id string) (*models.Department, error) {
	key := fmt.Sprintf("%s:%s", departmentCachePrefix, id)
	var cached models.Department
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	dept, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}

	_ = s.cache.Set(ctx, key, dept, 0)
	return dept, nil
}

// List returns all departments, preferring the cache.
func (s *DepartmentService) List(ctx context.Context) ([]models.Department, error) {
	key := departmentCachePrefix + ":all"
	var cached []models.Department
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	depts, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}

	_ = s.cache.Set(ctx, key, depts, 0)
	return depts, nil
}

// ListMembers returns the active users assigned to a department. Not
// cached: membership changes with user updates, which do not pass
// through this service's invalidation.
func (s *DepartmentService) ListMembers(ctx context.Context, id string) ([]models.User, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	members, err := s.repo.ListMembers(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list department members")
	}
	return members, nil
}

// Create registers a new department with a unique code.
func (s *DepartmentService) Create(ctx context.Context, req CreateDepartmentRequest) (*models.Department, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}

	taken, err := s.repo.ExistsByCode(ctx, req.Code, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check department code")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "department code already in use")
	}

	dept := &models.Department{
		Code:           req.Code,
		Name:           req.Name,
		HeadID:         req.HeadID,
		RequiredPoints: req.RequiredPoints,
		MidyearPoints:  req.MidyearPoints,
	}
	if err := s.repo.Create(ctx, dept); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create department")
	}

	s.invalidate(ctx)
	s.logger.Info("department created", zap.String("department_id", dept.ID), zap.String("code", dept.Code))
	return dept, nil
}

// Update modifies department fields. Quota changes affect only future
// summaries; existing clearings are never recomputed.
func (s *DepartmentService) Update(ctx context.Context, id string, req UpdateDepartmentRequest) (*models.Department, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}

	dept, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}

	if req.Code != nil && *req.Code != dept.Code {
		taken, err := s.repo.ExistsByCode(ctx, *req.Code, dept.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check department code")
		}
		if taken {
			return nil, appErrors.Clone(appErrors.ErrConflict, "department code already in use")
		}
		dept.Code = *req.Code
	}
	if req.Name != nil {
		dept.Name = *req.Name
	}
	if req.HeadID != nil {
		dept.HeadID = req.HeadID
	}
	if req.RequiredPoints != nil {
		dept.RequiredPoints = *req.RequiredPoints
	}
	if req.MidyearPoints != nil {
		dept.MidyearPoints = *req.MidyearPoints
	}

	if err := s.repo.Update(ctx, dept); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update department")
	}

	s.invalidate(ctx)
	return dept, nil
}

// Delete soft-deletes a department. Members keep their point balances;
// their quota falls back to zero until they are reassigned.
func (s *DepartmentService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete department")
	}
	s.invalidate(ctx)
	return nil
}

func (s *DepartmentService) invalidate(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, departmentCachePrefix+":*")
}
