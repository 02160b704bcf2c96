package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wildpark/pointwatch-api/internal/models"
)

type mockTotalsReader struct {
	totals models.PointTotals
	start  time.Time
	end    time.Time
}

func (m *mockTotalsReader) SumPointsByStatus(ctx context.Context, authorID string, start, end time.Time) (models.PointTotals, error) {
	m.start, m.end = start, end
	return m.totals, nil
}

type mockDepartmentReader struct {
	departments map[string]*models.Department
}

func (m *mockDepartmentReader) FindByID(ctx context.Context, id string) (*models.Department, error) {
	if d, ok := m.departments[id]; ok {
		return d, nil
	}
	return nil, sql.ErrNoRows
}

func summaryFixture(totals models.PointTotals) (*SummaryService, *mockTotalsReader) {
	swtds := &mockTotalsReader{totals: totals}
	departments := &mockDepartmentReader{departments: map[string]*models.Department{
		"dept-1": {ID: "dept-1", Code: "CCS", RequiredPoints: 50, MidyearPoints: 25},
	}}
	return NewSummaryService(swtds, departments, zap.NewNop()), swtds
}

func TestGetPointSummaryRegularTerm(t *testing.T) {
	svc, swtds := summaryFixture(models.PointTotals{ValidPoints: 42, PendingPoints: 10, InvalidPoints: 3})
	user := &models.User{ID: "emp-1", DepartmentID: deptPtr("dept-1")}
	term := &models.Term{
		ID:        "term-1",
		Type:      models.TermTypeRegular,
		StartDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC),
	}

	summary, err := svc.GetPointSummary(context.Background(), user, term)
	require.NoError(t, err)
	assert.Equal(t, 42.0, summary.ValidPoints)
	assert.Equal(t, 10.0, summary.PendingPoints)
	assert.Equal(t, 3.0, summary.InvalidPoints)
	assert.Equal(t, 50.0, summary.RequiredPoints)
	assert.Equal(t, 8.0, summary.LackingPoints)
	assert.Zero(t, summary.ExcessPoints)
	assert.Equal(t, term.StartDate, swtds.start)
	assert.Equal(t, term.EndDate, swtds.end)
}

func TestGetPointSummaryMidyearQuota(t *testing.T) {
	svc, _ := summaryFixture(models.PointTotals{ValidPoints: 30})
	user := &models.User{ID: "emp-1", DepartmentID: deptPtr("dept-1")}
	term := &models.Term{ID: "term-2", Type: models.TermTypeMidyear}

	summary, err := svc.GetPointSummary(context.Background(), user, term)
	require.NoError(t, err)
	assert.Equal(t, 25.0, summary.RequiredPoints)
	assert.Equal(t, 5.0, summary.ExcessPoints)
	assert.Zero(t, summary.LackingPoints)
}

func TestGetPointSummaryNoDepartmentZeroQuota(t *testing.T) {
	svc, _ := summaryFixture(models.PointTotals{ValidPoints: 12})
	user := &models.User{ID: "emp-1"}
	term := &models.Term{ID: "term-1", Type: models.TermTypeRegular}

	summary, err := svc.GetPointSummary(context.Background(), user, term)
	require.NoError(t, err)
	assert.Zero(t, summary.RequiredPoints)
	assert.Equal(t, 12.0, summary.ExcessPoints)
}

func TestGetPointSummaryUnknownDepartmentZeroQuota(t *testing.T) {
	svc, _ := summaryFixture(models.PointTotals{ValidPoints: 12})
	user := &models.User{ID: "emp-1", DepartmentID: deptPtr("dept-gone")}
	term := &models.Term{ID: "term-1", Type: models.TermTypeRegular}

	summary, err := svc.GetPointSummary(context.Background(), user, term)
	require.NoError(t, err)
	assert.Zero(t, summary.RequiredPoints)
}
