package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wildpark/pointwatch-api/internal/models"
	appErrors "github.com/wildpark/pointwatch-api/pkg/errors"
)

// mockClearingLedger mirrors the arithmetic of the real grant/revoke
// transactions against in-memory state. It reads the point totals at
// mutation time, the way the real transactions aggregate them under the
// user-row lock rather than accepting a caller-provided snapshot.
type mockClearingLedger struct {
	balances  map[string]float64
	clearings map[string]*models.Clearing
	totals    map[string]models.PointTotals
}

func newMockLedger(totals map[string]models.PointTotals) *mockClearingLedger {
	return &mockClearingLedger{
		balances:  make(map[string]float64),
		clearings: make(map[string]*models.Clearing),
		totals:    totals,
	}
}

func (m *mockClearingLedger) key(userID, termID string) string { return userID + "|" + termID }

func (m *mockClearingLedger) FindActive(ctx context.Context, userID, termID string) (*models.Clearing, error) {
	if c, ok := m.clearings[m.key(userID, termID)]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClearingLedger) ListByTerm(ctx context.Context, termID string) ([]models.Clearing, error) {
	var result []models.Clearing
	for _, c := range m.clearings {
		if c.TermID == termID {
			result = append(result, *c)
		}
	}
	return result, nil
}

func (m *mockClearingLedger) Grant(ctx context.Context, userID, clearerID string, term *models.Term, requiredPoints float64) (*models.Clearing, error) {
	if _, ok := m.clearings[m.key(userID, term.ID)]; ok {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user already cleared for term")
	}
	summary := models.NewPointSummary(m.totals[userID], requiredPoints)
	balance := m.balances[userID]
	available := summary.ValidPoints + balance
	if available < summary.RequiredPoints {
		return nil, appErrors.InsufficientPoints(summary.RequiredPoints - available)
	}
	m.balances[userID] = balance + summary.ExcessPoints - summary.LackingPoints
	clearing := &models.Clearing{
		ID:            "clr-" + m.key(userID, term.ID),
		UserID:        userID,
		TermID:        term.ID,
		ClearerID:     clearerID,
		AppliedPoints: summary.LackingPoints,
	}
	m.clearings[m.key(userID, term.ID)] = clearing
	return clearing, nil
}

func (m *mockClearingLedger) Revoke(ctx context.Context, userID string, term *models.Term, requiredPoints float64) (*models.Clearing, error) {
	clearing, ok := m.clearings[m.key(userID, term.ID)]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no active clearance for term")
	}
	summary := models.NewPointSummary(m.totals[userID], requiredPoints)
	m.balances[userID] -= summary.ExcessPoints - clearing.AppliedPoints
	delete(m.clearings, m.key(userID, term.ID))
	clearing.IsDeleted = true
	return clearing, nil
}

type mockUserReader struct {
	users map[string]*models.User
}

func (m *mockUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

type mockTermReader struct {
	terms map[string]*models.Term
}

func (m *mockTermReader) FindByID(ctx context.Context, id string) (*models.Term, error) {
	if t, ok := m.terms[id]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

// mockSummaries returns a summary computed from configurable totals.
// The totals map is shared with the ledger mock so a totals change is
// seen by the next ledger mutation, not only by summary reads.
type mockSummaries struct {
	totals   map[string]models.PointTotals
	required float64
}

func (m *mockSummaries) GetPointSummary(ctx context.Context, user *models.User, term *models.Term) (models.PointSummary, error) {
	return models.NewPointSummary(m.totals[user.ID], m.required), nil
}

func (m *mockSummaries) RequiredFor(ctx context.Context, user *models.User, term *models.Term) float64 {
	return m.required
}

type spyClearanceNotifier struct {
	granted int
	revoked int
}

func (s *spyClearanceNotifier) ClearanceGranted(ctx context.Context, actor, target *models.User, term *models.Term) {
	s.granted++
}

func (s *spyClearanceNotifier) ClearanceRevoked(ctx context.Context, actor, target *models.User, term *models.Term) {
	s.revoked++
}

func deptPtr(id string) *string { return &id }

func clearanceFixture() (*ClearanceService, *mockClearingLedger, *mockSummaries, *spyClearanceNotifier, *mockUserReader) {
	ledger := newMockLedger(nil)
	users := &mockUserReader{users: map[string]*models.User{
		"emp-1":   {ID: "emp-1", Email: "emp1@example.edu", FirstName: "Ana", LastName: "Reyes", DepartmentID: deptPtr("dept-1"), AccessLevel: models.AccessNone},
		"head-1":  {ID: "head-1", Email: "head1@example.edu", DepartmentID: deptPtr("dept-1"), AccessLevel: models.AccessHead},
		"head-2":  {ID: "head-2", Email: "head2@example.edu", DepartmentID: deptPtr("dept-2"), AccessLevel: models.AccessHead},
		"staff-1": {ID: "staff-1", Email: "staff1@example.edu", AccessLevel: models.AccessStaff},
	}}
	terms := &mockTermReader{terms: map[string]*models.Term{
		"term-1": {ID: "term-1", Name: "1st Semester 2025", Type: models.TermTypeRegular},
		"term-2": {ID: "term-2", Name: "Midyear 2026", Type: models.TermTypeMidyear},
	}}
	summaries := &mockSummaries{totals: make(map[string]models.PointTotals), required: 50}
	ledger.totals = summaries.totals
	notifier := &spyClearanceNotifier{}
	svc := NewClearanceService(ledger, users, terms, summaries, notifier, nil, zap.NewNop())
	return svc, ledger, summaries, notifier, users
}

func TestGrantClearanceExactQuota(t *testing.T) {
	svc, ledger, summaries, notifier, _ := clearanceFixture()
	summaries.totals["emp-1"] = models.PointTotals{ValidPoints: 50}

	clearing, err := svc.GrantClearance(context.Background(), ledgerActor(t, svc, "staff-1"), "emp-1", "term-1")
	require.NoError(t, err)
	assert.Zero(t, clearing.AppliedPoints)
	assert.Zero(t, ledger.balances["emp-1"])
	assert.Equal(t, 1, notifier.granted)
}

func TestGrantClearanceExcessCredited(t *testing.T) {
	svc, ledger, summaries, _, _ := clearanceFixture()
	summaries.totals["emp-1"] = models.PointTotals{ValidPoints: 62.5}

	clearing, err := svc.GrantClearance(context.Background(), ledgerActor(t, svc, "staff-1"), "emp-1", "term-1")
	require.NoError(t, err)
	assert.Zero(t, clearing.AppliedPoints)
	assert.InDelta(t, 12.5, ledger.balances["emp-1"], 1e-9)
}

func TestGrantClearanceShortfallCoveredByBalance(t *testing.T) {
	svc, ledger, summaries, _, _ := clearanceFixture()
	ledger.balances["emp-1"] = 15
	summaries.totals["emp-1"] = models.PointTotals{ValidPoints: 40}

	clearing, err := svc.GrantClearance(context.Background(), ledgerActor(t, svc, "staff-1"), "emp-1", "term-1")
	require.NoError(t, err)
	assert.InDelta(t, 10, clearing.AppliedPoints, 1e-9)
	assert.InDelta(t, 5, ledger.balances["emp-1"], 1e-9)
}

func TestGrantClearanceInsufficient(t *testing.T) {
	svc, ledger, summaries, notifier, _ := clearanceFixture()
	ledger.balances["emp-1"] = 4
	summaries.totals["emp-1"] = models.PointTotals{ValidPoints: 40}

	_, err := svc.GrantClearance(context.Background(), ledgerActor(t, svc, "staff-1"), "emp-1", "term-1")
	require.Error(t, err)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInsufficientPoints.Code, appErr.Code)
	assert.InDelta(t, 6.0, appErr.Details["lacking_points"].(float64), 1e-9)
	assert.InDelta(t, 4, ledger.balances["emp-1"], 1e-9)
	assert.Zero(t, notifier.granted)
}

func TestGrantClearanceDoubleGrantConflicts(t *testing.T) {
	svc, _, summaries, _, _ := clearanceFixture()
	summaries.totals["emp-1"] = models.PointTotals{ValidPoints: 60}

	actor := ledgerActor(t, svc, "staff-1")
	_, err := svc.GrantClearance(context.Background(), actor, "emp-1", "term-1")
	require.NoError(t, err)

	_, err = svc.GrantClearance(context.Background(), actor, "emp-1", "term-1")
	require.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestGrantThenRevokeRestoresBalance(t *testing.T) {
	svc, ledger, summaries, notifier, _ := clearanceFixture()
	ledger.balances["emp-1"] = 20
	summaries.totals["emp-1"] = models.PointTotals{ValidPoints: 35}

	actor := ledgerActor(t, svc, "head-1")
	_, err := svc.GrantClearance(context.Background(), actor, "emp-1", "term-1")
	require.NoError(t, err)
	assert.InDelta(t, 5, ledger.balances["emp-1"], 1e-9)

	_, err = svc.RevokeClearance(context.Background(), actor, "emp-1", "term-1")
	require.NoError(t, err)
	assert.InDelta(t, 20, ledger.balances["emp-1"], 1e-9)
	assert.Equal(t, 1, notifier.revoked)
}

func TestRevokeAfterValidationChangeUsesCurrentSummary(t *testing.T) {
	svc, ledger, summaries, _, _ := clearanceFixture()
	summaries.totals["emp-1"] = models.PointTotals{ValidPoints: 60}

	actor := ledgerActor(t, svc, "staff-1")
	_, err := svc.GrantClearance(context.Background(), actor, "emp-1", "term-1")
	require.NoError(t, err)
	assert.InDelta(t, 10, ledger.balances["emp-1"], 1e-9)

	// A record worth 5 points was rejected after the grant.
	summaries.totals["emp-1"] = models.PointTotals{ValidPoints: 55}

	_, err = svc.RevokeClearance(context.Background(), actor, "emp-1", "term-1")
	require.NoError(t, err)
	assert.InDelta(t, 5, ledger.balances["emp-1"], 1e-9)
}

func TestGrantSeesValidationChangeAfterSummaryRead(t *testing.T) {
	svc, ledger, summaries, _, _ := clearanceFixture()
	summaries.totals["emp-1"] = models.PointTotals{ValidPoints: 60}

	actor := ledgerActor(t, svc, "staff-1")

	// A summary read shows the user clearable.
	summary, err := svc.GetTermSummary(context.Background(), actor, "emp-1", "term-1")
	require.NoError(t, err)
	assert.InDelta(t, 10, summary.Points.ExcessPoints, 1e-9)

	// A 25-point record is rejected before the grant lands. The grant
	// must fail on the totals as of its own locked read, not on the
	// earlier summary.
	summaries.totals["emp-1"] = models.PointTotals{ValidPoints: 35, InvalidPoints: 25}

	_, err = svc.GrantClearance(context.Background(), actor, "emp-1", "term-1")
	require.ErrorIs(t, err, appErrors.ErrInsufficientPoints)
	assert.Zero(t, ledger.balances["emp-1"])
}

func TestRevokeWithoutClearanceNotFound(t *testing.T) {
	svc, _, summaries, _, _ := clearanceFixture()
	summaries.totals["emp-1"] = models.PointTotals{ValidPoints: 60}

	_, err := svc.RevokeClearance(context.Background(), ledgerActor(t, svc, "staff-1"), "emp-1", "term-1")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestGrantClearanceAuthorization(t *testing.T) {
	svc, _, summaries, _, _ := clearanceFixture()
	summaries.totals["emp-1"] = models.PointTotals{ValidPoints: 60}

	// Head of another department may not clear.
	_, err := svc.GrantClearance(context.Background(), ledgerActor(t, svc, "head-2"), "emp-1", "term-1")
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	// Employees may not clear anyone, including themselves.
	_, err = svc.GrantClearance(context.Background(), ledgerActor(t, svc, "emp-1"), "emp-1", "term-1")
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	// Head of the same department may.
	_, err = svc.GrantClearance(context.Background(), ledgerActor(t, svc, "head-1"), "emp-1", "term-1")
	require.NoError(t, err)
}

func TestGetTermSummary(t *testing.T) {
	svc, _, summaries, _, _ := clearanceFixture()
	summaries.totals["emp-1"] = models.PointTotals{ValidPoints: 30}

	actor := ledgerActor(t, svc, "emp-1")
	summary, err := svc.GetTermSummary(context.Background(), actor, "emp-1", "term-1")
	require.NoError(t, err)
	assert.False(t, summary.IsCleared)
	assert.InDelta(t, 20, summary.Points.LackingPoints, 1e-9)
	assert.Zero(t, summary.Points.ExcessPoints)

	// Another plain employee cannot peek.
	other := &models.User{ID: "emp-2", AccessLevel: models.AccessNone}
	_, err = svc.GetTermSummary(context.Background(), other, "emp-1", "term-1")
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestPointSummaryExcessLackingExclusive(t *testing.T) {
	cases := []struct {
		valid    float64
		required float64
	}{
		{0, 0}, {10, 50}, {50, 50}, {80, 50}, {0, 50}, {120.25, 60.5},
	}
	for _, tc := range cases {
		summary := models.NewPointSummary(models.PointTotals{ValidPoints: tc.valid}, tc.required)
		assert.Zero(t, summary.ExcessPoints*summary.LackingPoints,
			"excess and lacking must be mutually exclusive for valid=%v required=%v", tc.valid, tc.required)
		assert.GreaterOrEqual(t, summary.ExcessPoints, 0.0)
		assert.GreaterOrEqual(t, summary.LackingPoints, 0.0)
	}
}

func ledgerActor(t *testing.T, svc *ClearanceService, id string) *models.User {
	t.Helper()
	actor, err := svc.users.FindByID(context.Background(), id)
	require.NoError(t, err)
	return actor
}

func TestListTermClearances(t *testing.T) {
	svc, _, summaries, _, _ := clearanceFixture()
	summaries.totals["emp-1"] = models.PointTotals{ValidPoints: 60}

	_, err := svc.GrantClearance(context.Background(), ledgerActor(t, svc, "staff-1"), "emp-1", "term-1")
	require.NoError(t, err)

	clearings, err := svc.ListTermClearances(context.Background(), "term-1")
	require.NoError(t, err)
	require.Len(t, clearings, 1)
	assert.Equal(t, "emp-1", clearings[0].UserID)

	empty, err := svc.ListTermClearances(context.Background(), "term-2")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = svc.ListTermClearances(context.Background(), "term-9")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}
