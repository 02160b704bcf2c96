package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/wildpark/pointwatch-api/internal/models"
)

func rbacTestContext(t *testing.T, user *models.User, paramID string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, err)
	c.Request = req
	if user != nil {
		c.Set(ContextUserKey, user)
	}
	if paramID != "" {
		c.Params = gin.Params{{Key: "id", Value: paramID}}
	}
	return c, w
}

func TestRequireLevelOrdering(t *testing.T) {
	cases := []struct {
		name    string
		level   models.AccessLevel
		minimum models.AccessLevel
		status  int
	}{
		{"none blocked from head routes", models.AccessNone, models.AccessHead, http.StatusForbidden},
		{"head clears head routes", models.AccessHead, models.AccessHead, http.StatusOK},
		{"head blocked from staff routes", models.AccessHead, models.AccessStaff, http.StatusForbidden},
		{"staff clears head routes", models.AccessStaff, models.AccessHead, http.StatusOK},
		{"superuser clears staff routes", models.AccessSuperuser, models.AccessStaff, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			user := &models.User{ID: "user-1", AccessLevel: tc.level}
			c, w := rbacTestContext(t, user, "")

			RequireLevel(tc.minimum)(c)

			if tc.status == http.StatusOK {
				require.False(t, c.IsAborted())
			} else {
				require.True(t, c.IsAborted())
				require.Equal(t, tc.status, w.Code)
			}
		})
	}
}

func TestRequireLevelMissingUser(t *testing.T) {
	c, w := rbacTestContext(t, nil, "")

	RequireLevel(models.AccessHead)(c)

	require.True(t, c.IsAborted())
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireLevelOrSelf(t *testing.T) {
	t.Run("self passes without level", func(t *testing.T) {
		user := &models.User{ID: "user-1", AccessLevel: models.AccessNone}
		c, _ := rbacTestContext(t, user, "user-1")

		RequireLevelOrSelf(models.AccessStaff)(c)

		require.False(t, c.IsAborted())
	})

	t.Run("other user blocked without level", func(t *testing.T) {
		user := &models.User{ID: "user-1", AccessLevel: models.AccessNone}
		c, w := rbacTestContext(t, user, "user-2")

		RequireLevelOrSelf(models.AccessStaff)(c)

		require.True(t, c.IsAborted())
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("level passes for other user", func(t *testing.T) {
		user := &models.User{ID: "staff-1", AccessLevel: models.AccessStaff}
		c, _ := rbacTestContext(t, user, "user-2")

		RequireLevelOrSelf(models.AccessStaff)(c)

		require.False(t, c.IsAborted())
	})
}
