package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/wildpark/pointwatch-api/internal/models"
	appErrors "github.com/wildpark/pointwatch-api/pkg/errors"
	"github.com/wildpark/pointwatch-api/pkg/response"
)

// RequireLevel gates a route behind a minimum access level. Levels are
// ordered, so staff clear every head-gated route and superusers clear
// everything.
func RequireLevel(minimum models.AccessLevel) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !user.AccessLevel.AtLeast(minimum) {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireLevelOrSelf allows the route when the actor meets the minimum
// level or when the :id path parameter refers to the actor themselves.
func RequireLevelOrSelf(minimum models.AccessLevel) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if user.AccessLevel.AtLeast(minimum) {
			c.Next()
			return
		}
		if targetID := c.Param("id"); targetID != "" && targetID == user.ID {
			c.Next()
			return
		}
		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
