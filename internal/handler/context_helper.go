package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/wildpark/pointwatch-api/internal/middleware"
	"github.com/wildpark/pointwatch-api/internal/models"
)

func userFromContext(c *gin.Context) *models.User {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return nil
	}
	return user
}
