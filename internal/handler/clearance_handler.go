package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/wildpark/pointwatch-api/pkg/errors"
	"github.com/wildpark/pointwatch-api/pkg/response"

	"github.com/wildpark/pointwatch-api/internal/service"
)

// ClearanceHandler exposes clearance grant and revoke endpoints.
type ClearanceHandler struct {
	clearances *service.ClearanceService
}

// NewClearanceHandler constructs ClearanceHandler.
func NewClearanceHandler(clearances *service.ClearanceService) *ClearanceHandler {
	return &ClearanceHandler{clearances: clearances}
}

// Grant godoc
// @Summary Grant term clearance to a user
// @Tags Clearances
// @Produce json
// @Param id path string true "User ID"
// @Param termId path string true "Term ID"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id}/clearances/{termId} [post]
func (h *ClearanceHandler) Grant(c *gin.Context) {
	actor := userFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	clearing, err := h.clearances.GrantClearance(c.Request.Context(), actor, c.Param("id"), c.Param("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, clearing)
}

// ListByTerm godoc
// @Summary List active clearances issued for a term
// @Tags Clearances
// @Produce json
// @Param id path string true "Term ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /terms/{id}/clearances [get]
func (h *ClearanceHandler) ListByTerm(c *gin.Context) {
	clearings, err := h.clearances.ListTermClearances(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, clearings, nil)
}

// Revoke godoc
// @Summary Revoke a user's term clearance
// @Tags Clearances
// @Produce json
// @Param id path string true "User ID"
// @Param termId path string true "Term ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /users/{id}/clearances/{termId} [delete]
func (h *ClearanceHandler) Revoke(c *gin.Context) {
	actor := userFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	clearing, err := h.clearances.RevokeClearance(c.Request.Context(), actor, c.Param("id"), c.Param("termId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, clearing, nil)
}
