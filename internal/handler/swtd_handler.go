package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wildpark/pointwatch-api/internal/models"
	"github.com/wildpark/pointwatch-api/internal/service"
	appErrors "github.com/wildpark/pointwatch-api/pkg/errors"
	"github.com/wildpark/pointwatch-api/pkg/response"
)

// SWTDHandler exposes SWTD record endpoints.
type SWTDHandler struct {
	swtds *service.SWTDService
}

// NewSWTDHandler constructs SWTDHandler.
func NewSWTDHandler(swtds *service.SWTDService) *SWTDHandler {
	return &SWTDHandler{swtds: swtds}
}

type validateRequest struct {
	Status string `json:"status" binding:"required"`
}

// List godoc
// @Summary List SWTD records
// @Tags SWTDs
// @Produce json
// @Param authorId query string false "Filter by author"
// @Param termId query string false "Filter by term"
// @Param status query string false "Filter by validation status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /swtds [get]
func (h *SWTDHandler) List(c *gin.Context) {
	actor := userFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.SWTDFilter
	filter.AuthorID = c.Query("authorId")
	filter.TermID = c.Query("termId")
	filter.Status = models.ValidationStatus(strings.ToUpper(c.Query("status")))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	records, pagination, err := h.swtds.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Get godoc
// @Summary Get an SWTD record
// @Tags SWTDs
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /swtds/{id} [get]
func (h *SWTDHandler) Get(c *gin.Context) {
	actor := userFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	record, err := h.swtds.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Create godoc
// @Summary Submit an SWTD record
// @Tags SWTDs
// @Accept json
// @Produce json
// @Param payload body service.SubmitSWTDRequest true "SWTD payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /swtds [post]
func (h *SWTDHandler) Create(c *gin.Context) {
	actor := userFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SubmitSWTDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.swtds.Submit(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// Update godoc
// @Summary Edit an SWTD record, resetting it to pending review
// @Tags SWTDs
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body service.UpdateSWTDRequest true "SWTD payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /swtds/{id} [put]
func (h *SWTDHandler) Update(c *gin.Context) {
	actor := userFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateSWTDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.swtds.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Validate godoc
// @Summary Record a validation outcome for an SWTD record
// @Tags SWTDs
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body validateRequest true "Validation payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /swtds/{id}/validation [put]
func (h *SWTDHandler) Validate(c *gin.Context) {
	actor := userFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.swtds.Validate(c.Request.Context(), actor, c.Param("id"), models.ValidationStatus(strings.ToUpper(req.Status)))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// ListComments godoc
// @Summary List an SWTD record's comment thread
// @Tags SWTDs
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /swtds/{id}/comments [get]
func (h *SWTDHandler) ListComments(c *gin.Context) {
	actor := userFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	comments, err := h.swtds.ListComments(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, comments, nil)
}

// AddComment godoc
// @Summary Post a comment on an SWTD record
// @Tags SWTDs
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body service.CommentRequest true "Comment payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /swtds/{id}/comments [post]
func (h *SWTDHandler) AddComment(c *gin.Context) {
	actor := userFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	comment, err := h.swtds.AddComment(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

// UpdateComment godoc
// @Summary Edit a comment on an SWTD record
// @Tags SWTDs
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param commentId path string true "Comment ID"
// @Param payload body service.CommentRequest true "Comment payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /swtds/{id}/comments/{commentId} [put]
func (h *SWTDHandler) UpdateComment(c *gin.Context) {
	actor := userFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	comment, err := h.swtds.UpdateComment(c.Request.Context(), actor, c.Param("id"), c.Param("commentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, comment, nil)
}

// DeleteComment godoc
// @Summary Remove a comment from an SWTD record
// @Tags SWTDs
// @Produce json
// @Param id path string true "Record ID"
// @Param commentId path string true "Comment ID"
// @Success 204
// @Security BearerAuth
// @Router /swtds/{id}/comments/{commentId} [delete]
func (h *SWTDHandler) DeleteComment(c *gin.Context) {
	actor := userFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.swtds.DeleteComment(c.Request.Context(), actor, c.Param("id"), c.Param("commentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Soft-delete an SWTD record
// @Tags SWTDs
// @Produce json
// @Param id path string true "Record ID"
// @Success 204
// @Security BearerAuth
// @Router /swtds/{id} [delete]
func (h *SWTDHandler) Delete(c *gin.Context) {
	actor := userFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.swtds.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
