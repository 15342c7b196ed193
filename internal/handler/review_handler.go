package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/grit-challenge-api/internal/dto"
	"github.com/noah-isme/grit-challenge-api/internal/models"
	appErrors "github.com/noah-isme/grit-challenge-api/pkg/errors"
	"github.com/noah-isme/grit-challenge-api/pkg/response"
)

type reviewService interface {
	ListPending(ctx context.Context, actor *models.JWTClaims, filter models.PendingFilter) ([]dto.ReviewItem, error)
	Approve(ctx context.Context, actor *models.JWTClaims, evidenceID string) (*dto.ApproveResult, error)
	RequestChanges(ctx context.Context, actor *models.JWTClaims, evidenceID string, req dto.RequestChangesRequest) (*dto.RequestChangesResult, error)
}

// ReviewHandler exposes the leader review queue and decisions.
type ReviewHandler struct {
	service reviewService
}

// NewReviewHandler constructs the handler.
func NewReviewHandler(service reviewService) *ReviewHandler {
	return &ReviewHandler{service: service}
}

// Pending godoc
// @Summary List pending submissions, newest per student and challenge
// @Tags Reviews
// @Produce json
// @Param studentId query string false "Student ID"
// @Param type query string false "challenge or grit_bit"
// @Param yearLevel query int false "Year level"
// @Success 200 {object} response.Envelope
// @Router /reviews/pending [get]
func (h *ReviewHandler) Pending(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	yearLevel, err := optionalIntQuery(c, "yearLevel")
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.PendingFilter{
		StudentID: strings.TrimSpace(c.Query("studentId")),
		YearLevel: yearLevel,
	}
	if raw := strings.ToLower(strings.TrimSpace(c.Query("type"))); raw != "" {
		kind := models.SubmissionType(raw)
		if kind != models.SubmissionChallenge && kind != models.SubmissionGritBit {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown submission type"))
			return
		}
		filter.Type = kind
	}
	items, err := h.service.ListPending(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{"count": len(items)})
}

// Approve godoc
// @Summary Approve a submission
// @Tags Reviews
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /reviews/{id}/approve [post]
func (h *ReviewHandler) Approve(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	result, err := h.service.Approve(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// RequestChanges godoc
// @Summary Send a submission back with feedback
// @Tags Reviews
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.RequestChangesRequest true "Feedback"
// @Success 200 {object} response.Envelope
// @Router /reviews/{id}/request-changes [post]
func (h *ReviewHandler) RequestChanges(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.RequestChangesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid feedback payload"))
		return
	}
	result, err := h.service.RequestChanges(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
