package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/grit-challenge-api/internal/models"
	appErrors "github.com/noah-isme/grit-challenge-api/pkg/errors"
	"github.com/noah-isme/grit-challenge-api/pkg/response"
)

type catalogService interface {
	Get(ctx context.Context, id string) (*models.Challenge, error)
	List(ctx context.Context, filter models.ChallengeFilter) ([]models.Challenge, error)
}

type progressService interface {
	Begin(ctx context.Context, studentID, challengeID string) (*models.ProgressRecord, error)
}

type progressReader interface {
	ProgressFor(ctx context.Context, actor *models.JWTClaims, studentID string) ([]models.ProgressRecord, error)
	SummaryFor(ctx context.Context, actor *models.JWTClaims, studentID string) (*models.ProgressSummary, error)
}

// ChallengeHandler exposes the catalog and the progress ledger.
type ChallengeHandler struct {
	catalog  catalogService
	progress progressService
	reader   progressReader
}

// NewChallengeHandler constructs the handler.
func NewChallengeHandler(catalog catalogService, progress progressService, reader progressReader) *ChallengeHandler {
	return &ChallengeHandler{catalog: catalog, progress: progress, reader: reader}
}

// List godoc
// @Summary List challenges assigned to the caller's school
// @Tags Challenges
// @Produce json
// @Param pathway query string false "SPECIALIST_LED, SCHOOL_LED or INDEPENDENT_LED"
// @Param trait query string false "Character trait"
// @Success 200 {object} response.Envelope
// @Router /challenges [get]
func (h *ChallengeHandler) List(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	filter := models.ChallengeFilter{
		SchoolID: claims.SchoolID,
		Pathway:  models.Pathway(strings.ToUpper(strings.TrimSpace(c.Query("pathway")))),
		Trait:    strings.TrimSpace(c.Query("trait")),
	}
	challenges, err := h.catalog.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, challenges, nil)
}

// Get godoc
// @Summary Get a challenge
// @Tags Challenges
// @Produce json
// @Param id path string true "Challenge ID"
// @Success 200 {object} response.Envelope
// @Router /challenges/{id} [get]
func (h *ChallengeHandler) Get(c *gin.Context) {
	challenge, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, challenge, nil)
}

// Begin godoc
// @Summary Start a challenge for the caller's student
// @Tags Progress
// @Produce json
// @Param id path string true "Challenge ID"
// @Success 200 {object} response.Envelope
// @Router /challenges/{id}/begin [post]
func (h *ChallengeHandler) Begin(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	record, err := h.progress.Begin(c.Request.Context(), claims.StudentID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Progress godoc
// @Summary List progress records of a student
// @Tags Progress
// @Produce json
// @Param studentId query string false "Student ID (leaders)"
// @Success 200 {object} response.Envelope
// @Router /progress [get]
func (h *ChallengeHandler) Progress(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	studentID := strings.TrimSpace(c.Query("studentId"))
	if claims.Role == models.RoleFamily {
		studentID = claims.StudentID
	}
	if studentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "studentId is required"))
		return
	}
	records, err := h.reader.ProgressFor(c.Request.Context(), claims, studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Summary godoc
// @Summary Progress summary with points, percentage and badges
// @Tags Progress
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/summary [get]
func (h *ChallengeHandler) Summary(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	summary, err := h.reader.SummaryFor(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
