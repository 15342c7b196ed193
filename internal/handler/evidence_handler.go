package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/grit-challenge-api/internal/dto"
	"github.com/noah-isme/grit-challenge-api/internal/models"
	appErrors "github.com/noah-isme/grit-challenge-api/pkg/errors"
	"github.com/noah-isme/grit-challenge-api/pkg/response"
)

type evidenceService interface {
	Submit(ctx context.Context, studentID string, req dto.SubmitEvidenceRequest) (*models.EvidenceSubmission, error)
	Resubmit(ctx context.Context, studentID, priorID string, req dto.ResubmitEvidenceRequest) (*models.EvidenceSubmission, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.EvidenceSubmission, error)
	List(ctx context.Context, actor *models.JWTClaims, query dto.EvidenceQuery) ([]models.EvidenceSubmission, error)
}

// EvidenceHandler exposes the family submission endpoints.
type EvidenceHandler struct {
	service        evidenceService
	maxUploadBytes int64
}

// NewEvidenceHandler constructs the handler. maxUploadBytes bounds a whole request body.
func NewEvidenceHandler(service evidenceService, maxUploadBytes int64) *EvidenceHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 64 << 20
	}
	return &EvidenceHandler{service: service, maxUploadBytes: maxUploadBytes}
}

// Submit godoc
// @Summary Submit challenge evidence or a GRIT Bit
// @Tags Evidence
// @Accept multipart/form-data
// @Produce json
// @Param challengeId formData string false "Challenge ID; omit for a GRIT Bit"
// @Param title formData string false "Title, required for GRIT Bits"
// @Param text formData string true "Evidence text"
// @Param files formData file false "Images or a video"
// @Success 201 {object} response.Envelope
// @Router /evidence [post]
func (h *EvidenceHandler) Submit(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.SubmitEvidenceRequest
	if isMultipart(c) {
		media, err := h.readMultipart(c)
		if err != nil {
			response.Error(c, err)
			return
		}
		if challengeID := strings.TrimSpace(c.PostForm("challengeId")); challengeID != "" {
			req.ChallengeID = &challengeID
		}
		req.Title = c.PostForm("title")
		req.Text = c.PostForm("text")
		req.Media = media
	} else if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid evidence payload"))
		return
	}

	evidence, err := h.service.Submit(c.Request.Context(), claims.StudentID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, evidence)
}

// Resubmit godoc
// @Summary Resubmit evidence that was sent back for revision
// @Tags Evidence
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Prior submission ID"
// @Param text formData string true "Evidence text"
// @Param files formData file false "Images or a video"
// @Success 201 {object} response.Envelope
// @Router /evidence/{id}/resubmit [post]
func (h *EvidenceHandler) Resubmit(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req dto.ResubmitEvidenceRequest
	if isMultipart(c) {
		media, err := h.readMultipart(c)
		if err != nil {
			response.Error(c, err)
			return
		}
		req.Text = c.PostForm("text")
		req.Media = media
	} else if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid evidence payload"))
		return
	}

	evidence, err := h.service.Resubmit(c.Request.Context(), claims.StudentID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, evidence)
}

// List godoc
// @Summary List a student's submissions
// @Tags Evidence
// @Produce json
// @Param studentId query string false "Student ID (leaders)"
// @Param status query string false "pending, approved or needs_revision"
// @Success 200 {object} response.Envelope
// @Router /evidence [get]
func (h *EvidenceHandler) List(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	query := dto.EvidenceQuery{StudentID: strings.TrimSpace(c.Query("studentId"))}
	if raw := strings.ToLower(strings.TrimSpace(c.Query("status"))); raw != "" {
		status := models.EvidenceStatus(raw)
		switch status {
		case models.EvidencePending, models.EvidenceApproved, models.EvidenceNeedsRevision:
			query.Status = &status
		default:
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown evidence status"))
			return
		}
	}
	items, err := h.service.List(c.Request.Context(), claims, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get a submission
// @Tags Evidence
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /evidence/{id} [get]
func (h *EvidenceHandler) Get(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	evidence, err := h.service.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evidence, nil)
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// readMultipart parses the form under the body limit and loads every attached file.
func (h *EvidenceHandler) readMultipart(c *gin.Context) ([]dto.MediaUpload, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("upload exceeds %d MB", h.maxUploadBytes>>20))
		}
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid multipart payload")
	}
	headers := append(form.File["files"], form.File["files[]"]...)
	media := make([]dto.MediaUpload, 0, len(headers))
	for _, header := range headers {
		data, err := readFile(header)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable upload "+header.Filename)
		}
		media = append(media, dto.MediaUpload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Data:        data,
		})
	}
	return media, nil
}

func readFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}
