package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/grit-challenge-api/internal/dto"
	"github.com/noah-isme/grit-challenge-api/internal/models"
	"github.com/noah-isme/grit-challenge-api/pkg/response"
)

type reportService interface {
	ProgressReport(ctx context.Context, actor *models.JWTClaims, req dto.ProgressReportRequest) (*dto.ReportFile, error)
}

// ReportHandler exposes progress exports.
type ReportHandler struct {
	service reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(service reportService) *ReportHandler {
	return &ReportHandler{service: service}
}

// Progress godoc
// @Summary Download the school progress report
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Param yearLevel query int false "Year level"
// @Success 200 {file} file
// @Router /reports/progress [get]
func (h *ReportHandler) Progress(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	yearLevel, err := optionalIntQuery(c, "yearLevel")
	if err != nil {
		response.Error(c, err)
		return
	}
	req := dto.ProgressReportRequest{Format: dto.ReportFormat(c.Query("format")), YearLevel: yearLevel}
	file, err := h.service.ProgressReport(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Data)
}
