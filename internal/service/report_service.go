package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/grit-challenge-api/internal/dto"
	"github.com/noah-isme/grit-challenge-api/internal/models"
	appErrors "github.com/noah-isme/grit-challenge-api/pkg/errors"
	"github.com/noah-isme/grit-challenge-api/pkg/export"
)

type studentLister interface {
	ListBySchool(ctx context.Context, filter models.StudentFilter) ([]models.Student, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

var progressReportHeaders = []string{"Student", "Year", "Completed", "In progress", "GRIT points", "Progress %", "Award tier"}

// ReportService renders school progress exports.
type ReportService struct {
	students  studentLister
	summaries *SummaryService
	catalog   catalogSource
	renderers map[dto.ReportFormat]datasetRenderer
	validator *validator.Validate
	logger    *zap.Logger
	enabled   bool
	now       func() time.Time
}

// NewReportService constructs the report service with CSV and PDF renderers.
func NewReportService(students studentLister, summaries *SummaryService, catalog catalogSource, validate *validator.Validate, logger *zap.Logger, enabled bool) *ReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		students:  students,
		summaries: summaries,
		catalog:   catalog,
		renderers: map[dto.ReportFormat]datasetRenderer{
			dto.ReportFormatCSV: export.NewCSVExporter(),
			dto.ReportFormatPDF: export.NewPDFExporter(),
		},
		validator: validate,
		logger:    logger,
		enabled:   enabled,
		now:       time.Now,
	}
}

// Rows computes one report row per student of the leader's school.
func (s *ReportService) Rows(ctx context.Context, actor *models.JWTClaims, yearLevel *int) ([]dto.ProgressReportRow, error) {
	students, err := s.students.ListBySchool(ctx, models.StudentFilter{SchoolID: actor.SchoolID, YearLevel: yearLevel})
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to list students")
	}
	assigned, err := s.catalog.Assigned(ctx, actor.SchoolID)
	if err != nil {
		return nil, err
	}
	rows := make([]dto.ProgressReportRow, 0, len(students))
	for i := range students {
		summary, err := s.summaries.summarize(ctx, &students[i], assigned)
		if err != nil {
			return nil, err
		}
		rows = append(rows, dto.ProgressReportRow{
			StudentID:          students[i].ID,
			StudentName:        students[i].DisplayName,
			YearLevel:          students[i].YearLevel,
			Completed:          summary.CompletedCount,
			InProgress:         summary.InProgressCount,
			GritPoints:         summary.GritPoints,
			ProgressPercentage: summary.ProgressPercentage,
			AwardTier:          string(summary.AwardTier),
		})
	}
	return rows, nil
}

// ProgressReport renders the school progress export in the requested format.
func (s *ReportService) ProgressReport(ctx context.Context, actor *models.JWTClaims, req dto.ProgressReportRequest) (*dto.ReportFile, error) {
	if !s.enabled {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "progress reports are disabled")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report request")
	}
	format := req.Format
	if format == "" {
		format = dto.ReportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}

	rows, err := s.Rows(ctx, actor, req.YearLevel)
	if err != nil {
		return nil, err
	}
	generatedAt := s.now().UTC()
	dataset := export.Dataset{
		Title:   fmt.Sprintf("Character challenge progress (%s)", generatedAt.Format("2006-01-02")),
		Headers: progressReportHeaders,
		Rows:    make([]map[string]string, 0, len(rows)),
	}
	for _, row := range rows {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":     row.StudentName,
			"Year":        strconv.Itoa(row.YearLevel),
			"Completed":   strconv.Itoa(row.Completed),
			"In progress": strconv.Itoa(row.InProgress),
			"GRIT points": strconv.Itoa(row.GritPoints),
			"Progress %":  strconv.Itoa(row.ProgressPercentage),
			"Award tier":  row.AwardTier,
		})
	}
	data, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to render report")
	}
	s.logger.Info("progress report rendered",
		zap.String("school_id", actor.SchoolID),
		zap.String("format", string(format)),
		zap.Int("rows", len(rows)),
	)
	return &dto.ReportFile{
		Filename:    fmt.Sprintf("progress-report-%s.%s", generatedAt.Format("20060102"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        data,
	}, nil
}
