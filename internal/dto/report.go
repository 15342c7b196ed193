package dto

// ReportFormat enumerates export formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ProgressReportRequest asks for a school progress export.
type ProgressReportRequest struct {
	Format    ReportFormat `form:"format" validate:"omitempty,oneof=csv pdf"`
	YearLevel *int         `form:"yearLevel"`
}

// ProgressReportRow is one student line of the export.
type ProgressReportRow struct {
	StudentID          string `json:"student_id"`
	StudentName        string `json:"student_name"`
	YearLevel          int    `json:"year_level"`
	Completed          int    `json:"completed"`
	InProgress         int    `json:"in_progress"`
	GritPoints         int    `json:"grit_points"`
	ProgressPercentage int    `json:"progress_percentage"`
	AwardTier          string `json:"award_tier"`
}

// ReportFile is a rendered export.
type ReportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}
