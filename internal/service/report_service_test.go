package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/grit-challenge-api/internal/dto"
	"github.com/noah-isme/grit-challenge-api/internal/models"
	appErrors "github.com/noah-isme/grit-challenge-api/pkg/errors"
)

func newReportService(w *workflow, enabled bool) *ReportService {
	reports := NewReportService(w.store.Students, w.summary, w.catalog, nil, nil, enabled)
	reports.now = func() time.Time { return time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC) }
	return reports
}

func TestProgressReportCSV(t *testing.T) {
	w := newWorkflow(t)
	ctx := context.Background()
	challenge := w.challenge("Plant a tree", "Resilience", 20)
	w.challenge("Bake bread", "Teamwork", 15)
	evidence := w.submitChallenge(t, challenge, "done")
	_, err := w.review.Approve(ctx, w.leader, evidence.ID)
	require.NoError(t, err)

	sixth := &models.Student{SchoolID: "school-1", YearLevel: 6, DisplayName: "Cleo"}
	require.NoError(t, w.store.Students.Create(ctx, sixth))
	elsewhere := &models.Student{SchoolID: "school-2", YearLevel: 5, DisplayName: "Dev"}
	require.NoError(t, w.store.Students.Create(ctx, elsewhere))

	file, err := newReportService(w, true).ProgressReport(ctx, w.leader, dto.ProgressReportRequest{})
	require.NoError(t, err)
	assert.Equal(t, "progress-report-20260309.csv", file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Equal(t, "Student,Year,Completed,In progress,GRIT points,Progress %,Award tier\n"+
		"Ana,5,1,0,20,50,none\n"+
		"Cleo,6,0,0,0,0,none\n", string(file.Data))

	year6 := 6
	filtered, err := newReportService(w, true).Rows(ctx, w.leader, &year6)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "Cleo", filtered[0].StudentName)
}

func TestProgressReportPDF(t *testing.T) {
	w := newWorkflow(t)
	file, err := newReportService(w, true).ProgressReport(context.Background(), w.leader, dto.ProgressReportRequest{Format: dto.ReportFormatPDF})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Data, []byte("%PDF")))
}

func TestProgressReportRejectsDisabledAndUnknownFormat(t *testing.T) {
	w := newWorkflow(t)
	_, err := newReportService(w, false).ProgressReport(context.Background(), w.leader, dto.ProgressReportRequest{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = newReportService(w, true).ProgressReport(context.Background(), w.leader, dto.ProgressReportRequest{Format: "xlsx"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
