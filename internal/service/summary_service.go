package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/grit-challenge-api/internal/models"
	appErrors "github.com/noah-isme/grit-challenge-api/pkg/errors"
)

// SummaryInput carries everything ComputeSummary needs.
type SummaryInput struct {
	StudentID string
	Records   []models.ProgressRecord
	// Catalog resolves points for the challenges referenced by Records.
	Catalog map[string]models.Challenge
	// Assigned is the set of challenges counted toward the percentage and badges.
	Assigned []models.Challenge
	// RunningTotal is the student's credited GRIT Bit points.
	RunningTotal int
}

// ComputeSummary derives counts, points, percentage, badges and tier. It has
// no side effects.
func ComputeSummary(in SummaryInput) models.ProgressSummary {
	summary := models.ProgressSummary{
		StudentID:     in.StudentID,
		TotalAssigned: len(in.Assigned),
		GritPoints:    in.RunningTotal,
		Badges:        []models.TraitBadge{},
	}

	approved := make(map[string]struct{}, len(in.Records))
	for _, record := range in.Records {
		switch record.Status {
		case models.ProgressApproved:
			summary.CompletedCount++
			approved[record.ChallengeID] = struct{}{}
			if challenge, ok := in.Catalog[record.ChallengeID]; ok {
				summary.GritPoints += challenge.Points
			}
		case models.ProgressInProgress, models.ProgressSubmitted:
			summary.InProgressCount++
		}
		if record.NeedsRevision && record.Status != models.ProgressApproved {
			summary.NeedsRevisionCount++
		}
	}

	if summary.TotalAssigned > 0 {
		pct := math.Round(float64(summary.CompletedCount) / float64(summary.TotalAssigned) * 100)
		summary.ProgressPercentage = int(math.Max(0, math.Min(100, pct)))
	}

	byTrait := make(map[string]*models.TraitBadge)
	for _, challenge := range in.Assigned {
		badge, ok := byTrait[challenge.Trait]
		if !ok {
			badge = &models.TraitBadge{Trait: challenge.Trait}
			byTrait[challenge.Trait] = badge
		}
		badge.Total++
		if _, done := approved[challenge.ID]; done {
			badge.Completed++
		}
	}
	for _, badge := range byTrait {
		badge.Earned = badge.Total > 0 && badge.Completed == badge.Total
		summary.Badges = append(summary.Badges, *badge)
	}
	sort.Slice(summary.Badges, func(i, j int) bool { return summary.Badges[i].Trait < summary.Badges[j].Trait })

	summary.AwardTier = models.AwardTierFor(summary.GritPoints)
	return summary
}

type progressLister interface {
	ListForStudent(ctx context.Context, studentID string) ([]models.ProgressRecord, error)
}

type catalogSource interface {
	GetMany(ctx context.Context, ids []string) (map[string]models.Challenge, error)
	Assigned(ctx context.Context, schoolID string) ([]models.Challenge, error)
}

// SummaryService loads summary inputs fresh on every call.
type SummaryService struct {
	students studentReader
	ledger   progressLister
	catalog  catalogSource
	logger   *zap.Logger
}

// NewSummaryService constructs the aggregator.
func NewSummaryService(students studentReader, ledger progressLister, catalog catalogSource, logger *zap.Logger) *SummaryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryService{students: students, ledger: ledger, catalog: catalog, logger: logger}
}

// Summary computes the progress summary of a student.
func (s *SummaryService) Summary(ctx context.Context, studentID string) (*models.ProgressSummary, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "failed to load student")
	}
	assigned, err := s.catalog.Assigned(ctx, student.SchoolID)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, student, assigned)
}

// SummaryFor computes a summary after checking the actor may see the student.
func (s *SummaryService) SummaryFor(ctx context.Context, actor *models.JWTClaims, studentID string) (*models.ProgressSummary, error) {
	if err := authorizeStudentAccess(ctx, s.students, actor, studentID); err != nil {
		return nil, err
	}
	return s.Summary(ctx, studentID)
}

// ProgressFor lists a student's ledger rows after checking the actor may see them.
func (s *SummaryService) ProgressFor(ctx context.Context, actor *models.JWTClaims, studentID string) ([]models.ProgressRecord, error) {
	if err := authorizeStudentAccess(ctx, s.students, actor, studentID); err != nil {
		return nil, err
	}
	return s.ledger.ListForStudent(ctx, studentID)
}

func (s *SummaryService) summarize(ctx context.Context, student *models.Student, assigned []models.Challenge) (*models.ProgressSummary, error) {
	records, err := s.ledger.ListForStudent(ctx, student.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ChallengeID)
	}
	catalog, err := s.catalog.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	summary := ComputeSummary(SummaryInput{
		StudentID:    student.ID,
		Records:      records,
		Catalog:      catalog,
		Assigned:     assigned,
		RunningTotal: student.GritBitPoints,
	})
	return &summary, nil
}
