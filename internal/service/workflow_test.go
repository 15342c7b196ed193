package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/grit-challenge-api/internal/models"
	"github.com/noah-isme/grit-challenge-api/internal/repository"
	"github.com/noah-isme/grit-challenge-api/internal/repository/inmem"
)

var (
	_ progressStore     = (*repository.ProgressRepository)(nil)
	_ progressStore     = (*inmem.ProgressTable)(nil)
	_ evidenceStore     = (*repository.EvidenceRepository)(nil)
	_ evidenceStore     = (*inmem.EvidenceTable)(nil)
	_ challengeStore    = (*repository.ChallengeRepository)(nil)
	_ challengeStore    = (*inmem.ChallengeTable)(nil)
	_ conversationStore = (*repository.ConversationRepository)(nil)
	_ conversationStore = (*inmem.ConversationTable)(nil)
	_ reviewStudents    = (*repository.StudentRepository)(nil)
	_ reviewStudents    = (*inmem.StudentTable)(nil)
	_ studentLister     = (*inmem.StudentTable)(nil)
	_ studentStore      = (*repository.StudentRepository)(nil)
	_ studentStore      = (*inmem.StudentTable)(nil)
	_ CacheRepository   = (*repository.CacheRepository)(nil)
)

type fakeMedia struct {
	mu       sync.Mutex
	uploaded []string
	deleted  []string
	failOn   int
	calls    int
}

func (m *fakeMedia) Upload(_ context.Context, filename, _ string, _ []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failOn > 0 && m.calls == m.failOn {
		return "", errors.New("bucket unavailable")
	}
	url := "https://media.test/" + filename
	m.uploaded = append(m.uploaded, url)
	return url, nil
}

func (m *fakeMedia) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, url)
	return nil
}

type workflow struct {
	store    *inmem.Store
	media    *fakeMedia
	metrics  *MetricsService
	catalog  *CatalogService
	progress *ProgressService
	relay    *ConversationService
	evidence *EvidenceService
	summary  *SummaryService
	review   *ReviewService

	student *models.Student
	family  *models.JWTClaims
	leader  *models.JWTClaims
}

func newWorkflow(t *testing.T) *workflow {
	t.Helper()
	store := inmem.New()
	media := &fakeMedia{}
	metrics := NewMetricsService()

	catalog := NewCatalogService(store.Challenges, nil, 0, nil)
	progress := NewProgressService(store.Progress, catalog, nil)
	relay := NewConversationService(store.Conversations, store.Students, nil, nil)
	summary := NewSummaryService(store.Students, progress, catalog, nil)
	evidence := NewEvidenceService(EvidenceServiceDeps{
		Repo:     store.Evidence,
		Students: store.Students,
		Catalog:  catalog,
		Ledger:   progress,
		Relay:    relay,
		Media:    media,
		Metrics:  metrics,
	})
	review := NewReviewService(ReviewServiceDeps{
		Evidence:      store.Evidence,
		Students:      store.Students,
		Ledger:        progress,
		Catalog:       catalog,
		Relay:         relay,
		Summaries:     summary,
		Metrics:       metrics,
		GritBitPoints: 10,
	})

	student := &models.Student{SchoolID: "school-1", YearLevel: 5, DisplayName: "Ana"}
	require.NoError(t, store.Students.Create(context.Background(), student))

	return &workflow{
		store:    store,
		media:    media,
		metrics:  metrics,
		catalog:  catalog,
		progress: progress,
		relay:    relay,
		evidence: evidence,
		summary:  summary,
		review:   review,
		student:  student,
		family:   &models.JWTClaims{UserID: "parent-1", Role: models.RoleFamily, SchoolID: "school-1", StudentID: student.ID},
		leader:   &models.JWTClaims{UserID: "leader-1", Role: models.RoleLeader, SchoolID: "school-1"},
	}
}

func (w *workflow) challenge(title, trait string, points int) models.Challenge {
	return w.store.Challenges.Put(models.Challenge{
		Title:   title,
		Trait:   trait,
		Pathway: models.PathwaySchoolLed,
		Points:  points,
		Active:  true,
	})
}

func counterValue(t *testing.T, w *workflow, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := w.metrics.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					continue metrics
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}
