package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/grit-challenge-api/internal/models"
	appErrors "github.com/noah-isme/grit-challenge-api/pkg/errors"
)

type challengeStore interface {
	FindByID(ctx context.Context, id string) (*models.Challenge, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Challenge, error)
	List(ctx context.Context, filter models.ChallengeFilter) ([]models.Challenge, error)
	CountAssigned(ctx context.Context, schoolID string) (int, error)
}

// CatalogService serves read-only challenge reference data, optionally through Redis.
type CatalogService struct {
	repo   challengeStore
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewCatalogService constructs the service. cache may be nil.
func NewCatalogService(repo challengeStore, cache *CacheService, ttl time.Duration, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// Get returns a challenge, NotFound, or DependencyFailure.
func (s *CatalogService) Get(ctx context.Context, id string) (*models.Challenge, error) {
	key := "challenge:" + id
	var cached models.Challenge
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}
	challenge, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "challenge not found")
		}
		s.logger.Error("catalog lookup failed", zap.String("challenge_id", id), zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "challenge catalog unavailable")
	}
	s.cache.Set(ctx, key, challenge, s.ttl)
	return challenge, nil
}

// GetMany returns the known challenges among ids keyed by id.
func (s *CatalogService) GetMany(ctx context.Context, ids []string) (map[string]models.Challenge, error) {
	out := make(map[string]models.Challenge, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	challenges, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "challenge catalog unavailable")
	}
	for _, challenge := range challenges {
		out[challenge.ID] = challenge
	}
	return out, nil
}

// List returns the active challenges matching filter.
func (s *CatalogService) List(ctx context.Context, filter models.ChallengeFilter) ([]models.Challenge, error) {
	if filter.Pathway != "" && !filter.Pathway.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown pathway")
	}
	key := fmt.Sprintf("list:%s:%s:%s", filter.SchoolID, filter.Pathway, filter.Trait)
	var cached []models.Challenge
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}
	challenges, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "challenge catalog unavailable")
	}
	s.cache.Set(ctx, key, challenges, s.ttl)
	return challenges, nil
}

// Assigned returns the challenges assigned to a school.
func (s *CatalogService) Assigned(ctx context.Context, schoolID string) ([]models.Challenge, error) {
	return s.List(ctx, models.ChallengeFilter{SchoolID: schoolID})
}

// CountAssigned returns the number of challenges assigned to a school.
func (s *CatalogService) CountAssigned(ctx context.Context, schoolID string) (int, error) {
	key := "assigned:" + schoolID
	var cached int
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}
	total, err := s.repo.CountAssigned(ctx, schoolID)
	if err != nil {
		return 0, appErrors.WrapAs(appErrors.ErrDependencyFailure, err, "challenge catalog unavailable")
	}
	s.cache.Set(ctx, key, total, s.ttl)
	return total, nil
}

// Invalidate drops every cached catalog entry.
func (s *CatalogService) Invalidate(ctx context.Context) error {
	return s.cache.Invalidate(ctx, "*")
}
