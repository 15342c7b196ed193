package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/grit-challenge-api/api/swagger"
	"github.com/noah-isme/grit-challenge-api/internal/handler"
	"github.com/noah-isme/grit-challenge-api/internal/middleware"
	"github.com/noah-isme/grit-challenge-api/internal/repository"
	"github.com/noah-isme/grit-challenge-api/internal/repository/inmem"
	"github.com/noah-isme/grit-challenge-api/internal/service"
	"github.com/noah-isme/grit-challenge-api/pkg/cache"
	"github.com/noah-isme/grit-challenge-api/pkg/config"
	"github.com/noah-isme/grit-challenge-api/pkg/database"
	"github.com/noah-isme/grit-challenge-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/grit-challenge-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/grit-challenge-api/pkg/middleware/requestid"
	"github.com/noah-isme/grit-challenge-api/pkg/storage"
)

// @title GRIT Challenge API
// @version 1.0.0
// @description Character challenge workflow: evidence, reviews, points and family conversations
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	checks := map[string]handler.ReadinessCheck{}

	repos, db, err := openRepositories(ctx, cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to open storage", "driver", cfg.Storage.Driver, "error", err)
	}
	if db != nil {
		defer db.Close()
		checks["database"] = db.PingContext
	}

	metrics := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Catalog.CacheEnabled {
		redisClient, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("catalog cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
			cacheSvc = newCatalogCache(redisClient, metrics, cfg, logr)
		}
	}

	mediaStore, err := storage.NewLocalMediaStore(cfg.Media.StorageDir, cfg.Media.PublicBaseURL)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare media store", "error", err)
	}

	tokens := service.NewTokenService(service.TokenConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		Expiry: cfg.JWT.Expiration,
	})

	catalog := service.NewCatalogService(repos.Challenges, cacheSvc, cfg.Catalog.CacheTTL, logr)
	progress := service.NewProgressService(repos.Progress, catalog, logr)
	relay := service.NewConversationService(repos.Conversations, repos.Students, nil, logr)
	summaries := service.NewSummaryService(repos.Students, progress, catalog, logr)
	evidence := service.NewEvidenceService(service.EvidenceServiceDeps{
		Repo:     repos.Evidence,
		Students: repos.Students,
		Catalog:  catalog,
		Ledger:   progress,
		Relay:    relay,
		Media:    mediaStore,
		Policy: service.MediaPolicy{
			MaxImages:     cfg.Media.MaxImages,
			MaxVideos:     cfg.Media.MaxVideos,
			MaxImageBytes: cfg.Media.MaxImageBytes,
			MaxVideoBytes: cfg.Media.MaxVideoBytes,
		},
		Metrics: metrics,
		Logger:  logr,
	})
	reviews := service.NewReviewService(service.ReviewServiceDeps{
		Evidence:      repos.Evidence,
		Students:      repos.Students,
		Ledger:        progress,
		Catalog:       catalog,
		Relay:         relay,
		Summaries:     summaries,
		Metrics:       metrics,
		Logger:        logr,
		GritBitPoints: cfg.Review.GritBitPoints,
	})
	reports := service.NewReportService(repos.Students, summaries, catalog, nil, logr, cfg.Reports.Enabled)

	metricsHandler := handler.NewMetricsHandler(metrics, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics, "/metrics", "/health"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.Static("/media", mediaStore.BaseDir())

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), tokens, handler.Handlers{
		Challenges:    handler.NewChallengeHandler(catalog, progress, summaries),
		Evidence:      handler.NewEvidenceHandler(evidence, cfg.Media.MaxUploadBytes),
		Reviews:       handler.NewReviewHandler(reviews),
		Conversations: handler.NewConversationHandler(relay),
		Reports:       handler.NewReportHandler(reports),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	logr.Info("server stopped")
}

func openRepositories(ctx context.Context, cfg *config.Config, logr *zap.Logger) (service.Repositories, *sqlx.DB, error) {
	if cfg.Storage.Driver == config.StorageDriverMemory {
		logr.Warn("using in-memory storage; data does not survive restarts")
		store := inmem.New()
		return service.Repositories{
			Students:      store.Students,
			Challenges:    store.Challenges,
			Progress:      store.Progress,
			Evidence:      store.Evidence,
			Conversations: store.Conversations,
		}, nil, nil
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return service.Repositories{}, nil, err
	}
	return service.Repositories{
		Students:      repository.NewStudentRepository(db),
		Challenges:    repository.NewChallengeRepository(db),
		Progress:      repository.NewProgressRepository(db),
		Evidence:      repository.NewEvidenceRepository(db),
		Conversations: repository.NewConversationRepository(db),
	}, db, nil
}

func newCatalogCache(client *redis.Client, metrics *service.MetricsService, cfg *config.Config, logr *zap.Logger) *service.CacheService {
	repo := repository.NewCacheRepository(client, "catalog", logr)
	return service.NewCacheService(repo, metrics, cfg.Catalog.CacheTTL, logr, cfg.Catalog.CacheEnabled)
}
