package server

import (
	"context"
	"time"

	"github.com/amankumarsingh77/media-fetcher/internal/cleanup"
	"github.com/amankumarsingh77/media-fetcher/internal/jobs"
	jobsHttp "github.com/amankumarsingh77/media-fetcher/internal/jobs/delivery/http"
	jobsRepository "github.com/amankumarsingh77/media-fetcher/internal/jobs/repository"
	jobsUsecase "github.com/amankumarsingh77/media-fetcher/internal/jobs/usecase"
	"github.com/amankumarsingh77/media-fetcher/internal/media"
	"github.com/amankumarsingh77/media-fetcher/internal/middleware"
	"github.com/labstack/echo/v4"
)

type backgroundServices struct {
	scheduler *cleanup.Scheduler
	jobsUC    jobs.UseCase
}

// MapHandlers builds every service and registers the routes. Pipeline goroutines run
// under baseCtx; cancelling it terminates their tools.
func (s *Server) MapHandlers(baseCtx context.Context, e *echo.Echo) (*backgroundServices, error) {
	jobsRepo := jobsRepository.NewMemoryRepo()
	publisher := jobsRepository.NewNopPublisher()
	if s.redisClient != nil {
		ttl := time.Duration(s.cfg.Cleanup.ExpiryMinutes) * time.Minute
		publisher = jobsRepository.NewJobRedisRepo(s.redisClient, s.cfg.Redis.SnapshotPrefix, s.cfg.Redis.SnapshotChannel, ttl)
	}
	var artifacts jobs.ArtifactStore
	if s.s3Client != nil && s.preSignClient != nil {
		artifacts = jobsRepository.NewAwsRepository(s.s3Client, s.preSignClient, s.cfg.S3.Bucket)
	}

	engine := media.NewEngine(s.cfg, media.NewExecRunner(), s.logger)
	scheduler := cleanup.NewScheduler(s.cfg, jobsRepo, engine, artifacts, publisher, s.logger)
	jobsUC := jobsUsecase.NewJobsUseCase(baseCtx, s.cfg, jobsRepo, engine, publisher, artifacts, scheduler, s.logger)

	jobsHandlers := jobsHttp.NewJobsHandler(jobsUC, s.logger)
	mw := middleware.NewMiddlewareManager(s.cfg, s.cfg.Server.AllowOrigins, s.logger)

	s.useGlobalMiddleware(e)
	e.Use(mw.CORS())
	e.Use(mw.RequestLoggerMiddleware())

	v1 := e.Group("/api/v1")
	health := v1.Group("/health")
	jobsGroup := v1.Group("/jobs")

	jobsHttp.MapJobRoutes(jobsGroup, jobsHandlers, mw)
	health.GET("", jobsHandlers.Health())

	return &backgroundServices{scheduler: scheduler, jobsUC: jobsUC}, nil
}
