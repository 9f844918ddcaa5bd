package http

import (
	"github.com/amankumarsingh77/media-fetcher/internal/jobs"
	"github.com/amankumarsingh77/media-fetcher/internal/middleware"
	"github.com/labstack/echo/v4"
)

func MapJobRoutes(jobsGroup *echo.Group, h jobs.Handler, mw *middleware.MiddlewareManager) {
	jobsGroup.POST("", h.CreateJob(), mw.RateLimiter())
	jobsGroup.GET("", h.ListJobs())
	jobsGroup.GET("/:job_id", h.GetJob())
	jobsGroup.GET("/:job_id/analysis", h.GetAnalysis())
	jobsGroup.POST("/:job_id/process", h.ProcessJob(), mw.RateLimiter())
	jobsGroup.GET("/:job_id/file", h.DownloadFile())
	jobsGroup.POST("/:job_id/cancel", h.CancelJob())
	jobsGroup.DELETE("/:job_id", h.DeleteJob())
}
