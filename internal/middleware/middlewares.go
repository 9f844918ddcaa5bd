package middleware

import (
	"github.com/amankumarsingh77/media-fetcher/internal/config"
	"github.com/amankumarsingh77/media-fetcher/pkg/logger"
	"github.com/labstack/echo/v4"
)

type MiddlewareManager struct {
	cfg         *config.Config
	origins     []string
	logger      logger.Logger
	rateLimiter echo.MiddlewareFunc
}

// Middleware manager constructor
func NewMiddlewareManager(cfg *config.Config, origins []string, logger logger.Logger) *MiddlewareManager {
	mw := &MiddlewareManager{cfg: cfg, origins: origins, logger: logger}
	mw.rateLimiter = mw.newRateLimiter()
	return mw
}
