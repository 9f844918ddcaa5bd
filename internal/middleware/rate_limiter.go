package middleware

import (
	"net/http"
	"time"

	"github.com/amankumarsingh77/media-fetcher/pkg/utils"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const rateLimiterIdleExpiry = 3 * time.Minute

// RateLimiter returns the per-requester token bucket shared by every route that uses it.
func (mw *MiddlewareManager) RateLimiter() echo.MiddlewareFunc {
	return mw.rateLimiter
}

func (mw *MiddlewareManager) newRateLimiter() echo.MiddlewareFunc {
	if mw.cfg.Server.RateLimit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	burst := mw.cfg.Server.RateBurst
	if burst <= 0 {
		burst = 1
	}
	store := echoMiddleware.NewRateLimiterMemoryStoreWithConfig(echoMiddleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(mw.cfg.Server.RateLimit),
		Burst:     burst,
		ExpiresIn: rateLimiterIdleExpiry,
	})
	return echoMiddleware.RateLimiterWithConfig(echoMiddleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return utils.GetRequesterKey(c), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "Unable to identify requester"})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			mw.logger.Warnf("RateLimiter - requester %s throttled, RequestID: %s", identifier, utils.GetRequestID(c))
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "Too many requests"})
		},
	})
}
