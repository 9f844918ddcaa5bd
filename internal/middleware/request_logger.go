package middleware

import (
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
)

// RequestLoggerMiddleware logs one line per request with status, latency and request id.
func (mw *MiddlewareManager) RequestLoggerMiddleware() echo.MiddlewareFunc {
	return echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			if v.Error != nil || v.Status >= 500 {
				mw.logger.Errorf("%s %s %d %s RemoteIP: %s, RequestID: %s, ERROR: %v",
					v.Method, v.URI, v.Status, v.Latency, v.RemoteIP, v.RequestID, v.Error)
				return nil
			}
			mw.logger.Infof("%s %s %d %s RemoteIP: %s, RequestID: %s",
				v.Method, v.URI, v.Status, v.Latency, v.RemoteIP, v.RequestID)
			return nil
		},
	})
}
