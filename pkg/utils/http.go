package utils

import (
	"github.com/labstack/echo/v4"
)

func GetRequestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

func GetIPAddress(c echo.Context) string {
	return c.Request().RemoteAddr
}

// GetRequesterKey identifies the caller for quota and rate accounting.
func GetRequesterKey(c echo.Context) string {
	if ip := c.RealIP(); ip != "" {
		return ip
	}
	return GetIPAddress(c)
}
