package jobs

import "github.com/labstack/echo/v4"

type Handler interface {
	CreateJob() echo.HandlerFunc
	ListJobs() echo.HandlerFunc
	GetJob() echo.HandlerFunc
	GetAnalysis() echo.HandlerFunc
	ProcessJob() echo.HandlerFunc
	DownloadFile() echo.HandlerFunc
	CancelJob() echo.HandlerFunc
	DeleteJob() echo.HandlerFunc
	Health() echo.HandlerFunc
}
