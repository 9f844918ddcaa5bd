package http

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/amankumarsingh77/media-fetcher/internal/jobs"
	"github.com/amankumarsingh77/media-fetcher/internal/models"
	"github.com/amankumarsingh77/media-fetcher/pkg/logger"
	"github.com/amankumarsingh77/media-fetcher/pkg/utils"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type jobsHandler struct {
	jobsUC jobs.UseCase
	logger logger.Logger
}

func NewJobsHandler(jobsUC jobs.UseCase, logger logger.Logger) jobs.Handler {
	return &jobsHandler{
		jobsUC: jobsUC,
		logger: logger,
	}
}

func (h *jobsHandler) CreateJob() echo.HandlerFunc {
	return func(c echo.Context) error {
		input := &models.CreateJobInput{}
		if err := c.Bind(input); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
		}
		input.RequesterKey = utils.GetRequesterKey(c)

		job, err := h.jobsUC.CreateJob(c.Request().Context(), input)
		if err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusAccepted, job)
	}
}

func (h *jobsHandler) ListJobs() echo.HandlerFunc {
	return func(c echo.Context) error {
		pagination, err := utils.GetPaginationFromCtx(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		list, err := h.jobsUC.ListJobs(c.Request().Context(), utils.GetRequesterKey(c), pagination)
		if err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, list)
	}
}

func (h *jobsHandler) GetJob() echo.HandlerFunc {
	return func(c echo.Context) error {
		job, err := h.jobsUC.GetProgress(c.Request().Context(), c.Param("job_id"))
		if err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, job)
	}
}

func (h *jobsHandler) GetAnalysis() echo.HandlerFunc {
	return func(c echo.Context) error {
		analysis, err := h.jobsUC.GetAnalysis(c.Request().Context(), c.Param("job_id"))
		if err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, analysis)
	}
}

func (h *jobsHandler) ProcessJob() echo.HandlerFunc {
	return func(c echo.Context) error {
		input := &models.SelectRenditionInput{}
		if err := c.Bind(input); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
		}
		input.JobID = c.Param("job_id")

		job, err := h.jobsUC.SelectRenditionAndStart(c.Request().Context(), input)
		if err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusAccepted, job)
	}
}

func (h *jobsHandler) DownloadFile() echo.HandlerFunc {
	return func(c echo.Context) error {
		artifact, err := h.jobsUC.FetchCompletedFile(c.Request().Context(), c.Param("job_id"))
		if err != nil {
			return h.errorResponse(c, err)
		}
		if artifact.URL != "" {
			return c.Redirect(http.StatusFound, artifact.URL)
		}
		defer artifact.Body.Close()

		header := c.Response().Header()
		header.Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": artifact.Filename}))
		if artifact.Size > 0 {
			header.Set(echo.HeaderContentLength, strconv.FormatInt(artifact.Size, 10))
		}
		return c.Stream(http.StatusOK, artifact.ContentType, artifact.Body)
	}
}

func (h *jobsHandler) CancelJob() echo.HandlerFunc {
	return func(c echo.Context) error {
		cancelled, err := h.jobsUC.CancelJob(c.Request().Context(), c.Param("job_id"))
		if err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, map[string]bool{"cancelled": cancelled})
	}
}

func (h *jobsHandler) DeleteJob() echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := h.jobsUC.CancelAndCleanup(c.Request().Context(), c.Param("job_id")); err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, map[string]string{"message": "Job deleted successfully"})
	}
}

func (h *jobsHandler) Health() echo.HandlerFunc {
	return func(c echo.Context) error {
		report := h.jobsUC.Health(c.Request().Context())
		if report.Status == "unavailable" {
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}

// errorResponse maps pipeline errors to status codes. Only the short message leaves the process.
func (h *jobsHandler) errorResponse(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrEngineUnavailable):
		status = http.StatusServiceUnavailable
	case models.IsKind(err, models.KindValidation):
		status = http.StatusBadRequest
	case models.IsKind(err, models.KindNotFound):
		status = http.StatusNotFound
	case models.IsKind(err, models.KindQuota):
		status = http.StatusTooManyRequests
	case models.IsKind(err, models.KindCancelled):
		status = http.StatusConflict
	}
	if status >= http.StatusInternalServerError {
		h.logger.Errorf("%s %s RequestID: %s, ERROR: %v", c.Request().Method, c.Path(), utils.GetRequestID(c), err)
	}
	return c.JSON(status, map[string]string{"error": models.PublicMessage(err)})
}
