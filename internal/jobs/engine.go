package jobs

import (
	"context"

	"github.com/amankumarsingh77/media-fetcher/internal/media"
	"github.com/amankumarsingh77/media-fetcher/internal/models"
)

type MediaEngine interface {
	ProbeTools(ctx context.Context) (models.ToolVersions, error)
	FetchMetadata(ctx context.Context, jobID, url string) (*models.Metadata, []models.Rendition, error)
	Download(ctx context.Context, job *models.Job, onProgress media.ProgressFunc) (string, error)
	ExtractAudio(ctx context.Context, jobID, input string, duration float64, onProgress media.ProgressFunc) (string, error)
	ConvertVideo(ctx context.Context, jobID, input string, maxHeight int, duration float64, onProgress media.ProgressFunc) (string, error)
	Cancel(jobID string) bool
	JobDir(jobID string) string
}
