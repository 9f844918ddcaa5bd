package jobs

import (
	"context"

	"github.com/amankumarsingh77/media-fetcher/internal/models"
	"github.com/amankumarsingh77/media-fetcher/pkg/utils"
)

type UseCase interface {
	CreateJob(ctx context.Context, input *models.CreateJobInput) (*models.JobSnapshot, error)
	SelectRenditionAndStart(ctx context.Context, input *models.SelectRenditionInput) (*models.JobSnapshot, error)
	GetProgress(ctx context.Context, jobID string) (*models.JobSnapshot, error)
	GetAnalysis(ctx context.Context, jobID string) (*models.AnalysisResult, error)
	FetchCompletedFile(ctx context.Context, jobID string) (*models.Artifact, error)
	ListJobs(ctx context.Context, requesterKey string, pagination *utils.Pagination) (*models.JobList, error)
	CancelJob(ctx context.Context, jobID string) (bool, error)
	CancelAndCleanup(ctx context.Context, jobID string) error

	Health(ctx context.Context) *models.HealthReport
	Wait()
}

// Reclaimer removes everything a job owns: its process, directory, offloaded artifact and record.
type Reclaimer interface {
	Reclaim(ctx context.Context, job *models.Job) error
}
