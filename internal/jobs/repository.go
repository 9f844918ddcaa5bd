package jobs

import (
	"time"

	"github.com/amankumarsingh77/media-fetcher/internal/models"
)

// Repository is the Job Store. Every method returns copies; callers never hold live records.
type Repository interface {
	Create(url, platform, requesterKey string) (*models.Job, error)
	CreateWithinQuota(url, platform, requesterKey string, limit int) (*models.Job, error)
	Get(id string) (*models.Job, error)
	Update(id string, fn func(job *models.Job)) (*models.Job, error)
	UpdateStage(id string, stage models.Stage, status models.StageStatus, message string) (*models.Job, error)
	SetStageProgress(id string, stage models.Stage, percent float64) (*models.Job, error)
	Transition(id string, event models.Event) (*models.Job, error)
	Delete(id string) error
	ListByRequester(requesterKey string) []*models.Job
	ListExpired(expiry time.Duration) []*models.Job
	Exists(id string) bool
	CountActive() int
}
