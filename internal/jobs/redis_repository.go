package jobs

import (
	"context"

	"github.com/amankumarsingh77/media-fetcher/internal/models"
)

// SnapshotPublisher mirrors job snapshots to an external store for other readers.
type SnapshotPublisher interface {
	Publish(ctx context.Context, snapshot *models.JobSnapshot) error
	Remove(ctx context.Context, jobID string) error
}
