package jobs

import (
	"context"
	"time"
)

// ArtifactStore keeps an offloaded copy of finished artifacts.
type ArtifactStore interface {
	Upload(ctx context.Context, key, path, contentType string) error
	PresignURL(ctx context.Context, key, filename string, ttl time.Duration) (string, error)
	Remove(ctx context.Context, key string) error
}
