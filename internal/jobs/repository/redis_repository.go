package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amankumarsingh77/media-fetcher/internal/jobs"
	"github.com/amankumarsingh77/media-fetcher/internal/models"
	"github.com/go-redis/redis/v8"
)

type jobRedisRepo struct {
	redisClient *redis.Client
	prefix      string
	channel     string
	ttl         time.Duration
}

// NewJobRedisRepo mirrors snapshots under prefix+id with ttl and announces them on channel.
func NewJobRedisRepo(redisClient *redis.Client, prefix, channel string, ttl time.Duration) jobs.SnapshotPublisher {
	return &jobRedisRepo{
		redisClient: redisClient,
		prefix:      prefix,
		channel:     channel,
		ttl:         ttl,
	}
}

func (j *jobRedisRepo) Publish(ctx context.Context, snapshot *models.JobSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	pipe := j.redisClient.Pipeline()
	pipe.Set(ctx, j.prefix+snapshot.ID, data, j.ttl)
	if j.channel != "" {
		pipe.Publish(ctx, j.channel, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

func (j *jobRedisRepo) Remove(ctx context.Context, jobID string) error {
	if err := j.redisClient.Del(ctx, j.prefix+jobID).Err(); err != nil {
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}
	return nil
}

type nopPublisher struct{}

// NewNopPublisher is used when the Redis mirror is disabled.
func NewNopPublisher() jobs.SnapshotPublisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, *models.JobSnapshot) error { return nil }

func (nopPublisher) Remove(context.Context, string) error { return nil }
