package repository

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/amankumarsingh77/media-fetcher/internal/jobs"
	"github.com/amankumarsingh77/media-fetcher/pkg/utils"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type awsRepository struct {
	client        *s3.Client
	preSignClient *s3.PresignClient
	bucket        string
}

func NewAwsRepository(awsClient *s3.Client, preSignClient *s3.PresignClient, bucket string) jobs.ArtifactStore {
	return &awsRepository{
		client:        awsClient,
		preSignClient: preSignClient,
		bucket:        bucket,
	}
}

func (a *awsRepository) Upload(ctx context.Context, key, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open artifact : %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat artifact : %w", err)
	}
	size := fi.Size()
	if contentType == "" {
		contentType = utils.ContentTypeFor(path)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &a.bucket,
		Key:           &key,
		ContentType:   &contentType,
		ContentLength: &size,
		Body:          f,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file : %w", err)
	}
	return nil
}

func (a *awsRepository) PresignURL(ctx context.Context, key, filename string, ttl time.Duration) (string, error) {
	disposition := fmt.Sprintf(`attachment; filename="%s"`, filename)
	req, err := a.preSignClient.PresignGetObject(
		ctx,
		&s3.GetObjectInput{
			Bucket:                     &a.bucket,
			Key:                        &key,
			ResponseContentDisposition: &disposition,
		},
		s3.WithPresignExpires(ttl),
	)
	if err != nil {
		return "", fmt.Errorf("failed to presign get object : %w", err)
	}
	return req.URL, nil
}

func (a *awsRepository) Remove(ctx context.Context, key string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &a.bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("failed to remove file : %w", err)
	}
	return nil
}
