// Package blob stores job inputs and outputs in S3-compatible object
// storage. Objects are addressed by refs of the form "/bucket/key".
package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/keagan/cutforge/internal/config"
)

// ErrBadRef is returned for refs that do not name a bucket and key.
var ErrBadRef = errors.New("invalid object ref")

// Ref builds the ref for key in bucket.
func Ref(bucket, key string) string {
	return "/" + bucket + "/" + strings.TrimPrefix(key, "/")
}

// ParseRef splits a ref into bucket and key.
func ParseRef(ref string) (bucket, key string, err error) {
	trimmed := strings.TrimPrefix(ref, "/")
	bucket, key, ok := strings.Cut(trimmed, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadRef, ref)
	}
	return bucket, key, nil
}

// MinioStore implements jobs.BlobStore on minio-go.
type MinioStore struct {
	client *minio.Client
	logger zerolog.Logger
}

// NewMinio creates a client for the configured endpoint. It does not
// contact the server.
func NewMinio(cfg config.StorageConfig, logger zerolog.Logger) (*MinioStore, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("storage endpoint is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &MinioStore{
		client: client,
		logger: logger.With().Str("component", "blob").Logger(),
	}, nil
}

// EnsureBuckets creates any missing buckets.
func (s *MinioStore) EnsureBuckets(ctx context.Context, buckets ...string) error {
	for _, b := range buckets {
		exists, err := s.client.BucketExists(ctx, b)
		if err != nil {
			return fmt.Errorf("failed to check bucket %s: %w", b, err)
		}
		if exists {
			continue
		}
		if err := s.client.MakeBucket(ctx, b, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", b, err)
		}
		s.logger.Info().Str("bucket", b).Msg("created bucket")
	}
	return nil
}

// Get downloads ref to localPath.
func (s *MinioStore) Get(ctx context.Context, ref, localPath string) error {
	bucket, key, err := ParseRef(ref)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := s.client.FGetObject(ctx, bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("failed to download %s: %w", ref, err)
	}
	s.logger.Debug().Str("ref", ref).Dur("elapsed", time.Since(start)).Msg("downloaded object")
	return nil
}

// Put uploads localPath to bucket/key and returns its ref.
func (s *MinioStore) Put(ctx context.Context, bucket, key, localPath, contentType string) (string, error) {
	info, err := s.client.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", localPath, err)
	}
	ref := Ref(bucket, key)
	s.logger.Debug().Str("ref", ref).Int64("size", info.Size).Msg("uploaded object")
	return ref, nil
}

// PresignedURL returns a time-limited download link for ref.
func (s *MinioStore) PresignedURL(ctx context.Context, ref string, ttl time.Duration) (string, error) {
	bucket, key, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	u, err := s.client.PresignedGetObject(ctx, bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", ref, err)
	}
	return u.String(), nil
}
