package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/phrazzld/canonify/internal/config"
)

// S3 stores blobs in an S3-compatible bucket.
type S3 struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

// NewS3 creates an S3 backend. Static credentials are used when an access
// key is configured, otherwise the default AWS credential chain applies.
// A configured endpoint switches to path-style addressing for R2 and
// other compatible stores.
func NewS3(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*S3, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With("component", "storage", "backend", BackendS3, "bucket", cfg.Bucket),
	}, nil
}

// Put uploads data as the object key.
func (s *S3) Put(ctx context.Context, key string, data []byte) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(key)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %q: %w", key, err)
	}

	s.logger.Debug("object stored", "key", key, "size", len(data))
	return nil
}

// Get downloads the object key.
func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %q", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to download %q: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body for %q: %w", key, err)
	}
	return data, nil
}
