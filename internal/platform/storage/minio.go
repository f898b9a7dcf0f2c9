package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/phrazzld/canonify/internal/config"
)

const minioNoSuchKey = "NoSuchKey"

// Minio stores blobs as objects in a MinIO bucket.
type Minio struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewMinio connects to cfg.Endpoint and creates the bucket if it is missing.
func NewMinio(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*Minio, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "storage", "backend", BackendMinio, "bucket", cfg.Bucket)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.Bucket, err)
		}
		logger.Info("bucket created")
	}

	return &Minio{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

// Put uploads data as the object key.
func (m *Minio) Put(ctx context.Context, key string, data []byte) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}

	_, err = m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType(key)})
	if err != nil {
		return fmt.Errorf("failed to upload %q: %w", key, err)
	}

	m.logger.Debug("object stored", "key", key, "size", len(data))
	return nil
}

// Get downloads the object key.
func (m *Minio) Get(ctx context.Context, key string) ([]byte, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.mapError(key, err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, m.mapError(key, err)
	}
	return data, nil
}

func (m *Minio) mapError(key string, err error) error {
	if minio.ToErrorResponse(err).Code == minioNoSuchKey {
		return fmt.Errorf("%w: %q", ErrObjectNotFound, key)
	}
	return fmt.Errorf("failed to download %q: %w", key, err)
}
