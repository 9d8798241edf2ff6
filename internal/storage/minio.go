package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dietchse/basic-login-ap/internal/config"
	"github.com/dietchse/basic-login-ap/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// AuditArchive keeps exported audit logs in an S3-compatible bucket.
type AuditArchive struct {
	client *minio.Client
	bucket string
}

type ArchivedObject struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

func NewAuditArchive(cfg config.MinIOConfig) (*AuditArchive, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("minio endpoint is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("minio bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	return &AuditArchive{client: client, bucket: cfg.Bucket}, nil
}

func (a *AuditArchive) Bucket() string {
	return a.bucket
}

func (a *AuditArchive) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := a.client.PutObject(ctx, a.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		logger.Error("archive_upload_failed", err, map[string]interface{}{
			"object_name": objectName,
			"size":        size,
			"bucket":      a.bucket,
		})
		return err
	}
	logger.Info("archive_upload_success", map[string]interface{}{
		"object_name": objectName,
		"size":        size,
		"bucket":      a.bucket,
	})
	return nil
}

// List returns the archived objects under prefix, oldest key first.
func (a *AuditArchive) List(ctx context.Context, prefix string) ([]ArchivedObject, error) {
	var objects []ArchivedObject
	for info := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, info.Err
		}
		objects = append(objects, ArchivedObject{
			Name:         info.Key,
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	return objects, nil
}

func (a *AuditArchive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed creating bucket %s: %w", a.bucket, err)
	}
	return nil
}
