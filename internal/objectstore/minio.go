package objectstore

import (
	"context"
	"errors"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/billflow/billflow/internal/config"
)

type minioStore struct {
	client *minio.Client
	log    *zap.Logger
}

// NewMinio connects to the configured S3-compatible endpoint.
func NewMinio(cfg config.Config, log *zap.Logger) (Store, error) {
	client, err := minio.New(cfg.Store.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Store.AccessKey, cfg.Store.SecretKey, ""),
		Secure: cfg.Store.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &minioStore{
		client: client,
		log:    log.Named("objectstore"),
	}, nil
}

func (m *minioStore) EnsureBucket(ctx context.Context, username string) error {
	bucket := BucketName(username)
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return err
	}
	m.log.Info("bucket created", zap.String("bucket", bucket))
	return nil
}

func (m *minioStore) Put(ctx context.Context, username, name string, r io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, BucketName(username), name, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (m *minioStore) Get(ctx context.Context, username, name string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, BucketName(username), name, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; a missing key only surfaces on first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

func (m *minioStore) Delete(ctx context.Context, username, name string) error {
	return m.client.RemoveObject(ctx, BucketName(username), name, minio.RemoveObjectOptions{})
}

func (m *minioStore) List(ctx context.Context, username string) ([]ObjectInfo, error) {
	var infos []ObjectInfo
	for obj := range m.client.ListObjects(ctx, BucketName(username), minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		infos = append(infos, ObjectInfo{
			Name:         obj.Key,
			SizeBytes:    obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return infos, nil
}

func (m *minioStore) TotalBytes(ctx context.Context, username string) (int64, error) {
	infos, err := m.List(ctx, username)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, info := range infos {
		total += info.SizeBytes
	}
	return total, nil
}

// IsNoSuchKey reports whether the backend said the object does not exist.
func IsNoSuchKey(err error) bool {
	if errors.Is(err, ErrKeyNotFound) {
		return true
	}
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
}
