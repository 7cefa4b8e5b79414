package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/chaos-io/bgremover/config"
	"github.com/chaos-io/bgremover/util"
)

const publicReadPolicy = `{
  "Version": "2012-10-17",
  "Statement": [{
    "Effect": "Allow",
    "Principal": {"AWS": ["*"]},
    "Action": ["s3:GetObject"],
    "Resource": ["arn:aws:s3:::%s/*"]
  }]
}`

type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewMinioStore 连接 minio，桶不存在时创建，并按配置开放匿名读
func NewMinioStore(ctx context.Context, cfg *config.MinioConfig) (*MinioStore, error) {
	util.Logger.Info("initializing minio client and bucket", zap.String("endpoint", cfg.Endpoint), zap.String("bucket", cfg.Bucket))

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot connect to minio %s: %w", cfg.Endpoint, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		util.Logger.Info("created bucket", zap.String("bucket", cfg.Bucket))
	}

	if cfg.MakePublic {
		if err := client.SetBucketPolicy(ctx, cfg.Bucket, fmt.Sprintf(publicReadPolicy, cfg.Bucket)); err != nil {
			return nil, fmt.Errorf("set bucket policy: %w", err)
		}
	}

	return &MinioStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: PublicBaseURL(cfg),
	}, nil
}

func (m *MinioStore) Upload(ctx context.Context, data []byte, contentType, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		util.Logger.Error("failed to upload file to minio", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("put object: %w", err)
	}

	return ObjectURL(m.baseURL, key), nil
}

// PublicBaseURL 对外地址，未配置时按 endpoint 和桶名拼接
func PublicBaseURL(cfg *config.MinioConfig) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
}

func ObjectURL(baseURL, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return baseURL + "/" + strings.Join(parts, "/")
}
