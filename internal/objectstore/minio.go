package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	PublicBaseURL string
}

type MinioDriver struct {
	cl            *minio.Client
	bucket        string
	publicBaseURL string
}

func NewMinioDriver(ctx context.Context, cfg MinioConfig) (*MinioDriver, error) {
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := cl.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := cl.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	base := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	return &MinioDriver{cl: cl, bucket: cfg.Bucket, publicBaseURL: base}, nil
}

func (d *MinioDriver) Put(ctx context.Context, key string, r io.Reader, size int64, contentType, disposition string) error {
	_, err := d.cl.PutObject(ctx, d.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:        contentType,
		ContentDisposition: disposition,
	})
	return err
}

// Remove: RemoveObject is already a no-op for missing keys.
func (d *MinioDriver) Remove(ctx context.Context, key string) error {
	return d.cl.RemoveObject(ctx, d.bucket, key, minio.RemoveObjectOptions{})
}

func (d *MinioDriver) URL(key string) string {
	return d.publicBaseURL + "/" + key
}

func (d *MinioDriver) Name() string { return "minio" }
