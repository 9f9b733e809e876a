package mirror

import (
	"context"
	"fmt"
	"strings"

	"github.com/me/seqflow/pkg/model"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds connection settings for the lab object store.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// S3Fetcher fetches s3://bucket/key locators from an S3-compatible object
// store (the instrument upload buckets in a typical deployment).
type S3Fetcher struct {
	client *minio.Client
}

// NewS3Fetcher creates an S3Fetcher for the configured endpoint.
func NewS3Fetcher(cfg S3Config) (*S3Fetcher, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return &S3Fetcher{client: client}, nil
}

// Fetch downloads the object behind an s3:// locator to destPath.
func (f *S3Fetcher) Fetch(ctx context.Context, locator string, destPath string) error {
	bucket, key, err := splitS3Locator(locator)
	if err != nil {
		return &FetchError{Locator: locator, Err: err}
	}

	if err := f.client.FGetObject(ctx, bucket, key, destPath, minio.GetObjectOptions{}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return model.NewNotFoundError("remote file", locator)
		}
		return &FetchError{Locator: locator, Transient: true, Err: err}
	}
	return nil
}

func splitS3Locator(locator string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(locator, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 locator: %s", locator)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed s3 locator: %s", locator)
	}
	return bucket, key, nil
}
