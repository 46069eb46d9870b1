package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/config"
)

// ObjectFetcher resolves s3://bucket/key sources against the catalog's
// MinIO/S3 store, where the shop keeps its product documents.
type ObjectFetcher struct {
	client *minio.Client
}

// NewObjectFetcher creates a MinIO client from the Config.
func NewObjectFetcher(cfg *config.Config) (*ObjectFetcher, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &ObjectFetcher{client: client}, nil
}

// Fetch downloads the object addressed by an s3://bucket/key URL.
func (f *ObjectFetcher) Fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	bucket, key, err := splitObjectURL(sourceURL)
	if err != nil {
		return nil, &Error{Source: sourceURL, Err: err}
	}
	obj, err := f.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, &Error{Source: sourceURL, Err: fmt.Errorf("get object: %w", err)}
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, &Error{Source: sourceURL, Err: fmt.Errorf("read object: %w", err)}
	}
	return data, nil
}

func splitObjectURL(sourceURL string) (bucket, key string, err error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", "", err
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("object url must be s3://bucket/key, got %q", sourceURL)
	}
	return bucket, key, nil
}
