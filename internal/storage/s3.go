package storage

import (
	"context"
	"fmt"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mohammed-shakir/overture-extract/internal/core/config"
)

// NewS3Client builds an S3-compatible client. Empty keys sign requests
// anonymously, which is enough for public buckets.
func NewS3Client(cfg config.S3Cfg) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return cli, nil
}

type S3Opener struct {
	client *minio.Client
}

func NewS3Opener(client *minio.Client) *S3Opener {
	return &S3Opener{client: client}
}

// Open stats the object up front so a bad path fails here and not on the
// first read.
func (o *S3Opener) Open(ctx context.Context, location string) (Object, error) {
	bucket, key, err := splitBucketKey(location)
	if err != nil {
		return nil, err
	}
	obj, err := o.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", location, err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		return nil, fmt.Errorf("stat %s: %w", location, err)
	}
	return obj, nil
}
