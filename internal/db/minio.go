package db

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// NewMinioClient connects to the blob store and makes sure bucket exists.
func NewMinioClient(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool, log *zap.Logger) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		log.Info("bucket created", zap.String("bucket", bucket))
	}

	log.Info("blob store connected", zap.String("endpoint", endpoint), zap.String("bucket", bucket))
	return client, nil
}
