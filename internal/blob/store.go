// Package blob stores exported reports and detection snapshots in an
// S3-compatible bucket and hands out time-limited download links.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

const (
	ReportPrefix   = "reports"
	SnapshotPrefix = "predator_detections"
)

type objectAPI interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

type Store struct {
	client objectAPI
	bucket string
	expiry time.Duration
	log    *zap.Logger
}

func NewStore(client *minio.Client, bucket string, expiry time.Duration, log *zap.Logger) *Store {
	return newStore(client, bucket, expiry, log)
}

func newStore(client objectAPI, bucket string, expiry time.Duration, log *zap.Logger) *Store {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &Store{client: client, bucket: bucket, expiry: expiry, log: log}
}

// Upload writes data under key and returns the key.
func (s *Store) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	s.log.Debug("object uploaded", zap.String("key", key), zap.Int("bytes", len(data)))
	return key, nil
}

func (s *Store) PresignedURL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Share uploads a finished report and returns a download link for it.
func (s *Store) Share(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key, err := s.Upload(ctx, path.Join(ReportPrefix, name), contentType, data)
	if err != nil {
		return "", err
	}
	return s.PresignedURL(ctx, key)
}

// SaveSnapshot stores a detection frame under the owner's folder and returns
// its object key.
func (s *Store) SaveSnapshot(ctx context.Context, userID string, at time.Time, jpeg []byte) (string, error) {
	key := path.Join(SnapshotPrefix, userID, strconv.FormatInt(at.UnixMilli(), 10)+".jpg")
	return s.Upload(ctx, key, "image/jpeg", jpeg)
}
