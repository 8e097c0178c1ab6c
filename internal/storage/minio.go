package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/andresuchdata/frameio-archiver/internal/domain"
)

// minio rejects multipart parts below 5 MiB.
const minPartSize = 5 * 1024 * 1024

// ErrObjectNotFound is returned by StatObject for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// Config encapsulates the connection info for an S3-compatible store
// (Backblaze B2, MinIO, AWS S3).
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// MinioStore implements ObjectStorage on top of minio-go.
type MinioStore struct {
	client *minio.Client
}

// NewMinioStore builds a MinioStore. The endpoint may carry an http(s)
// scheme, which then overrides UseSSL.
func NewMinioStore(cfg Config) (*MinioStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint must be provided")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("storage credentials must be provided")
	}

	endpoint, secure := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)

	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &MinioStore{client: client}, nil
}

func normalizeEndpoint(raw string, useSSL bool) (string, bool) {
	endpoint := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "https://"), "/"), true
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "http://"), "/"), false
	}
	return strings.TrimSuffix(strings.TrimPrefix(endpoint, "//"), "/"), useSSL
}

// PutObjectStream streams r to bucket/key without buffering the whole payload.
func (s *MinioStore) PutObjectStream(ctx context.Context, bucket, key string, r io.Reader, size int64, opts PutOptions) (UploadInfo, error) {
	putOpts := minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	}
	if opts.PartSize > 0 {
		partSize := opts.PartSize
		if partSize < minPartSize {
			partSize = minPartSize
		}
		putOpts.PartSize = uint64(partSize)
	}
	if opts.Concurrency > 0 {
		putOpts.NumThreads = uint(opts.Concurrency)
		// upload parts of non-seekable streams in parallel, holding at most
		// NumThreads parts in memory
		putOpts.ConcurrentStreamParts = opts.Concurrency > 1
	}

	info, err := s.client.PutObject(ctx, bucket, key, r, size, putOpts)
	if err != nil {
		return UploadInfo{}, classifyError(fmt.Errorf("put %s/%s: %w", bucket, key, err), err)
	}

	return UploadInfo{
		Bucket:    info.Bucket,
		Key:       info.Key,
		ETag:      info.ETag,
		VersionID: info.VersionID,
		Size:      info.Size,
	}, nil
}

// StatObject looks up an existing object.
func (s *MinioStore) StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).StatusCode == http.StatusNotFound {
			return ObjectInfo{}, ErrObjectNotFound
		}
		return ObjectInfo{}, classifyError(fmt.Errorf("stat %s/%s: %w", bucket, key, err), err)
	}
	return ObjectInfo{
		Key:  info.Key,
		Size: info.Size,
		ETag: info.ETag,
	}, nil
}

// PresignGetObject returns a GET URL for bucket/key that stays valid for
// expiry. Signing is local; no request reaches the store.
func (s *MinioStore) PresignGetObject(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, bucket, key, expiry, url.Values{})
	if err != nil {
		return "", classifyError(fmt.Errorf("presign %s/%s: %w", bucket, key, err), err)
	}
	return u.String(), nil
}

// BucketExists is used at startup to fail fast on a misconfigured destination.
func (s *MinioStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return s.client.BucketExists(ctx, bucket)
}

func classifyError(wrapped, cause error) error {
	resp := minio.ToErrorResponse(cause)
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", domain.ErrPermanent, wrapped)
	case http.StatusNotFound:
		// missing bucket
		return fmt.Errorf("%w: %w", domain.ErrPermanent, wrapped)
	}
	return wrapped
}

var _ ObjectStorage = (*MinioStore)(nil)
