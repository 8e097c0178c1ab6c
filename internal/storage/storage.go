package storage

import (
	"context"
	"io"
)

// ObjectInfo represents metadata for a remote file/object.
type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

// PutOptions controls how one object is streamed to the store. Payloads
// larger than PartSize are sent as multipart uploads with at most
// Concurrency parts in flight.
type PutOptions struct {
	PartSize    int64
	Concurrency int
	ContentType string
	Metadata    map[string]string
}

// UploadInfo is the store's confirmation of a completed write.
type UploadInfo struct {
	Bucket    string
	Key       string
	ETag      string
	VersionID string
	Size      int64
}

// ObjectStorage captures the S3-compatible operations the archiver needs.
type ObjectStorage interface {
	// PutObjectStream writes r under bucket/key. size may be -1 when unknown.
	PutObjectStream(ctx context.Context, bucket, key string, r io.Reader, size int64, opts PutOptions) (UploadInfo, error)
	// StatObject returns ErrObjectNotFound when the key does not exist.
	StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error)
}
