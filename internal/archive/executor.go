package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"time"

	"github.com/andresuchdata/frameio-archiver/internal/domain"
	"github.com/andresuchdata/frameio-archiver/internal/storage"
)

// Executor streams leaves from the source into one destination bucket.
type Executor struct {
	source       ContentSource
	store        storage.ObjectStorage
	bucket       string
	partSize     int64
	concurrency  int
	skipExisting bool
	retry        retrier
}

func NewExecutor(source ContentSource, store storage.ObjectStorage, bucket string, cfg Config) *Executor {
	cfg = cfg.withDefaults()
	return &Executor{
		source:       source,
		store:        store,
		bucket:       bucket,
		partSize:     cfg.PartSize,
		concurrency:  cfg.PartConcurrency,
		skipExisting: cfg.SkipExisting,
		retry:        newRetrier(cfg),
	}
}

// Backup copies one leaf to its destination path. It never panics on
// source or store errors; every failure is reported in the outcome.
func (e *Executor) Backup(ctx context.Context, leaf *domain.AssetNode, dest domain.DestinationPath) domain.BackupOutcome {
	start := time.Now()
	key := dest.String()
	outcome := domain.BackupOutcome{
		LeafID: leaf.ID,
		Name:   leaf.Name,
		Path:   key,
	}

	logger := loggerFrom(ctx).With().Str("leaf_id", leaf.ID).Str("key", key).Logger()

	if leaf.ContentRef == "" {
		return e.fail(outcome, start, domain.NewTransfer("open", leaf.ID, errors.New("asset has no content reference")))
	}

	if e.skipExisting {
		if info, err := e.store.StatObject(ctx, e.bucket, key); err == nil && info.Size == leaf.SizeBytes {
			outcome.Status = domain.OutcomeSkipped
			outcome.ETag = info.ETag
			outcome.Duration = time.Since(start)
			logger.Info().Msg("destination already holds this object, skipping")
			return outcome
		}
	}

	logger.Info().
		Str("size", domain.FormatBytes(leaf.SizeBytes, domain.FormatSize)).
		Msg("backing up")

	var uploaded storage.UploadInfo
	attempts, err := e.retry.do(ctx, "transfer", func(ctx context.Context) error {
		info, err := e.transferOnce(ctx, leaf, key)
		if err != nil {
			return err
		}
		uploaded = info
		return nil
	})
	outcome.Attempts = attempts
	if err != nil {
		if ctx.Err() == nil {
			err = domain.NewTransfer("backup", leaf.ID, err)
		}
		return e.fail(outcome, start, err)
	}

	outcome.Status = domain.OutcomeSucceeded
	outcome.ETag = uploaded.ETag
	outcome.VersionID = uploaded.VersionID
	outcome.Bytes = uploaded.Size
	outcome.Duration = time.Since(start)

	speed := float64(0)
	if secs := outcome.Duration.Seconds(); secs > 0 {
		speed = float64(outcome.Bytes) / secs
	}
	logger.Info().
		Str("size", domain.FormatBytes(outcome.Bytes, domain.FormatSize)).
		Str("speed", domain.FormatFloatBytes(speed, domain.FormatSpeed)).
		Int("attempts", attempts).
		Msg("backup complete")
	return outcome
}

func (e *Executor) transferOnce(ctx context.Context, leaf *domain.AssetNode, key string) (storage.UploadInfo, error) {
	body, err := e.source.OpenContentStream(ctx, leaf.ContentRef)
	if err != nil {
		return storage.UploadInfo{}, fmt.Errorf("open content: %w", err)
	}
	defer body.Close()

	size := leaf.SizeBytes
	if size < 0 {
		size = -1
	}

	counter := &countingReader{r: body}
	info, err := e.store.PutObjectStream(ctx, e.bucket, key, counter, size, storage.PutOptions{
		PartSize:    e.partSize,
		Concurrency: e.concurrency,
		ContentType: contentType(leaf.Name),
		Metadata: map[string]string{
			"source-asset-id": leaf.ID,
			"source-name":     url.QueryEscape(leaf.Name),
		},
	})
	if err != nil {
		return storage.UploadInfo{}, err
	}
	if info.Size == 0 {
		info.Size = counter.n
	}
	return info, nil
}

func (e *Executor) fail(outcome domain.BackupOutcome, start time.Time, err error) domain.BackupOutcome {
	outcome.Status = domain.OutcomeFailed
	outcome.ErrorKind = domain.KindOf(err)
	outcome.Error = err.Error()
	outcome.Duration = time.Since(start)
	return outcome
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
