package app

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/andresuchdata/frameio-archiver/internal/archive"
	"github.com/andresuchdata/frameio-archiver/internal/config"
	"github.com/andresuchdata/frameio-archiver/internal/domain"
	"github.com/andresuchdata/frameio-archiver/internal/frameio"
)

func TestArchiveConfig(t *testing.T) {
	cfg := &config.Config{
		Storage: config.StorageConfig{PartSizeBytes: 8 << 20, MaxConcurrency: 3, UploadPath: "exports"},
		Archive: config.ArchiveConfig{
			WorkerCount:   2,
			MaxTransfers:  6,
			RetryAttempts: 4,
			RetryBackoff:  time.Second,
			VersionPolicy: "latest",
			PathPolicy:    "verbatim",
			MaxDepth:      10,
			SkipExisting:  true,
		},
	}

	got := ArchiveConfig(cfg)
	if got.VersionPolicy != archive.VersionLatest || got.PathPolicy != archive.PathVerbatim {
		t.Fatalf("unexpected policies %+v", got)
	}
	if got.KeyPrefix != "exports" {
		t.Fatalf("expected key prefix from the upload path, got %q", got.KeyPrefix)
	}
	if got.PartSize != 8<<20 || got.PartConcurrency != 3 || got.WorkerCount != 2 || !got.SkipExisting {
		t.Fatalf("unexpected config %+v", got)
	}
}

func TestNewSource(t *testing.T) {
	src, err := NewSource(config.SourceConfig{Provider: "frameio", FrameioToken: "t"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := src.(*frameio.Client); !ok {
		t.Fatalf("expected a frame.io client, got %T", src)
	}

	if _, err := NewSource(config.SourceConfig{Provider: "frameio"}); err == nil {
		t.Fatalf("expected error without a token")
	}
	if _, err := NewSource(config.SourceConfig{Provider: "drive", DriveCredentialsJSON: "{"}); err == nil {
		t.Fatalf("expected error for malformed drive credentials")
	}
	if _, err := NewSource(config.SourceConfig{Provider: "ftp"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

// readOnlySource lists and downloads but cannot create assets.
type readOnlySource struct{}

func (readOnlySource) LookupAsset(context.Context, string) (*domain.AssetNode, error) {
	return nil, domain.ErrNotFound
}

func (readOnlySource) LookupProject(context.Context, string) (*domain.Project, error) {
	return nil, domain.ErrNotFound
}

func (readOnlySource) ListChildren(context.Context, string) ([]*domain.AssetNode, error) {
	return nil, nil
}

func (readOnlySource) OpenContentStream(context.Context, string) (io.ReadCloser, error) {
	return nil, domain.ErrNotFound
}

func TestNewImporter(t *testing.T) {
	cfg := &config.Config{Archive: config.ArchiveConfig{ImportFolder: "From B2"}}

	client, err := frameio.NewClient(frameio.Config{Token: "t"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	im := NewImporter(cfg, client, nil)
	if im == nil || im.FolderName() != "From B2" {
		t.Fatalf("expected an importer for frame.io, got %+v", im)
	}

	if im := NewImporter(cfg, readOnlySource{}, nil); im != nil {
		t.Fatalf("expected no importer for a read-only source")
	}
}
