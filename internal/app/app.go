// Package app wires configuration into a running archive service.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/frameio-archiver/internal/archive"
	"github.com/andresuchdata/frameio-archiver/internal/cache"
	"github.com/andresuchdata/frameio-archiver/internal/config"
	"github.com/andresuchdata/frameio-archiver/internal/drive"
	"github.com/andresuchdata/frameio-archiver/internal/frameio"
	"github.com/andresuchdata/frameio-archiver/internal/repository/postgres"
	"github.com/andresuchdata/frameio-archiver/internal/storage"
)

// App holds the wired components and the resources to release on Close.
type App struct {
	Source  archive.Source
	Store   *storage.MinioStore
	Service *archive.Service
	// Importer is nil when the source cannot receive assets.
	Importer *archive.Importer

	closers []func() error
}

// New builds every component the configuration selects.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	source, err := NewSource(cfg.Source)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewMinioStore(storage.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Region:    cfg.Storage.Region,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	a := &App{Source: source, Store: store}

	reports, err := a.newReportStore(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Service = archive.NewService(source, store, reports, archive.Destinations{
		Default: cfg.Storage.Bucket,
		Aliases: cfg.Storage.Destinations,
	}, ArchiveConfig(cfg))
	a.Importer = NewImporter(cfg, source, store)

	return a, nil
}

// NewImporter builds the import direction when the source supports it.
func NewImporter(cfg *config.Config, source archive.Source, store archive.ObjectLinker) *archive.Importer {
	target, ok := source.(archive.ImportTarget)
	if !ok {
		log.Info().Str("provider", cfg.Source.Provider).Msg("source cannot receive assets, import disabled")
		return nil
	}
	return archive.NewImporter(target, store, archive.ImportConfig{
		FolderName:    cfg.Archive.ImportFolder,
		KeyPrefix:     cfg.Storage.UploadPath,
		LinkExpiry:    cfg.Archive.ImportLinkExpiry,
		RetryAttempts: cfg.Archive.RetryAttempts,
		RetryBackoff:  cfg.Archive.RetryBackoff,
	})
}

// NewSource builds the tree provider named by cfg.Provider.
func NewSource(cfg config.SourceConfig) (archive.Source, error) {
	switch cfg.Provider {
	case "frameio", "":
		client, err := frameio.NewClient(frameio.Config{
			Token:             cfg.FrameioToken,
			BaseURL:           cfg.FrameioBaseURL,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Timeout:           cfg.HTTPTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init frame.io client: %w", err)
		}
		return client, nil
	case "drive":
		svc, err := drive.NewService(cfg.DriveCredentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("init google drive: %w", err)
		}
		return svc, nil
	}
	return nil, fmt.Errorf("unknown source provider %q", cfg.Provider)
}

// ArchiveConfig maps the environment settings onto the pipeline config.
func ArchiveConfig(cfg *config.Config) archive.Config {
	return archive.Config{
		WorkerCount:     cfg.Archive.WorkerCount,
		MaxTransfers:    cfg.Archive.MaxTransfers,
		RetryAttempts:   cfg.Archive.RetryAttempts,
		RetryBackoff:    cfg.Archive.RetryBackoff,
		VersionPolicy:   archive.VersionPolicy(cfg.Archive.VersionPolicy),
		PathPolicy:      archive.PathPolicy(cfg.Archive.PathPolicy),
		KeyPrefix:       cfg.Storage.UploadPath,
		MaxDepth:        cfg.Archive.MaxDepth,
		SkipExisting:    cfg.Archive.SkipExisting,
		PartSize:        cfg.Storage.PartSizeBytes,
		PartConcurrency: cfg.Storage.MaxConcurrency,
		JobTimeout:      cfg.Archive.JobTimeout,
	}
}

func (a *App) newReportStore(ctx context.Context, cfg *config.Config) (archive.ReportStore, error) {
	switch cfg.Report.Store {
	case "redis":
		rc, err := cache.NewReportCache(ctx, cfg.Cache, time.Duration(cfg.Report.TTLSeconds)*time.Second)
		if err != nil {
			return nil, fmt.Errorf("init redis report cache: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		log.Info().Msg("job reports stored in redis")
		return rc, nil
	case "postgres":
		db, err := postgres.NewDB(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		repo := postgres.NewReportRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		log.Info().Str("driver", cfg.Database.Driver).Msg("job reports stored in postgres")
		return repo, nil
	}
	return archive.NewMemoryReportStore(), nil
}

// VerifyBuckets checks that every configured destination bucket exists.
func (a *App) VerifyBuckets(ctx context.Context, cfg *config.Config) error {
	seen := make(map[string]bool)
	buckets := []string{cfg.Storage.Bucket}
	for _, bucket := range cfg.Storage.Destinations {
		buckets = append(buckets, bucket)
	}

	for _, bucket := range buckets {
		if bucket == "" || seen[bucket] {
			continue
		}
		seen[bucket] = true

		ok, err := a.Store.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !ok {
			return fmt.Errorf("destination bucket %s does not exist", bucket)
		}
	}
	return nil
}

var (
	_ archive.ImportTarget = (*frameio.Client)(nil)
	_ archive.ObjectLinker = (*storage.MinioStore)(nil)
)

// Close releases report store connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
