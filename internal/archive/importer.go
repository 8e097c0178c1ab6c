package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/frameio-archiver/internal/domain"
	"github.com/andresuchdata/frameio-archiver/internal/storage"
)

// ImportTarget is a remote asset service that can receive new assets.
type ImportTarget interface {
	TreeProvider
	// EnsureFolder returns the named folder under parentID, creating it if needed.
	EnsureFolder(ctx context.Context, parentID, name string) (*domain.AssetNode, error)
	// CreateAssetFromURL creates a file that the service fetches from sourceURL.
	CreateAssetFromURL(ctx context.Context, parentID, name, sourceURL string, size int64) (*domain.AssetNode, error)
}

// ObjectLinker hands out time-limited read links to stored objects.
type ObjectLinker interface {
	StatObject(ctx context.Context, bucket, key string) (storage.ObjectInfo, error)
	PresignGetObject(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

// ImportConfig configures the import direction.
type ImportConfig struct {
	// FolderName is created under the project root to receive imports.
	FolderName string
	// KeyPrefix is the export key prefix, stripped when naming the new asset.
	KeyPrefix     string
	LinkExpiry    time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
}

// ImportRequest names one stored object and the project to import it into.
// The project is taken from ProjectID, or from the asset ResourceID belongs to.
type ImportRequest struct {
	ResourceID string
	ProjectID  string
	Bucket     string
	Key        string
}

// ImportResult describes the asset created for an import.
type ImportResult struct {
	Bucket    string `json:"bucket" yaml:"bucket"`
	Key       string `json:"key" yaml:"key"`
	Bytes     int64  `json:"bytes" yaml:"bytes"`
	ProjectID string `json:"project_id" yaml:"project_id"`
	FolderID  string `json:"folder_id" yaml:"folder_id"`
	AssetID   string `json:"asset_id" yaml:"asset_id"`
	AssetName string `json:"asset_name" yaml:"asset_name"`
}

// Importer copies single stored objects back into the asset service by
// handing it a pre-signed link. The service downloads the object itself.
type Importer struct {
	target ImportTarget
	store  ObjectLinker
	folder string
	prefix string
	expiry time.Duration
	retry  retrier
}

func NewImporter(target ImportTarget, store ObjectLinker, cfg ImportConfig) *Importer {
	folder := strings.TrimSpace(cfg.FolderName)
	if folder == "" {
		folder = "Imports"
	}
	expiry := cfg.LinkExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &Importer{
		target: target,
		store:  store,
		folder: folder,
		prefix: strings.Join(SplitKeyPrefix(cfg.KeyPrefix), "/"),
		expiry: expiry,
		retry:  retrier{attempts: cfg.RetryAttempts, backoff: cfg.RetryBackoff},
	}
}

// FolderName is the folder imports land in.
func (im *Importer) FolderName() string {
	return im.folder
}

// Import validates the object, makes sure the import folder exists and
// creates the asset from a pre-signed link.
func (im *Importer) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	key := strings.TrimPrefix(strings.TrimSpace(req.Key), "/")
	if key == "" {
		return nil, domain.NewValidation("object key is required")
	}
	if strings.HasSuffix(key, "/") {
		return nil, domain.NewValidation("only single objects can be imported")
	}
	if req.Bucket == "" {
		return nil, domain.NewValidation("bucket is required")
	}

	info, err := im.store.StatObject(ctx, req.Bucket, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, domain.NewNotFound("stat_object", key, fmt.Errorf("%s/%s", req.Bucket, key))
	}
	if err != nil {
		return nil, domain.NewTransfer("stat_object", key, err)
	}

	project, err := im.project(ctx, req)
	if err != nil {
		return nil, err
	}

	var folder *domain.AssetNode
	_, err = im.retry.do(ctx, "ensure_folder", func(ctx context.Context) error {
		var err error
		folder, err = im.target.EnsureFolder(ctx, project.RootAssetID, im.folder)
		return err
	})
	if err != nil {
		return nil, domain.NewTransientFetch("ensure_folder", project.RootAssetID, err)
	}

	link, err := im.store.PresignGetObject(ctx, req.Bucket, key, im.expiry)
	if err != nil {
		return nil, domain.NewTransfer("presign", key, err)
	}

	// not retried: a repeated create would add a duplicate asset
	name := im.AssetName(key)
	created, err := im.target.CreateAssetFromURL(ctx, folder.ID, name, link, info.Size)
	if err != nil {
		return nil, domain.NewTransfer("create_asset", key, err)
	}

	log.Info().
		Str("bucket", req.Bucket).
		Str("key", key).
		Str("project", project.Name).
		Str("asset_id", created.ID).
		Str("size", domain.FormatBytes(info.Size, domain.FormatSize)).
		Msg("import submitted")

	return &ImportResult{
		Bucket:    req.Bucket,
		Key:       key,
		Bytes:     info.Size,
		ProjectID: project.ID,
		FolderID:  folder.ID,
		AssetID:   created.ID,
		AssetName: name,
	}, nil
}

// AssetName derives the new asset's name from an object key: the export
// prefix is dropped and the last segment is kept.
func (im *Importer) AssetName(key string) string {
	if im.prefix != "" {
		key = strings.TrimPrefix(strings.TrimPrefix(key, im.prefix), "/")
	}
	return path.Base(key)
}

func (im *Importer) project(ctx context.Context, req ImportRequest) (*domain.Project, error) {
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		if req.ResourceID == "" {
			return nil, domain.NewValidation("resource or project id is required")
		}
		var asset *domain.AssetNode
		_, err := im.retry.do(ctx, "lookup_asset", func(ctx context.Context) error {
			var err error
			asset, err = im.target.LookupAsset(ctx, req.ResourceID)
			return err
		})
		if err != nil {
			return nil, lookupFailure("lookup_asset", req.ResourceID, err)
		}
		projectID = asset.ProjectID
	}

	var project *domain.Project
	_, err := im.retry.do(ctx, "lookup_project", func(ctx context.Context) error {
		var err error
		project, err = im.target.LookupProject(ctx, projectID)
		return err
	})
	if err != nil {
		return nil, lookupFailure("lookup_project", projectID, err)
	}
	if project.RootAssetID == "" {
		return nil, domain.NewNotFound("lookup_project", projectID, errors.New("project has no root folder"))
	}
	return project, nil
}

func lookupFailure(op, id string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewNotFound(op, id, err)
	}
	return domain.NewTransientFetch(op, id, err)
}
