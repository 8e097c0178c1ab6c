package frameio

import (
	"time"

	"github.com/andresuchdata/frameio-archiver/internal/domain"
)

// asset mirrors the v2 asset payload fields the archiver reads.
type asset struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Filesize   int64     `json:"filesize"`
	Original   string    `json:"original"`
	ProjectID  string    `json:"project_id"`
	ParentID   string    `json:"parent_id"`
	ItemCount  int       `json:"item_count"`
	Version    int       `json:"version"`
	InsertedAt time.Time `json:"inserted_at"`
}

// createAsset is the body of a children POST.
type createAsset struct {
	Name     string       `json:"name"`
	Type     string       `json:"type"`
	Filesize int64        `json:"filesize"`
	Source   *assetSource `json:"source,omitempty"`
}

type assetSource struct {
	URL string `json:"url"`
}

type project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	RootAssetID string `json:"root_asset_id"`
	Storage     int64  `json:"storage"`
	FolderCount int    `json:"folder_count"`
	FileCount   int    `json:"file_count"`
}

func (a asset) toNode() (*domain.AssetNode, error) {
	kind, err := domain.ParseKind(a.Type)
	if err != nil {
		return nil, err
	}
	return &domain.AssetNode{
		ID:         a.ID,
		Kind:       kind,
		Name:       a.Name,
		SizeBytes:  a.Filesize,
		ContentRef: a.Original,
		ProjectID:  a.ProjectID,
		ParentID:   a.ParentID,
		ItemCount:  a.ItemCount,
		Version:    a.Version,
		CreatedAt:  a.InsertedAt,
	}, nil
}

func (p project) toProject() *domain.Project {
	return &domain.Project{
		ID:           p.ID,
		Name:         p.Name,
		RootAssetID:  p.RootAssetID,
		StorageBytes: p.Storage,
		FolderCount:  p.FolderCount,
		FileCount:    p.FileCount,
	}
}
