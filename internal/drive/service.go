package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/andresuchdata/frameio-archiver/internal/domain"
)

const (
	folderMimeType   = "application/vnd.google-apps.folder"
	nativeMimePrefix = "application/vnd.google-apps."
	myDriveID        = "root"
	myDriveName      = "My Drive"
	fileFields       = "id, name, mimeType, size, parents, driveId, createdTime, version"
	listPageSize     = 1000
)

// Service exposes Google Drive as an asset tree. Shared drives (and My
// Drive, id "root") are projects; Drive folders are folders; binary files
// are files. Native Google documents cannot be downloaded and are reported
// with no kind.
type Service struct {
	srv *drive.Service
}

func NewService(credentialsJSON string) (*Service, error) {
	// Parse credentials from JSON
	config, err := google.JWTConfigFromJSON(
		[]byte(credentialsJSON),
		drive.DriveReadonlyScope,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	// Create the JWT client
	client := config.Client(context.Background())

	// Create the Drive service
	srv, err := drive.NewService(context.Background(), option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}

	return &Service{srv: srv}, nil
}

// LookupAsset fetches a single file or folder.
func (s *Service) LookupAsset(ctx context.Context, id string) (*domain.AssetNode, error) {
	f, err := s.srv.Files.Get(id).
		SupportsAllDrives(true).
		Fields(googleapi.Field(fileFields)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("get file "+id, err)
	}
	if f.MimeType == folderMimeType && len(f.Parents) == 0 {
		// drive roots are projects, not assets
		return nil, fmt.Errorf("file %s is a drive root: %w", id, domain.ErrNotFound)
	}
	return toNode(f), nil
}

// LookupProject resolves a shared drive, or My Drive for "root".
func (s *Service) LookupProject(ctx context.Context, id string) (*domain.Project, error) {
	if id == myDriveID {
		return &domain.Project{ID: myDriveID, Name: myDriveName, RootAssetID: myDriveID}, nil
	}

	d, err := s.srv.Drives.Get(id).Fields("id, name").Context(ctx).Do()
	if err != nil {
		return nil, classify("get drive "+id, err)
	}
	// a shared drive's id is also the id of its root folder
	return &domain.Project{ID: d.Id, Name: d.Name, RootAssetID: d.Id}, nil
}

// ListChildren lists every non-trashed child of a folder.
func (s *Service) ListChildren(ctx context.Context, id string) ([]*domain.AssetNode, error) {
	var nodes []*domain.AssetNode
	query := fmt.Sprintf("'%s' in parents and trashed=false", strings.ReplaceAll(id, "'", "\\'"))

	call := s.srv.Files.List().
		Q(query).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		PageSize(listPageSize).
		OrderBy("folder,name").
		Fields(googleapi.Field("nextPageToken, files(" + fileFields + ")"))

	err := call.Pages(ctx, func(page *drive.FileList) error {
		for _, f := range page.Files {
			nodes = append(nodes, toNode(f))
		}
		return nil
	})
	if err != nil {
		return nil, classify("list children of "+id, err)
	}
	return nodes, nil
}

// OpenContentStream downloads a file by id.
func (s *Service) OpenContentStream(ctx context.Context, ref string) (io.ReadCloser, error) {
	resp, err := s.srv.Files.Get(ref).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, classify("download "+ref, err)
	}
	return resp.Body, nil
}

func toNode(f *drive.File) *domain.AssetNode {
	node := &domain.AssetNode{
		ID:        f.Id,
		Name:      f.Name,
		ProjectID: f.DriveId,
		Version:   int(f.Version),
	}
	if node.ProjectID == "" {
		node.ProjectID = myDriveID
	}
	if len(f.Parents) > 0 {
		node.ParentID = f.Parents[0]
	}
	if t, err := time.Parse(time.RFC3339, f.CreatedTime); err == nil {
		node.CreatedAt = t
	}

	switch {
	case f.MimeType == folderMimeType:
		node.Kind = domain.KindFolder
	case strings.HasPrefix(f.MimeType, nativeMimePrefix):
		// docs, sheets, shortcuts: no binary content to archive
	default:
		node.Kind = domain.KindFile
		node.SizeBytes = f.Size
		node.ContentRef = f.Id
	}
	return node
}

func classify(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusNotFound:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrNotFound, err)
		case gerr.Code == http.StatusForbidden && isRateLimited(gerr):
			return fmt.Errorf("%s: %w", op, err)
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			return fmt.Errorf("%s: %w", op, err)
		case gerr.Code >= 400:
			return fmt.Errorf("%s: %w: %w", op, domain.ErrPermanent, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isRateLimited(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded":
			return true
		}
	}
	return false
}
