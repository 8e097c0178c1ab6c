package archive

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/andresuchdata/frameio-archiver/internal/domain"
)

type importTree struct {
	*fakeTree
	folders    map[string]*domain.AssetNode
	created    []createdAsset
	creates    int
	failCreate error
}

type createdAsset struct {
	parentID, name, url string
	size                int64
}

func newImportTree() *importTree {
	return &importTree{fakeTree: alphaTree(), folders: make(map[string]*domain.AssetNode)}
}

func (t *importTree) EnsureFolder(_ context.Context, parentID, name string) (*domain.AssetNode, error) {
	t.record("ensure:" + parentID + "/" + name)
	key := parentID + "/" + name
	if f, ok := t.folders[key]; ok {
		return f, nil
	}
	f := &domain.AssetNode{ID: "imp-" + parentID, Kind: domain.KindFolder, Name: name, ParentID: parentID}
	t.folders[key] = f
	return f, nil
}

func (t *importTree) CreateAssetFromURL(_ context.Context, parentID, name, url string, size int64) (*domain.AssetNode, error) {
	t.creates++
	if t.failCreate != nil {
		return nil, t.failCreate
	}
	t.created = append(t.created, createdAsset{parentID: parentID, name: name, url: url, size: size})
	return &domain.AssetNode{ID: "new-" + name, Kind: domain.KindFile, Name: name, SizeBytes: size, ParentID: parentID}, nil
}

type linkStore struct {
	*fakeStore
	expiries []time.Duration
}

func (s *linkStore) PresignGetObject(_ context.Context, bucket, key string, expiry time.Duration) (string, error) {
	s.expiries = append(s.expiries, expiry)
	return "https://store.example/" + bucket + "/" + key + "?sig=abc", nil
}

func newLinkStore(objects map[string]string) *linkStore {
	s := &linkStore{fakeStore: newFakeStore()}
	for k, v := range objects {
		s.objects[k] = []byte(v)
	}
	return s
}

func TestImportCreatesAssetFromPresignedLink(t *testing.T) {
	tree := newImportTree()
	store := newLinkStore(map[string]string{"archive/exports/Alpha/Drafts/report.mov": "draft-bytes"})
	im := NewImporter(tree, store, ImportConfig{FolderName: "From B2", KeyPrefix: "exports/", LinkExpiry: 10 * time.Minute})

	result, err := im.Import(context.Background(), ImportRequest{ResourceID: "f1", Bucket: "archive", Key: "exports/Alpha/Drafts/report.mov"})
	if err != nil {
		t.Fatalf("Import returned error: %v", err)
	}

	if len(tree.created) != 1 {
		t.Fatalf("expected one created asset, got %d", len(tree.created))
	}
	got := tree.created[0]
	if got.parentID != "imp-root1" || got.name != "report.mov" || got.size != int64(len("draft-bytes")) {
		t.Fatalf("unexpected created asset %+v", got)
	}
	if got.url != "https://store.example/archive/exports/Alpha/Drafts/report.mov?sig=abc" {
		t.Fatalf("unexpected source url %s", got.url)
	}
	if len(store.expiries) != 1 || store.expiries[0] != 10*time.Minute {
		t.Fatalf("unexpected link expiries %v", store.expiries)
	}
	if tree.count("ensure:root1/From B2") != 1 {
		t.Fatalf("expected the import folder under the project root")
	}
	if result.ProjectID != "p1" || result.AssetID != "new-report.mov" || result.FolderID != "imp-root1" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestImportUsesProjectWhenGiven(t *testing.T) {
	tree := newImportTree()
	store := newLinkStore(map[string]string{"archive/cut.mov": "x"})
	im := NewImporter(tree, store, ImportConfig{})

	if _, err := im.Import(context.Background(), ImportRequest{ProjectID: "p1", Bucket: "archive", Key: "cut.mov"}); err != nil {
		t.Fatalf("Import returned error: %v", err)
	}
	if tree.count("ensure:root1/Imports") != 1 {
		t.Fatalf("expected the default import folder")
	}
	for call := range tree.calls {
		if strings.HasPrefix(call, "asset:") {
			t.Fatalf("asset lookup not expected with a project id, got %s", call)
		}
	}
}

func TestImportFailures(t *testing.T) {
	tests := []struct {
		name string
		req  ImportRequest
		want domain.ErrorKind
	}{
		{"blank key", ImportRequest{ResourceID: "f1", Bucket: "archive"}, domain.ErrorKindValidation},
		{"prefix only", ImportRequest{ResourceID: "f1", Bucket: "archive", Key: "exports/"}, domain.ErrorKindValidation},
		{"missing object", ImportRequest{ResourceID: "f1", Bucket: "archive", Key: "nope.mov"}, domain.ErrorKindNotFound},
		{"unknown resource", ImportRequest{ResourceID: "zz", Bucket: "archive", Key: "cut.mov"}, domain.ErrorKindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := newImportTree()
			im := NewImporter(tree, newLinkStore(map[string]string{"archive/cut.mov": "x"}), ImportConfig{})

			_, err := im.Import(context.Background(), tt.req)
			if got := domain.KindOf(err); got != tt.want {
				t.Fatalf("expected %s, got %s (%v)", tt.want, got, err)
			}
			if len(tree.created) != 0 {
				t.Fatalf("no asset should be created")
			}
		})
	}
}

func TestImportCreateIsNotRetried(t *testing.T) {
	tree := newImportTree()
	tree.failCreate = errors.New("service unavailable")
	im := NewImporter(tree, newLinkStore(map[string]string{"archive/cut.mov": "x"}), ImportConfig{RetryAttempts: 3})

	_, err := im.Import(context.Background(), ImportRequest{ProjectID: "p1", Bucket: "archive", Key: "cut.mov"})
	if domain.KindOf(err) != domain.ErrorKindTransfer || !strings.Contains(err.Error(), "service unavailable") {
		t.Fatalf("expected transfer error, got %v", err)
	}
	if tree.creates != 1 {
		t.Fatalf("create must not be retried, got %d calls", tree.creates)
	}
}

func TestImportAssetName(t *testing.T) {
	im := NewImporter(newImportTree(), newLinkStore(nil), ImportConfig{KeyPrefix: "/exports/frameio/"})
	tests := map[string]string{
		"exports/frameio/Alpha/report.mov": "report.mov",
		"other/clip.mp4":                   "clip.mp4",
		"plain.wav":                        "plain.wav",
	}
	for key, want := range tests {
		if got := im.AssetName(key); got != want {
			t.Fatalf("AssetName(%q) = %q, want %q", key, got, want)
		}
	}
}
