package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andresuchdata/frameio-archiver/internal/domain"
	"github.com/andresuchdata/frameio-archiver/internal/storage"
)

// fakeTree is an in-memory TreeProvider and ContentSource.
type fakeTree struct {
	mu       sync.Mutex
	assets   map[string]*domain.AssetNode
	projects map[string]*domain.Project
	children map[string][]*domain.AssetNode
	content  map[string]string
	// listErrs are returned, in order, by ListChildren before it succeeds.
	listErrs map[string][]error
	openErrs map[string][]error
	calls    map[string]int
}

func newFakeTree() *fakeTree {
	return &fakeTree{
		assets:   make(map[string]*domain.AssetNode),
		projects: make(map[string]*domain.Project),
		children: make(map[string][]*domain.AssetNode),
		content:  make(map[string]string),
		listErrs: make(map[string][]error),
		openErrs: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

func (f *fakeTree) addProject(id, name, rootID string) {
	f.projects[id] = &domain.Project{ID: id, Name: name, RootAssetID: rootID}
	f.children[rootID] = nil
}

// add registers node as a child of parentID and as a standalone asset.
func (f *fakeTree) add(parentID string, node *domain.AssetNode) {
	node.ParentID = parentID
	f.assets[node.ID] = node
	f.children[parentID] = append(f.children[parentID], node)
	if node.Kind == domain.KindFolder || node.Kind == domain.KindVersionStack {
		if _, ok := f.children[node.ID]; !ok {
			f.children[node.ID] = nil
		}
	}
}

func (f *fakeTree) addFile(parentID, id, name, body string) *domain.AssetNode {
	node := &domain.AssetNode{
		ID:         id,
		Kind:       domain.KindFile,
		Name:       name,
		SizeBytes:  int64(len(body)),
		ContentRef: "ref-" + id,
		ProjectID:  "p1",
	}
	f.add(parentID, node)
	f.content[node.ContentRef] = body
	return node
}

func (f *fakeTree) addFolder(parentID, id, name string) {
	f.add(parentID, &domain.AssetNode{ID: id, Kind: domain.KindFolder, Name: name, ProjectID: "p1"})
}

func (f *fakeTree) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[call]
}

func (f *fakeTree) record(call string) {
	f.mu.Lock()
	f.calls[call]++
	f.mu.Unlock()
}

func (f *fakeTree) LookupAsset(_ context.Context, id string) (*domain.AssetNode, error) {
	f.record("asset:" + id)
	node, ok := f.assets[id]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", id, domain.ErrNotFound)
	}
	clone := *node
	clone.Children = nil
	return &clone, nil
}

func (f *fakeTree) LookupProject(_ context.Context, id string) (*domain.Project, error) {
	f.record("project:" + id)
	p, ok := f.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	clone := *p
	return &clone, nil
}

func (f *fakeTree) ListChildren(_ context.Context, id string) ([]*domain.AssetNode, error) {
	f.record("list:" + id)
	f.mu.Lock()
	if errs := f.listErrs[id]; len(errs) > 0 {
		f.listErrs[id] = errs[1:]
		f.mu.Unlock()
		return nil, errs[0]
	}
	f.mu.Unlock()

	kids, ok := f.children[id]
	if !ok {
		return nil, fmt.Errorf("children of %s: %w", id, domain.ErrNotFound)
	}
	out := make([]*domain.AssetNode, 0, len(kids))
	for _, k := range kids {
		clone := *k
		clone.Children = nil
		out = append(out, &clone)
	}
	return out, nil
}

func (f *fakeTree) OpenContentStream(_ context.Context, ref string) (io.ReadCloser, error) {
	f.record("open:" + ref)
	f.mu.Lock()
	if errs := f.openErrs[ref]; len(errs) > 0 {
		f.openErrs[ref] = errs[1:]
		f.mu.Unlock()
		return nil, errs[0]
	}
	f.mu.Unlock()

	body, ok := f.content[ref]
	if !ok {
		return nil, fmt.Errorf("content %s: %w", ref, domain.ErrNotFound)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

// fakeStore is an in-memory ObjectStorage.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	opts    map[string]storage.PutOptions
	// failKeys always fail on put.
	failKeys map[string]error
	puts     int
	// block, when set, holds every put until it is closed or ctx ends.
	block chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:  make(map[string][]byte),
		opts:     make(map[string]storage.PutOptions),
		failKeys: make(map[string]error),
	}
}

func (s *fakeStore) PutObjectStream(ctx context.Context, bucket, key string, r io.Reader, size int64, opts storage.PutOptions) (storage.UploadInfo, error) {
	s.mu.Lock()
	s.puts++
	block := s.block
	failErr := s.failKeys[key]
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return storage.UploadInfo{}, ctx.Err()
		}
	}
	if failErr != nil {
		return storage.UploadInfo{}, failErr
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return storage.UploadInfo{}, err
	}
	if size >= 0 && int64(buf.Len()) != size {
		return storage.UploadInfo{}, errors.New("short body")
	}

	s.mu.Lock()
	s.objects[bucket+"/"+key] = buf.Bytes()
	s.opts[bucket+"/"+key] = opts
	s.mu.Unlock()
	return storage.UploadInfo{Bucket: bucket, Key: key, ETag: "etag-" + key, Size: int64(buf.Len())}, nil
}

func (s *fakeStore) StatObject(_ context.Context, bucket, key string) (storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[bucket+"/"+key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(obj)), ETag: "etag-" + key}, nil
}

func (s *fakeStore) object(bucket, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[bucket+"/"+key]
	return string(obj), ok
}

func (s *fakeStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// testConfig retries without sleeping.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryAttempts = 1
	cfg.RetryBackoff = 0
	return cfg
}

// alphaTree builds project Alpha:
//
//	report.mov
//	Drafts/report.mov
//	Drafts/cut (version stack: v1, v2)
func alphaTree() *fakeTree {
	f := newFakeTree()
	f.addProject("p1", "Alpha", "root1")
	f.addFile("root1", "f1", "report.mov", "top-level")
	f.addFolder("root1", "d1", "Drafts")
	f.addFile("d1", "f2", "report.mov", "draft")
	f.add("d1", &domain.AssetNode{ID: "vs1", Kind: domain.KindVersionStack, Name: "cut", ProjectID: "p1"})
	f.addFile("vs1", "v1", "cut_v1.mov", "version one")
	f.addFile("vs1", "v2", "cut_v2.mov", "version two!")
	f.assets["v1"].Version = 1
	f.assets["v2"].Version = 2
	return f
}

func leafIDs(nodes []*domain.AssetNode) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
