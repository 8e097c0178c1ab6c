package archive

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/andresuchdata/frameio-archiver/internal/domain"
)

func TestResolveProjectExpandsTree(t *testing.T) {
	tree := alphaTree()
	r := NewResolver(tree, testConfig())

	m, err := r.Resolve(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if m.Project == nil || m.Project.Name != "Alpha" {
		t.Fatalf("expected project Alpha, got %+v", m.Project)
	}
	if m.Root.Kind != domain.KindProject {
		t.Fatalf("expected project root, got %v", m.Root.Kind)
	}
	if len(m.Failures) != 0 {
		t.Fatalf("unexpected failures: %+v", m.Failures)
	}

	got := leafIDs(m.Leaves())
	want := []string{"f1", "f2", "v1"}
	if !equalStrings(got, want) {
		t.Fatalf("expected leaves %v, got %v", want, got)
	}
	for _, leaf := range m.Leaves() {
		if leaf.Kind != domain.KindFile {
			t.Fatalf("leaf %s has kind %v", leaf.ID, leaf.Kind)
		}
	}
}

func TestResolveSingleFile(t *testing.T) {
	tree := alphaTree()
	r := NewResolver(tree, testConfig())

	m, err := r.Resolve(context.Background(), "f2")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if m.Root.ID != "f2" || m.Project.Name != "Alpha" {
		t.Fatalf("expected file f2 in Alpha, got root %s project %s", m.Root.ID, m.Project.Name)
	}
	if tree.count("project:f2") != 0 {
		t.Fatalf("an asset hit should not be retried as a project")
	}
}

func TestResolveVersionStackPolicies(t *testing.T) {
	tests := []struct {
		policy VersionPolicy
		want   string
	}{
		{VersionFirst, "v1"},
		{VersionLatest, "v2"},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			cfg := testConfig()
			cfg.VersionPolicy = tt.policy
			r := NewResolver(alphaTree(), cfg)

			m, err := r.Resolve(context.Background(), "vs1")
			if err != nil {
				t.Fatalf("Resolve returned error: %v", err)
			}
			if m.Root.ID != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, m.Root.ID)
			}
		})
	}
}

func TestSelectVersionLatestTieBreaks(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	versions := []*domain.AssetNode{
		{ID: "a", Version: 3, CreatedAt: older},
		nil,
		{ID: "b", Version: 3, CreatedAt: newer},
		{ID: "c", Version: 3, CreatedAt: newer},
		{ID: "d", Version: 1, CreatedAt: newer.Add(time.Hour)},
	}
	if got := SelectVersion(versions, VersionLatest); got.ID != "b" {
		t.Fatalf("expected b, got %s", got.ID)
	}
	if got := SelectVersion(versions, VersionFirst); got.ID != "a" {
		t.Fatalf("expected a, got %s", got.ID)
	}
	if got := SelectVersion(nil, VersionLatest); got != nil {
		t.Fatalf("expected nil for empty listing")
	}
}

func TestResolveUnknownIDIsNotFound(t *testing.T) {
	tree := alphaTree()
	r := NewResolver(tree, testConfig())

	_, err := r.Resolve(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if domain.KindOf(err) != domain.ErrorKindNotFound {
		t.Fatalf("expected not_found kind, got %s", domain.KindOf(err))
	}
	for _, call := range []string{"asset:missing", "project:missing", "list:missing"} {
		if tree.count(call) != 1 {
			t.Fatalf("expected one %s call, got %d", call, tree.count(call))
		}
	}
}

func TestResolveEmptyIDIsValidationError(t *testing.T) {
	_, err := NewResolver(alphaTree(), testConfig()).Resolve(context.Background(), "")
	if domain.KindOf(err) != domain.ErrorKindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolveFolderFallback(t *testing.T) {
	tree := alphaTree()
	// the folder answers to a listing but not to an asset lookup
	delete(tree.assets, "d1")
	r := NewResolver(tree, testConfig())

	m, err := r.Resolve(context.Background(), "d1")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if m.Root.Kind != domain.KindProject || m.Root.ID != "d1" {
		t.Fatalf("expected project-kind root for d1, got %+v", m.Root)
	}
	if got := leafIDs(m.Leaves()); !equalStrings(got, []string{"f2", "v1"}) {
		t.Fatalf("unexpected leaves %v", got)
	}
}

func TestResolveSubtreeFailureKeepsSiblings(t *testing.T) {
	tree := alphaTree()
	tree.listErrs["d1"] = []error{errors.New("502 bad gateway")}
	r := NewResolver(tree, testConfig())

	m, err := r.Resolve(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got := leafIDs(m.Leaves()); !equalStrings(got, []string{"f1"}) {
		t.Fatalf("expected only f1, got %v", got)
	}
	if len(m.Failures) != 1 || m.Failures[0].NodeID != "d1" || m.Failures[0].Op != "list_children" {
		t.Fatalf("expected one list_children failure for d1, got %+v", m.Failures)
	}
}

func TestResolveRetriesTransientListing(t *testing.T) {
	tree := alphaTree()
	tree.listErrs["d1"] = []error{errors.New("timeout")}
	cfg := testConfig()
	cfg.RetryAttempts = 2
	r := NewResolver(tree, cfg)

	m, err := r.Resolve(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(m.Failures) != 0 {
		t.Fatalf("expected retry to recover, got failures %+v", m.Failures)
	}
	if tree.count("list:d1") != 2 {
		t.Fatalf("expected 2 listings of d1, got %d", tree.count("list:d1"))
	}
}

func TestResolveRootListingFailureIsFatal(t *testing.T) {
	tree := alphaTree()
	tree.listErrs["root1"] = []error{errors.New("503")}
	r := NewResolver(tree, testConfig())

	_, err := r.Resolve(context.Background(), "p1")
	if !errors.Is(err, domain.ErrTransientFetch) {
		t.Fatalf("expected transient fetch error, got %v", err)
	}
}

func TestResolveDepthGuard(t *testing.T) {
	tree := alphaTree()
	tree.addFolder("d1", "d2", "Deeper")
	tree.addFile("d2", "f3", "deep.mov", "deep")
	cfg := testConfig()
	cfg.MaxDepth = 2
	r := NewResolver(tree, cfg)

	m, err := r.Resolve(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got := leafIDs(m.Leaves()); !equalStrings(got, []string{"f1", "f2", "v1"}) {
		t.Fatalf("expected depth guard to stop at Deeper, got %v", got)
	}
	if len(m.Failures) != 1 || m.Failures[0].NodeID != "d2" {
		t.Fatalf("expected depth failure for d2, got %+v", m.Failures)
	}
	if tree.count("list:d2") != 0 {
		t.Fatalf("d2 should not have been listed")
	}
}

func TestResolveRecordsUnknownKinds(t *testing.T) {
	tree := alphaTree()
	tree.add("root1", &domain.AssetNode{ID: "x1", Name: "review link"})
	r := NewResolver(tree, testConfig())

	m, err := r.Resolve(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(m.Failures) != 1 || m.Failures[0].Op != "classify" {
		t.Fatalf("expected classify failure, got %+v", m.Failures)
	}
	if got := leafIDs(m.Leaves()); !equalStrings(got, []string{"f1", "f2", "v1"}) {
		t.Fatalf("unexpected leaves %v", got)
	}
}

func TestResolveEmptyVersionStackIsRecorded(t *testing.T) {
	tree := alphaTree()
	tree.add("root1", &domain.AssetNode{ID: "vs2", Kind: domain.KindVersionStack, Name: "empty stack", ProjectID: "p1"})
	r := NewResolver(tree, testConfig())

	m, err := r.Resolve(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(m.Failures) != 1 || m.Failures[0].NodeID != "vs2" || m.Failures[0].Op != "list_versions" {
		t.Fatalf("expected list_versions failure for vs2, got %+v", m.Failures)
	}
}

func TestResolveHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewResolver(alphaTree(), testConfig()).Resolve(ctx, "p1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := map[domain.Kind]Disposition{
		domain.KindFile:         DispositionLeaf,
		domain.KindVersionStack: DispositionVersionContainer,
		domain.KindFolder:       DispositionContainer,
		domain.KindProject:      DispositionContainer,
		domain.Kind(0):          DispositionInvalid,
		domain.Kind(42):         DispositionInvalid,
	}
	for kind, want := range tests {
		if got := Classify(kind); got != want {
			t.Fatalf("Classify(%v) = %v, want %v", kind, got, want)
		}
	}
}

// buildTree fills parent with fanout entries per level. Every stackEvery-th
// entry is a two-version stack and every other entry below depth is a folder.
// It returns the number of files a resolve should yield.
func buildTree(f *fakeTree, parent string, depth, fanout, stackEvery int, seq *int) int {
	files := 0
	for i := 0; i < fanout; i++ {
		*seq++
		id := fmt.Sprintf("n%d", *seq)
		switch {
		case stackEvery > 0 && *seq%stackEvery == 0:
			f.add(parent, &domain.AssetNode{ID: id, Kind: domain.KindVersionStack, Name: id, ProjectID: "p1"})
			f.addFile(id, id+"-v1", id+"_v1.mov", "one")
			f.addFile(id, id+"-v2", id+"_v2.mov", "two")
			files++
		case depth > 1 && i%2 == 1:
			f.addFolder(parent, id, "folder-"+id)
			files += buildTree(f, id, depth-1, fanout, stackEvery, seq)
		default:
			f.addFile(parent, id, id+".mov", id)
			files++
		}
	}
	return files
}

func walkNodes(n *domain.AssetNode, visit func(*domain.AssetNode)) {
	if n == nil {
		return
	}
	visit(n)
	for _, c := range n.Children {
		walkNodes(c, visit)
	}
}

func TestResolveGeneratedTrees(t *testing.T) {
	tests := []struct {
		depth, fanout, stackEvery int
	}{
		{1, 1, 0},
		{1, 6, 3},
		{2, 3, 2},
		{3, 4, 5},
		{4, 3, 4},
		{5, 2, 3},
		{3, 7, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("depth%d_fanout%d_stack%d", tt.depth, tt.fanout, tt.stackEvery), func(t *testing.T) {
			tree := newFakeTree()
			tree.addProject("p1", "Alpha", "root1")
			seq := 0
			want := buildTree(tree, "root1", tt.depth, tt.fanout, tt.stackEvery, &seq)

			m, err := NewResolver(tree, testConfig()).Resolve(context.Background(), "p1")
			if err != nil {
				t.Fatalf("Resolve returned error: %v", err)
			}
			if len(m.Failures) != 0 {
				t.Fatalf("unexpected failures: %+v", m.Failures)
			}
			if got := len(m.Leaves()); got != want {
				t.Fatalf("expected %d leaves, got %d", want, got)
			}
			walkNodes(m.Root, func(n *domain.AssetNode) {
				if n.Kind == domain.KindVersionStack {
					t.Fatalf("version stack %s survived resolution", n.ID)
				}
			})
			for _, leaf := range m.Leaves() {
				if leaf.Kind != domain.KindFile {
					t.Fatalf("leaf %s has kind %v", leaf.ID, leaf.Kind)
				}
			}
		})
	}
}

// unknownKindTree answers asset lookups with a node type the client cannot
// map, the way the asset API does for review links.
type unknownKindTree struct {
	*fakeTree
}

func (u unknownKindTree) LookupAsset(_ context.Context, id string) (*domain.AssetNode, error) {
	u.record("asset:" + id)
	_, err := domain.ParseKind("review_link")
	return nil, fmt.Errorf("asset %s: %w", id, err)
}

func TestResolveDoesNotRetryUnknownAssetKind(t *testing.T) {
	tree := unknownKindTree{alphaTree()}
	cfg := testConfig()
	cfg.RetryAttempts = 3
	cfg.RetryBackoff = 10 * time.Millisecond

	m, err := NewResolver(tree, cfg).Resolve(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if m.Project == nil || m.Project.ID != "p1" {
		t.Fatalf("expected project p1, got %+v", m.Project)
	}
	if n := tree.count("asset:p1"); n != 1 {
		t.Fatalf("expected a single asset lookup, got %d", n)
	}
}
