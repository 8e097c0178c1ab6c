package archive

import (
	"context"
	"testing"

	"github.com/andresuchdata/frameio-archiver/internal/domain"
)

func keys(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Key())
	}
	return out
}

func TestBuildPathsFromAncestors(t *testing.T) {
	m, err := NewResolver(alphaTree(), testConfig()).Resolve(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	entries := NewPathBuilder(PathSafe).Build(m)
	want := []string{
		"Alpha/report.mov",
		"Alpha/Drafts/report.mov",
		"Alpha/Drafts/cut_v1.mov",
	}
	if got := keys(entries); !equalStrings(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if entries[1].Leaf.ID != "f2" {
		t.Fatalf("expected entry 1 to be f2, got %s", entries[1].Leaf.ID)
	}
}

func TestBuildSingleFileRootedAtProject(t *testing.T) {
	m := &domain.Manifest{
		Project: &domain.Project{Name: "Alpha"},
		Root:    &domain.AssetNode{ID: "f1", Kind: domain.KindFile, Name: "report.mov"},
	}
	entries := NewPathBuilder("").Build(m)
	if got := keys(entries); !equalStrings(got, []string{"Alpha/report.mov"}) {
		t.Fatalf("unexpected keys %v", got)
	}
}

func TestBuildIsDeterministicAndPure(t *testing.T) {
	m, err := NewResolver(alphaTree(), testConfig()).Resolve(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	b := NewPathBuilder(PathSafe)
	first := keys(b.Build(m))
	second := keys(b.Build(m))
	if !equalStrings(first, second) {
		t.Fatalf("Build is not deterministic: %v vs %v", first, second)
	}
	if m.Root.Name != "Alpha" || m.Root.Children[1].Name != "Drafts" {
		t.Fatalf("Build modified the manifest")
	}
}

func TestBuildDedupesCollisions(t *testing.T) {
	m := &domain.Manifest{
		Project: &domain.Project{Name: "Alpha"},
		Root: &domain.AssetNode{Kind: domain.KindProject, Children: []*domain.AssetNode{
			{ID: "a", Kind: domain.KindFile, Name: "clip.mov"},
			{ID: "b", Kind: domain.KindFile, Name: "clip.mov"},
			{ID: "c", Kind: domain.KindFile, Name: "clip.mov"},
			{ID: "d", Kind: domain.KindFile, Name: "README"},
			{ID: "e", Kind: domain.KindFile, Name: "README"},
			{ID: "f", Kind: domain.KindFile, Name: "a/b"},
			{ID: "g", Kind: domain.KindFile, Name: "a_b"},
		}},
	}

	want := []string{
		"Alpha/clip.mov",
		"Alpha/clip (2).mov",
		"Alpha/clip (3).mov",
		"Alpha/README",
		"Alpha/README (2)",
		"Alpha/a_b",
		"Alpha/a_b (2)",
	}
	if got := keys(NewPathBuilder(PathSafe).Build(m)); !equalStrings(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSanitizeSegment(t *testing.T) {
	tests := map[string]string{
		"Drafts":        "Drafts",
		"  spaced  ":    "spaced",
		"a/b\\c":        "a_b_c",
		"tab\there":     "tab_here",
		"":              "_",
		".":             "_",
		"..":            "_",
		"café.mov":      "café.mov",
		"bad�name": "bad_name",
	}
	for in, want := range tests {
		if got := SanitizeSegment(in); got != want {
			t.Fatalf("SanitizeSegment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVerbatimPolicyKeepsNames(t *testing.T) {
	m := &domain.Manifest{
		Project: &domain.Project{Name: "Alpha"},
		Root: &domain.AssetNode{Kind: domain.KindProject, Children: []*domain.AssetNode{
			{ID: "d", Kind: domain.KindFolder, Name: "Q1/Q2", Children: []*domain.AssetNode{
				{ID: "f", Kind: domain.KindFile, Name: "cut.mov"},
			}},
		}},
	}
	if got := keys(NewPathBuilder(PathVerbatim).Build(m)); !equalStrings(got, []string{"Alpha/Q1/Q2/cut.mov"}) {
		t.Fatalf("unexpected verbatim keys %v", got)
	}
	if got := keys(NewPathBuilder(PathSafe).Build(m)); !equalStrings(got, []string{"Alpha/Q1_Q2/cut.mov"}) {
		t.Fatalf("unexpected safe keys %v", got)
	}
}

func TestBuildWithKeyPrefix(t *testing.T) {
	m, err := NewResolver(alphaTree(), testConfig()).Resolve(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	for _, prefix := range []string{"exports/frameio", "/exports/frameio/", "exports//frameio"} {
		entries := NewPathBuilder(PathSafe).WithPrefix(prefix).Build(m)
		want := []string{
			"exports/frameio/Alpha/report.mov",
			"exports/frameio/Alpha/Drafts/report.mov",
			"exports/frameio/Alpha/Drafts/cut_v1.mov",
		}
		if got := keys(entries); !equalStrings(got, want) {
			t.Fatalf("prefix %q: expected %v, got %v", prefix, want, got)
		}
	}

	if got := keys(NewPathBuilder(PathSafe).WithPrefix(" / ").Build(m)); got[0] != "Alpha/report.mov" {
		t.Fatalf("blank prefix should not add segments, got %v", got)
	}
}
