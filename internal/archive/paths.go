package archive

import (
	"path"
	"strconv"
	"strings"
	"unicode"

	"github.com/andresuchdata/frameio-archiver/internal/domain"
)

// Entry pairs a leaf with its destination key.
type Entry struct {
	Leaf *domain.AssetNode
	Path domain.DestinationPath
}

// Key is the object key for the entry.
func (e Entry) Key() string {
	return e.Path.String()
}

// PathBuilder assigns destination paths to the leaves of a manifest.
type PathBuilder struct {
	policy PathPolicy
	prefix []string
}

func NewPathBuilder(policy PathPolicy) PathBuilder {
	if policy == "" {
		policy = PathSafe
	}
	return PathBuilder{policy: policy}
}

// WithPrefix places every key under prefix, e.g. "exports/frameio". The
// prefix is split on "/" and empty segments are dropped.
func (b PathBuilder) WithPrefix(prefix string) PathBuilder {
	b.prefix = SplitKeyPrefix(prefix)
	return b
}

// SplitKeyPrefix splits an object key prefix into its non-empty segments.
func SplitKeyPrefix(prefix string) []string {
	var segments []string
	for _, part := range strings.Split(prefix, "/") {
		if part = strings.TrimSpace(part); part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

// Build walks the manifest depth-first and returns one entry per leaf, in
// walk order. The project name roots every path, after the key prefix if one
// is set, and each folder crossed adds a segment. Keys repeated within the
// manifest get a " (n)" suffix on the leaf name. Build does not modify the
// manifest and is deterministic.
func (b PathBuilder) Build(m *domain.Manifest) []Entry {
	if m == nil || m.Root == nil {
		return nil
	}

	var projectName string
	if m.Project != nil {
		projectName = m.Project.Name
	}

	var entries []Entry
	used := make(map[string]bool)

	var walk func(node *domain.AssetNode, segments []string)
	walk = func(node *domain.AssetNode, segments []string) {
		if node == nil {
			return
		}
		switch node.Kind {
		case domain.KindFile:
			p := appendSegment(segments, b.Segment(node.Name))
			p = dedupe(p, used)
			entries = append(entries, Entry{Leaf: node, Path: p})
		case domain.KindFolder:
			next := appendSegment(segments, b.Segment(node.Name))
			for _, child := range node.Children {
				walk(child, next)
			}
		case domain.KindProject:
			// the project name is already the first segment
			for _, child := range node.Children {
				walk(child, segments)
			}
		}
	}
	root := append(append([]string(nil), b.prefix...), b.Segment(projectName))
	walk(m.Root, root)

	return entries
}

// Segment converts one asset name into a key segment under the policy.
func (b PathBuilder) Segment(name string) string {
	if b.policy == PathVerbatim {
		return name
	}
	return SanitizeSegment(name)
}

// SanitizeSegment replaces path separators and control characters with "_"
// and trims surrounding space. Empty, "." and ".." become "_".
func SanitizeSegment(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '/', r == '\\':
			return '_'
		case unicode.IsControl(r):
			return '_'
		case r == unicode.ReplacementChar:
			return '_'
		}
		return r
	}, name)
	cleaned = strings.TrimSpace(cleaned)

	switch cleaned {
	case "", ".", "..":
		return "_"
	}
	return cleaned
}

func appendSegment(segments []string, segment string) []string {
	out := make([]string, len(segments), len(segments)+1)
	copy(out, segments)
	return append(out, segment)
}

func dedupe(p domain.DestinationPath, used map[string]bool) domain.DestinationPath {
	key := p.String()
	if !used[key] {
		used[key] = true
		return p
	}

	leaf := p.Leaf()
	for n := 2; ; n++ {
		candidate := appendSegment(p[:len(p)-1], withSuffix(leaf, n))
		ck := domain.DestinationPath(candidate).String()
		if !used[ck] {
			used[ck] = true
			return candidate
		}
	}
}

func withSuffix(name string, n int) string {
	suffix := " (" + strconv.Itoa(n) + ")"
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" || ext == "" {
		return name + suffix
	}
	return base + suffix + ext
}
