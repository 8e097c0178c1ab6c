package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Kind is the closed set of node types in a remote asset tree.
type Kind int

const (
	KindFile Kind = iota + 1
	KindFolder
	KindProject
	KindVersionStack
)

var kindLabels = map[Kind]string{
	KindFile:         "file",
	KindFolder:       "folder",
	KindProject:      "project",
	KindVersionStack: "version_stack",
}

func (k Kind) String() string {
	if label, ok := kindLabels[k]; ok {
		return label
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a provider type tag to a Kind. Unknown tags are a permanent
// error rather than an implicit container.
func ParseKind(tag string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "file":
		return KindFile, nil
	case "folder":
		return KindFolder, nil
	case "project":
		return KindProject, nil
	case "version_stack", "versionstack":
		return KindVersionStack, nil
	}
	return 0, fmt.Errorf("%w: unrecognized asset type %q", ErrPermanent, tag)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// AssetNode is one entry of the remote tree. Children is only populated for
// containers after expansion.
type AssetNode struct {
	ID         string       `json:"id" yaml:"id"`
	Kind       Kind         `json:"kind" yaml:"kind"`
	Name       string       `json:"name" yaml:"name"`
	SizeBytes  int64        `json:"size_bytes,omitempty" yaml:"size_bytes,omitempty"`
	ContentRef string       `json:"-" yaml:"-"`
	ProjectID  string       `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	ParentID   string       `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	ItemCount  int          `json:"item_count,omitempty" yaml:"item_count,omitempty"`
	Version    int          `json:"version,omitempty" yaml:"version,omitempty"`
	CreatedAt  time.Time    `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	Children   []*AssetNode `json:"children,omitempty" yaml:"children,omitempty"`
}

func (n *AssetNode) IsLeaf() bool {
	return n != nil && n.Kind == KindFile
}

// Leaves returns the File nodes beneath n in depth-first pre-order.
func (n *AssetNode) Leaves() []*AssetNode {
	var out []*AssetNode
	var walk func(*AssetNode)
	walk = func(node *AssetNode) {
		if node == nil {
			return
		}
		if node.Kind == KindFile {
			out = append(out, node)
			return
		}
		for _, child := range node.Children {
			walk(child)
		}
	}
	walk(n)
	return out
}

func (n *AssetNode) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", n.ID).
		Str("kind", n.Kind.String()).
		Str("name", n.Name)
	if n.Kind == KindFile {
		e.Int64("size_bytes", n.SizeBytes)
	}
	if len(n.Children) > 0 {
		e.Int("children", len(n.Children))
	}
}

// Project is the top-level container that owns a tree and names the root of
// every destination path.
type Project struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	RootAssetID  string `json:"root_asset_id" yaml:"root_asset_id"`
	StorageBytes int64  `json:"storage_bytes" yaml:"storage_bytes"`
	FolderCount  int    `json:"folder_count" yaml:"folder_count"`
	FileCount    int    `json:"file_count" yaml:"file_count"`
}

// Manifest is the resolved tree for one archive job.
type Manifest struct {
	Project  *Project
	Root     *AssetNode
	Failures []FetchFailure
}

// Leaves returns every File in the manifest.
func (m *Manifest) Leaves() []*AssetNode {
	if m == nil {
		return nil
	}
	return m.Root.Leaves()
}

// FetchFailure records a subtree that could not be expanded.
type FetchFailure struct {
	NodeID string `json:"node_id" yaml:"node_id"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
	Op     string `json:"op" yaml:"op"`
	Error  string `json:"error" yaml:"error"`
}
