package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresuchdata/frameio-archiver/internal/domain"
)

// Resolver expands a root identifier into a fully materialized manifest.
type Resolver struct {
	provider TreeProvider
	policy   VersionPolicy
	maxDepth int
	retry    retrier
}

func NewResolver(provider TreeProvider, cfg Config) *Resolver {
	cfg = cfg.withDefaults()
	return &Resolver{
		provider: provider,
		policy:   cfg.VersionPolicy,
		maxDepth: cfg.MaxDepth,
		retry:    newRetrier(cfg),
	}
}

// Resolve tries id as a single asset, then as a project, then as a folder.
// Failing all three is a NotFound error. Failures below the root are
// recorded on the manifest and do not stop resolution.
func (r *Resolver) Resolve(ctx context.Context, id string) (*domain.Manifest, error) {
	if id == "" {
		return nil, domain.NewValidation("resource id is required")
	}

	var attempts []error
	strategies := []struct {
		name string
		fn   func(context.Context, string) (*domain.Manifest, error)
	}{
		{"asset", r.resolveAsset},
		{"project", r.resolveProject},
		{"folder", r.resolveFolder},
	}

	for _, s := range strategies {
		m, err := s.fn(ctx, id)
		if err == nil {
			if cerr := ctx.Err(); cerr != nil {
				return nil, cerr
			}
			return m, nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		// the root exists but its own listing failed
		if errors.Is(err, domain.ErrTransientFetch) {
			return nil, err
		}
		loggerFrom(ctx).Debug().Err(err).Str("resource_id", id).Str("as", s.name).Msg("resolve attempt failed")
		attempts = append(attempts, fmt.Errorf("as %s: %w", s.name, err))
	}

	return nil, domain.NewNotFound("resolve", id, errors.Join(attempts...))
}

func (r *Resolver) resolveAsset(ctx context.Context, id string) (*domain.Manifest, error) {
	asset, err := r.lookupAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	project, err := r.lookupProject(ctx, asset.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("project %q of asset: %w", asset.ProjectID, err)
	}

	m := &domain.Manifest{Project: project}

	switch Classify(asset.Kind) {
	case DispositionLeaf:
		m.Root = asset
	case DispositionVersionContainer:
		rep, err := r.selectVersion(ctx, asset)
		if err != nil {
			return nil, domain.NewTransientFetch("list_versions", asset.ID, err)
		}
		m.Root = rep
	case DispositionContainer:
		if asset.Kind == domain.KindProject {
			return nil, fmt.Errorf("asset %s is a project", id)
		}
		children, err := r.listChildren(ctx, asset.ID)
		if err != nil {
			return nil, domain.NewTransientFetch("list_children", asset.ID, err)
		}
		asset.Children = nil
		r.expand(ctx, asset, children, 1, m)
		m.Root = asset
	default:
		return nil, fmt.Errorf("asset %s has unsupported kind %s", id, asset.Kind)
	}
	return m, nil
}

func (r *Resolver) resolveProject(ctx context.Context, id string) (*domain.Manifest, error) {
	project, err := r.lookupProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if project.RootAssetID == "" {
		return nil, fmt.Errorf("project %s has no root asset", id)
	}

	children, err := r.listChildren(ctx, project.RootAssetID)
	if err != nil {
		return nil, domain.NewTransientFetch("list_children", project.RootAssetID, err)
	}

	root := projectRoot(project, project.RootAssetID)
	m := &domain.Manifest{Project: project, Root: root}
	r.expand(ctx, root, children, 1, m)
	return m, nil
}

// resolveFolder handles identifiers that only answer to a children listing.
// The folder's own name is unknown, so its contents land directly under the
// project name.
func (r *Resolver) resolveFolder(ctx context.Context, id string) (*domain.Manifest, error) {
	children, err := r.listChildren(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return nil, fmt.Errorf("folder %s has no children", id)
	}

	var projectID string
	for _, child := range children {
		if child.ProjectID != "" {
			projectID = child.ProjectID
			break
		}
	}
	project, err := r.lookupProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("project %q of folder: %w", projectID, err)
	}

	root := projectRoot(project, id)
	m := &domain.Manifest{Project: project, Root: root}
	r.expand(ctx, root, children, 1, m)
	return m, nil
}

func projectRoot(project *domain.Project, containerID string) *domain.AssetNode {
	return &domain.AssetNode{
		ID:        containerID,
		Kind:      domain.KindProject,
		Name:      project.Name,
		ProjectID: project.ID,
	}
}

// expand attaches children to parent depth-first, collapsing version stacks
// and recursing into folders.
func (r *Resolver) expand(ctx context.Context, parent *domain.AssetNode, children []*domain.AssetNode, depth int, m *domain.Manifest) {
	for _, child := range children {
		if ctx.Err() != nil {
			return
		}
		if child == nil {
			continue
		}
		if child.ProjectID == "" {
			child.ProjectID = parent.ProjectID
		}

		switch Classify(child.Kind) {
		case DispositionLeaf:
			child.Children = nil
			parent.Children = append(parent.Children, child)

		case DispositionVersionContainer:
			rep, err := r.selectVersion(ctx, child)
			if err != nil {
				r.recordFailure(ctx, m, child, "list_versions", err)
				continue
			}
			parent.Children = append(parent.Children, rep)

		case DispositionContainer:
			child.Children = nil
			if depth >= r.maxDepth {
				r.recordFailure(ctx, m, child, "list_children", fmt.Errorf("maximum depth %d reached", r.maxDepth))
				parent.Children = append(parent.Children, child)
				continue
			}
			grandchildren, err := r.listChildren(ctx, child.ID)
			if err != nil {
				r.recordFailure(ctx, m, child, "list_children", err)
				parent.Children = append(parent.Children, child)
				continue
			}
			r.expand(ctx, child, grandchildren, depth+1, m)
			parent.Children = append(parent.Children, child)

		default:
			r.recordFailure(ctx, m, child, "classify", fmt.Errorf("unsupported kind %s", child.Kind))
		}
	}
}

// selectVersion lists a stack's versions and returns the representative
// chosen by the policy. The representative is not expanded further.
func (r *Resolver) selectVersion(ctx context.Context, stack *domain.AssetNode) (*domain.AssetNode, error) {
	versions, err := r.listChildren(ctx, stack.ID)
	if err != nil {
		return nil, err
	}
	rep := SelectVersion(versions, r.policy)
	if rep == nil {
		return nil, fmt.Errorf("version stack %s has no versions", stack.ID)
	}
	if rep.Kind == domain.KindVersionStack {
		return nil, fmt.Errorf("version stack %s resolves to another version stack", stack.ID)
	}
	if rep.ProjectID == "" {
		rep.ProjectID = stack.ProjectID
	}
	rep.Children = nil

	loggerFrom(ctx).Debug().
		Str("stack_id", stack.ID).
		Str("version_id", rep.ID).
		Int("versions", len(versions)).
		Str("policy", string(r.policy)).
		Msg("collapsed version stack")
	return rep, nil
}

// SelectVersion applies policy to a version listing. VersionFirst returns
// the first entry; VersionLatest returns the highest Version, breaking ties
// by the newest CreatedAt and then by listing order.
func SelectVersion(versions []*domain.AssetNode, policy VersionPolicy) *domain.AssetNode {
	var best *domain.AssetNode
	for _, v := range versions {
		if v == nil {
			continue
		}
		if best == nil {
			best = v
			if policy != VersionLatest {
				return best
			}
			continue
		}
		if v.Version > best.Version ||
			(v.Version == best.Version && v.CreatedAt.After(best.CreatedAt)) {
			best = v
		}
	}
	return best
}

func (r *Resolver) recordFailure(ctx context.Context, m *domain.Manifest, node *domain.AssetNode, op string, err error) {
	m.Failures = append(m.Failures, domain.FetchFailure{
		NodeID: node.ID,
		Name:   node.Name,
		Op:     op,
		Error:  err.Error(),
	})
	loggerFrom(ctx).Warn().
		Err(err).
		Object("node", node).
		Str("op", op).
		Msg("skipping subtree")
}

func (r *Resolver) lookupAsset(ctx context.Context, id string) (*domain.AssetNode, error) {
	var asset *domain.AssetNode
	_, err := r.retry.do(ctx, "lookup_asset", func(ctx context.Context) error {
		var err error
		asset, err = r.provider.LookupAsset(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, fmt.Errorf("asset %s: %w", id, domain.ErrNotFound)
	}
	return asset, nil
}

func (r *Resolver) lookupProject(ctx context.Context, id string) (*domain.Project, error) {
	if id == "" {
		return nil, fmt.Errorf("empty project id: %w", domain.ErrNotFound)
	}
	var project *domain.Project
	_, err := r.retry.do(ctx, "lookup_project", func(ctx context.Context) error {
		var err error
		project, err = r.provider.LookupProject(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	return project, nil
}

func (r *Resolver) listChildren(ctx context.Context, id string) ([]*domain.AssetNode, error) {
	var children []*domain.AssetNode
	_, err := r.retry.do(ctx, "list_children", func(ctx context.Context) error {
		var err error
		children, err = r.provider.ListChildren(ctx, id)
		return err
	})
	return children, err
}
