package archive

import (
	"context"
	"io"
	"time"

	"github.com/andresuchdata/frameio-archiver/internal/domain"
)

// TreeProvider is the lookup side of a remote asset service.
type TreeProvider interface {
	// LookupAsset returns a single file, folder or version stack.
	LookupAsset(ctx context.Context, id string) (*domain.AssetNode, error)
	// LookupProject returns a project and its root container id.
	LookupProject(ctx context.Context, id string) (*domain.Project, error)
	// ListChildren returns the immediate children of a container, or the
	// versions of a version stack.
	ListChildren(ctx context.Context, id string) ([]*domain.AssetNode, error)
}

// ContentSource opens streaming reads of file content.
type ContentSource interface {
	OpenContentStream(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Source is a complete remote asset service.
type Source interface {
	TreeProvider
	ContentSource
}

// ReportStore keeps job reports so callers can poll for completion.
type ReportStore interface {
	Save(ctx context.Context, report *domain.JobReport) error
	Get(ctx context.Context, id string) (*domain.JobReport, error)
}

// VersionPolicy picks the representative of a version stack.
type VersionPolicy string

const (
	// VersionFirst takes the first listed version.
	VersionFirst VersionPolicy = "first"
	// VersionLatest takes the highest version number, then the newest.
	VersionLatest VersionPolicy = "latest"
)

// PathPolicy controls how asset names become key segments.
type PathPolicy string

const (
	// PathSafe replaces separators and control characters in segments.
	PathSafe PathPolicy = "safe"
	// PathVerbatim uses names exactly as the source reports them.
	PathVerbatim PathPolicy = "verbatim"
)

// Config holds configuration for the archive pipeline
type Config struct {
	WorkerCount     int           // Leaves transferred concurrently per job
	MaxTransfers    int           // Transfers in flight across all jobs
	RetryAttempts   int           // Attempts per fetch or transfer, including the first
	RetryBackoff    time.Duration // Initial backoff, doubled per attempt
	VersionPolicy   VersionPolicy
	PathPolicy      PathPolicy
	KeyPrefix       string // Prepended to every object key
	MaxDepth        int
	SkipExisting    bool
	PartSize        int64 // Multipart threshold and part size
	PartConcurrency int   // Parts in flight per file
	JobTimeout      time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		WorkerCount:     4,
		MaxTransfers:    16,
		RetryAttempts:   3,
		RetryBackoff:    2 * time.Second,
		VersionPolicy:   VersionFirst,
		PathPolicy:      PathSafe,
		MaxDepth:        64,
		PartSize:        16 * 1024 * 1024,
		PartConcurrency: 5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WorkerCount < 1 {
		c.WorkerCount = 1
	}
	if c.MaxTransfers < 1 {
		c.MaxTransfers = d.MaxTransfers
	}
	if c.RetryAttempts < 1 {
		c.RetryAttempts = 1
	}
	if c.RetryBackoff < 0 {
		c.RetryBackoff = 0
	}
	if c.VersionPolicy == "" {
		c.VersionPolicy = d.VersionPolicy
	}
	if c.PathPolicy == "" {
		c.PathPolicy = d.PathPolicy
	}
	if c.MaxDepth < 1 {
		c.MaxDepth = d.MaxDepth
	}
	if c.PartSize <= 0 {
		c.PartSize = d.PartSize
	}
	if c.PartConcurrency < 1 {
		c.PartConcurrency = 1
	}
	return c
}

// Request is one inbound archive request.
type Request struct {
	ResourceID  string
	Destination string
}
