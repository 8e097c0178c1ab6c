package archive

import "github.com/andresuchdata/frameio-archiver/internal/domain"

// Disposition says how the resolver treats a node.
type Disposition int

const (
	DispositionInvalid Disposition = iota
	// DispositionLeaf is kept as is and transferred.
	DispositionLeaf
	// DispositionVersionContainer collapses to one representative version.
	DispositionVersionContainer
	// DispositionContainer is expanded recursively.
	DispositionContainer
)

func (d Disposition) String() string {
	switch d {
	case DispositionLeaf:
		return "leaf"
	case DispositionVersionContainer:
		return "version_container"
	case DispositionContainer:
		return "container"
	}
	return "invalid"
}

// Classify maps a node kind to its disposition.
func Classify(kind domain.Kind) Disposition {
	switch kind {
	case domain.KindFile:
		return DispositionLeaf
	case domain.KindVersionStack:
		return DispositionVersionContainer
	case domain.KindFolder, domain.KindProject:
		return DispositionContainer
	}
	return DispositionInvalid
}
