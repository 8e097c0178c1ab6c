package domain

import "strings"

// DestinationPath is the ordered list of key segments for one leaf: project
// name, ancestor folder names, leaf name.
type DestinationPath []string

// String joins the segments into an object key.
func (p DestinationPath) String() string {
	return strings.Join(p, "/")
}

// Leaf returns the last segment.
func (p DestinationPath) Leaf() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}
