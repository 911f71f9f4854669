// Package interfaces defines contracts shared across packages
// to avoid circular dependencies.
package interfaces

// Version is a totally ordered point in a replica's history.
// hlc.Clock is the implementation used throughout this module.
type Version interface {
	// Compare returns -1 if this version is before other, 0 if equal, 1 if after
	Compare(other Version) int

	// String returns the canonical, lexicographically sortable encoding
	String() string

	// IsZero returns true if this is the zero/initial version
	IsZero() bool
}
