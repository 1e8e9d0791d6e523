// Package sourcemap translates locations in an executed artifact back to the
// authored source they were generated from.
package sourcemap

// Location is a 1-based line and column within a single coordinate space.
// Artifact coordinates and authored-source coordinates must never mix; a
// Mapper is the only component that crosses between them.
type Location struct {
	Line   int
	Column int
}

// Mapper resolves artifact locations to authored-source locations.
type Mapper interface {
	// Resolve reports the source location for an artifact location, or false
	// when no mapping exists.
	Resolve(loc Location) (Location, bool)
}
