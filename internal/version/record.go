package version

import (
	"fmt"
	"strings"
)

const (
	parentSuffix       = "-parent"
	dependenciesSuffix = "-dependencies"
)

// Record is an immutable (name, version) pair. Two records denote the same
// project when their normalized names are equal.
type Record struct {
	name    string
	version string
}

// NewRecord creates a Record, stripping a trailing "-parent" from name.
func NewRecord(name, version string) Record {
	return Record{name: NormalizeName(name), version: strings.TrimSpace(version)}
}

// newRawRecord keeps name verbatim. Used for the reserved BOM parent artifact.
func newRawRecord(name, version string) Record {
	return Record{name: strings.TrimSpace(name), version: strings.TrimSpace(version)}
}

// Name returns the normalized project name.
func (r Record) Name() string { return r.name }

// Version returns the version string.
func (r Record) Version() string { return r.version }

// IsZero reports whether r is the zero Record.
func (r Record) IsZero() bool { return r.name == "" && r.version == "" }

// String renders the record as "name=version".
func (r Record) String() string {
	return fmt.Sprintf("%s=%s", r.name, r.version)
}

// NormalizeName strips surrounding whitespace and a trailing "-parent".
func NormalizeName(name string) string {
	return strings.TrimSuffix(strings.TrimSpace(name), parentSuffix)
}
