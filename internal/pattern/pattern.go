// Package pattern defines the labeled matching rules used to spot candidate
// template fields in document text.
package pattern

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Type classifies what a pattern matches.
type Type string

const (
	TypeHeader    Type = "header"
	TypeIdentity  Type = "identity"
	TypeSignature Type = "signature"
	TypeTable     Type = "table"
	TypeContent   Type = "content"
	TypeDate      Type = "date"
	TypeNumber    Type = "number"
)

// KnownTypes lists every pattern type in display order.
var KnownTypes = []Type{
	TypeHeader, TypeIdentity, TypeSignature, TypeTable, TypeContent, TypeDate, TypeNumber,
}

// Valid reports whether t is a known pattern type.
func (t Type) Valid() bool {
	return slices.Contains(KnownTypes, t)
}

// Pattern is a named, typed matching rule.
type Pattern struct {
	Type    Type   `yaml:"type" json:"type"`
	Matcher string `yaml:"matcher" json:"matcher"`
	Label   string `yaml:"label" json:"label"`

	// Frequency is a prior in [0,1] for how often a match is a real variable.
	Frequency float64 `yaml:"frequency" json:"frequency"`

	// IsCommon marks boilerplate structure rather than a per-document value.
	IsCommon bool `yaml:"is_common" json:"is_common"`
}

// Library is an immutable, ordered set of patterns.
type Library struct {
	patterns []Pattern
}

// NewLibrary copies patterns into a Library.
func NewLibrary(patterns []Pattern) Library {
	return Library{patterns: slices.Clone(patterns)}
}

// Patterns returns a copy of the library's patterns in declaration order.
func (l Library) Patterns() []Pattern {
	return slices.Clone(l.patterns)
}

// Len returns the number of patterns.
func (l Library) Len() int {
	return len(l.patterns)
}

// Frequency returns the prior of the first pattern with the given label.
func (l Library) Frequency(label string) (float64, bool) {
	for _, p := range l.patterns {
		if p.Label == label {
			return p.Frequency, true
		}
	}
	return 0, false
}

// libraryFile is the YAML document shape.
type libraryFile struct {
	Patterns []Pattern `yaml:"patterns"`
}

// Parse decodes a YAML library document.
// Matchers are not compiled here; a malformed regex is reported by the matcher.
func Parse(data []byte) (Library, error) {
	var f libraryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Library{}, fmt.Errorf("parse pattern library: %w", err)
	}
	for i, p := range f.Patterns {
		if p.Label == "" {
			return Library{}, fmt.Errorf("pattern %d: label is required", i)
		}
		if !p.Type.Valid() {
			return Library{}, fmt.Errorf("pattern %q: unknown type %q", p.Label, p.Type)
		}
		if p.Frequency < 0 || p.Frequency > 1 {
			return Library{}, fmt.Errorf("pattern %q: frequency %v outside [0,1]", p.Label, p.Frequency)
		}
	}
	return NewLibrary(f.Patterns), nil
}

// LoadFile reads a YAML library from path.
func LoadFile(path string) (Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Library{}, fmt.Errorf("read pattern library: %w", err)
	}
	return Parse(data)
}

// Marshal encodes the library as YAML.
func (l Library) Marshal() ([]byte, error) {
	return yaml.Marshal(libraryFile{Patterns: l.patterns})
}

// Load returns the library at path, or the default library when path is empty.
func Load(path string) (Library, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}
