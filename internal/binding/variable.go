// Package binding holds the user-curated mapping from text spans to named
// placeholders, with linear undo/redo history.
package binding

import (
	"crypto/rand"
	"regexp"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
)

// VarType constrains the shape of the value substituted for a variable.
type VarType string

const (
	TypeText   VarType = "text"
	TypeNumber VarType = "number"
	TypeDate   VarType = "date"
)

// Valid reports whether t is a known variable type.
func (t VarType) Valid() bool {
	switch t {
	case TypeText, TypeNumber, TypeDate:
		return true
	}
	return false
}

// ParseVarType maps "" to text and rejects unknown names.
func ParseVarType(s string) (VarType, bool) {
	if s == "" {
		return TypeText, true
	}
	t := VarType(s)
	return t, t.Valid()
}

var keyRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidKey reports whether key can be used as a substitution token.
func ValidKey(key string) bool {
	return keyRe.MatchString(key)
}

// TemplateVariable binds a literal text to a named placeholder.
// Key and TextContent never change after creation.
type TemplateVariable struct {
	ID          string  `json:"id"`
	Key         string  `json:"key"`
	Label       string  `json:"label"`
	Type        VarType `json:"type"`
	TextContent string  `json:"text_content"`
	StartIndex  int     `json:"start_index"`
	EndIndex    int     `json:"end_index"`
}

// Set maps key to variable.
type Set map[string]TemplateVariable

// Clone returns an independent copy of s. A nil set clones to an empty one.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Keys returns the keys in sorted order.
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sorted returns the variables ordered by StartIndex, then key.
func (s Set) Sorted() []TemplateVariable {
	out := make([]TemplateVariable, 0, len(s))
	for _, v := range s {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartIndex != out[j].StartIndex {
			return out[i].StartIndex < out[j].StartIndex
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// NewID returns a ULID string for a new variable.
func NewID(now time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}
