// Package tmpl defines the stored template record and turns uploaded files
// into the source, preview HTML and raw text a session works against.
package tmpl

// SourceKind is the format a template was imported from.
type SourceKind string

const (
	KindMarkdown SourceKind = "markdown"
	KindDocx     SourceKind = "docx"
	KindText     SourceKind = "text"
)

// Template is an imported document template.
type Template struct {
	// ID is a ULID that uniquely identifies this template
	ID string

	// NameRaw is the name as provided by the user
	NameRaw string

	// NameNorm is the normalized name used for lookups (lowercased, trimmed, collapsed spaces)
	NameNorm string

	// SourceKind is the original format
	SourceKind SourceKind

	// Source holds the original bytes: markdown text or the DOCX archive
	Source []byte

	// RawText is the plain text that detection and span selection run against
	RawText string

	// HTML is the sanitized preview rendering of the source
	HTML string

	// VariablesVersion increments on every saved variable set
	VariablesVersion int64

	// CreatedAt is the Unix timestamp when the template was imported
	CreatedAt int64

	// UpdatedAt is the Unix timestamp of the last change
	UpdatedAt int64

	// DeletedAt is the Unix timestamp for soft delete (nullable)
	DeletedAt *int64
}

// Summary is a template without its content. Used for list output.
type Summary struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	NameNorm         string     `json:"name_norm"`
	SourceKind       SourceKind `json:"source_kind"`
	RawChars         int        `json:"raw_chars"`
	VariablesVersion int64      `json:"variables_version"`
	CreatedAt        int64      `json:"created_at"`
	UpdatedAt        int64      `json:"updated_at"`
	DeletedAt        *int64     `json:"deleted_at,omitempty"`
}

// ToSummary strips the content from t.
func (t *Template) ToSummary() Summary {
	return Summary{
		ID:               t.ID,
		Name:             t.NameRaw,
		NameNorm:         t.NameNorm,
		SourceKind:       t.SourceKind,
		RawChars:         CountChars(t.RawText),
		VariablesVersion: t.VariablesVersion,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		DeletedAt:        t.DeletedAt,
	}
}

// OutputExt is the file extension of documents generated from t.
func (t *Template) OutputExt() string {
	switch t.SourceKind {
	case KindDocx:
		return ".docx"
	case KindText:
		return ".txt"
	}
	return ".md"
}

// Generated records a document produced from a template.
type Generated struct {
	ID               string            `json:"id"`
	TemplateID       string            `json:"template_id"`
	Filename         string            `json:"filename"`
	Path             string            `json:"path"`
	Format           string            `json:"format"`
	Bytes            int               `json:"bytes"`
	VariablesVersion int64             `json:"variables_version"`
	Values           map[string]string `json:"values"`
	CreatedAt        int64             `json:"created_at"`
}
