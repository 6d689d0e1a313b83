package binding

import (
	"strings"
	"time"

	"github.com/siakad/templar/internal/errors"
)

// Document is the pair of texts a session edits against.
type Document struct {
	TemplateID string
	RawText    string
	HTML       string
}

// Span is a half-open byte range in the raw text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// AddInput describes a new variable.
type AddInput struct {
	Key         string
	Label       string
	Type        VarType
	Span        Span
	TextContent string
}

// Patch updates a variable. Nil fields are left alone.
type Patch struct {
	Label *string
	Type  *VarType
}

// Session is the editing state for one document. It is not safe for
// concurrent use; see Manager.
type Session struct {
	doc     Document
	history []Set
	cursor  int
	version int64
	now     func() time.Time
}

// NewSession starts a session whose first history entry is a copy of initial.
func NewSession(doc Document, initial Set) *Session {
	return &Session{
		doc:     doc,
		history: []Set{initial.Clone()},
		now:     time.Now,
	}
}

// Document returns the document being edited.
func (s *Session) Document() Document {
	return s.doc
}

// Version is the persisted variables version the session started from.
func (s *Session) Version() int64 {
	return s.version
}

// SetVersion records the version after a successful save.
func (s *Session) SetVersion(v int64) {
	s.version = v
}

// SelectSpan locates the first verbatim occurrence of text in the raw text.
func (s *Session) SelectSpan(text string) (Span, error) {
	if text == "" {
		return Span{}, errors.NewMissingField("text")
	}
	i := strings.Index(s.doc.RawText, text)
	if i < 0 {
		return Span{}, errors.NewSpanNotFound(text)
	}
	return Span{Start: i, End: i + len(text)}, nil
}

// AddVariable validates input and inserts a new variable.
func (s *Session) AddVariable(in AddInput) (TemplateVariable, error) {
	var missing []string
	if in.Key == "" {
		missing = append(missing, "key")
	}
	if strings.TrimSpace(in.Label) == "" {
		missing = append(missing, "label")
	}
	if in.TextContent == "" {
		missing = append(missing, "text_content")
	}
	if len(missing) > 0 {
		return TemplateVariable{}, errors.NewMissingField(missing...)
	}
	if !ValidKey(in.Key) {
		return TemplateVariable{}, errors.NewInvalidKeyFormat(in.Key)
	}

	cur := s.current()
	if _, exists := cur[in.Key]; exists {
		return TemplateVariable{}, errors.NewDuplicateKey(in.Key)
	}

	typ, ok := ParseVarType(string(in.Type))
	if !ok {
		return TemplateVariable{}, errors.NewInvalidRequest("type must be one of: text, number, date")
	}
	if in.Span.Start < 0 || in.Span.End <= in.Span.Start || in.Span.End > len(s.doc.RawText) {
		return TemplateVariable{}, errors.NewInvalidRequest("span is outside the document")
	}

	v := TemplateVariable{
		ID:          NewID(s.now()),
		Key:         in.Key,
		Label:       in.Label,
		Type:        typ,
		TextContent: in.TextContent,
		StartIndex:  in.Span.Start,
		EndIndex:    in.Span.End,
	}
	next := cur.Clone()
	next[v.Key] = v
	s.push(next)
	return v, nil
}

// DeleteVariable removes key. An absent key is NOT_FOUND.
func (s *Session) DeleteVariable(key string) error {
	cur := s.current()
	if _, ok := cur[key]; !ok {
		return errors.NewNotFound(key)
	}
	next := cur.Clone()
	delete(next, key)
	s.push(next)
	return nil
}

// EditVariable updates the label and/or type of key.
func (s *Session) EditVariable(key string, p Patch) (TemplateVariable, error) {
	cur := s.current()
	v, ok := cur[key]
	if !ok {
		return TemplateVariable{}, errors.NewNotFound(key)
	}
	if p.Label != nil {
		if strings.TrimSpace(*p.Label) == "" {
			return TemplateVariable{}, errors.NewMissingField("label")
		}
		v.Label = *p.Label
	}
	if p.Type != nil {
		typ, ok := ParseVarType(string(*p.Type))
		if !ok {
			return TemplateVariable{}, errors.NewInvalidRequest("type must be one of: text, number, date")
		}
		v.Type = typ
	}
	next := cur.Clone()
	next[key] = v
	s.push(next)
	return v, nil
}

// Undo moves the cursor back. It returns false at the first entry.
func (s *Session) Undo() bool {
	if s.cursor == 0 {
		return false
	}
	s.cursor--
	return true
}

// Redo moves the cursor forward. It returns false at the last entry.
func (s *Session) Redo() bool {
	if s.cursor >= len(s.history)-1 {
		return false
	}
	s.cursor++
	return true
}

// CanUndo reports whether Undo would move the cursor.
func (s *Session) CanUndo() bool { return s.cursor > 0 }

// CanRedo reports whether Redo would move the cursor.
func (s *Session) CanRedo() bool { return s.cursor < len(s.history)-1 }

// HistoryLen is the number of entries in the history, the initial set included.
func (s *Session) HistoryLen() int { return len(s.history) }

// Cursor is the index of the current history entry.
func (s *Session) Cursor() int { return s.cursor }

// Variables returns a copy of the binding set at the cursor.
func (s *Session) Variables() Set {
	return s.current().Clone()
}

// Keys returns the current keys in sorted order.
func (s *Session) Keys() []string {
	return s.current().Keys()
}

func (s *Session) current() Set {
	return s.history[s.cursor]
}

// push drops any redo branch and appends next as the new current entry.
func (s *Session) push(next Set) {
	s.history = append(s.history[:s.cursor+1], next)
	s.cursor = len(s.history) - 1
}
