package ops

import (
	"context"
	"database/sql"

	"github.com/siakad/templar/internal/binding"
	"github.com/siakad/templar/internal/db"
	"github.com/siakad/templar/internal/errors"
	"github.com/siakad/templar/internal/render"
	"github.com/siakad/templar/internal/tmpl"
)

// Sessions are keyed by template ID. Every call except OpenSession fails
// with NOT_FOUND when no session is open for the template.

// SessionState is a snapshot of an editing session.
type SessionState struct {
	TemplateID string                     `json:"template_id"`
	Version    int64                      `json:"version"`
	Variables  []binding.TemplateVariable `json:"variables"`
	CanUndo    bool                       `json:"can_undo"`
	CanRedo    bool                       `json:"can_redo"`
	HistoryLen int                        `json:"history_len"`
	Cursor     int                        `json:"cursor"`
}

func stateOf(s *binding.Session) *SessionState {
	return &SessionState{
		TemplateID: s.Document().TemplateID,
		Version:    s.Version(),
		Variables:  s.Variables().Sorted(),
		CanUndo:    s.CanUndo(),
		CanRedo:    s.CanRedo(),
		HistoryLen: s.HistoryLen(),
		Cursor:     s.Cursor(),
	}
}

// SessionOpenInput addresses the template to open a session for.
type SessionOpenInput struct {
	ID   string
	Name string
}

// OpenSession starts a session seeded with the template's saved variables.
// An existing session for the template is discarded.
func OpenSession(ctx context.Context, database *sql.DB, mgr *binding.Manager, input SessionOpenInput) (*SessionState, error) {
	t, err := ResolveTemplate(ctx, database, TemplateRef{ID: input.ID, Name: input.Name})
	if err != nil {
		return nil, err
	}
	set, version, err := db.LoadVariables(ctx, database, t.ID)
	if err != nil {
		return nil, err
	}
	return stateOf(mgr.Open(documentOf(t), set, version)), nil
}

// SelectOutput is the span of a selected text.
type SelectOutput struct {
	Text string       `json:"text"`
	Span binding.Span `json:"span"`
}

// SessionSelect finds the first occurrence of text in the session's raw text.
func SessionSelect(mgr *binding.Manager, templateID, text string) (*SelectOutput, error) {
	var out *SelectOutput
	err := mgr.With(templateID, func(s *binding.Session) error {
		span, err := s.SelectSpan(text)
		if err != nil {
			return err
		}
		out = &SelectOutput{Text: text, Span: span}
		return nil
	})
	return out, err
}

// SessionChange is the result of a mutating session call.
type SessionChange struct {
	Variable *binding.TemplateVariable `json:"variable,omitempty"`
	Changed  bool                      `json:"changed"`
	State    *SessionState             `json:"state"`
}

// SessionAdd adds a variable. A zero span is filled from the first
// occurrence of the variable's text.
func SessionAdd(mgr *binding.Manager, templateID string, in binding.AddInput) (*SessionChange, error) {
	var out *SessionChange
	err := mgr.With(templateID, func(s *binding.Session) error {
		if in.Span == (binding.Span{}) && in.TextContent != "" {
			span, err := s.SelectSpan(in.TextContent)
			if err != nil {
				return err
			}
			in.Span = span
		}
		v, err := s.AddVariable(in)
		if err != nil {
			return err
		}
		out = &SessionChange{Variable: &v, Changed: true, State: stateOf(s)}
		return nil
	})
	return out, err
}

// SessionEdit changes the label and/or type of a variable.
func SessionEdit(mgr *binding.Manager, templateID, key string, patch binding.Patch) (*SessionChange, error) {
	var out *SessionChange
	err := mgr.With(templateID, func(s *binding.Session) error {
		v, err := s.EditVariable(key, patch)
		if err != nil {
			return err
		}
		out = &SessionChange{Variable: &v, Changed: true, State: stateOf(s)}
		return nil
	})
	return out, err
}

// SessionDelete removes a variable.
func SessionDelete(mgr *binding.Manager, templateID, key string) (*SessionChange, error) {
	var out *SessionChange
	err := mgr.With(templateID, func(s *binding.Session) error {
		if err := s.DeleteVariable(key); err != nil {
			return err
		}
		out = &SessionChange{Changed: true, State: stateOf(s)}
		return nil
	})
	return out, err
}

// SessionUndo steps back one history entry. Changed is false at the start of history.
func SessionUndo(mgr *binding.Manager, templateID string) (*SessionChange, error) {
	var out *SessionChange
	err := mgr.With(templateID, func(s *binding.Session) error {
		out = &SessionChange{Changed: s.Undo(), State: stateOf(s)}
		return nil
	})
	return out, err
}

// SessionRedo steps forward one history entry. Changed is false at the end of history.
func SessionRedo(mgr *binding.Manager, templateID string) (*SessionChange, error) {
	var out *SessionChange
	err := mgr.With(templateID, func(s *binding.Session) error {
		out = &SessionChange{Changed: s.Redo(), State: stateOf(s)}
		return nil
	})
	return out, err
}

// SessionVariables returns the current session state.
func SessionVariables(mgr *binding.Manager, templateID string) (*SessionState, error) {
	var out *SessionState
	err := mgr.With(templateID, func(s *binding.Session) error {
		out = stateOf(s)
		return nil
	})
	return out, err
}

// RenderOutput is the highlighted preview of a session.
type RenderOutput struct {
	HTML  string        `json:"html"`
	State *SessionState `json:"state"`
}

// SessionRender highlights the current variables over the session's document.
func SessionRender(mgr *binding.Manager, templateID string, opts render.Options) (*RenderOutput, error) {
	var out *RenderOutput
	err := mgr.With(templateID, func(s *binding.Session) error {
		out = &RenderOutput{
			HTML:  render.Document(s.Document(), s.Variables(), opts),
			State: stateOf(s),
		}
		return nil
	})
	return out, err
}

// SaveSession persists the session's current variables. On CONFLICT or a
// storage failure the session is left exactly as it was.
func SaveSession(ctx context.Context, database *sql.DB, mgr *binding.Manager, templateID string) (*SaveOutput, error) {
	var out *SaveOutput
	err := mgr.With(templateID, func(s *binding.Session) error {
		set := s.Variables()
		version, err := db.ReplaceVariables(ctx, database, templateID, set, s.Version())
		if err != nil {
			return err
		}
		s.SetVersion(version)
		lint := tmpl.Lint(s.Document().RawText, set)
		if t, err := ResolveTemplate(ctx, database, TemplateRef{ID: templateID}); err == nil {
			lint = tmpl.LintTemplate(t, set)
		}
		out = &SaveOutput{
			TemplateID: templateID,
			Version:    version,
			Count:      len(set),
			Lint:       lint,
		}
		return nil
	})
	return out, err
}

// CloseOutput reports whether a session was open.
type CloseOutput struct {
	TemplateID string `json:"template_id"`
	Closed     bool   `json:"closed"`
}

// CloseSession discards the session without saving.
func CloseSession(mgr *binding.Manager, templateID string) (*CloseOutput, error) {
	if templateID == "" {
		return nil, errors.NewMissingField("template_id")
	}
	return &CloseOutput{TemplateID: templateID, Closed: mgr.Close(templateID)}, nil
}
