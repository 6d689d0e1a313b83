package ops

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/siakad/templar/internal/binding"
	"github.com/siakad/templar/internal/db"
	"github.com/siakad/templar/internal/errors"
	"github.com/siakad/templar/internal/tmpl"
)

// SaveInput contains parameters for the SaveVariables operation.
type SaveInput struct {
	ID              string
	Name            string
	Variables       []binding.TemplateVariable
	ExpectedVersion int64 // must equal the stored version
}

// SaveOutput contains the result of a variable save.
type SaveOutput struct {
	TemplateID string           `json:"template_id"`
	Version    int64            `json:"version"`
	Count      int              `json:"count"`
	Lint       *tmpl.LintResult `json:"lint"`
}

// SaveVariables replaces a template's variable set. A stale ExpectedVersion
// fails with CONFLICT and leaves the stored set unchanged.
func SaveVariables(ctx context.Context, database *sql.DB, input SaveInput) (*SaveOutput, error) {
	t, err := ResolveTemplate(ctx, database, TemplateRef{ID: input.ID, Name: input.Name})
	if err != nil {
		return nil, err
	}

	set, err := buildSet(input.Variables, len(t.RawText))
	if err != nil {
		return nil, err
	}

	version, err := db.ReplaceVariables(ctx, database, t.ID, set, input.ExpectedVersion)
	if err != nil {
		return nil, err
	}

	return &SaveOutput{
		TemplateID: t.ID,
		Version:    version,
		Count:      len(set),
		Lint:       tmpl.LintTemplate(t, set),
	}, nil
}

// buildSet validates a submitted variable list with the same rules a
// binding session applies, and fills in missing IDs and types.
func buildSet(vars []binding.TemplateVariable, textLen int) (binding.Set, error) {
	set := make(binding.Set, len(vars))
	now := time.Now()

	for i, v := range vars {
		var missing []string
		if v.Key == "" {
			missing = append(missing, fmt.Sprintf("variables[%d].key", i))
		}
		if strings.TrimSpace(v.Label) == "" {
			missing = append(missing, fmt.Sprintf("variables[%d].label", i))
		}
		if v.TextContent == "" {
			missing = append(missing, fmt.Sprintf("variables[%d].text_content", i))
		}
		if len(missing) > 0 {
			return nil, errors.NewMissingField(missing...)
		}
		if !binding.ValidKey(v.Key) {
			return nil, errors.NewInvalidKeyFormat(v.Key)
		}
		if _, dup := set[v.Key]; dup {
			return nil, errors.NewDuplicateKey(v.Key)
		}

		typ, ok := binding.ParseVarType(string(v.Type))
		if !ok {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("variable %q: unknown type %q", v.Key, v.Type))
		}
		v.Type = typ

		if v.StartIndex < 0 || v.EndIndex <= v.StartIndex || v.EndIndex > textLen {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("variable %q: span [%d, %d) is outside the text", v.Key, v.StartIndex, v.EndIndex))
		}
		if v.ID == "" {
			v.ID = binding.NewID(now)
		}
		set[v.Key] = v
	}
	return set, nil
}
