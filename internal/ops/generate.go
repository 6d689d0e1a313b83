package ops

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/siakad/templar/internal/config"
	"github.com/siakad/templar/internal/db"
	"github.com/siakad/templar/internal/errors"
	"github.com/siakad/templar/internal/generate"
	"github.com/siakad/templar/internal/tmpl"
)

// GenerateInput contains parameters for the Generate operation.
type GenerateInput struct {
	ID     string
	Name   string
	Values map[string]string // key -> value, one per saved variable
	Path   string            // optional; default ~/.templar/outputs/<name>-<timestamp>.<ext>
}

// GenerateOutput describes the written document.
type GenerateOutput struct {
	ID         string `json:"id"`
	TemplateID string `json:"template_id"`
	Filename   string `json:"filename"`
	Path       string `json:"path"`
	Format     string `json:"format"`
	Bytes      int    `json:"bytes"`

	// Data is the generated content, for surfaces that stream it back.
	Data []byte `json:"-"`
}

// Generate fills a template's saved variables with values, writes the result
// and records it in the template's history.
func Generate(ctx context.Context, database *sql.DB, cfg *config.Config, input GenerateInput) (*GenerateOutput, error) {
	t, err := ResolveTemplate(ctx, database, TemplateRef{ID: input.ID, Name: input.Name})
	if err != nil {
		return nil, err
	}

	set, version, err := db.LoadVariables(ctx, database, t.ID)
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return nil, errors.NewInvalidRequest("template has no saved variables")
	}
	if err := generate.ValidateValues(set, input.Values); err != nil {
		return nil, err
	}

	data, err := t.Fill(set, input.Values)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	path := input.Path
	if path == "" {
		dir, err := DefaultOutputsDir()
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, errors.NewPersistence(fmt.Errorf("failed to create outputs directory: %w", err))
		}
		path = filepath.Join(dir, generate.OutputName(t.NameRaw, t.OutputExt(), now))
	}
	if err := ValidatePath(path, PathCheckWrite, cfg); err != nil {
		return nil, err
	}
	if err := writeOutput(path, data); err != nil {
		return nil, err
	}

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	g := &tmpl.Generated{
		ID:               id,
		TemplateID:       t.ID,
		Filename:         filepath.Base(absPath),
		Path:             absPath,
		Format:           string(t.SourceKind),
		Bytes:            len(data),
		VariablesVersion: version,
		Values:           input.Values,
		CreatedAt:        now.Unix(),
	}
	if err := db.InsertGenerated(ctx, database, g); err != nil {
		return nil, err
	}

	return &GenerateOutput{
		ID:         g.ID,
		TemplateID: g.TemplateID,
		Filename:   g.Filename,
		Path:       g.Path,
		Format:     g.Format,
		Bytes:      g.Bytes,
		Data:       data,
	}, nil
}

func writeOutput(path string, data []byte) error {
	f, err := openFileNoFollow(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.NewPersistence(fmt.Errorf("failed to create output file: %w", err))
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.NewPersistence(fmt.Errorf("failed to write output file: %w", err))
	}
	if err := f.Close(); err != nil {
		return errors.NewPersistence(fmt.Errorf("failed to close output file: %w", err))
	}
	return nil
}
