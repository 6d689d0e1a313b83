package ops

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/siakad/templar/internal/config"
	"github.com/siakad/templar/internal/db"
	"github.com/siakad/templar/internal/errors"
	"github.com/siakad/templar/internal/tmpl"
)

// ImportMode controls name collision behavior during import.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // fail on name collision
	ImportModeReplace ImportMode = "replace" // soft-delete the existing template
)

// ImportInput contains parameters for the Import operation.
// Either Path or Data (with Filename) is required.
type ImportInput struct {
	Path     string     // file on disk, checked by ValidatePath
	Filename string     // required with Data; decides the format
	Data     []byte     // uploaded content
	Name     string     // default: file name without extension
	Mode     ImportMode // default: error
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	SourceKind tmpl.SourceKind `json:"source_kind"`
	RawChars   int             `json:"raw_chars"`
	Replaced   string          `json:"replaced,omitempty"`
}

// Import converts a template file and stores it.
func Import(ctx context.Context, database *sql.DB, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	if input.Mode != ImportModeError && input.Mode != ImportModeReplace {
		return nil, errors.NewInvalidRequest("mode must be one of: error, replace")
	}

	filename, data, err := readImport(input, cfg)
	if err != nil {
		return nil, err
	}

	name := input.Name
	if strings.TrimSpace(name) == "" {
		base := filepath.Base(filename)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	nameNorm := tmpl.Normalize(name)
	if nameNorm == "" {
		return nil, errors.NewInvalidRequest("name must not be empty")
	}

	ingested, err := tmpl.Ingest(filename, data)
	if err != nil {
		return nil, err
	}

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	now := time.Now().Unix()
	t := &tmpl.Template{
		ID:         id,
		NameRaw:    name,
		NameNorm:   nameNorm,
		SourceKind: ingested.Kind,
		Source:     ingested.Source,
		RawText:    ingested.RawText,
		HTML:       ingested.HTML,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	out := &ImportOutput{
		ID:         id,
		Name:       name,
		SourceKind: t.SourceKind,
		RawChars:   tmpl.CountChars(t.RawText),
	}

	if input.Mode == ImportModeReplace {
		existing, err := db.GetByName(ctx, database, nameNorm)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			if err := db.Replace(ctx, database, existing.ID, t); err != nil {
				return nil, collisionError(err, name)
			}
			out.Replaced = existing.ID
			return out, nil
		}
	}

	if err := db.Insert(ctx, database, t); err != nil {
		return nil, collisionError(err, name)
	}
	return out, nil
}

func collisionError(err error, name string) error {
	if err == db.ErrUniqueConstraint {
		return errors.NewNameAlreadyExists(name)
	}
	return err
}

// readImport returns the filename and content of the import, enforcing the size limit.
func readImport(input ImportInput, cfg *config.Config) (string, []byte, error) {
	maxBytes := config.DefaultConfig().MaxTemplateBytes
	if cfg != nil && cfg.MaxTemplateBytes > 0 {
		maxBytes = cfg.MaxTemplateBytes
	}

	if input.Path != "" && input.Data != nil {
		return "", nil, errors.NewInvalidRequest("specify either path or data, not both")
	}

	if input.Data != nil {
		if strings.TrimSpace(input.Filename) == "" {
			return "", nil, errors.NewMissingField("filename")
		}
		if len(input.Data) > maxBytes {
			return "", nil, errors.NewTemplateTooLarge(maxBytes, len(input.Data))
		}
		return input.Filename, input.Data, nil
	}

	if input.Path == "" {
		return "", nil, errors.NewInvalidRequest("path or data is required")
	}
	if err := ValidatePath(input.Path, PathCheckRead, cfg); err != nil {
		return "", nil, err
	}

	f, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return "", nil, err
		}
		return "", nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, int64(maxBytes)+1))
	if err != nil {
		return "", nil, errors.NewInternal(fmt.Errorf("failed to read import file: %w", err))
	}
	if len(data) > maxBytes {
		info, statErr := f.Stat()
		actual := len(data)
		if statErr == nil {
			actual = int(info.Size())
		}
		return "", nil, errors.NewTemplateTooLarge(maxBytes, actual)
	}
	return input.Path, data, nil
}
