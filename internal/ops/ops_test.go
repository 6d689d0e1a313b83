package ops

import (
	"context"
	"database/sql"
	"testing"

	"github.com/siakad/templar/internal/config"
	"github.com/siakad/templar/internal/db"
	"github.com/siakad/templar/internal/errors"
)

const suratMD = `# SURAT KETERANGAN

Nomor: 123/UN1.FT/KM/2024

Yang bertanda tangan di bawah ini menerangkan bahwa Budi Santoso adalah mahasiswa Program Studi Teknik Informatika.

Jakarta, 15 Januari 2024
`

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// importSurat stores suratMD under name and returns the new template ID.
func importSurat(t *testing.T, database *sql.DB, name string) string {
	t.Helper()
	out, err := Import(context.Background(), database, config.DefaultConfig(), ImportInput{
		Filename: "surat.md",
		Data:     []byte(suratMD),
		Name:     name,
	})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	return out.ID
}

func intPtr(i int) *int {
	return &i
}

func TestTemplateRef_Validate(t *testing.T) {
	tests := []struct {
		name    string
		ref     TemplateRef
		wantErr bool
	}{
		{"by id", TemplateRef{ID: "01ABC"}, false},
		{"by name", TemplateRef{Name: "Surat Aktif"}, false},
		{"both", TemplateRef{ID: "01ABC", Name: "Surat"}, true},
		{"neither", TemplateRef{}, true},
		{"blank name", TemplateRef{Name: "   "}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.ref.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected INVALID_REQUEST, got %v", err)
			}
		})
	}
}

func TestResolveTemplate(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	id := importSurat(t, database, "Surat Keterangan")

	byID, err := ResolveTemplate(ctx, database, TemplateRef{ID: id})
	if err != nil {
		t.Fatalf("ResolveTemplate(id) failed: %v", err)
	}
	byName, err := ResolveTemplate(ctx, database, TemplateRef{Name: "  surat   KETERANGAN "})
	if err != nil {
		t.Fatalf("ResolveTemplate(name) failed: %v", err)
	}
	if byID.ID != id || byName.ID != id {
		t.Errorf("resolved %q / %q, want %q", byID.ID, byName.ID, id)
	}

	if _, err := ResolveTemplate(ctx, database, TemplateRef{Name: "tidak ada"}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestClampLimit(t *testing.T) {
	if got := clampLimit(0, 20, 100); got != 20 {
		t.Errorf("clampLimit(0) = %d, want 20", got)
	}
	if got := clampLimit(500, 20, 100); got != 100 {
		t.Errorf("clampLimit(500) = %d, want 100", got)
	}
	if got := clampLimit(7, 20, 100); got != 7 {
		t.Errorf("clampLimit(7) = %d, want 7", got)
	}
}
