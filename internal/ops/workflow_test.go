package ops

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/siakad/templar/internal/binding"
	"github.com/siakad/templar/internal/config"
	"github.com/siakad/templar/internal/errors"
	"github.com/siakad/templar/internal/pattern"
	"github.com/siakad/templar/internal/render"
)

// TestFullWorkflow exercises the template lifecycle:
// import → detect → session edits → save → preview → generate → history → delete → purge
func TestFullWorkflow(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	ctx := context.Background()
	database := setupTestDB(t)
	cfg := config.DefaultConfig()
	mgr := binding.NewManager()

	// 1. Import
	id := importSurat(t, database, "Surat Keterangan Aktif")

	// 2. Detect
	matcher, err := NewMatcher(cfg, zap.NewNop())
	require.NoError(t, err)
	detected, err := Detect(ctx, database, matcher, DetectInput{ID: id})
	require.NoError(t, err)
	require.NotEmpty(t, detected.Fields)
	require.Equal(t, id, detected.TemplateID)

	var letterNumber bool
	for _, f := range detected.Fields {
		if f.Label == pattern.LabelLetterNumber && f.Value == "123/UN1.FT/KM/2024" {
			letterNumber = true
			require.True(t, f.IsVariable)
		}
	}
	require.True(t, letterNumber, "letter number should be detected")

	// 3. Session edits
	state, err := OpenSession(ctx, database, mgr, SessionOpenInput{ID: id})
	require.NoError(t, err)
	require.Empty(t, state.Variables)
	require.Equal(t, int64(0), state.Version)

	sel, err := SessionSelect(mgr, id, "Budi Santoso")
	require.NoError(t, err)

	_, err = SessionAdd(mgr, id, binding.AddInput{
		Key: "nama", Label: "Nama Mahasiswa", Span: sel.Span, TextContent: "Budi Santoso",
	})
	require.NoError(t, err)

	_, err = SessionAdd(mgr, id, binding.AddInput{
		Key: "tanggal", Label: "Tanggal Surat", Type: binding.TypeDate, TextContent: "15 Januari 2024",
	})
	require.NoError(t, err)

	_, err = SessionAdd(mgr, id, binding.AddInput{
		Key: "nomor", Label: "Nomor", TextContent: "123/UN1.FT/KM/2024",
	})
	require.NoError(t, err)

	undo, err := SessionUndo(mgr, id)
	require.NoError(t, err)
	require.True(t, undo.Changed)
	require.Len(t, undo.State.Variables, 2)

	rendered, err := SessionRender(mgr, id, render.Options{Mode: render.ModeEdit, EditingKey: "nama"})
	require.NoError(t, err)
	require.Contains(t, rendered.HTML, `data-key="nama"`)
	require.Contains(t, rendered.HTML, "tv-editing")

	// 4. Save
	saved, err := SaveSession(ctx, database, mgr, id)
	require.NoError(t, err)
	require.Equal(t, int64(1), saved.Version)
	require.Equal(t, 2, saved.Count)
	require.True(t, saved.Lint.Valid)

	// 5. Preview shows the saved mapping
	preview, err := Preview(ctx, database, PreviewInput{ID: id})
	require.NoError(t, err)
	require.Equal(t, int64(1), preview.Version)
	require.Len(t, preview.VariableMapping, 2)
	require.Equal(t, "nama", preview.VariableMapping[0].Key)
	require.Contains(t, preview.Highlighted, `data-key="tanggal"`)

	// 6. Generate
	gen, err := Generate(ctx, database, cfg, GenerateInput{
		ID:     id,
		Values: map[string]string{"nama": "Siti Aminah", "tanggal": "2024-02-01"},
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(gen.Filename, "surat-keterangan-aktif-"))
	require.True(t, strings.HasSuffix(gen.Filename, ".md"))

	written, err := os.ReadFile(gen.Path)
	require.NoError(t, err)
	require.Equal(t, gen.Data, written)
	require.Contains(t, string(written), "Siti Aminah")
	require.Contains(t, string(written), "Jakarta, 2024-02-01")
	require.NotContains(t, string(written), "Budi Santoso")

	// 7. History
	hist, err := History(ctx, database, HistoryInput{ID: id})
	require.NoError(t, err)
	require.Len(t, hist.Items, 1)
	require.Equal(t, gen.ID, hist.Items[0].ID)
	require.Equal(t, "Siti Aminah", hist.Items[0].Values["nama"])
	require.Equal(t, int64(1), hist.Items[0].VariablesVersion)

	// 8. Delete (soft) then purge
	del, err := Delete(ctx, database, DeleteInput{Name: "surat keterangan aktif"})
	require.NoError(t, err)
	require.Equal(t, id, del.ID)

	_, err = Preview(ctx, database, PreviewInput{ID: id})
	require.True(t, errors.Is(err, errors.ErrNotFound))

	purged, err := Purge(ctx, database, PurgeInput{})
	require.NoError(t, err)
	require.Equal(t, 1, purged.Purged)
}
