package pattern

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_AllPatternsCompile(t *testing.T) {
	for _, p := range Default().Patterns() {
		_, err := regexp.Compile(p.Matcher)
		assert.NoError(t, err, "pattern %q", p.Label)
		assert.True(t, p.Type.Valid(), "pattern %q has unknown type %q", p.Label, p.Type)
		assert.GreaterOrEqual(t, p.Frequency, 0.0)
		assert.LessOrEqual(t, p.Frequency, 1.0)
	}
}

func TestDefault_LabelsUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, p := range Default().Patterns() {
		require.False(t, seen[p.Label], "duplicate label %q", p.Label)
		seen[p.Label] = true
	}
}

func TestDefault_MatchesSamples(t *testing.T) {
	tests := []struct {
		label string
		text  string
		want  string
	}{
		{LabelInstitution, "UNIVERSITAS NEGERI CONTOH\n", "UNIVERSITAS NEGERI CONTOH"},
		{LabelDate, "pada 15 Januari 2024.", "15 Januari 2024"},
		{LabelNumericDate, "tgl 05/02/2024", "05/02/2024"},
		{LabelLetterNumber, "Nomor: 123/UN10.F/KM/2024", "123/UN10.F/KM/2024"},
		{LabelAmount, "sebesar Rp 1.500.000,00", "Rp 1.500.000,00"},
		{LabelIDNumber, "NIM: 2021010001", "NIM: 2021010001"},
		{LabelLecturer, "Dr. Ahmad Fauzi, NIP 198501012010121001", "Dr. Ahmad Fauzi, NIP 198501012010121001"},
		{LabelLecturer, "Prof. Dr. Budi Santoso, M.Kom.", "Prof. Dr. Budi Santoso, M.Kom."},
		{LabelPlaceDate, "Jakarta, 15 Januari 2024", "Jakarta, 15 Januari 2024"},
		{LabelApproval, "Mengetahui,\n", "Mengetahui,"},
		{LabelTableRow, "1\tBudi\tA\n", "1\tBudi\tA"},
		{LabelProgram, "mahasiswa Program Studi Teknik Informatika angkatan", "Program Studi Teknik Informatika"},
		{LabelSubject, "Perihal: Permohonan KKP\n", "Perihal: Permohonan KKP"},
	}

	byLabel := map[string]Pattern{}
	for _, p := range Default().Patterns() {
		byLabel[p.Label] = p
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			p, ok := byLabel[tt.label]
			require.True(t, ok)
			got := regexp.MustCompile(p.Matcher).FindString(tt.text)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLetterNumber_DoesNotMatchNumericDate(t *testing.T) {
	lib := Default()
	for _, p := range lib.Patterns() {
		if p.Label == LabelLetterNumber {
			assert.Empty(t, regexp.MustCompile(p.Matcher).FindString("15/01/2024"))
		}
	}
}

func TestLibrary_IsImmutable(t *testing.T) {
	lib := Default()
	ps := lib.Patterns()
	ps[0].Label = "changed"

	assert.NotEqual(t, "changed", lib.Patterns()[0].Label)
}

func TestLibrary_Frequency(t *testing.T) {
	f, ok := Default().Frequency(LabelLecturer)
	require.True(t, ok)
	assert.InDelta(t, 0.6, f, 1e-9)

	_, ok = Default().Frequency("nope")
	assert.False(t, ok)
}

func TestParse(t *testing.T) {
	doc := `
patterns:
  - type: date
    matcher: '\d{4}'
    label: Tahun
    frequency: 0.9
  - type: header
    matcher: 'KOP'
    label: Kop
    frequency: 0.1
    is_common: true
`
	lib, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, 2, lib.Len())

	ps := lib.Patterns()
	assert.Equal(t, TypeDate, ps[0].Type)
	assert.Equal(t, `\d{4}`, ps[0].Matcher)
	assert.True(t, ps[1].IsCommon)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"bad yaml", "patterns: [", "parse pattern library"},
		{"unknown type", "patterns:\n  - {type: colour, matcher: x, label: X, frequency: 0.1}", "unknown type"},
		{"missing label", "patterns:\n  - {type: date, matcher: x, frequency: 0.1}", "label is required"},
		{"frequency range", "patterns:\n  - {type: date, matcher: x, label: X, frequency: 1.5}", "outside [0,1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_KeepsMalformedMatcher(t *testing.T) {
	// Compilation is the matcher's job; the loader must not reject it.
	lib, err := Parse([]byte("patterns:\n  - {type: date, matcher: '([', label: Rusak, frequency: 0.5}"))
	require.NoError(t, err)
	assert.Equal(t, 1, lib.Len())
}

func TestLoadFile_AndMarshal(t *testing.T) {
	data, err := Default().Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, data, 0600))

	lib, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Patterns(), lib.Patterns())
}

func TestLoad_EmptyPathUsesDefault(t *testing.T) {
	lib, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Len(), lib.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "read pattern library"))
}
