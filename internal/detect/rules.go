package detect

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/siakad/templar/internal/pattern"
)

// Placeholder tokens offered as suggestions.
const (
	TokenTodayDate     = "{{tanggal_hari_ini}}"
	TokenCustomDate    = "{{tanggal_custom}}"
	TokenAutoIncrement = "{{auto_increment}}"
	TokenLecturerName  = "{{nama_dosen}}"
	TokenNameWithTitle = "{{nama_lengkap_gelar}}"
	TokenLecturerNIP   = "{{nip_dosen}}"
	TokenLecturerNIDN  = "{{nidn_dosen}}"
	TokenCityDate      = "{{kota}}, {{tanggal}}"
	TokenProgram       = "{{program_studi}}"
)

// ProgramMarker marks field-of-study content.
const ProgramMarker = "Program Studi"

var (
	digitRe      = regexp.MustCompile(`\d`)
	yearRe       = regexp.MustCompile(`\d{4}`)
	leadingNumRe = regexp.MustCompile(`^\d+`)
	yearFieldRe  = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	idMarkerRe   = regexp.MustCompile(`\b(?:NIP|NIDN)\b`)
)

// Rules carries the configurable inputs of the variable and suggestion rules.
type Rules struct {
	Places          []string
	ProgramExamples []string
	Location        *time.Location
}

// DefaultRules returns the rules used when no options are given.
func DefaultRules() Rules {
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		loc = time.UTC
	}
	return Rules{
		Places: []string{"Jakarta", "Bandung"},
		ProgramExamples: []string{
			"Program Studi Teknik Informatika",
			"Program Studi Sistem Informasi",
			"Program Studi Manajemen",
		},
		Location: loc,
	}
}

// IsVariable reports whether a field of the given type and value is likely to
// change between documents generated from the same template.
func (r Rules) IsVariable(t pattern.Type, value string) bool {
	switch t {
	case pattern.TypeDate, pattern.TypeNumber, pattern.TypeTable:
		return true
	case pattern.TypeHeader:
		return false
	case pattern.TypeIdentity:
		return strings.Contains(value, "Dr.") || strings.Contains(value, "Prof.") || digitRe.MatchString(value)
	case pattern.TypeSignature:
		return r.place(value) != ""
	case pattern.TypeContent:
		return strings.Contains(value, ProgramMarker)
	default:
		return false
	}
}

// Confidence starts from the pattern's frequency, applies type boosts and
// clamps the result to [0,1].
func Confidence(p pattern.Pattern, value string) float64 {
	c := p.Frequency
	switch p.Type {
	case pattern.TypeDate:
		if yearRe.MatchString(value) {
			c += 0.2
		}
	case pattern.TypeNumber:
		if digitRe.MatchString(value) {
			c += 0.2
		}
	case pattern.TypeIdentity:
		if digitRe.MatchString(value) {
			c += 0.15
		}
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// Suggestions returns ordered replacement candidates for a field. It never
// returns nil.
func (r Rules) Suggestions(t pattern.Type, value string, today time.Time) []string {
	out := []string{}
	switch t {
	case pattern.TypeDate:
		out = append(out, FormatDateID(today), TokenTodayDate, TokenCustomDate)

	case pattern.TypeNumber:
		if strings.Contains(value, "/") {
			out = append(out, SequenceTemplate(value), TokenAutoIncrement)
		}

	case pattern.TypeIdentity:
		if strings.Contains(value, "Dr.") {
			out = append(out, TokenLecturerName, TokenNameWithTitle)
			if idMarkerRe.MatchString(value) {
				out = append(out, TokenLecturerNIP, TokenLecturerNIDN)
			}
		}

	case pattern.TypeSignature:
		if place := r.place(value); place != "" {
			out = append(out, TokenCityDate)
			if alt := r.alternatePlace(place); alt != "" {
				out = append(out, strings.Replace(value, place, alt, 1))
			}
		}

	case pattern.TypeContent:
		if strings.Contains(value, ProgramMarker) {
			n := len(r.ProgramExamples)
			if n > 3 {
				n = 3
			}
			out = append(out, r.ProgramExamples[:n]...)
			out = append(out, TokenProgram)
		}
	}
	return out
}

// place returns the first configured place name contained in value.
func (r Rules) place(value string) string {
	for _, p := range r.Places {
		if p != "" && strings.Contains(value, p) {
			return p
		}
	}
	return ""
}

func (r Rules) alternatePlace(current string) string {
	for _, p := range r.Places {
		if p != "" && p != current {
			return p
		}
	}
	return ""
}

// SequenceTemplate turns a letter number such as "123/UN.1/KM/2024" into
// "{nomor_urut}/UN.1/KM/{tahun}".
func SequenceTemplate(value string) string {
	s := leadingNumRe.ReplaceAllString(value, "{nomor_urut}")
	return yearFieldRe.ReplaceAllString(s, "{tahun}")
}

// FormatDateID formats t in Indonesian long form, e.g. "2 Januari 2006".
func FormatDateID(t time.Time) string {
	return fmt.Sprintf("%d %s %d", t.Day(), pattern.MonthNames[t.Month()-1], t.Year())
}
