package pattern

// MonthNames are the Indonesian month names, January first.
var MonthNames = [12]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

const monthAlt = `(?:Januari|Februari|Maret|April|Mei|Juni|Juli|Agustus|September|Oktober|November|Desember)`

// Labels of the built-in patterns.
const (
	LabelInstitution  = "Nama Institusi"
	LabelDocumentType = "Judul Dokumen"
	LabelDate         = "Tanggal"
	LabelNumericDate  = "Tanggal Numerik"
	LabelLetterNumber = "Nomor Surat"
	LabelAmount       = "Nominal"
	LabelIDNumber     = "Nomor Induk"
	LabelLecturer     = "Nama Dosen"
	LabelPlaceDate    = "Tempat dan Tanggal"
	LabelApproval     = "Blok Pengesahan"
	LabelTableRow     = "Baris Tabel"
	LabelProgram      = "Program Studi"
	LabelSubject      = "Perihal"
)

var defaultPatterns = []Pattern{
	{
		Type:      TypeHeader,
		Matcher:   `\b(?:UNIVERSITAS|INSTITUT|FAKULTAS|KEMENTERIAN|LEMBAGA)(?:[ \t]+[A-Z][A-Z&.\-]*)+`,
		Label:     LabelInstitution,
		Frequency: 0.1,
		IsCommon:  true,
	},
	{
		Type:      TypeHeader,
		Matcher:   `\b(?:SURAT|BERITA ACARA|LEMBAR|FORMULIR)(?:[ \t]+[A-Z][A-Z&.\-]*)+`,
		Label:     LabelDocumentType,
		Frequency: 0.15,
		IsCommon:  true,
	},
	{
		Type:      TypeDate,
		Matcher:   `\b\d{1,2}[ \t]+` + monthAlt + `[ \t]+\d{4}\b`,
		Label:     LabelDate,
		Frequency: 0.7,
	},
	{
		Type:      TypeDate,
		Matcher:   `\b\d{1,2}[/\-]\d{1,2}[/\-]\d{4}\b`,
		Label:     LabelNumericDate,
		Frequency: 0.65,
	},
	{
		Type:      TypeNumber,
		Matcher:   `\b\d{1,5}/[A-Z][A-Za-z0-9.\-]*(?:/[A-Za-z0-9.\-]+)*/\d{4}\b`,
		Label:     LabelLetterNumber,
		Frequency: 0.7,
	},
	{
		Type:      TypeNumber,
		Matcher:   `\bRp\.?[ \t]?\d{1,3}(?:\.\d{3})*(?:,\d{2})?`,
		Label:     LabelAmount,
		Frequency: 0.6,
	},
	{
		Type:      TypeIdentity,
		Matcher:   `\b(?:NIP|NIM|NIDN|NIK)\.?[ \t]*:?[ \t]*\d{8,18}\b`,
		Label:     LabelIDNumber,
		Frequency: 0.75,
	},
	{
		Type:      TypeIdentity,
		Matcher:   `\b(?:Prof|Dr)\.[ \t]?[A-Z][A-Za-z'.]*(?:[ \t][A-Z][A-Za-z'.]*)*(?:,[ \t]?[A-Z][a-z]?\.[A-Za-z.]*)*(?:,[ \t]?(?:NIP|NIDN)\.?[ \t]?:?[ \t]?\d{8,18})?`,
		Label:     LabelLecturer,
		Frequency: 0.6,
	},
	{
		Type:      TypeSignature,
		Matcher:   `\b[A-Z][a-z]+(?:[ \t][A-Z][a-z]+)?,[ \t]*\d{1,2}[ \t]+` + monthAlt + `[ \t]+\d{4}`,
		Label:     LabelPlaceDate,
		Frequency: 0.5,
	},
	{
		Type:      TypeSignature,
		Matcher:   `(?m)^(?:Mengetahui|Menyetujui|Hormat [Kk]ami|Ketua Program Studi|Dekan|Kepala [A-Z][a-z]+)[^\n]*$`,
		Label:     LabelApproval,
		Frequency: 0.3,
		IsCommon:  true,
	},
	{
		Type:      TypeTable,
		Matcher:   `(?m)^[^\t\n]+(?:\t[^\t\n]*)+$`,
		Label:     LabelTableRow,
		Frequency: 0.55,
	},
	{
		Type:      TypeContent,
		Matcher:   `Program Studi[ \t]+[A-Z][A-Za-z]*(?:[ \t]+[A-Z][A-Za-z]*)*`,
		Label:     LabelProgram,
		Frequency: 0.55,
	},
	{
		Type:      TypeContent,
		Matcher:   `\bPerihal[ \t]*:[ \t]*[^\n]+`,
		Label:     LabelSubject,
		Frequency: 0.4,
	},
}

// Default returns the built-in library for Indonesian academic documents.
func Default() Library {
	return NewLibrary(defaultPatterns)
}
