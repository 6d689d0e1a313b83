// Package generate substitutes concrete values for bound variables in
// template text and DOCX documents.
package generate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/siakad/templar/internal/binding"
	"github.com/siakad/templar/internal/errors"
)

// TokenPattern matches a placeholder token and captures its key.
var TokenPattern = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)

var validate = validator.New()

// Token returns the placeholder token for key.
func Token(key string) string {
	return "{{" + key + "}}"
}

// rules maps a variable type to its validator tag. Text is unconstrained.
var rules = map[binding.VarType]string{
	binding.TypeNumber: "numeric",
	binding.TypeDate:   "datetime=2006-01-02",
}

// ValidateValues checks that every variable in set has a value and that
// each value fits its variable's type. Extra values are allowed.
func ValidateValues(set binding.Set, values map[string]string) error {
	var missing []string
	for _, key := range set.Keys() {
		if _, ok := values[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		err := errors.NewInvalidRequest(fmt.Sprintf("missing values for: %s", strings.Join(missing, ", ")))
		err.Details = map[string]any{"missing": missing}
		return err
	}

	invalid := make(map[string]string)
	for _, key := range set.Keys() {
		tag, ok := rules[set[key].Type]
		if !ok {
			continue
		}
		if err := validate.Var(values[key], tag); err != nil {
			invalid[key] = tag
		}
	}
	if len(invalid) > 0 {
		return errors.NewInvalidValue(invalid)
	}
	return nil
}

// Templatize replaces every occurrence of each variable's text with its
// token. Where texts compete at a position the longest wins.
func Templatize(text string, set binding.Set) string {
	tokens := make(map[string]string)
	var alts []string
	for _, key := range set.Keys() {
		v := set[key]
		if v.TextContent == "" {
			continue
		}
		if _, dup := tokens[v.TextContent]; dup {
			continue
		}
		tokens[v.TextContent] = Token(v.Key)
		alts = append(alts, v.TextContent)
	}
	if len(alts) == 0 {
		return text
	}

	sort.SliceStable(alts, func(i, j int) bool { return len(alts[i]) > len(alts[j]) })
	for i, a := range alts {
		alts[i] = regexp.QuoteMeta(a)
	}
	re := regexp.MustCompile(strings.Join(alts, "|"))
	return re.ReplaceAllStringFunc(text, func(m string) string { return tokens[m] })
}

// Fill replaces each {{key}} with values[key]. Tokens without a value are
// left intact.
func Fill(text string, values map[string]string) string {
	return TokenPattern.ReplaceAllStringFunc(text, func(tok string) string {
		key := TokenPattern.FindStringSubmatch(tok)[1]
		if v, ok := values[key]; ok {
			return v
		}
		return tok
	})
}

// FillText fills a plain-text source. Every variable in set must have a
// place in text, otherwise nothing is filled and INVALID_REQUEST lists the
// unmatched keys.
func FillText(text string, set binding.Set, values map[string]string) (string, error) {
	return fillChecked(Templatize(text, set), set, values)
}

// FillMarkdown fills a markdown source whose variables were bound against
// its rendered text. See TemplatizeMarkdown.
func FillMarkdown(src string, set binding.Set, values map[string]string) (string, error) {
	return fillChecked(TemplatizeMarkdown(src, set), set, values)
}

func fillChecked(templatized string, set binding.Set, values map[string]string) (string, error) {
	if keys := Unmatched(templatized, set); len(keys) > 0 {
		return "", unmatchedError(keys)
	}
	return Fill(templatized, values), nil
}

// Unmatched returns the keys of set whose token does not occur in
// templatized text, in key order.
func Unmatched(templatized string, set binding.Set) []string {
	placed := make(map[string]bool)
	for _, key := range Tokens(templatized) {
		placed[key] = true
	}
	return unplacedKeys(set, placed)
}

func unplacedKeys(set binding.Set, placed map[string]bool) []string {
	var keys []string
	for _, key := range set.Keys() {
		if !placed[key] {
			keys = append(keys, key)
		}
	}
	return keys
}

func unmatchedError(keys []string) error {
	err := errors.NewInvalidRequest(fmt.Sprintf("bound text not found in template source for: %s", strings.Join(keys, ", ")))
	err.Details = map[string]any{"unmatched": keys}
	return err
}

// markdownDelims matches the inline delimiters that rendering removes from
// the text: emphasis, strikethrough and code spans.
const markdownDelims = "[*_~`]*"

// TemplatizeMarkdown is Templatize for a markdown source whose variables
// were bound against the rendered text. A variable's text may cross inline
// delimiters and backslash escapes in the source. Delimiters inside a match
// are kept after the token so emphasis stays balanced: "**Budi** Santoso"
// bound as "Budi Santoso" becomes "**{{nama}}**".
func TemplatizeMarkdown(src string, set binding.Set) string {
	type alt struct {
		key   string
		whole *regexp.Regexp
	}
	seen := make(map[string]bool)
	var texts []string
	owner := make(map[string]string)
	for _, key := range set.Keys() {
		text := set[key].TextContent
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		owner[text] = key
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		return src
	}

	sort.SliceStable(texts, func(i, j int) bool { return len(texts[i]) > len(texts[j]) })
	alts := make([]alt, len(texts))
	patterns := make([]string, len(texts))
	for i, text := range texts {
		patterns[i] = markdownPattern(text, false)
		alts[i] = alt{
			key:   owner[text],
			whole: regexp.MustCompile(`^(?:` + markdownPattern(text, true) + `)$`),
		}
	}
	re := regexp.MustCompile(strings.Join(patterns, "|"))
	return re.ReplaceAllStringFunc(src, func(m string) string {
		for _, a := range alts {
			sub := a.whole.FindStringSubmatch(m)
			if sub == nil {
				continue
			}
			return Token(a.key) + strings.Join(sub[1:], "")
		}
		return m
	})
}

// markdownPattern builds a regexp matching text in a markdown source.
// Whitespace runs match any whitespace, and a run with a tab also matches a
// table cell separator. ASCII punctuation may carry a backslash escape.
// With capture set, the delimiters between elements are captured.
func markdownPattern(text string, capture bool) string {
	delims := "(?:" + markdownDelims + ")"
	if capture {
		delims = "(" + markdownDelims + ")"
	}

	var sb strings.Builder
	for i := 0; i < len(text); {
		if i > 0 {
			sb.WriteString(delims)
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			j := i
			for j < len(text) {
				r2, n := utf8.DecodeRuneInString(text[j:])
				if !unicode.IsSpace(r2) {
					break
				}
				j += n
			}
			if strings.Contains(text[i:j], "\t") {
				sb.WriteString(`(?:[ \t]*\|[ \t]*|\s+)`)
			} else {
				sb.WriteString(`\s+`)
			}
			i = j
			continue
		}
		if r < utf8.RuneSelf && (unicode.IsPunct(r) || unicode.IsSymbol(r)) {
			sb.WriteString(`\\?`)
		}
		sb.WriteString(regexp.QuoteMeta(string(r)))
		i += size
	}
	return sb.String()
}

// Tokens returns the distinct keys of the tokens in text, in order of first appearance.
func Tokens(text string) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, m := range TokenPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys
}

// OutputName suggests a filename for a document generated from templateName.
func OutputName(templateName, ext string, now time.Time) string {
	base := slug(templateName)
	if base == "" {
		base = "dokumen"
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "txt"
	}
	return fmt.Sprintf("%s-%s.%s", base, now.Format("20060102-150405"), ext)
}

var slugSep = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return strings.Trim(slugSep.ReplaceAllString(strings.ToLower(s), "-"), "-")
}
