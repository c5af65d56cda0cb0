// Package naming derives the canonical, filesystem-safe directory and file
// names an ebook source is stored under. All functions are pure; identical
// inputs always produce byte-identical output.
package naming

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Author is the minimal author shape needed for naming.
type Author struct {
	LastName  string
	FirstName string
}

// Series is the minimal series shape needed for naming.
type Series struct {
	Title string
	Index int64
}

// maxComponentBytes caps each path component well inside common filesystem
// name limits.
const maxComponentBytes = 250

// foldMap resolves letters that NFKD cannot decompose to ASCII.
var foldMap = map[rune]string{
	'Æ': "AE", 'æ': "ae",
	'Œ': "OE", 'œ': "oe",
	'Ø': "O", 'ø': "o",
	'Đ': "D", 'đ': "d",
	'Ð': "D", 'ð': "d",
	'Þ': "Th", 'þ': "th",
	'ß': "ss",
	'Ł': "L", 'ł': "l",
	'Ħ': "H", 'ħ': "h",
	'Ŧ': "T", 'ŧ': "t",
	'Ŋ': "N", 'ŋ': "n",
	'ı': "i",
	'Ĳ': "IJ", 'ĳ': "ij",
}

// strippedSeparators are removed outright from folded components. The slash
// is included so a component can never split into extra path segments.
const strippedSeparators = `:*%|"<>?\/`

// Fold renders s as printable ASCII: mapped special letters, NFKD
// decomposition with combining marks dropped, any remaining non-ASCII rune
// turned into a space, control characters removed, separator characters
// stripped, and whitespace runs collapsed.
func Fold(s string) string {
	var mapped strings.Builder
	mapped.Grow(len(s))
	for _, r := range s {
		if repl, ok := foldMap[r]; ok {
			mapped.WriteString(repl)
			continue
		}
		mapped.WriteRune(r)
	}

	var out strings.Builder
	out.Grow(mapped.Len())
	space := false
	flushSpace := func() {
		if space && out.Len() > 0 {
			out.WriteByte(' ')
		}
		space = false
	}
	for _, r := range norm.NFKD.String(mapped.String()) {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining mark from the decomposition
		case r > unicode.MaxASCII:
			space = true
		case unicode.IsSpace(r):
			space = true
		case r < 0x20 || r == 0x7f:
			// control
		case strings.ContainsRune(strippedSeparators, r):
			// separator
		default:
			flushSpace()
			out.WriteRune(r)
		}
	}
	return out.String()
}

// AuthorsComponent renders the author part of canonical names. One author
// yields "Last First"; two or three yield "Last1 FI, Last2 FI, ..." with FI
// the concatenated initials of the first-name words; four or more yield the
// first author's short form plus " and others". No authors yields "unknown".
func AuthorsComponent(authors []Author) string {
	switch {
	case len(authors) == 0:
		return "unknown"
	case len(authors) == 1:
		last := Fold(authors[0].LastName)
		first := Fold(authors[0].FirstName)
		if first == "" {
			return last
		}
		return last + " " + first
	case len(authors) <= 3:
		parts := make([]string, 0, len(authors))
		for _, a := range authors {
			parts = append(parts, shortAuthor(a))
		}
		return strings.Join(parts, ", ")
	default:
		return shortAuthor(authors[0]) + " and others"
	}
}

func shortAuthor(a Author) string {
	last := Fold(a.LastName)
	initials := foldedInitials(a.FirstName)
	if initials == "" {
		return last
	}
	return last + " " + initials
}

func foldedInitials(firstName string) string {
	var b strings.Builder
	for _, word := range strings.Fields(Fold(firstName)) {
		b.WriteByte(word[0])
	}
	return b.String()
}

// BaseDir composes the canonical directory an ebook's sources live under:
// "<authors>/<series>/<series> <idx> - <title>(<lang>)" with a series,
// "<authors>/<title>(<lang>)" without. The result is fixed at ebook creation.
func BaseDir(authors []Author, series *Series, title, language string) string {
	authorDir := clip(AuthorsComponent(authors))
	leaf := titleComponent(series, title, language)
	if series == nil {
		return authorDir + "/" + leaf
	}
	return authorDir + "/" + clip(Fold(series.Title)) + "/" + leaf
}

// FileName composes the canonical basename of a source file:
// "<authors> - [<series> <idx> - ]<title>.<ext>".
func FileName(authors []Author, series *Series, title, ext string) string {
	var b strings.Builder
	b.WriteString(AuthorsComponent(authors))
	b.WriteString(" - ")
	if series != nil {
		fmt.Fprintf(&b, "%s %d - ", Fold(series.Title), series.Index)
	}
	b.WriteString(Fold(title))
	name := clip(b.String())
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return name
	}
	return name + "." + ext
}

func titleComponent(series *Series, title, language string) string {
	var b strings.Builder
	if series != nil {
		fmt.Fprintf(&b, "%s %d - ", Fold(series.Title), series.Index)
	}
	b.WriteString(Fold(title))
	b.WriteString("(")
	b.WriteString(Fold(language))
	b.WriteString(")")
	return clip(b.String())
}

// clip bounds a component to maxComponentBytes at a rune boundary.
func clip(s string) string {
	if len(s) <= maxComponentBytes {
		return s
	}
	cut := maxComponentBytes
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimRight(s[:cut], " ")
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
