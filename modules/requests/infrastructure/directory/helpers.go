package directory

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SanitizePhoneEcuador normalizes a raw phone into E.164 for Ecuador.
// National numbers written with a leading zero or as nine bare digits get
// the +593 country code; anything already carrying a country code keeps it.
func SanitizePhoneEcuador(rawPhone string) string {
	var digits strings.Builder
	for _, r := range rawPhone {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case d == "":
		return ""
	case strings.HasPrefix(d, "593"):
		return "+" + d
	case strings.HasPrefix(d, "0"):
		return "+593" + d[1:]
	case len(d) == 9:
		return "+593" + d
	default:
		return "+" + d
	}
}

// CapitalizeWords lowercases the value and uppercases the first letter of
// each whitespace-separated word.
func CapitalizeWords(value string) string {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(value)))
	for i, word := range words {
		r := []rune(word)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

var spanishMonths = [...]string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

// TemporaryPassword derives the rotating initial password for the given
// moment, Clave<SpanishMonth><Year>. New and reset accounts share it and
// must change it on first login.
func TemporaryPassword(at time.Time) string {
	return fmt.Sprintf("Clave%s%d", spanishMonths[at.Month()-1], at.Year())
}

var asciiFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// AliasBase builds the candidate email local part from the first given
// name's initial plus the first family name token, accent-folded and
// stripped to lowercase ASCII alphanumerics. Empty when nothing survives.
func AliasBase(givenName, familyName string) string {
	firstName := firstToken(givenName)
	firstFamily := firstToken(familyName)
	if firstName == "" {
		return sanitizeLocalPart(firstFamily)
	}
	return sanitizeLocalPart(string([]rune(firstName)[0]) + firstFamily)
}

func firstToken(value string) string {
	fields := strings.Fields(strings.TrimSpace(value))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func sanitizeLocalPart(value string) string {
	folded, _, err := transform.String(asciiFolder, value)
	if err != nil {
		folded = value
	}
	var out strings.Builder
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			out.WriteRune(r)
		}
	}
	return out.String()
}
