package geocode

import (
	"regexp"
	"strings"
)

var (
	stateSuffix  = regexp.MustCompile(`\s*-\s*SE\s*$`)
	abbreviation = []struct {
		re   *regexp.Regexp
		full string
	}{
		{regexp.MustCompile(`\bAv\.\s*`), "Avenida "},
		{regexp.MustCompile(`\bTv\.\s*`), "Travessa "},
		{regexp.MustCompile(`\bR\.\s*`), "Rua "},
	}
)

// Normalize prepares an address for the external services: expands street
// type abbreviations, turns a trailing "- SE" into ", Sergipe, Brasil" and
// collapses whitespace.
func Normalize(address string) string {
	s := strings.TrimSpace(address)
	s = stateSuffix.ReplaceAllString(s, ", Sergipe, Brasil")
	for _, a := range abbreviation {
		s = a.re.ReplaceAllString(s, a.full)
	}
	return strings.Join(strings.Fields(s), " ")
}
