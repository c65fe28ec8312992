package discovery

import (
	"strings"
)

// diacriticFold maps the accented characters that appear in vendor and mode
// names (Czech and German product lines) onto plain ASCII.
var diacriticFold = strings.NewReplacer(
	"á", "a", "č", "c", "ď", "d", "é", "e", "ě", "e",
	"í", "i", "ň", "n", "ó", "o", "ř", "r", "š", "s",
	"ť", "t", "ú", "u", "ů", "u", "ý", "y", "ž", "z",
	"ä", "a", "ö", "o", "ü", "u", "ß", "ss",
)

// Slugify normalises a human-readable name into an ASCII identifier safe for
// topic paths: lowercased, diacritics folded, every other non-alphanumeric
// run collapsed into a single dash.
func Slugify(name string) string {
	s := diacriticFold.Replace(strings.ToLower(name))

	var b strings.Builder
	b.Grow(len(s))
	dash := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}

	return strings.TrimSuffix(b.String(), "-")
}
