package indicator

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeSearch folds case and strips diacritics so "Nutrición" matches
// "nutricion".
func NormalizeSearch(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.TrimSpace(cases.Fold().String(out))
}

func buildSearchText(si SectorIndicator) string {
	parts := []string{si.Name, si.Code}
	for _, p := range si.Paired {
		parts = append(parts, p.Name, p.Code)
	}
	for _, key := range sortedKeys(si.External) {
		parts = append(parts, si.External[key].Name)
	}
	return NormalizeSearch(strings.Join(parts, " "))
}
