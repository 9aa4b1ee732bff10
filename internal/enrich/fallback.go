package enrich

import (
	"regexp"
	"strings"
)

var (
	yearToken  = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	multiSpace = regexp.MustCompile(`\s{2,}`)
)

// Alternate strips standalone 19xx/20xx year tokens from term. changed is
// false when nothing was removed or the result would be empty.
func Alternate(term string) (string, bool) {
	original := strings.TrimSpace(term)
	if !yearToken.MatchString(original) {
		return original, false
	}
	stripped := yearToken.ReplaceAllString(original, "")
	stripped = strings.TrimSpace(multiSpace.ReplaceAllString(stripped, " "))
	if stripped == "" || stripped == original {
		return original, false
	}
	return stripped, true
}
