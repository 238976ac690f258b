package numfmt

import (
	"regexp"
	"strings"
)

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

var quoteStripper = strings.NewReplacer(`"`, "", `'`, "", "`", "")

// SanitizeInput strips HTML tags and quote characters from user text before
// it reaches parsing or storage.
func SanitizeInput(text string) string {
	return quoteStripper.Replace(htmlTagRegex.ReplaceAllString(text, ""))
}
