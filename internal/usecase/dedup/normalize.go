package dedup

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	htmlTag      = regexp.MustCompile(`<[^>]*>`)
	mdLink       = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`)
	mdEmphasis   = regexp.MustCompile("(\\*\\*|__|~~|`+)")
	mdSingleStar = regexp.MustCompile(`(^|\s)[*_]([^*_\s][^*_]*)[*_]`)
	mdLinePrefix = regexp.MustCompile(`^\s*(#{1,6}\s+|>\s*)+`)
	enumerator   = regexp.MustCompile(`^\s*(\d{1,3}[.)]|[a-zA-Z][.)]|[-*•+])\s+`)
)

var folder = cases.Fold()

// Normalize reduces text to the form compared for duplicates: NFKC, markup and
// HTML removed, leading list enumerators removed, answer options following a
// question dropped, case folded and whitespace collapsed.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = htmlTag.ReplaceAllString(text, " ")
	text = mdLink.ReplaceAllString(text, "$1")

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	inOptions := false
	for _, line := range lines {
		line = mdLinePrefix.ReplaceAllString(line, "")
		enumerated := enumerator.MatchString(line)
		if inOptions && enumerated {
			continue
		}
		inOptions = false

		line = enumerator.ReplaceAllString(line, "")
		line = mdEmphasis.ReplaceAllString(line, "")
		line = mdSingleStar.ReplaceAllString(line, "$1$2")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, "?") {
			inOptions = true
		}
		kept = append(kept, line)
	}

	return strings.Join(strings.Fields(folder.String(strings.Join(kept, " "))), " ")
}
