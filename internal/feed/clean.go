package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CleanHTML strips markup from feed entry content and returns readable
// plain text with collapsed whitespace. If the input cannot be parsed it is
// returned trimmed rather than dropped.
func CleanHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}
