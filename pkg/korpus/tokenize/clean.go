package tokenize

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StripMarkup removes residual HTML from harvested text. Script, style
// and noscript subtrees are dropped, the remaining markup is flattened
// to its text, and whitespace runs collapse to single spaces. Plain text
// passes through apart from the whitespace collapsing.
func StripMarkup(text string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return strings.Join(strings.Fields(text), " ")
	}
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}
