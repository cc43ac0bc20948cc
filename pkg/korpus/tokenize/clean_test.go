package tokenize

import "testing"

func TestStripMarkupRemovesTags(t *testing.T) {
	html := `<html><body><h1>Valgresultatet</h1><p>Partiet fikk <b>12</b> prosent.</p></body></html>`
	got := StripMarkup(html)

	want := "Valgresultatet Partiet fikk 12 prosent."
	if got != want {
		t.Errorf("StripMarkup() = %q, want %q", got, want)
	}
}

func TestStripMarkupDropsScriptAndStyle(t *testing.T) {
	html := `<p>Synlig tekst</p><script>var x = "skjult";</script><style>p { color: red }</style><noscript>også skjult</noscript>`
	got := StripMarkup(html)

	if got != "Synlig tekst" {
		t.Errorf("StripMarkup() = %q, want %q", got, "Synlig tekst")
	}
}

func TestStripMarkupPlainText(t *testing.T) {
	got := StripMarkup("Ren tekst uten markup")
	if got != "Ren tekst uten markup" {
		t.Errorf("StripMarkup() = %q, want input unchanged", got)
	}
}

func TestStripMarkupCollapsesWhitespace(t *testing.T) {
	got := StripMarkup("linje1\n\n   linje2\t\tlinje3")
	if got != "linje1 linje2 linje3" {
		t.Errorf("StripMarkup() = %q, want collapsed whitespace", got)
	}
}

func TestStripMarkupDecodesEntities(t *testing.T) {
	got := StripMarkup("<p>B&aelig;rum &amp; Asker</p>")
	if got != "Bærum & Asker" {
		t.Errorf("StripMarkup() = %q, want %q", got, "Bærum & Asker")
	}
}

func TestStripMarkupEmpty(t *testing.T) {
	if got := StripMarkup(""); got != "" {
		t.Errorf("StripMarkup(\"\") = %q, want empty", got)
	}
}
