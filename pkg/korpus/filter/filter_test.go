package filter

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cognicore/aviskorpus/pkg/korpus/internalerr"
)

const validList = `
publications:
  - title: Verdens Gang
    domain: vg.no
    have-responsible-editor: true
  - title: Aftenposten
    domain: www.aftenposten.no
    have-responsible-editor: true
  - title: Example News
    domain: example.no
    have-responsible-editor: true
    exact-only: true
`

func TestParseValidList(t *testing.T) {
	spec, err := Parse([]byte(validList))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if spec.Len() != 3 {
		t.Errorf("Expected 3 publications, got %d", spec.Len())
	}

	pub, ok := spec.Match("vg.no")
	if !ok {
		t.Fatal("vg.no should match")
	}
	if pub.Title != "Verdens Gang" {
		t.Errorf("Expected title 'Verdens Gang', got %q", pub.Title)
	}
}

func TestParseNormalizesListedDomains(t *testing.T) {
	spec, err := Parse([]byte(validList))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	// The www. prefix on the listed side is stripped at load
	if _, ok := spec.Match("aftenposten.no"); !ok {
		t.Error("aftenposten.no should match the www.aftenposten.no listing")
	}
}

func TestMatchNormalizesRecordDomain(t *testing.T) {
	spec, err := Parse([]byte(validList))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	// Case, trailing dot and www. variants all name the same site
	for _, domain := range []string{"VG.no", "vg.no.", "www.vg.no", " vg.no "} {
		if _, ok := spec.Match(domain); !ok {
			t.Errorf("Match(%q) = false, want true", domain)
		}
	}
}

func TestMatchSubdomains(t *testing.T) {
	spec, err := Parse([]byte(validList))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if _, ok := spec.Match("nyheter.vg.no"); !ok {
		t.Error("nyheter.vg.no should match the vg.no listing")
	}
	if _, ok := spec.Match("a.b.vg.no"); !ok {
		t.Error("a.b.vg.no should match the vg.no listing")
	}

	// Label boundaries matter: a lookalike host is not a subdomain
	if _, ok := spec.Match("evil-vg.no"); ok {
		t.Error("evil-vg.no should not match vg.no")
	}
	if _, ok := spec.Match("vg.no.evil.com"); ok {
		t.Error("vg.no.evil.com should not match vg.no")
	}
}

func TestMatchExactOnly(t *testing.T) {
	spec, err := Parse([]byte(validList))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if _, ok := spec.Match("example.no"); !ok {
		t.Error("example.no should match its exact-only listing")
	}
	if _, ok := spec.Match("sub.example.no"); ok {
		t.Error("sub.example.no should not match an exact-only listing")
	}
}

func TestMatchUnlistedDomain(t *testing.T) {
	spec, err := Parse([]byte(validList))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if _, ok := spec.Match("blogg.privat.no"); ok {
		t.Error("Unlisted domain should not match")
	}
	if _, ok := spec.Match(""); ok {
		t.Error("Empty domain should not match")
	}
}

func TestParseEmptyList(t *testing.T) {
	for _, data := range []string{"", "publications: []", "unrelated: true"} {
		_, err := Parse([]byte(data))
		if !errors.Is(err, internalerr.ErrInvalidConfig) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidConfig", data, err)
		}
	}
}

func TestParseMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("publications: [unclosed"))
	if !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("Malformed YAML error = %v, want ErrInvalidConfig", err)
	}
}

func TestParseMissingResponsibleEditor(t *testing.T) {
	data := `
publications:
  - title: Shady Site
    domain: shady.no
`
	_, err := Parse([]byte(data))
	if !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("Missing responsible editor error = %v, want ErrInvalidConfig", err)
	}
}

func TestParseResponsibleEditorFalse(t *testing.T) {
	data := `
publications:
  - title: Shady Site
    domain: shady.no
    have-responsible-editor: false
`
	_, err := Parse([]byte(data))
	if !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("Responsible editor false error = %v, want ErrInvalidConfig", err)
	}
}

func TestParseMissingDomain(t *testing.T) {
	data := `
publications:
  - title: No Domain Here
    have-responsible-editor: true
`
	_, err := Parse([]byte(data))
	if !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("Missing domain error = %v, want ErrInvalidConfig", err)
	}
}

func TestZeroSpecMatchesNothing(t *testing.T) {
	var spec Spec
	if _, ok := spec.Match("vg.no"); ok {
		t.Error("Zero Spec should match nothing")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "publications.yaml")
	if err := os.WriteFile(path, []byte(validList), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	spec, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if spec.Len() != 3 {
		t.Errorf("Expected 3 publications, got %d", spec.Len())
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() of a missing file should fail")
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"VG.no", "vg.no"},
		{"vg.no.", "vg.no"},
		{"www.vg.no", "vg.no"},
		{"  WWW.VG.NO. ", "vg.no"},
		{"nyheter.vg.no", "nyheter.vg.no"},
		{"wwwette.no", "wwwette.no"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDomainsSorted(t *testing.T) {
	spec, err := Parse([]byte(validList))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	domains := spec.Domains()
	want := []string{"aftenposten.no", "example.no", "vg.no"}
	if len(domains) != len(want) {
		t.Fatalf("Domains() = %v, want %v", domains, want)
	}
	for i := range want {
		if domains[i] != want[i] {
			t.Errorf("Domains()[%d] = %q, want %q", i, domains[i], want[i])
		}
	}
}
