package filter

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/aviskorpus/pkg/korpus/internalerr"
)

// Publication is one allow-list entry: a named publication whose domain
// has a declared responsible editor.
type Publication struct {
	Title             string `yaml:"title"`
	Domain            string `yaml:"domain"`
	ResponsibleEditor bool   `yaml:"have-responsible-editor"`
	ExactOnly         bool   `yaml:"exact-only"`
}

// Spec is a loaded publication allow-list. It is immutable after load;
// a zero Spec matches nothing.
type Spec struct {
	byDomain map[string]Publication
}

type specFile struct {
	Publications []Publication `yaml:"publications"`
}

// Load reads a publication allow-list from a YAML file.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load publication list: %w", err)
	}
	return Parse(data)
}

// Parse builds a Spec from YAML allow-list data. Every entry must name a
// domain and declare a responsible editor; a list without usable entries
// is a configuration error, never an empty match-all.
func Parse(data []byte) (*Spec, error) {
	var file specFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parse publication list: %w", internalerr.ErrInvalidConfig, err)
	}
	if len(file.Publications) == 0 {
		return nil, fmt.Errorf("%w: publication list has no publications", internalerr.ErrInvalidConfig)
	}

	spec := &Spec{byDomain: make(map[string]Publication, len(file.Publications))}
	for i, pub := range file.Publications {
		domain := Normalize(pub.Domain)
		if domain == "" {
			return nil, fmt.Errorf("%w: publication %d (%q) has no domain", internalerr.ErrInvalidConfig, i, pub.Title)
		}
		if !pub.ResponsibleEditor {
			return nil, fmt.Errorf("%w: publication %q has no responsible editor", internalerr.ErrInvalidConfig, domain)
		}
		pub.Domain = domain
		spec.byDomain[domain] = pub
	}

	return spec, nil
}

// Normalize lowercases a host name and strips the variants harvest data
// carries for the same site: surrounding space, one trailing dot, one
// leading "www." label.
func Normalize(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimSuffix(d, ".")
	d = strings.TrimPrefix(d, "www.")
	return d
}

// Match reports whether a record's domain belongs to a listed
// publication and returns the matching entry. Subdomains match their
// parent listing (nyheter.vg.no matches vg.no) unless the entry is
// marked exact-only.
func (s *Spec) Match(domain string) (Publication, bool) {
	d := Normalize(domain)
	if d == "" {
		return Publication{}, false
	}
	if pub, ok := s.byDomain[d]; ok {
		return pub, true
	}

	// Walk up the label chain so nyheter.vg.no finds the vg.no entry.
	// Stripping whole labels keeps evil-vg.no from matching vg.no.
	for {
		i := strings.Index(d, ".")
		if i < 0 {
			return Publication{}, false
		}
		d = d[i+1:]
		if pub, ok := s.byDomain[d]; ok && !pub.ExactOnly {
			return pub, true
		}
	}
}

// Len returns the number of listed publications.
func (s *Spec) Len() int {
	return len(s.byDomain)
}

// Domains returns the normalized listed domains in sorted order.
func (s *Spec) Domains() []string {
	domains := make([]string, 0, len(s.byDomain))
	for d := range s.byDomain {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}
