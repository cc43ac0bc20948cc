package corpus

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cognicore/aviskorpus/pkg/korpus/internalerr"
)

// Scheme selects how records map to output files.
type Scheme int

const (
	// ByDomain writes one file per publication domain.
	ByDomain Scheme = iota
	// ByYear writes one file per capture year.
	ByYear
	// ByDomainYear writes one file per domain and year.
	ByDomainYear
)

// String returns the CLI spelling of the scheme.
func (s Scheme) String() string {
	switch s {
	case ByYear:
		return "year"
	case ByDomainYear:
		return "domain-year"
	default:
		return "domain"
	}
}

// ParseScheme maps the CLI spelling to a Scheme.
func ParseScheme(s string) (Scheme, error) {
	switch s {
	case "domain":
		return ByDomain, nil
	case "year":
		return ByYear, nil
	case "domain-year":
		return ByDomainYear, nil
	}
	return 0, fmt.Errorf("%w: unknown partition scheme %q", internalerr.ErrInvalidConfig, s)
}

// Key identifies one output partition. Fields not used by the active
// scheme stay zero so equal partitions compare equal as map keys.
type Key struct {
	Domain string
	Year   int
}

// KeyFor reduces a record's domain and capture year to its partition key
// under the scheme.
func (s Scheme) KeyFor(domain string, year int) Key {
	switch s {
	case ByYear:
		return Key{Year: year}
	case ByDomainYear:
		return Key{Domain: domain, Year: year}
	default:
		return Key{Domain: domain}
	}
}

// Filename derives the deterministic file name for the partition, so
// repeated runs target the same file.
func (k Key) Filename() string {
	switch {
	case k.Domain != "" && k.Year != 0:
		return fmt.Sprintf("%s-%d.db", sanitizeName(k.Domain), k.Year)
	case k.Domain != "":
		return sanitizeName(k.Domain) + ".db"
	default:
		return fmt.Sprintf("%d.db", k.Year)
	}
}

// sanitizeName keeps partition-derived names safe as file names.
func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return unicode.ToLower(r)
		default:
			return '_'
		}
	}, s)
}
