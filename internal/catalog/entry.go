package catalog

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/leafcare/internal/domain"
)

// Entry is one care guide.
type Entry struct {
	Hash           string           `json:"hash" yaml:"-"`
	Name           string           `json:"name" yaml:"name"`
	ScientificName string           `json:"scientificName,omitempty" yaml:"scientific_name"`
	Aliases        []string         `json:"aliases,omitempty" yaml:"aliases"`
	Tags           []string         `json:"tags,omitempty" yaml:"tags"`
	Care           domain.CareGuide `json:"care" yaml:"care"`
	Notes          string           `json:"notes,omitempty" yaml:"-"`
	Source         string           `json:"source" yaml:"-"`
	File           string           `json:"file" yaml:"-"`
}

// Normalize joins the identifying fields of e after lowercasing and
// trimming them, so cosmetic edits do not change identity.
func Normalize(e Entry) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		return strings.Join(strings.Fields(p), " ")
	}
	return normalizePart(e.Name) + "\n" + normalizePart(e.ScientificName)
}

// Hash returns the SHA-256 of Normalize(e) as hex.
func Hash(e Entry) string {
	sum := sha256.Sum256([]byte(Normalize(e)))
	return fmt.Sprintf("%x", sum)
}

// names returns every string e can be found by.
func (e Entry) names() []string {
	out := make([]string, 0, 2+len(e.Aliases))
	out = append(out, e.Name)
	if e.ScientificName != "" {
		out = append(out, e.ScientificName)
	}
	for _, a := range e.Aliases {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
