// Package catalog stores alternative spoken content for assessment items.
//
// Entries are keyed by a stable identifier and carry one Card per language.
// A Resolver holds entries in three scopes (extracted, item, assessment) and
// answers lookups in strict priority order.
package catalog

import "errors"

// ErrInvalidEntry is returned when a catalog entry has no identifier.
var ErrInvalidEntry = errors.New("catalog entry has no identifier")

// CatalogTypeSpoken is the catalog type used for pronunciation markup.
const CatalogTypeSpoken = "spoken"

// Card is one language-specific content variant of an entry.
type Card struct {
	CatalogType string `json:"catalogType" yaml:"catalogType"`
	Language    string `json:"language" yaml:"language"`
	Content     string `json:"content" yaml:"content"`
}

// Entry is an authored or extracted alternative content unit.
type Entry struct {
	Identifier string `json:"identifier" yaml:"identifier"`
	Cards      []Card `json:"cards" yaml:"cards"`
}

// Validate checks that the entry can be registered.
func (e Entry) Validate() error {
	if e.Identifier == "" {
		return ErrInvalidEntry
	}
	return nil
}

// clone returns a deep copy so registered entries cannot be mutated by callers.
func (e Entry) clone() Entry {
	cards := make([]Card, len(e.Cards))
	copy(cards, e.Cards)
	return Entry{Identifier: e.Identifier, Cards: cards}
}

// Scope identifies where a resolved alternative came from.
type Scope int

const (
	// ScopeExtracted holds entries produced by the markup scanner.
	ScopeExtracted Scope = iota
	// ScopeItem holds entries authored for the current item.
	ScopeItem
	// ScopeAssessment holds entries that persist for the whole session.
	ScopeAssessment
)

// String returns the string representation of the scope.
func (s Scope) String() string {
	switch s {
	case ScopeExtracted:
		return "extracted"
	case ScopeItem:
		return "item"
	case ScopeAssessment:
		return "assessment"
	default:
		return "unknown"
	}
}

// Alternative is the result of a successful lookup.
type Alternative struct {
	Identifier  string
	CatalogType string
	Language    string
	Content     string
	Scope       Scope
}

// LookupOptions controls language matching in GetAlternative.
type LookupOptions struct {
	Language      string
	AllowFallback bool
}
