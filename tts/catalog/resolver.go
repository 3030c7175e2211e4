package catalog

import (
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/text/language"
)

// Resolver is a scoped store of catalog entries.
//
// Lookups check the extracted scope, then the item scope, then the assessment
// scope. A Resolver is an explicit object: create one per assessment session
// and call Reset when the session ends.
type Resolver struct {
	mu              sync.RWMutex
	defaultLanguage string

	extracted  map[string]Entry
	item       map[string]Entry
	assessment map[string]Entry
}

// NewResolver creates an empty resolver with the given default language.
func NewResolver(defaultLanguage string) *Resolver {
	return &Resolver{
		defaultLanguage: defaultLanguage,
		extracted:       make(map[string]Entry),
		item:            make(map[string]Entry),
		assessment:      make(map[string]Entry),
	}
}

// SetDefaultLanguage sets the language used when AllowFallback is requested.
func (r *Resolver) SetDefaultLanguage(lang string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultLanguage = lang
}

// DefaultLanguage returns the fallback language.
func (r *Resolver) DefaultLanguage() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultLanguage
}

// AddAssessmentCatalogs merges entries into the assessment scope.
func (r *Resolver) AddAssessmentCatalogs(entries []Entry) int {
	return r.add(ScopeAssessment, entries)
}

// AddItemCatalogs merges entries into the item scope, replacing duplicates.
func (r *Resolver) AddItemCatalogs(entries []Entry) int {
	return r.add(ScopeItem, entries)
}

// AddExtractedCatalogs merges scanner output into the extracted scope.
// Cards registered without a language (a <speak> block with no xml:lang)
// take the default language in effect at registration.
func (r *Resolver) AddExtractedCatalogs(entries []Entry) int {
	return r.add(ScopeExtracted, entries)
}

func (r *Resolver) add(scope Scope, entries []Entry) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	target := r.scope(scope)
	added := 0
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			log.Warn("Skipping catalog entry", "scope", scope, "error", err)
			continue
		}
		entry := e.clone()
		for i := range entry.Cards {
			// A card without a language speaks the default language.
			if strings.TrimSpace(entry.Cards[i].Language) == "" {
				entry.Cards[i].Language = r.defaultLanguage
			}
		}
		target[e.Identifier] = entry
		added++
	}
	log.Debug("Catalogs registered", "scope", scope, "count", added)
	return added
}

// ClearItemCatalogs drops every item-scope and extracted entry.
// Call it on item navigation.
func (r *Resolver) ClearItemCatalogs() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.item = make(map[string]Entry)
	r.extracted = make(map[string]Entry)
}

// ReplaceAssessmentCatalogs swaps the assessment scope wholesale.
func (r *Resolver) ReplaceAssessmentCatalogs(entries []Entry) {
	r.mu.Lock()
	r.assessment = make(map[string]Entry)
	r.mu.Unlock()
	r.AddAssessmentCatalogs(entries)
}

// HasCatalog reports whether any scope holds the identifier.
func (r *Resolver) HasCatalog(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.ordered() {
		if _, ok := s[id]; ok {
			return true
		}
	}
	return false
}

// GetAlternative resolves id in priority order. Within a scope an exact
// language match wins; the default language is tried only when
// opts.AllowFallback is set. Cards in other languages are never picked.
// An unknown id is not an error: the caller falls back to its literal text.
func (r *Resolver) GetAlternative(id string, opts LookupOptions) (Alternative, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i, s := range r.ordered() {
		entry, ok := s[id]
		if !ok {
			continue
		}
		scope := Scope(i)
		if card, ok := findCard(entry.Cards, opts.Language); ok {
			return newAlternative(id, scope, card), true
		}
		if opts.AllowFallback && r.defaultLanguage != "" {
			if card, ok := findCard(entry.Cards, r.defaultLanguage); ok {
				return newAlternative(id, scope, card), true
			}
		}
	}
	return Alternative{}, false
}

// GetAllAlternatives returns every card registered for id, highest priority
// scope first.
func (r *Resolver) GetAllAlternatives(id string) []Alternative {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Alternative
	for i, s := range r.ordered() {
		entry, ok := s[id]
		if !ok {
			continue
		}
		for _, card := range entry.Cards {
			out = append(out, newAlternative(id, Scope(i), card))
		}
	}
	return out
}

// Reset empties all scopes. The default language is kept.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extracted = make(map[string]Entry)
	r.item = make(map[string]Entry)
	r.assessment = make(map[string]Entry)
}

// ordered returns the scopes in lookup order; the index is the Scope value.
func (r *Resolver) ordered() [3]map[string]Entry {
	return [3]map[string]Entry{r.extracted, r.item, r.assessment}
}

func (r *Resolver) scope(s Scope) map[string]Entry {
	switch s {
	case ScopeExtracted:
		return r.extracted
	case ScopeItem:
		return r.item
	default:
		return r.assessment
	}
}

func newAlternative(id string, scope Scope, card Card) Alternative {
	return Alternative{
		Identifier:  id,
		CatalogType: card.CatalogType,
		Language:    card.Language,
		Content:     card.Content,
		Scope:       scope,
	}
}

func findCard(cards []Card, lang string) (Card, bool) {
	if lang == "" {
		return Card{}, false
	}
	want := canonicalLanguage(lang)
	for _, c := range cards {
		if canonicalLanguage(c.Language) == want {
			return c, true
		}
	}
	return Card{}, false
}

// canonicalLanguage normalises a BCP 47 tag so "en-us" and "en-US" compare equal.
func canonicalLanguage(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(lang))
	}
	return tag.String()
}
