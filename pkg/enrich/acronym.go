package enrich

import "strings"

// AcronymExpander expands query terms against a domain dictionary
// (acronym → expansions) before they reach BM25/fuzzy blocking, so "MI"
// also matches "Myocardial Infarction". Matching is
// whole-token and case-insensitive.
type AcronymExpander struct {
	dict map[string][]string
}

// NewAcronymExpander builds an expander from an acronym → expansions
// dictionary. Keys are normalized to upper case for lookup.
func NewAcronymExpander(dict map[string][]string) *AcronymExpander {
	norm := make(map[string][]string, len(dict))
	for k, v := range dict {
		norm[strings.ToUpper(k)] = v
	}
	return &AcronymExpander{dict: norm}
}

// Expand tokenizes text on whitespace and appends every registered
// expansion for any token that matches a known acronym, preserving the
// original text as a prefix so an unexpanded exact match still works.
func (a *AcronymExpander) Expand(text string) string {
	tokens := strings.Fields(text)
	var additions []string
	for _, tok := range tokens {
		if expansions, ok := a.dict[strings.ToUpper(tok)]; ok {
			additions = append(additions, expansions...)
		}
	}
	if len(additions) == 0 {
		return text
	}
	return text + " " + strings.Join(additions, " ")
}
