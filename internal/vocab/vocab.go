// Package vocab holds the read-only domain vocabulary shared by the
// annotator, the query expander, the reranker and the keyword tier.
//
// A Vocabulary is built once at startup and never mutated afterwards, so a
// single value can be shared by concurrent requests.
package vocab

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ContextGroup is an ordered pattern group producing one semantic label.
type ContextGroup struct {
	Label    string   `yaml:"label"`
	Patterns []string `yaml:"patterns"`
}

// Vocabulary is the immutable set of domain tables.
type Vocabulary struct {
	keywords      []string
	contexts      []ContextGroup
	synonyms      map[string][]string
	profileIntent []string
	profileTerms  []string

	foldedKeywords []string
	foldedContexts [][]string
	foldedSynonyms map[string]string
	foldedIntent   []string
}

type file struct {
	Keywords      []string            `yaml:"keywords"`
	Contexts      []ContextGroup      `yaml:"contexts"`
	Synonyms      map[string][]string `yaml:"synonyms"`
	ProfileIntent []string            `yaml:"profileIntent"`
	ProfileTerms  []string            `yaml:"profileTerms"`
}

// New builds a Vocabulary from explicit tables. Inputs are copied.
func New(keywords []string, contexts []ContextGroup, synonyms map[string][]string, profileIntent, profileTerms []string) *Vocabulary {
	v := &Vocabulary{
		keywords:      dedupe(keywords),
		contexts:      copyGroups(contexts),
		synonyms:      make(map[string][]string, len(synonyms)),
		profileIntent: append([]string(nil), profileIntent...),
		profileTerms:  dedupe(profileTerms),
	}
	for k, vals := range synonyms {
		v.synonyms[k] = dedupe(vals)
	}

	v.foldedKeywords = make([]string, len(v.keywords))
	for i, k := range v.keywords {
		v.foldedKeywords[i] = Fold(k)
	}
	v.foldedContexts = make([][]string, len(v.contexts))
	for i, g := range v.contexts {
		fp := make([]string, len(g.Patterns))
		for j, p := range g.Patterns {
			fp[j] = Fold(p)
		}
		v.foldedContexts[i] = fp
	}
	v.foldedSynonyms = make(map[string]string, len(v.synonyms))
	for k := range v.synonyms {
		v.foldedSynonyms[Fold(k)] = k
	}
	v.foldedIntent = make([]string, len(v.profileIntent))
	for i, p := range v.profileIntent {
		v.foldedIntent[i] = Fold(p)
	}
	return v
}

// Load reads a YAML vocabulary file. Sections absent from the file are
// taken from Default. An empty path returns Default.
func Load(path string) (*Vocabulary, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary %s: %w", path, err)
	}
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse vocabulary %s: %w", path, err)
	}
	if len(f.Keywords) == 0 {
		f.Keywords = defaultKeywords
	}
	if len(f.Contexts) == 0 {
		f.Contexts = defaultContexts
	}
	if len(f.Synonyms) == 0 {
		f.Synonyms = defaultSynonyms
	}
	if len(f.ProfileIntent) == 0 {
		f.ProfileIntent = defaultProfileIntent
	}
	if len(f.ProfileTerms) == 0 {
		f.ProfileTerms = defaultProfileTerms
	}
	return New(f.Keywords, f.Contexts, f.Synonyms, f.ProfileIntent, f.ProfileTerms), nil
}

// Keywords returns the domain terms in declaration order.
func (v *Vocabulary) Keywords() []string { return append([]string(nil), v.keywords...) }

// Contexts returns the ordered context groups.
func (v *Vocabulary) Contexts() []ContextGroup { return copyGroups(v.contexts) }

// ProfileTerms returns the fixed block appended for profile intent queries.
func (v *Vocabulary) ProfileTerms() []string { return append([]string(nil), v.profileTerms...) }

// Synonyms returns the expansion list for token, matching accent and case
// insensitively. Plural forms of a key also match.
func (v *Vocabulary) Synonyms(token string) ([]string, bool) {
	for _, f := range singulars(Fold(token)) {
		if key, ok := v.foldedSynonyms[f]; ok {
			return append([]string(nil), v.synonyms[key]...), true
		}
	}
	return nil, false
}

// singulars returns f followed by its plausible singular forms
// ("usuarios" -> "usuario", "perfis" -> "perfil").
func singulars(f string) []string {
	out := []string{f}
	if strings.HasSuffix(f, "is") {
		out = append(out, strings.TrimSuffix(f, "is")+"il")
	}
	if strings.HasSuffix(f, "es") {
		out = append(out, strings.TrimSuffix(f, "es"))
	}
	if strings.HasSuffix(f, "s") {
		out = append(out, strings.TrimSuffix(f, "s"))
	}
	return out
}

// SynonymKeys returns every key of the expansion table.
func (v *Vocabulary) SynonymKeys() []string {
	out := make([]string, 0, len(v.synonyms))
	for k := range v.synonyms {
		out = append(out, k)
	}
	return out
}

// MatchKeywords returns the domain terms present in text, in vocabulary order.
func (v *Vocabulary) MatchKeywords(text string) []string {
	ft := Fold(text)
	var out []string
	for i, k := range v.foldedKeywords {
		if containsWord(ft, k) {
			out = append(out, v.keywords[i])
		}
	}
	return out
}

// MatchContexts returns the labels of every group with a pattern in text,
// in group order.
func (v *Vocabulary) MatchContexts(text string) []string {
	ft := Fold(text)
	var out []string
	for i, patterns := range v.foldedContexts {
		for _, p := range patterns {
			if containsWord(ft, p) {
				out = append(out, v.contexts[i].Label)
				break
			}
		}
	}
	return out
}

// IsProfileQuery reports whether text matches any profile intent pattern.
func (v *Vocabulary) IsProfileQuery(text string) bool {
	ft := Fold(text)
	for _, p := range v.foldedIntent {
		if containsWord(ft, p) {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		f := Fold(s)
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, s)
	}
	return out
}

func copyGroups(in []ContextGroup) []ContextGroup {
	out := make([]ContextGroup, len(in))
	for i, g := range in {
		out[i] = ContextGroup{Label: g.Label, Patterns: append([]string(nil), g.Patterns...)}
	}
	return out
}
