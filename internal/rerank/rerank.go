// Package rerank reorders retrieved candidates with a weighted lexical
// score. Reranking is a pure function of the query and the candidates.
package rerank

import (
	"sort"
	"strings"

	"github.com/fernandadias/discoveryrag/internal/expand"
	"github.com/fernandadias/discoveryrag/internal/vocab"
	"github.com/fernandadias/discoveryrag/pkg/models"
)

// Weights are the score components. The defaults are hand tuned.
type Weights struct {
	Title       float64 `yaml:"title"`
	Body        float64 `yaml:"body"`
	ExactPhrase float64 `yaml:"exactPhrase"`
	Context     float64 `yaml:"context"`
	Keyword     float64 `yaml:"keyword"`
}

// DefaultWeights returns Title 3, Body 1, ExactPhrase 10, Context 5,
// Keyword 2.
func DefaultWeights() Weights {
	return Weights{Title: 3, Body: 1, ExactPhrase: 10, Context: 5, Keyword: 2}
}

// minTermLen excludes short function words from the query term set.
const minTermLen = 2

// Reranker scores candidates against the original query.
type Reranker struct {
	vocab   *vocab.Vocabulary
	Weights Weights
}

// New returns a Reranker with default weights over v, or over the default
// vocabulary when v is nil.
func New(v *vocab.Vocabulary) *Reranker {
	if v == nil {
		v = vocab.Default()
	}
	return &Reranker{vocab: v, Weights: DefaultWeights()}
}

// Score computes the rerank score of one chunk for query.
func (r *Reranker) Score(query string, c models.Chunk) float64 {
	return r.score(newQueryInfo(r.vocab, query), c)
}

// Rerank returns a copy of cands with Score replaced by the rerank score,
// sorted descending. Ties keep their input order.
func (r *Reranker) Rerank(query string, cands []models.Candidate) []models.Candidate {
	qi := newQueryInfo(r.vocab, query)
	out := make([]models.Candidate, len(cands))
	for i, c := range cands {
		c.Score = r.score(qi, c.Chunk)
		out[i] = c
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

type queryInfo struct {
	raw     string
	phrase  string
	terms   []string
	intents map[string]struct{}
}

func newQueryInfo(v *vocab.Vocabulary, query string) queryInfo {
	qi := queryInfo{
		raw:     query,
		phrase:  vocab.Fold(strings.TrimSpace(strings.TrimRight(strings.TrimSpace(query), "?!.;:"))),
		terms:   expand.Terms(query, minTermLen),
		intents: make(map[string]struct{}),
	}
	for _, l := range v.MatchContexts(query) {
		qi.intents[l] = struct{}{}
	}
	return qi
}

func (r *Reranker) score(qi queryInfo, c models.Chunk) float64 {
	w := r.Weights
	title := vocab.Fold(c.Title)
	body := vocab.Fold(c.Content)

	var s float64
	for _, t := range qi.terms {
		if strings.Contains(title, t) {
			s += w.Title
		}
		s += w.Body * float64(strings.Count(body, t))
	}
	if qi.phrase != "" && strings.Contains(body, qi.phrase) {
		s += w.ExactPhrase
	}
	if len(qi.intents) > 0 {
		for _, l := range strings.Split(c.SemanticContext, ",") {
			if _, ok := qi.intents[strings.TrimSpace(l)]; ok {
				s += w.Context
				break
			}
		}
	}
	for _, k := range c.Keywords {
		if vocab.Contains(qi.raw, k) {
			s += w.Keyword
		}
	}
	return s
}
