package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fernandadias/discoveryrag/internal/ai"
	"github.com/fernandadias/discoveryrag/internal/chunker"
	"github.com/fernandadias/discoveryrag/internal/expand"
	"github.com/fernandadias/discoveryrag/internal/metrics"
	"github.com/fernandadias/discoveryrag/internal/store"
	"github.com/fernandadias/discoveryrag/internal/vocab"
	"github.com/fernandadias/discoveryrag/pkg/models"
	"github.com/rs/zerolog/log"
)

// Retrieval defaults.
const (
	DefaultLimit      = 10
	DefaultOverFetch  = 15
	DefaultMinResults = 3
	DefaultScanLimit  = 500

	// keywordMinLen drops short function words from keyword terms.
	keywordMinLen = 3
	titleWeight   = 3
)

// Retriever finds candidate chunks for a query, falling back from
// similarity search to keyword scoring to a scan of the local mirror.
type Retriever struct {
	Store    store.ChunkStore
	Embedder ai.Embedder
	Expander *expand.Expander
	Metrics  *metrics.Metrics

	// LocalDir is the mirror scanned when the store cannot serve a query.
	LocalDir string
	Local    *LocalSearcher

	Limit      int
	OverFetch  int
	MinResults int
	ScanLimit  int
}

// NewRetriever returns a Retriever with default limits. Any of s, e and v
// may be nil.
func NewRetriever(s store.ChunkStore, e ai.Embedder, v *vocab.Vocabulary, localDir string, m *metrics.Metrics) *Retriever {
	return &Retriever{
		Store:      s,
		Embedder:   e,
		Expander:   expand.New(v),
		Metrics:    m,
		LocalDir:   localDir,
		Local:      NewLocalSearcher(chunker.NewFixed()),
		Limit:      DefaultLimit,
		OverFetch:  DefaultOverFetch,
		MinResults: DefaultMinResults,
		ScanLimit:  DefaultScanLimit,
	}
}

// Retrieve runs the tiers in order and merges their output, earlier tiers
// first. It never fails: when every tier fails the result has no chunks.
func (r *Retriever) Retrieve(ctx context.Context, query string, limit int) models.RetrievalResult {
	start := time.Now()
	defer r.Metrics.ObserveRetrieval(start)

	query = strings.TrimSpace(query)
	res := models.RetrievalResult{
		Query:  query,
		Chunks: []models.Candidate{},
		Tiers:  []models.Tier{},
	}
	if query == "" {
		return res
	}

	if limit <= 0 {
		limit = r.Limit
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	want := r.OverFetch
	if want < limit {
		want = limit
	}
	minResults := r.MinResults
	if minResults > want {
		minResults = want
	}

	ex := r.Expander
	if ex == nil {
		ex = expand.New(nil)
	}
	res.Expanded = ex.Expand(query)

	m := newMerger(want)
	reachable := true

	if r.Store == nil {
		reachable = false
	} else {
		schema, err := r.Store.SchemaInfo(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("vector store unreachable, using local mirror")
			r.record(models.TierSemantic, metrics.OutcomeError)
			reachable = false
		} else {
			cands, err := r.semantic(ctx, schema, res.Expanded, want)
			r.finish(models.TierSemantic, cands, err)
			m.add(models.TierSemantic, cands)

			if m.len() < minResults && ctx.Err() == nil {
				cands, err := r.keyword(ctx, ex, query, want)
				if err != nil && !errors.Is(err, errSkipped) {
					reachable = false
				}
				r.finish(models.TierKeyword, cands, err)
				m.add(models.TierKeyword, cands)
			}
		}
	}

	if (!reachable || m.len() < minResults) && ctx.Err() == nil {
		cands, err := r.local(ctx, query, want)
		r.finish(models.TierLocal, cands, err)
		m.add(models.TierLocal, cands)
	}

	res.Chunks, res.Tiers = m.result()
	log.Debug().
		Str("query", query).
		Int("results", len(res.Chunks)).
		Interface("tiers", res.Tiers).
		Dur("took", time.Since(start)).
		Msg("retrieval complete")
	return res
}

// errSkipped marks a tier that did not apply to this query.
var errSkipped = errors.New("tier skipped")

func (r *Retriever) semantic(ctx context.Context, schema store.Schema, expanded string, k int) ([]models.Candidate, error) {
	if !schema.Exists || schema.EmbeddingDim == 0 || r.Embedder == nil || r.Embedder.Dim() <= 0 {
		return nil, errSkipped
	}
	vec, err := r.Embedder.Embed(ctx, expanded)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vec) != schema.EmbeddingDim {
		return nil, fmt.Errorf("query embedding has %d dimensions, store expects %d", len(vec), schema.EmbeddingDim)
	}
	cands, err := r.Store.SimilaritySearch(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	for i := range cands {
		cands[i].Tier = models.TierSemantic
	}
	return cands, nil
}

func (r *Retriever) keyword(ctx context.Context, ex *expand.Expander, query string, k int) ([]models.Candidate, error) {
	terms := ex.WithSynonyms(expand.Terms(query, keywordMinLen))
	if len(terms) == 0 {
		return nil, errSkipped
	}
	// Stored text keeps its accents; match both spellings of every term.
	chunks, err := r.Store.SubstringSearch(ctx, ex.Forms(query, keywordMinLen), r.scanLimit())
	if err != nil {
		log.Warn().Err(err).Msg("substring search failed, scanning")
		chunks, err = r.Store.Scan(ctx, r.scanLimit())
		if err != nil {
			return nil, fmt.Errorf("keyword scan: %w", err)
		}
	}

	cands := make([]models.Candidate, 0, len(chunks))
	for _, c := range chunks {
		title := vocab.Fold(c.Title)
		body := vocab.Fold(c.Content)
		var score float64
		for _, t := range terms {
			score += float64(titleWeight*strings.Count(title, t) + strings.Count(body, t))
		}
		if score > 0 {
			cands = append(cands, models.Candidate{Chunk: c, Score: score, Tier: models.TierKeyword})
		}
	}
	return top(cands, k), nil
}

func (r *Retriever) local(ctx context.Context, query string, k int) ([]models.Candidate, error) {
	if r.LocalDir == "" {
		return nil, errSkipped
	}
	ls := r.Local
	if ls == nil {
		ls = NewLocalSearcher(chunker.NewFixed())
	}
	return ls.Search(ctx, r.LocalDir, expand.Terms(query, keywordMinLen), k)
}

func (r *Retriever) scanLimit() int {
	if r.ScanLimit > 0 {
		return r.ScanLimit
	}
	return DefaultScanLimit
}

func (r *Retriever) finish(tier models.Tier, cands []models.Candidate, err error) {
	switch {
	case errors.Is(err, errSkipped):
		r.record(tier, metrics.OutcomeSkipped)
	case err != nil:
		log.Warn().Err(err).Str("tier", string(tier)).Msg("retrieval tier failed")
		r.record(tier, metrics.OutcomeError)
	case len(cands) == 0:
		r.record(tier, metrics.OutcomeEmpty)
	default:
		r.record(tier, metrics.OutcomeHit)
	}
}

func (r *Retriever) record(tier models.Tier, outcome string) {
	r.Metrics.Tier(string(tier), outcome)
}

// top sorts cands by score, descending and stable, and keeps the first k.
func top(cands []models.Candidate, k int) []models.Candidate {
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Score > cands[j].Score })
	if len(cands) > k {
		cands = cands[:k]
	}
	return cands
}

// merger accumulates tier output, dropping chunks whose ID was already
// taken or whose title an earlier tier already returned. Within one tier
// equal titles from different files are distinct passages.
type merger struct {
	max    int
	out    []models.Candidate
	tiers  []models.Tier
	titles map[string]struct{}
	ids    map[string]struct{}
}

func newMerger(max int) *merger {
	return &merger{
		max:    max,
		out:    []models.Candidate{},
		tiers:  []models.Tier{},
		titles: make(map[string]struct{}),
		ids:    make(map[string]struct{}),
	}
}

func (m *merger) add(tier models.Tier, cands []models.Candidate) {
	added := false
	titles := make(map[string]struct{})
	for _, c := range cands {
		if len(m.out) >= m.max {
			break
		}
		title := strings.TrimSpace(c.Chunk.Title)
		if _, ok := m.titles[title]; ok && title != "" {
			continue
		}
		if _, ok := m.ids[c.Chunk.ID]; ok && c.Chunk.ID != "" {
			continue
		}
		titles[title] = struct{}{}
		m.ids[c.Chunk.ID] = struct{}{}
		c.Tier = tier
		m.out = append(m.out, c)
		added = true
	}
	for t := range titles {
		m.titles[t] = struct{}{}
	}
	if added {
		m.tiers = append(m.tiers, tier)
	}
}

func (m *merger) len() int { return len(m.out) }

func (m *merger) result() ([]models.Candidate, []models.Tier) { return m.out, m.tiers }
