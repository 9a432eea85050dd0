package indexer

import (
	"context"
	"sync"

	"github.com/fernandadias/discoveryrag/internal/ai"
	"github.com/fernandadias/discoveryrag/internal/metrics"
	"github.com/fernandadias/discoveryrag/internal/store"
	"github.com/fernandadias/discoveryrag/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBatchSize is the number of chunks sent per upsert round trip.
	DefaultBatchSize = 10
	// contentIDLimit bounds the prefix of a body that feeds its identifier.
	contentIDLimit = 4000
)

// ContentID returns the deterministic identifier of a chunk body: a
// name-based (SHA-1) UUID over at most the first 4000 bytes.
func ContentID(body string) string {
	if len(body) > contentIDLimit {
		body = body[:contentIDLimit]
	}
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(body)).String()
}

// WriteResult counts chunk outcomes of one Write call.
type WriteResult struct {
	Written int
	Failed  int
	Skipped int
}

// Writer persists annotated chunks, creating the store schema on first use.
type Writer struct {
	Store     store.ChunkStore
	Embedder  ai.Embedder
	BatchSize int
	Metrics   *metrics.Metrics

	mu     sync.Mutex
	ready  bool
	schema store.Schema
}

// NewWriter returns a Writer. embedder may be nil, in which case chunks are
// stored without vectors.
func NewWriter(s store.ChunkStore, embedder ai.Embedder, batchSize int, m *metrics.Metrics) *Writer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Writer{Store: s, Embedder: embedder, BatchSize: batchSize, Metrics: m}
}

// ensureSchema creates the schema once per Writer. A failed attempt is
// retried on the next call.
func (w *Writer) ensureSchema(ctx context.Context) (store.Schema, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ready {
		return w.schema, nil
	}
	dim := 0
	if w.Embedder != nil {
		dim = w.Embedder.Dim()
	}
	if err := w.Store.EnsureSchema(ctx, dim); err != nil {
		return store.Schema{}, err
	}
	info, err := w.Store.SchemaInfo(ctx)
	if err != nil {
		return store.Schema{}, err
	}
	w.schema = info
	w.ready = true
	return info, nil
}

// Write upserts chunks in batches keyed by content identifier. Chunks whose
// identifier already appeared in this call are skipped. When a batch fails
// its records are retried one by one so a single bad chunk only fails
// itself.
func (w *Writer) Write(ctx context.Context, chunks []models.Chunk) WriteResult {
	var res WriteResult
	if len(chunks) == 0 {
		return res
	}

	schema, err := w.ensureSchema(ctx)
	if err != nil {
		log.Error().Err(err).Int("chunks", len(chunks)).Msg("schema unavailable, chunks not written")
		res.Failed = len(chunks)
		w.Metrics.Chunks(metrics.OutcomeFailed, res.Failed)
		return res
	}

	batchSize := w.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	seen := make(map[string]struct{}, len(chunks))
	for start := 0; start < len(chunks); start += batchSize {
		if ctx.Err() != nil {
			res.Failed += len(chunks) - start
			log.Warn().Err(ctx.Err()).Int("remaining", len(chunks)-start).Msg("write interrupted")
			break
		}
		end := min(start+batchSize, len(chunks))

		recs := make([]store.Record, 0, end-start)
		for _, c := range chunks[start:end] {
			if c.ID == "" {
				c.ID = ContentID(c.Content)
			}
			if _, dup := seen[c.ID]; dup {
				res.Skipped++
				continue
			}
			seen[c.ID] = struct{}{}
			recs = append(recs, store.Record{Chunk: c, Embedding: w.embed(ctx, c, schema.EmbeddingDim)})
		}
		written, failed := w.upsert(ctx, recs)
		res.Written += written
		res.Failed += failed
	}

	w.Metrics.Chunks(metrics.OutcomeSuccess, res.Written)
	w.Metrics.Chunks(metrics.OutcomeFailed, res.Failed)
	w.Metrics.Chunks(metrics.OutcomeSkipped, res.Skipped)
	return res
}

func (w *Writer) upsert(ctx context.Context, recs []store.Record) (written, failed int) {
	if len(recs) == 0 {
		return 0, 0
	}
	err := w.Store.UpsertBatch(ctx, recs)
	if err == nil {
		return len(recs), 0
	}
	log.Warn().Err(err).Int("records", len(recs)).Msg("batch upsert failed, retrying per chunk")
	for _, r := range recs {
		if err := w.Store.UpsertBatch(ctx, []store.Record{r}); err != nil {
			log.Error().Err(err).Str("id", r.Chunk.ID).Str("title", r.Chunk.Title).Msg("upsert failed")
			failed++
			continue
		}
		written++
	}
	return written, failed
}

// embed returns the vector for c, or nil when the store has no embedding
// column or the embedder fails.
func (w *Writer) embed(ctx context.Context, c models.Chunk, dim int) []float32 {
	if w.Embedder == nil || dim <= 0 {
		return nil
	}
	vec, err := w.Embedder.Embed(ctx, c.Content)
	if err != nil {
		log.Warn().Err(err).Str("id", c.ID).Msg("embedding failed, storing chunk without vector")
		return nil
	}
	if len(vec) != dim {
		log.Warn().Int("got", len(vec)).Int("want", dim).Str("id", c.ID).Msg("embedding dimension mismatch, storing chunk without vector")
		return nil
	}
	return vec
}
