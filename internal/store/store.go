package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fernandadias/discoveryrag/internal/vocab"
	"github.com/fernandadias/discoveryrag/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// ErrUnavailable marks failures to reach the database or inspect its schema.
var ErrUnavailable = errors.New("vector store unavailable")

// Store provides methods to interact with the database.
type Store struct {
	pool *pgxpool.Pool
}

// Schema describes the chunks table as found in the database.
type Schema struct {
	Exists bool
	// EmbeddingDim is zero when the table has no vector column.
	EmbeddingDim int
}

// Record is one chunk to persist, with an optional embedding.
type Record struct {
	Chunk     models.Chunk
	Embedding []float32
}

// ChunkStore defines the methods that the Store must implement.
type ChunkStore interface {
	SchemaInfo(ctx context.Context) (Schema, error)
	EnsureSchema(ctx context.Context, dim int) error
	UpsertBatch(ctx context.Context, recs []Record) error
	SimilaritySearch(ctx context.Context, vec []float32, k int) ([]models.Candidate, error)
	SubstringSearch(ctx context.Context, terms []string, limit int) ([]models.Chunk, error)
	Scan(ctx context.Context, limit int) ([]models.Chunk, error)
	Count(ctx context.Context) (int, error)
	DeleteByPath(ctx context.Context, path string) (int, error)
	Ping(ctx context.Context) error
}

// New creates a new Store instance connected to the given database URL.
func New(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return &Store{pool: p}, nil
}

func (s *Store) Close() { s.pool.Close() }

// SchemaInfo reports whether the chunks table exists and the dimension of
// its embedding column.
func (s *Store) SchemaInfo(ctx context.Context) (Schema, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT to_regclass('chunks') IS NOT NULL`).Scan(&exists); err != nil {
		return Schema{}, fmt.Errorf("%w: schema check: %w", ErrUnavailable, err)
	}
	if !exists {
		return Schema{}, nil
	}

	// pgvector stores the declared dimension in atttypmod.
	const q = `
		SELECT a.atttypmod
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		WHERE c.relname = 'chunks' AND a.attname = 'embedding' AND NOT a.attisdropped
		LIMIT 1`
	var dim int
	err := s.pool.QueryRow(ctx, q).Scan(&dim)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Schema{Exists: true}, nil
		}
		return Schema{}, fmt.Errorf("%w: schema check: %w", ErrUnavailable, err)
	}
	if dim < 0 {
		dim = 0
	}
	return Schema{Exists: true, EmbeddingDim: dim}, nil
}

// EnsureSchema creates the chunks table when it is missing. An existing
// table keeps its columns and embedding dimension; it only gains the
// search_text column when it predates it.
func (s *Store) EnsureSchema(ctx context.Context, dim int) error {
	info, err := s.SchemaInfo(ctx)
	if err != nil {
		return err
	}
	if info.Exists {
		if _, err := s.pool.Exec(ctx, migrateSQL); err != nil {
			return fmt.Errorf("%w: migrate schema: %w", ErrUnavailable, err)
		}
		return nil
	}
	if _, err := s.pool.Exec(ctx, schemaSQL(dim)); err != nil {
		return fmt.Errorf("%w: create schema: %w", ErrUnavailable, err)
	}
	return nil
}

const migrateSQL = `ALTER TABLE chunks ADD COLUMN IF NOT EXISTS search_text TEXT NOT NULL DEFAULT '';`

// schemaSQL renders the DDL for the chunks table. dim <= 0 omits the vector
// column and the vector extension.
func schemaSQL(dim int) string {
	var b strings.Builder
	b.WriteString("CREATE EXTENSION IF NOT EXISTS pg_trgm;\n")
	if dim > 0 {
		b.WriteString("CREATE EXTENSION IF NOT EXISTS vector;\n")
	}
	b.WriteString(`
CREATE TABLE IF NOT EXISTS chunks (
  id               TEXT PRIMARY KEY,
  title            TEXT NOT NULL DEFAULT '',
  document_title   TEXT NOT NULL DEFAULT '',
  section          TEXT NOT NULL DEFAULT '',
  chunk_index      INT  NOT NULL DEFAULT 0,
  chunk_total      INT  NOT NULL DEFAULT 0,
  content          TEXT NOT NULL,
  keywords         TEXT[] NOT NULL DEFAULT '{}',
  semantic_context TEXT NOT NULL DEFAULT 'general',
  metadata         JSONB NOT NULL DEFAULT '{}'::jsonb,
  file_path        TEXT NOT NULL DEFAULT '',
  search_text      TEXT NOT NULL DEFAULT '',
`)
	if dim > 0 {
		fmt.Fprintf(&b, "  embedding        vector(%d),\n", dim)
	}
	b.WriteString(`  created_at       TIMESTAMP WITH TIME ZONE DEFAULT now()
);

CREATE INDEX IF NOT EXISTS chunks_file_path_idx
  ON chunks (file_path);
CREATE INDEX IF NOT EXISTS chunks_title_trgm
  ON chunks USING GIN (title gin_trgm_ops);
CREATE INDEX IF NOT EXISTS chunks_content_trgm
  ON chunks USING GIN (content gin_trgm_ops);
CREATE INDEX IF NOT EXISTS chunks_search_text_trgm
  ON chunks USING GIN (search_text gin_trgm_ops);
`)
	if dim > 0 {
		b.WriteString(`CREATE INDEX IF NOT EXISTS chunks_embedding_idx
  ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`)
	}
	return b.String()
}

const upsertSQL = `
	INSERT INTO chunks (
		id, title, document_title, section, chunk_index, chunk_total,
		content, keywords, semantic_context, metadata, file_path, search_text, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, now())
	ON CONFLICT (id) DO UPDATE SET
		title            = EXCLUDED.title,
		document_title   = EXCLUDED.document_title,
		section          = EXCLUDED.section,
		chunk_index      = EXCLUDED.chunk_index,
		chunk_total      = EXCLUDED.chunk_total,
		keywords         = EXCLUDED.keywords,
		semantic_context = EXCLUDED.semantic_context,
		metadata         = EXCLUDED.metadata,
		file_path        = EXCLUDED.file_path,
		search_text      = EXCLUDED.search_text,
		created_at       = chunks.created_at;`

const upsertVectorSQL = `
	INSERT INTO chunks (
		id, title, document_title, section, chunk_index, chunk_total,
		content, keywords, semantic_context, metadata, file_path, search_text, embedding, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13, now())
	ON CONFLICT (id) DO UPDATE SET
		title            = EXCLUDED.title,
		document_title   = EXCLUDED.document_title,
		section          = EXCLUDED.section,
		chunk_index      = EXCLUDED.chunk_index,
		chunk_total      = EXCLUDED.chunk_total,
		keywords         = EXCLUDED.keywords,
		semantic_context = EXCLUDED.semantic_context,
		metadata         = EXCLUDED.metadata,
		file_path        = EXCLUDED.file_path,
		search_text      = EXCLUDED.search_text,
		embedding        = COALESCE(EXCLUDED.embedding, chunks.embedding),
		created_at       = chunks.created_at;`

// upsertArgs returns the statement and arguments for one record.
func upsertArgs(r Record) (string, []any) {
	c := r.Chunk
	keywords := c.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	args := []any{
		c.ID, c.Title, c.DocumentTitle, c.Section, c.Index, c.Total,
		c.Content, keywords, c.SemanticContext, c.Metadata.Map(), c.Metadata.FilePath,
		searchText(c),
	}
	if r.Embedding == nil {
		return upsertSQL, args
	}
	return upsertVectorSQL, append(args, pgvector.NewVector(r.Embedding))
}

// UpsertBatch writes recs in a single round trip keyed by chunk ID. The
// batch runs as one implicit transaction, so any failing record fails the
// whole batch.
func (s *Store) UpsertBatch(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, r := range recs {
		if r.Chunk.ID == "" {
			return fmt.Errorf("upsert: chunk %q has no id", r.Chunk.Title)
		}
		q, args := upsertArgs(r)
		b.Queue(q, args...)
	}
	br := s.pool.SendBatch(ctx, b)
	for i := range recs {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("upsert %s: %w", recs[i].Chunk.ID, err)
		}
	}
	return br.Close()
}

const chunkColumns = `id, title, document_title, section, chunk_index, chunk_total,
	content, keywords, semantic_context, metadata, created_at`

// SimilaritySearch returns the k nearest chunks by cosine distance. Scores
// are 1 - distance.
func (s *Store) SimilaritySearch(ctx context.Context, vec []float32, k int) ([]models.Candidate, error) {
	if len(vec) == 0 || k <= 0 {
		return []models.Candidate{}, nil
	}
	q := `SELECT ` + chunkColumns + `, 1 - (embedding <=> $1) AS score
		FROM chunks
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2`
	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var out []models.Candidate
	for rows.Next() {
		var score float64
		c, err := scanChunk(rows, &score)
		if err != nil {
			return nil, err
		}
		out = append(out, models.Candidate{Chunk: c, Score: score})
	}
	return out, rows.Err()
}

// SubstringSearch returns up to limit chunks whose title or content contains
// any of terms, ignoring case and accents. Rows written before search_text
// existed match on their raw columns only.
func (s *Store) SubstringSearch(ctx context.Context, terms []string, limit int) ([]models.Chunk, error) {
	patterns := likePatterns(terms)
	if len(patterns) == 0 || limit <= 0 {
		return []models.Chunk{}, nil
	}
	folded := make([]string, len(terms))
	for i, t := range terms {
		folded[i] = vocab.Fold(t)
	}
	q := `SELECT ` + chunkColumns + `
		FROM chunks
		WHERE search_text LIKE ANY($1) OR title ILIKE ANY($2) OR content ILIKE ANY($2)
		LIMIT $3`
	rows, err := s.pool.Query(ctx, q, likePatterns(folded), patterns, limit)
	if err != nil {
		return nil, fmt.Errorf("substring search: %w", err)
	}
	return collect(rows)
}

// Scan returns up to limit of the most recently created chunks.
func (s *Store) Scan(ctx context.Context, limit int) ([]models.Chunk, error) {
	if limit <= 0 {
		return []models.Chunk{}, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+chunkColumns+` FROM chunks ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return collect(rows)
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// DeleteByPath removes every chunk taken from the file at path.
func (s *Store) DeleteByPath(ctx context.Context, path string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE file_path = $1`, path)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", path, err)
	}
	return int(tag.RowsAffected()), nil
}

// Ping checks the database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func collect(rows pgx.Rows) ([]models.Chunk, error) {
	defer rows.Close()
	out := []models.Chunk{}
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// scanChunk reads chunkColumns followed by any extra destinations.
func scanChunk(rows pgx.Rows, extra ...any) (models.Chunk, error) {
	var (
		c    models.Chunk
		meta map[string]string
	)
	dest := append([]any{
		&c.ID, &c.Title, &c.DocumentTitle, &c.Section, &c.Index, &c.Total,
		&c.Content, &c.Keywords, &c.SemanticContext, &meta, &c.CreatedAt,
	}, extra...)
	if err := rows.Scan(dest...); err != nil {
		return models.Chunk{}, fmt.Errorf("scan chunk: %w", err)
	}
	c.Metadata = models.MetadataFromMap(meta)
	return c, nil
}

// searchText is the folded form of the chunk's title and content that
// SubstringSearch matches with LIKE.
func searchText(c models.Chunk) string {
	return vocab.Fold(c.Title + "\n" + c.Content)
}

// likePatterns turns terms into escaped ILIKE patterns, dropping blanks and
// duplicates.
func likePatterns(terms []string) []string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, "%"+r.Replace(t)+"%")
	}
	return out
}
