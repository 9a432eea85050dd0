package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fernandadias/discoveryrag/internal/annotate"
	"github.com/fernandadias/discoveryrag/internal/chunker"
	"github.com/fernandadias/discoveryrag/internal/metrics"
	"github.com/fernandadias/discoveryrag/internal/normalize"
	"github.com/fernandadias/discoveryrag/pkg/models"
	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
)

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// DocumentNormalizer extracts a document from a file.
type DocumentNormalizer interface {
	Normalize(ctx context.Context, path string) (models.Document, error)
}

// Indexer runs Normalizer, Splitter, Annotator and Writer over files.
type Indexer struct {
	Normalizer DocumentNormalizer
	Splitter   chunker.Splitter
	Annotator  *annotate.Annotator
	Writer     *Writer
	Walker     FileSystemWalker
	Metrics    *metrics.Metrics
	// Workers is the number of files indexed concurrently by IndexDir.
	// Chunks of one file are always written by a single worker.
	Workers int
}

// New creates a new Indexer instance.
func New(n DocumentNormalizer, s chunker.Splitter, a *annotate.Annotator, w *Writer, m *metrics.Metrics) *Indexer {
	return &Indexer{
		Normalizer: n,
		Splitter:   s,
		Annotator:  a,
		Writer:     w,
		Walker:     &DefaultFileSystemWalker{},
		Metrics:    m,
		Workers:    1,
	}
}

// IndexFile ingests a single file. Unsupported files are counted as
// skipped, extraction failures and files whose chunks all failed to write
// as failed.
func (ix *Indexer) IndexFile(ctx context.Context, path string) models.IngestStats {
	st := models.IngestStats{Total: 1}

	doc, err := ix.Normalizer.Normalize(ctx, path)
	if err != nil {
		if errors.Is(err, normalize.ErrUnsupportedFormat) {
			log.Debug().Str("path", path).Msg("unsupported format, skipping")
			st.Skipped = 1
			ix.Metrics.File(metrics.OutcomeSkipped)
			return st
		}
		log.Warn().Err(err).Str("path", path).Msg("extraction failed")
		return ix.failed(st, path)
	}

	chunks := chunker.ForFormat(doc.Format, ix.Splitter).Split(doc)
	if len(chunks) == 0 {
		log.Info().Str("path", path).Msg("document has no text, skipping")
		st.Skipped = 1
		ix.Metrics.File(metrics.OutcomeSkipped)
		return st
	}
	chunks = ix.Annotator.Annotate(chunks)
	for i := range chunks {
		chunks[i].ID = ContentID(chunks[i].Content)
	}

	res := ix.Writer.Write(ctx, chunks)
	st.Chunks = res.Written
	if res.Written == 0 && res.Failed > 0 {
		return ix.failed(st, path)
	}
	log.Info().Str("path", path).
		Int("written", res.Written).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Msg("indexed file")
	st.Success = 1
	ix.Metrics.File(metrics.OutcomeSuccess)
	return st
}

func (ix *Indexer) failed(st models.IngestStats, path string) models.IngestStats {
	st.Failed = 1
	st.FailedFiles = append(st.FailedFiles, path)
	ix.Metrics.File(metrics.OutcomeFailed)
	return st
}

// IndexDir walks dir and ingests every supported file, accumulating the
// counts. Hidden directories are not entered and files with unsupported
// extensions are counted as skipped. An error is returned only when the
// walk itself could not run.
func (ix *Indexer) IndexDir(ctx context.Context, dir string) (models.IngestStats, error) {
	workers := ix.Workers
	if workers < 1 {
		workers = 1
	}

	var (
		mu    sync.Mutex
		total models.IngestStats
		wg    sync.WaitGroup
	)
	add := func(st models.IngestStats) {
		mu.Lock()
		total.Add(st)
		mu.Unlock()
	}

	paths := make(chan string, workers*2)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range paths {
				add(ix.IndexFile(ctx, p))
			}
		}()
	}

	walker := ix.Walker
	if walker == nil {
		walker = &DefaultFileSystemWalker{}
	}
	walkErr := walker.Walk(dir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			// Mock walkers pass a nil Dirent for plain files.
			if de != nil && de.IsDir() {
				if path != dir && strings.HasPrefix(de.Name(), ".") {
					return godirwalk.SkipThis
				}
				return nil
			}
			if strings.HasPrefix(filepath.Base(path), ".") {
				return nil
			}
			if !normalize.IsSupported(path) {
				add(models.IngestStats{Total: 1, Skipped: 1})
				ix.Metrics.File(metrics.OutcomeSkipped)
				return nil
			}
			select {
			case paths <- path:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			log.Warn().Err(err).Str("path", path).Msg("walk error, skipping")
			return godirwalk.SkipNode
		},
	})
	close(paths)
	wg.Wait()

	if walkErr != nil {
		return total, fmt.Errorf("walk %s: %w", dir, walkErr)
	}
	log.Info().
		Int("total", total.Total).
		Int("success", total.Success).
		Int("failed", total.Failed).
		Int("skipped", total.Skipped).
		Int("chunks", total.Chunks).
		Msg("directory indexed")
	return total, nil
}

// Ingest indexes path, which may be a file or a directory.
func (ix *Indexer) Ingest(ctx context.Context, path string) (models.IngestStats, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return models.IngestStats{}, fmt.Errorf("ingest %s: %w", path, err)
	}
	if fi.IsDir() {
		return ix.IndexDir(ctx, path)
	}
	return ix.IndexFile(ctx, path), nil
}

// Remove deletes every chunk taken from the file at path and returns how
// many were removed.
func (ix *Indexer) Remove(ctx context.Context, path string) (int, error) {
	n, err := ix.Writer.Store.DeleteByPath(ctx, path)
	if err != nil {
		return 0, err
	}
	log.Info().Str("path", path).Int("chunks", n).Msg("removed document")
	return n, nil
}
