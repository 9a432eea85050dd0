package search

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fernandadias/discoveryrag/internal/chunker"
	"github.com/fernandadias/discoveryrag/internal/indexer"
	"github.com/fernandadias/discoveryrag/internal/normalize"
	"github.com/fernandadias/discoveryrag/internal/vocab"
	"github.com/fernandadias/discoveryrag/pkg/models"
	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
)

// localExts are the mirror files the local tier reads.
var localExts = map[string]bool{".txt": true, ".md": true}

// LocalSearcher scores plain-text and markdown files from a directory by
// raw term frequency.
type LocalSearcher struct {
	Normalizer indexer.DocumentNormalizer
	Splitter   chunker.Splitter
	Walker     indexer.FileSystemWalker
}

// NewLocalSearcher returns a LocalSearcher that chunks files with s.
func NewLocalSearcher(s chunker.Splitter) *LocalSearcher {
	return &LocalSearcher{
		Normalizer: normalize.New(),
		Splitter:   s,
		Walker:     &indexer.DefaultFileSystemWalker{},
	}
}

// Search returns the k best chunks under dir for terms. Unreadable files
// are logged and skipped.
func (l *LocalSearcher) Search(ctx context.Context, dir string, terms []string, k int) ([]models.Candidate, error) {
	if len(terms) == 0 {
		return nil, errSkipped
	}
	var paths []string
	err := l.Walker.Walk(dir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if de != nil && de.IsDir() {
				if path != dir && strings.HasPrefix(de.Name(), ".") {
					return godirwalk.SkipThis
				}
				return nil
			}
			if localExts[strings.ToLower(filepath.Ext(path))] {
				paths = append(paths, path)
			}
			return nil
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			log.Warn().Err(err).Str("path", path).Msg("local mirror walk error, skipping")
			return godirwalk.SkipNode
		},
	})
	if err != nil {
		return nil, err
	}

	var cands []models.Candidate
	for _, p := range paths {
		doc, err := l.Normalizer.Normalize(ctx, p)
		if err != nil {
			log.Warn().Err(err).Str("path", p).Msg("local mirror file unreadable")
			continue
		}
		for _, c := range l.Splitter.Split(doc) {
			score := termFrequency(vocab.Fold(c.Content), terms)
			if score == 0 {
				continue
			}
			c.ID = indexer.ContentID(c.Content)
			cands = append(cands, models.Candidate{Chunk: c, Score: float64(score), Tier: models.TierLocal})
		}
	}
	return top(cands, k), nil
}

func termFrequency(body string, terms []string) int {
	n := 0
	for _, t := range terms {
		n += strings.Count(body, t)
	}
	return n
}
