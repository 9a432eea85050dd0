package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fernandadias/discoveryrag/internal/ai"
	"github.com/fernandadias/discoveryrag/internal/annotate"
	"github.com/fernandadias/discoveryrag/internal/chunker"
	"github.com/fernandadias/discoveryrag/internal/config"
	"github.com/fernandadias/discoveryrag/internal/indexer"
	"github.com/fernandadias/discoveryrag/internal/metrics"
	"github.com/fernandadias/discoveryrag/internal/normalize"
	"github.com/fernandadias/discoveryrag/internal/store"
	"github.com/fernandadias/discoveryrag/internal/vocab"
	"github.com/fernandadias/discoveryrag/pkg/models"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("discoveryrag-indexer", pflag.ExitOnError)
	cfg, err := config.Load("", fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level '%s': %v\n", cfg.LogLevel, err)
		os.Exit(1)
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	target := cfg.DataDir
	if fs.NArg() > 0 {
		target = fs.Arg(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ix, closeFn, err := build(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer closeFn()

	log.Info().Str("path", target).Str("provider", cfg.Provider).Str("strategy", cfg.Chunking.Strategy).Msg("indexing")
	stats, err := ix.Ingest(ctx, target)
	if err != nil {
		// A missing target is a configuration problem, not a partial failure.
		log.Error().Err(err).Msg("ingest failed")
		closeFn()
		os.Exit(1)
	}
	if err := report(os.Stdout, stats); err != nil {
		log.Error().Err(err).Msg("write report")
	}
}

func build(ctx context.Context, cfg config.Specification) (*indexer.Indexer, func(), error) {
	v, err := vocab.Load(cfg.VocabularyFile)
	if err != nil {
		return nil, nil, err
	}
	c, err := ai.NewClient(ctx, cfg.AIConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("create AI client: %w", err)
	}
	splitter, err := chunker.New(cfg.Chunking.Strategy, cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	// Metrics are not exported by the CLI; the collectors stay unregistered.
	m := metrics.New(nil)
	ix := indexer.New(normalize.New(), splitter, annotate.New(v), indexer.NewWriter(st, c, cfg.Chunking.BatchSize, m), m)
	ix.Workers = cfg.Chunking.Workers
	return ix, st.Close, nil
}

// report prints stats as JSON followed by the failed files, one per line.
func report(w io.Writer, stats models.IngestStats) error {
	if stats.FailedFiles == nil {
		stats.FailedFiles = []string{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stats); err != nil {
		return err
	}
	for _, f := range stats.FailedFiles {
		if _, err := fmt.Fprintf(w, "failed: %s\n", f); err != nil {
			return err
		}
	}
	return nil
}
