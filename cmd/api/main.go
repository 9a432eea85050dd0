package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/fernandadias/discoveryrag/internal/ai"
	"github.com/fernandadias/discoveryrag/internal/annotate"
	"github.com/fernandadias/discoveryrag/internal/auth"
	"github.com/fernandadias/discoveryrag/internal/chunker"
	"github.com/fernandadias/discoveryrag/internal/config"
	"github.com/fernandadias/discoveryrag/internal/guidelines"
	"github.com/fernandadias/discoveryrag/internal/indexer"
	"github.com/fernandadias/discoveryrag/internal/metrics"
	"github.com/fernandadias/discoveryrag/internal/normalize"
	"github.com/fernandadias/discoveryrag/internal/rerank"
	"github.com/fernandadias/discoveryrag/internal/search"
	"github.com/fernandadias/discoveryrag/internal/store"
	"github.com/fernandadias/discoveryrag/internal/vocab"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/pflag"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("discoveryrag-api", pflag.ExitOnError)
	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	logger.Info().Str("provider", cfg.Provider).Str("log_level", cfg.LogLevel).Bool("auth_enabled", cfg.Auth.Enabled).Msg("starting discoveryrag api")

	v, err := vocab.Load(cfg.VocabularyFile)
	if err != nil {
		log.Fatalf("Failed to load vocabulary: %v", err)
	}

	auth.InitializeAuth(cfg.Auth.JwtSecret, cfg.Auth.Username, cfg.Auth.Password, cfg.Auth.TokenTTL, cfg.Auth.Enabled)

	ctx := context.Background()
	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database pool: %v", err)
	}
	defer st.Close()

	c, err := ai.NewClient(ctx, cfg.AIConfig())
	if err != nil {
		log.Fatalf("Failed to create AI client: %v", err)
	}
	logger.Info().Int("embedding_dim", c.Dim()).Str("embed_model", cfg.EmbedModel).Msg("AI client initialized")

	g, err := guidelines.Load(cfg.GuidelinesDir)
	if err != nil {
		log.Fatalf("Failed to load guidelines: %v", err)
	}
	logger.Info().Int("guidelines", g.Len()).Str("dir", cfg.GuidelinesDir).Msg("guidelines loaded")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	splitter, err := chunker.New(cfg.Chunking.Strategy, cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		log.Fatalf("Failed to create chunker: %v", err)
	}
	ix := indexer.New(normalize.New(), splitter, annotate.New(v), indexer.NewWriter(st, c, cfg.Chunking.BatchSize, m), m)
	ix.Workers = cfg.Chunking.Workers

	ret := search.NewRetriever(st, c, v, cfg.DataDir, m)
	ret.Limit = cfg.Retrieval.Limit
	ret.OverFetch = cfg.Retrieval.OverFetch
	ret.MinResults = cfg.Retrieval.MinResults
	ret.ScanLimit = cfg.Retrieval.ScanLimit

	rr := rerank.New(v)
	rr.Weights = cfg.Rerank

	svc := search.NewService(ret, rr, c, g)
	svc.Assembler.MaxChunkChars = cfg.Retrieval.ContextChars
	svc.Assembler.TopK = cfg.Retrieval.Limit
	svc.GuidelinesChars = cfg.Retrieval.GuidelinesChars

	if auth.IsAuthEnabled() {
		logger.Info().Msg("Authentication is ENABLED")
	} else {
		logger.Info().Msg("Authentication is DISABLED - running in open mode")
	}

	srv := &server{
		svc:      svc,
		ix:       ix,
		st:       st,
		gatherer: reg,
		dataDir:  cfg.DataDir,
		limit:    cfg.Retrieval.Limit,
	}

	handler := hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(srv.routes()),
	)

	address := fmt.Sprintf(":%d", cfg.Port)
	s := &http.Server{Addr: address, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	logger.Info().Str("addr", s.Addr).Str("data_dir", cfg.DataDir).Msg("api server listening")
	log.Fatal(s.ListenAndServe())
}
