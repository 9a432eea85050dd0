package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fernandadias/discoveryrag/internal/ai"
	"github.com/fernandadias/discoveryrag/internal/auth"
	"github.com/fernandadias/discoveryrag/internal/indexer"
	"github.com/fernandadias/discoveryrag/internal/normalize"
	"github.com/fernandadias/discoveryrag/internal/search"
	"github.com/fernandadias/discoveryrag/internal/store"
	"github.com/fernandadias/discoveryrag/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

const maxUploadBytes = 32 << 20

type server struct {
	svc      *search.Service
	ix       *indexer.Indexer
	st       store.ChunkStore
	gatherer prometheus.Gatherer
	dataDir  string
	limit    int

	// ingestMu serializes writes to the store and the data dir.
	ingestMu sync.Mutex
}

type chatRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

type chatResponse struct {
	Response string            `json:"response"`
	Sources  []models.Citation `json:"sources"`
	Tiers    []models.Tier     `json:"tiers"`
	Error    string            `json:"error,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	mux.HandleFunc("/readyz", s.handleReady)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/auth/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"enabled": auth.IsAuthEnabled()})
	})
	mux.HandleFunc("/login", s.handleLogin)

	mux.HandleFunc("/query", auth.OptionalAuthMiddleware(s.handleQuery))
	mux.HandleFunc("/chat", auth.OptionalAuthMiddleware(s.handleChat))
	mux.HandleFunc("/documents/upload", auth.OptionalAuthMiddleware(s.handleUpload))
	mux.HandleFunc("/documents", auth.OptionalAuthMiddleware(s.handleDelete))
	mux.HandleFunc("/reindex", auth.OptionalAuthMiddleware(s.handleReindex))
	return mux
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.st.Ping(ctx); err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(200)
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !auth.IsAuthEnabled() {
		http.Error(w, "authentication is disabled", http.StatusNotFound)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	resp, err := auth.Login(req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    resp.Token,
		Path:     "/",
		Expires:  resp.ExpiresAt,
		HttpOnly: true,
		Secure:   strings.HasPrefix(r.Header.Get("X-Forwarded-Proto"), "https"),
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		http.Error(w, "missing query parameter q", http.StatusBadRequest)
		return
	}
	k := s.limit
	if v := r.URL.Query().Get("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "k must be a positive integer", http.StatusBadRequest)
			return
		}
		k = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	res := s.svc.Query(ctx, q, k)
	writeJSON(w, http.StatusOK, res)

	hlog.FromRequest(r).Info().Str("path", "/query").Str("q", q).Int("k", k).
		Int("chunks", len(res.Retrieval.Chunks)).Dur("dur", time.Since(start)).Msg("served")
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		http.Error(w, "request body must carry a query", http.StatusBadRequest)
		return
	}
	k := req.K
	if k <= 0 {
		k = s.limit
	}

	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()
	ans, err := s.svc.Answer(ctx, req.Query, k)
	out := chatResponse{Response: ans.Response, Sources: ans.Context.Citations, Tiers: ans.Tiers}
	switch {
	case err == nil, errors.Is(err, search.ErrNoInformation):
		writeJSON(w, http.StatusOK, out)
	case errors.Is(err, ai.ErrGeneration):
		hlog.FromRequest(r).Error().Err(err).Str("path", "/chat").Msg("generation failed")
		out.Error = "generation failed"
		writeJSON(w, http.StatusBadGateway, out)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing form file \"file\"", http.StatusBadRequest)
		return
	}
	defer func() { _ = f.Close() }()

	name := filepath.Base(hdr.Filename)
	if name == "." || name == string(filepath.Separator) || !normalize.IsSupported(name) {
		http.Error(w, "unsupported file type", http.StatusUnsupportedMediaType)
		return
	}
	dst := filepath.Join(s.dataDir, name)

	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()
	if err := saveFile(dst, f); err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("path", dst).Msg("save upload")
		http.Error(w, "failed to store file", http.StatusInternalServerError)
		return
	}
	// Chunks of a replaced file must not outlive it.
	if _, err := s.ix.Remove(r.Context(), dst); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("path", dst).Msg("remove previous chunks")
	}
	stats := s.ix.IndexFile(r.Context(), dst)
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, ok := resolveDocument(s.dataDir, r.URL.Query().Get("path"))
	if !ok {
		http.Error(w, "path must name a file inside the data directory", http.StatusBadRequest)
		return
	}

	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()
	n, err := s.ix.Remove(r.Context(), p)
	if err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		hlog.FromRequest(r).Warn().Err(err).Str("path", p).Msg("remove file")
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": p, "removed": n})
}

func (s *server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()
	stats, err := s.ix.IndexDir(r.Context(), s.dataDir)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("dir", s.dataDir).Msg("reindex")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// resolveDocument maps p, either a stored path or a name relative to
// dataDir, to a cleaned path inside dataDir.
func resolveDocument(dataDir, p string) (string, bool) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", false
	}
	for _, cand := range []string{filepath.Clean(p), filepath.Join(dataDir, p)} {
		rel, err := filepath.Rel(dataDir, cand)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return cand, true
	}
	return "", false
}

func saveFile(dst string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
