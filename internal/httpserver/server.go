package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blackmichael/skystats/internal/bluesky"
	"github.com/blackmichael/skystats/internal/config"
	"github.com/blackmichael/skystats/internal/domain"
	"github.com/blackmichael/skystats/internal/report"
)

const maxListLimit = 10000

// Server is the HTTP server that serves the report JSON API.
type Server struct {
	cfg        *config.Config
	service    *report.Service
	cache      *reportCache
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a new HTTP server with the given report service.
func NewServer(cfg *config.Config, service *report.Service, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		service: service,
		cache:   newReportCache(cfg.CacheSize, cfg.CacheTTL.Duration),
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/report", s.handleReport)
	mux.HandleFunc("GET /api/reports", s.handleReports)
	mux.HandleFunc("GET /api/follows", s.handleFollows)
	mux.HandleFunc("GET /api/followers", s.handleFollowers)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/feed", s.handleFeed)
	mux.HandleFunc("GET /api/timeline", s.handleTimeline)
	mux.HandleFunc("GET /api/identity", s.handleIdentity)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.ReportTimeout.Duration + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireParam(w, r, "actor")
	if !ok {
		return
	}
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	cont, _ := strconv.ParseBool(r.URL.Query().Get("continue"))

	if !refresh && !cont {
		if cached, ok := s.cache.get(actor); ok {
			s.logger.Debug("report served from cache", "actor", actor)
			w.Header().Set("X-Cache", "HIT")
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ReportTimeout.Duration)
	defer cancel()

	// A continued report covers an older slice of the feed and is not cached.
	if cont {
		rep, err := s.service.Continue(ctx, actor)
		if err != nil {
			s.writeServiceError(w, "continue report", err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
		return
	}

	rep, err := s.service.Generate(ctx, actor)
	if err != nil {
		s.writeServiceError(w, "generate report", err)
		return
	}
	s.cache.add(actor, rep)

	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireParam(w, r, "actor")
	if !ok {
		return
	}
	limit, ok := s.parseLimit(w, r, 20)
	if !ok {
		return
	}

	summaries, cursor, err := s.service.History(r.Context(), actor, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		s.writeServiceError(w, "list reports", err)
		return
	}

	resp := map[string]any{"reports": summaries}
	if cursor != "" {
		resp["cursor"] = cursor
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFollows(w http.ResponseWriter, r *http.Request) {
	s.handleProfiles(w, r, "follows", s.service.Follows)
}

func (s *Server) handleFollowers(w http.ResponseWriter, r *http.Request) {
	s.handleProfiles(w, r, "followers", s.service.Followers)
}

func (s *Server) handleProfiles(
	w http.ResponseWriter,
	r *http.Request,
	key string,
	fetch func(ctx context.Context, actor string, limit int) ([]domain.Profile, string, error),
) {
	actor, ok := requireParam(w, r, "actor")
	if !ok {
		return
	}
	limit, ok := s.parseLimit(w, r, s.cfg.DefaultLimit)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ReportTimeout.Duration)
	defer cancel()

	profiles, cursor, err := fetch(ctx, actor, limit)
	if err != nil {
		s.writeServiceError(w, "fetch "+key, err)
		return
	}

	resp := map[string]any{key: profiles}
	if cursor != "" {
		resp["cursor"] = cursor
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query, ok := requireParam(w, r, "q")
	if !ok {
		return
	}
	s.handlePosts(w, r, "search posts", func(ctx context.Context, limit int) ([]domain.FeedItem, string, error) {
		return s.service.Search(ctx, query, limit)
	})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	feedURI, ok := requireParam(w, r, "feed")
	if !ok {
		return
	}
	s.handlePosts(w, r, "fetch feed", func(ctx context.Context, limit int) ([]domain.FeedItem, string, error) {
		return s.service.Feed(ctx, feedURI, limit)
	})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	s.handlePosts(w, r, "fetch timeline", s.service.Timeline)
}

func (s *Server) handlePosts(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fetch func(ctx context.Context, limit int) ([]domain.FeedItem, string, error),
) {
	limit, ok := s.parseLimit(w, r, s.cfg.DefaultLimit)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ReportTimeout.Duration)
	defer cancel()

	posts, cursor, err := fetch(ctx, limit)
	if err != nil {
		s.writeServiceError(w, op, err)
		return
	}

	resp := map[string]any{"posts": posts}
	if cursor != "" {
		resp["cursor"] = cursor
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	did, ok := requireParam(w, r, "did")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ReportTimeout.Duration)
	defer cancel()

	info, err := s.service.Identity(ctx, did)
	if err != nil {
		s.writeServiceError(w, "resolve identity", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func requireParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", name+" parameter is required")
		return "", false
	}
	return v, true
}

func (s *Server) parseLimit(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(l)
	if err != nil || parsed < 1 || parsed > maxListLimit {
		s.logger.Warn("invalid limit parameter", "limit", l, "error", err)
		writeError(w, http.StatusBadRequest, "InvalidRequest", fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
		return 0, false
	}
	return parsed, true
}

// writeServiceError maps a service failure to an XRPC-style error response.
func (s *Server) writeServiceError(w http.ResponseWriter, op string, err error) {
	var apiErr *bluesky.APIError

	switch {
	case errors.Is(err, report.ErrInvalidActor), errors.Is(err, report.ErrEmptyQuery), errors.Is(err, report.ErrInvalidFeed):
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
	case errors.Is(err, domain.ErrUnsupportedDIDMethod):
		writeError(w, http.StatusBadRequest, "UnsupportedDIDMethod", err.Error())
	case errors.Is(err, domain.ErrAuthRequired):
		writeError(w, http.StatusUnauthorized, "AuthRequired", err.Error())
	case errors.Is(err, report.ErrArchiveDisabled):
		writeError(w, http.StatusNotFound, "ArchiveDisabled", err.Error())
	case errors.Is(err, report.ErrNoCursor):
		writeError(w, http.StatusNotFound, "NoCursor", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn(op+" timed out", "error", err)
		writeError(w, http.StatusGatewayTimeout, "Timeout", op+" timed out")
	case errors.As(err, &apiErr):
		s.logger.Warn(op+" failed upstream", "nsid", apiErr.NSID, "status", apiErr.Status, "error", err)
		writeError(w, http.StatusBadGateway, "UpstreamError", upstreamMessage(apiErr))
	default:
		s.logger.Error(op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", err.Error())
	}
}

// upstreamMessage names the failed XRPC method along with the reason the
// service gave.
func upstreamMessage(e *bluesky.APIError) string {
	reason := e.Message
	if reason == "" {
		reason = e.Type
	}
	if reason == "" {
		reason = fmt.Sprintf("status %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.NSID, reason)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
