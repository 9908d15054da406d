// Copyright (c) 2026 Tessera. All rights reserved.
// Author: tessera.reads@gmail.com

/*
Package ops wires the operational HTTP surface of the worker: health probes,
Prometheus metrics, and a small set of read-only inspection endpoints.

Architecture:

  - This is not a user-facing API. It binds a separate port, carries no
    authentication, and is expected to be reachable only inside the
    deployment network.
  - Only this package and cmd/worker are allowed to import net/http server
    primitives.
*/
package ops

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tessera-app/tessera/internal/catalog"
	"github.com/tessera-app/tessera/internal/platform/config"
	"github.com/tessera-app/tessera/internal/platform/constants"
	"github.com/tessera-app/tessera/internal/sourceselect"
)

// CatalogReader is the read-only slice of the catalog the inspection
// endpoints use.
type CatalogReader interface {
	ListRecentFeedEntries(ctx context.Context, limit int) ([]catalog.FeedEntry, error)
	ListSourceOptions(ctx context.Context, chapterID string) ([]catalog.SourceOption, error)
}

// Server wraps the chi router and the [http.Server] for the ops port.
type Server struct {
	httpServer *http.Server
	log        *slog.Logger
}

// NewServer constructs the ops router and registers all endpoints.
func NewServer(cfg *config.Config, log *slog.Logger, health HealthDependencies, reader CatalogReader) *Server {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(constants.GlobalRequestTimeout))
	r.Use(chimw.CleanPath)

	liveness, readiness := newHealthHandlers(health, log)

	// Health probes for container orchestration.
	r.Get("/health", liveness)
	r.Get("/ready", readiness)

	// Prometheus scrape endpoint.
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Read-only inspection.
	r.Get("/feed/recent", recentFeedHandler(reader, log))
	r.Get("/chapters/{chapterID}/source", chapterSourceHandler(reader, log))

	return &Server{
		log: log,
		httpServer: &http.Server{
			Addr:              ":" + cfg.OpsPort,
			Handler:           r,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// ListenAndServe starts the ops server. It blocks until the server is
// closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("ops server starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// recentFeedHandler serves the newest release-feed entries, for eyeballing
// pipeline output without a database session.
func recentFeedHandler(feed CatalogReader, log *slog.Logger) http.HandlerFunc {
	const defaultLimit, maxLimit = 50, 200

	return func(writer http.ResponseWriter, request *http.Request) {
		limit := defaultLimit
		if raw := request.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				writeJSON(writer, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
				return
			}
			limit = parsed
		}
		if limit > maxLimit {
			limit = maxLimit
		}

		entries, err := feed.ListRecentFeedEntries(request.Context(), limit)
		if err != nil {
			log.Error("recent_feed_query_failed", slog.Any("error", err))
			writeJSON(writer, http.StatusInternalServerError, map[string]string{"error": "feed unavailable"})
			return
		}

		writeJSON(writer, http.StatusOK, map[string]any{"entries": entries})
	}
}

// chapterSourceHandler resolves which source link a reader should be handed
// for one chapter. Preferences arrive as query parameters; operators use it
// to check selection against live trust data.
func chapterSourceHandler(reader CatalogReader, log *slog.Logger) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		chapterID := chi.URLParam(request, "chapterID")

		options, err := reader.ListSourceOptions(request.Context(), chapterID)
		if err != nil {
			log.Error("source_options_query_failed",
				slog.String("chapter_id", chapterID), slog.Any("error", err))
			writeJSON(writer, http.StatusInternalServerError, map[string]string{"error": "catalog unavailable"})
			return
		}

		prefs := sourceselect.Preferences{}
		if raw := request.URL.Query().Get("preferred_source_id"); raw != "" {
			prefs.SeriesSourceID = &raw
		}
		if raw := request.URL.Query().Get("preferred_source"); raw != "" {
			prefs.GlobalSourceName = &raw
		}

		selection := sourceselect.Select(options, prefs)
		if selection.Chosen == nil {
			writeJSON(writer, http.StatusNotFound, map[string]string{"error": "no available source"})
			return
		}

		writeJSON(writer, http.StatusOK, map[string]any{
			"source":      selection.Chosen,
			"is_fallback": selection.IsFallback,
		})
	}
}

func writeJSON(writer http.ResponseWriter, status int, body any) {
	writer.Header().Set("Content-Type", "application/json; charset=utf-8")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(body)
}
