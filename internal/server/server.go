// Package server exposes the scraping core over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/feedscrape/internal/metrics"
	"github.com/sells-group/feedscrape/internal/model"
	"github.com/sells-group/feedscrape/internal/resilience"
	"github.com/sells-group/feedscrape/internal/service"
)

const maxBodyBytes = 16 << 20

// Core is the part of the service the HTTP layer calls.
type Core interface {
	FetchChannelResults(ctx context.Context, q model.ScrapeQuery) (model.ResultSet, error)
	FetchSearchResults(ctx context.Context, q model.ScrapeQuery) (model.ResultSet, error)
	ResetCache() service.ResetResult
	HealthCheck(ctx context.Context) service.Health
}

// Options configures the router.
type Options struct {
	CORSOrigins []string
	// Now stamps liveness and health responses. Defaults to time.Now.
	Now func() time.Time
}

// Envelope is the response body of every endpoint.
type Envelope struct {
	Success bool     `json:"Success"`
	Message string   `json:"Message"`
	Data    any      `json:"Data"`
	Errors  []string `json:"Errors"`
}

// scrapeRequest accepts both the structured form {target, queries} and the
// older {search_queries} form.
type scrapeRequest struct {
	Target        string   `json:"target"`
	Queries       []string `json:"queries"`
	SearchQueries []string `json:"search_queries"`
	IsDefault     bool     `json:"isDefault"`
}

// HealthData is the payload of GET /health.
type HealthData struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Runtime   string         `json:"runtime"`
	Platform  string         `json:"platform"`
	Core      service.Health `json:"core"`
}

type handler struct {
	core Core
	now  func() time.Time
	log  *zap.Logger
}

// New builds the router.
func New(core Core, opts Options) http.Handler {
	h := &handler{core: core, now: opts.Now, log: zap.L().With(zap.String("component", "http"))}
	if h.now == nil {
		h.now = time.Now
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(h.log), middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/", h.liveness)
	r.Get("/health", h.health)
	r.Post("/ChannelResults", h.channelResults)
	r.Post("/SearchResults", h.searchResults)
	r.Post("/ResetSearchCache", h.resetCache)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

func (h *handler) liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Envelope{
		Success: true,
		Message: "API is running",
		Data: map[string]any{
			"status":    "healthy",
			"timestamp": h.now().UTC(),
		},
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Envelope{
		Success: true,
		Message: "API is running",
		Data: HealthData{
			Status:    "healthy",
			Timestamp: h.now().UTC(),
			Runtime:   runtime.Version(),
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			Core:      h.core.HealthCheck(r.Context()),
		},
	})
}

func (h *handler) resetCache(w http.ResponseWriter, _ *http.Request) {
	res := h.core.ResetCache()
	writeJSON(w, http.StatusOK, Envelope{
		Success: true,
		Message: "Cache has been reset",
		Data:    res,
		Errors:  []string{},
	})
}

func (h *handler) searchResults(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	terms := req.Queries
	if len(terms) == 0 {
		terms = req.SearchQueries
	}
	if len(terms) == 0 {
		writeJSON(w, http.StatusBadRequest, failure("No search queries provided"))
		return
	}

	rs, err := h.core.FetchSearchResults(r.Context(), model.ScrapeQuery{
		Kind:      model.KindSearch,
		Queries:   terms,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		h.writeError(w, r, "Search failed", err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "Search completed", Data: rs})
}

func (h *handler) channelResults(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	if req.Target != "" {
		rs, err := h.core.FetchChannelResults(r.Context(), model.ScrapeQuery{
			Kind:      model.KindChannel,
			Target:    req.Target,
			Queries:   req.Queries,
			IsDefault: req.IsDefault,
		})
		if err != nil {
			h.writeError(w, r, "Channel search failed", err)
			return
		}
		writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "Channel search completed", Data: rs})
		return
	}

	if len(req.SearchQueries) == 0 {
		writeJSON(w, http.StatusBadRequest, failure("No search queries provided"))
		return
	}
	h.channelFanOut(w, r, req)
}

// channelFanOut scrapes each handle of a search_queries request as its own
// channel query. Handles are served one after another; per-handle failures
// are collected and the rest still run.
func (h *handler) channelFanOut(w http.ResponseWriter, r *http.Request, req scrapeRequest) {
	var (
		sets     []model.ResultSet
		errs     []string
		firstErr error
	)
	for _, handle := range req.SearchQueries {
		rs, err := h.core.FetchChannelResults(r.Context(), model.ScrapeQuery{
			Kind:      model.KindChannel,
			Target:    handle,
			IsDefault: req.IsDefault,
		})
		if err != nil {
			h.log.Warn("channel fetch failed",
				zap.String("handle", handle),
				zap.String("kind", string(resilience.KindOf(err))),
				zap.Error(err),
			)
			errs = append(errs, handle+": "+resilience.PublicMessage(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sets = append(sets, rs)
	}

	if len(sets) == 0 {
		writeJSON(w, statusFor(firstErr), Envelope{
			Success: false,
			Message: "Channel search failed",
			Errors:  errs,
		})
		return
	}

	msg := "Channel search completed"
	if len(errs) > 0 {
		msg = "Channel search completed with errors"
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: msg, Data: sets, Errors: errs})
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request) (scrapeRequest, bool) {
	var req scrapeRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, failure("Invalid request body"))
		return scrapeRequest{}, false
	}
	return req, true
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	fields := []zap.Field{
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("kind", string(resilience.KindOf(err))),
		zap.Int("status", status),
		zap.Error(err),
	}
	if reason := resilience.ReasonOf(err); reason != "" {
		fields = append(fields, zap.String("reason", reason))
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", fields...)
	} else {
		h.log.Info("request rejected", fields...)
	}
	writeJSON(w, status, failure(msg, resilience.PublicMessage(err)))
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch resilience.KindOf(err) {
	case resilience.KindInvalidQuery:
		return http.StatusBadRequest
	case resilience.KindGateTimeout:
		return http.StatusServiceUnavailable
	case resilience.KindSessionLaunch:
		return http.StatusServiceUnavailable
	case resilience.KindAuthentication, resilience.KindNavigation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func failure(msg string, errs ...string) Envelope {
	if len(errs) == 0 {
		errs = []string{msg}
	}
	return Envelope{Success: false, Message: msg, Errors: errs}
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Debug("write response", zap.Error(err))
	}
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			if strings.HasPrefix(r.URL.Path, "/metrics") {
				return
			}
			log.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
}
