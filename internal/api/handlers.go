package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/shubhsaxena/search-insights/internal/models"
	"github.com/shubhsaxena/search-insights/internal/orchestrator"
)

const (
	maxRequestBodySize = 4 << 20 // 4 MB
	maxQueryLen        = 200
)

type Analytics interface {
	SessionFlow(ctx context.Context, days int) (models.SessionFlowReport, error)
	Funnel(ctx context.Context, days int) (models.FunnelReport, error)
	Revenue(ctx context.Context, days, limit int) (models.RevenueReport, error)
	Trend(ctx context.Context, days int) (models.TrendReport, error)
	Refinements(ctx context.Context, days int) (models.RefinementReport, error)
	AnalyzeSessions(events []models.SearchEvent) (models.SessionFlowReport, error)
	Suggest(ctx context.Context, query, category string) []models.Suggestion
	ClassifyIntent(query string) models.IntentResult
}

type EventPublisher interface {
	PublishBatch(ctx context.Context, envs []*models.EventEnvelope) error
}

type SessionResolver interface {
	Resolve(ctx context.Context, visitor string, now time.Time) (string, bool, error)
}

type Handler struct {
	analytics   Analytics
	publisher   EventPublisher
	sessions    SessionResolver
	defaultDays int
	logger      *zap.Logger
}

// NewHandler builds the API handler. publisher and sessions may be nil; the
// routes that need them then answer 503.
func NewHandler(analytics Analytics, publisher EventPublisher, sessions SessionResolver, defaultDays int, logger *zap.Logger) *Handler {
	return &Handler{
		analytics:   analytics,
		publisher:   publisher,
		sessions:    sessions,
		defaultDays: defaultDays,
		logger:      logger,
	}
}

func (h *Handler) Intent(w http.ResponseWriter, r *http.Request) {
	q, ok := h.requiredQuery(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, h.analytics.ClassifyIntent(q))
}

func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	q, ok := h.requiredQuery(w, r)
	if !ok {
		return
	}
	category := r.URL.Query().Get("category")

	h.writeJSON(w, http.StatusOK, map[string]any{
		"query":       q,
		"category":    category,
		"suggestions": h.analytics.Suggest(r.Context(), q, category),
	})
}

func (h *Handler) SessionFlow(w http.ResponseWriter, r *http.Request) {
	days, ok := h.lookback(w, r)
	if !ok {
		return
	}
	report, err := h.analytics.SessionFlow(r.Context(), days)
	h.writeReport(w, r, "sessions", report, err)
}

func (h *Handler) Funnel(w http.ResponseWriter, r *http.Request) {
	days, ok := h.lookback(w, r)
	if !ok {
		return
	}
	report, err := h.analytics.Funnel(r.Context(), days)
	h.writeReport(w, r, "funnel", report, err)
}

func (h *Handler) Revenue(w http.ResponseWriter, r *http.Request) {
	days, ok := h.lookback(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	report, err := h.analytics.Revenue(r.Context(), days, limit)
	h.writeReport(w, r, "revenue", report, err)
}

func (h *Handler) Trend(w http.ResponseWriter, r *http.Request) {
	days, ok := h.lookback(w, r)
	if !ok {
		return
	}
	report, err := h.analytics.Trend(r.Context(), days)
	h.writeReport(w, r, "trend", report, err)
}

func (h *Handler) Refinements(w http.ResponseWriter, r *http.Request) {
	days, ok := h.lookback(w, r)
	if !ok {
		return
	}
	report, err := h.analytics.Refinements(r.Context(), days)
	h.writeReport(w, r, "refinements", report, err)
}

type analyzeRequest struct {
	Events []models.SearchEvent `json:"events"`
}

func (h *Handler) AnalyzeSessions(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	report, err := h.analytics.AnalyzeSessions(req.Events)
	h.writeReport(w, r, "sessions_analyze", report, err)
}

type ingestRequest struct {
	Events []*models.EventEnvelope `json:"events"`
}

func (h *Handler) IngestEvents(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		h.writeError(w, http.StatusServiceUnavailable, "ingest_unavailable", "event ingest is not configured")
		return
	}

	var req ingestRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(req.Events) == 0 {
		h.writeError(w, http.StatusBadRequest, "empty_batch", "at least one event is required")
		return
	}
	for i, env := range req.Events {
		if env == nil {
			h.writeError(w, http.StatusBadRequest, "invalid_event", fmt.Sprintf("event %d is null", i))
			return
		}
		if err := env.Validate(); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_event", fmt.Sprintf("event %d: %v", i, err))
			return
		}
	}

	if err := h.publisher.PublishBatch(r.Context(), req.Events); err != nil {
		h.logger.Error("publishing events failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Int("count", len(req.Events)),
			zap.Error(err),
		)
		h.writeError(w, http.StatusServiceUnavailable, "ingest_error", "event ingest temporarily unavailable")
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(req.Events)})
}

func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		h.writeError(w, http.StatusServiceUnavailable, "sessions_unavailable", "session issuer is not configured")
		return
	}
	visitor := strings.TrimSpace(r.URL.Query().Get("visitor"))
	if visitor == "" {
		h.writeError(w, http.StatusBadRequest, "missing_visitor", "query parameter 'visitor' is required")
		return
	}

	id, minted, err := h.sessions.Resolve(r.Context(), visitor, time.Now().UTC())
	if err != nil {
		h.logger.Error("session resolve failed", zap.Error(err))
		h.writeError(w, http.StatusServiceUnavailable, "session_error", "session store temporarily unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"session_id":  id,
		"new_session": minted,
	})
}

func (h *Handler) requiredQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		h.writeError(w, http.StatusBadRequest, "missing_query", "query parameter 'q' is required")
		return "", false
	}
	return truncateRunes(q, maxQueryLen), true
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// lookback parses ?days=. Whether the value is allowed is decided by the
// orchestrator.
func (h *Handler) lookback(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return h.defaultDays, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_days", "days must be an integer")
		return 0, false
	}
	return days, true
}

func (h *Handler) writeReport(w http.ResponseWriter, r *http.Request, name string, report any, err error) {
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, report)
	case errors.Is(err, orchestrator.ErrInvalidLookback):
		h.writeError(w, http.StatusBadRequest, "invalid_days", err.Error())
	case errors.Is(err, orchestrator.ErrBatchTooLarge):
		h.writeError(w, http.StatusRequestEntityTooLarge, "batch_too_large", err.Error())
	case errors.Is(err, orchestrator.ErrStoreUnavailable):
		h.logger.Error("report failed",
			zap.String("report", name),
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		h.writeError(w, http.StatusServiceUnavailable, "store_unavailable", "event store temporarily unavailable")
	default:
		h.logger.Error("report failed",
			zap.String("report", name),
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		h.writeError(w, http.StatusInternalServerError, "report_error", "report could not be built")
	}
}

func decodeBody(r *http.Request, dest any) error {
	limited := io.LimitReader(r.Body, maxRequestBodySize)
	if err := json.NewDecoder(limited).Decode(dest); err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("writing json response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
