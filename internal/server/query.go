package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ehrlich-b/accesslog/internal/record"
	"github.com/ehrlich-b/accesslog/internal/storage"
)

const (
	defaultAPILimit = 100
	maxAPILimit     = 10000
	searchPageLimit = 1000
)

// QueryHandler serves status lookups over the stored records.
type QueryHandler struct {
	storage storage.Store
	log     *slog.Logger
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(store storage.Store, log *slog.Logger) *QueryHandler {
	if log == nil {
		log = slog.Default()
	}
	return &QueryHandler{
		storage: store,
		log:     log,
	}
}

// ServeHTTP routes query requests.
func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")

	switch {
	// HTML pages
	case path == "" || path == "/index.html":
		if r.Method == http.MethodGet {
			h.index(w, r)
		} else {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	case path == "/search":
		if r.Method == http.MethodPost {
			h.search(w, r)
		} else {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}

	// JSON API
	case path == "/api/statuses" && r.Method == http.MethodGet:
		h.listStatuses(w, r)
	case path == "/api/logs" && r.Method == http.MethodGet:
		h.listLogs(w, r)

	case path == "/healthz":
		h.health(w, r)

	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// --- Pages ---

func (h *QueryHandler) index(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.storage.Statuses(r.Context())
	if err != nil {
		h.log.Error("failed to fetch response codes", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.render(w, indexTemplate, indexPage{Statuses: statuses})
}

func (h *QueryHandler) search(w http.ResponseWriter, r *http.Request) {
	status, err := strconv.Atoi(strings.TrimSpace(r.FormValue("response_code")))
	if err != nil || status < 0 {
		http.Error(w, "response_code must be a non-negative integer", http.StatusBadRequest)
		return
	}

	res, err := h.storage.QueryByStatus(r.Context(), status, searchPageLimit)
	if err != nil {
		h.log.Error("search failed", "status", status, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.render(w, resultsTemplate, resultsPage{
		Status:    res.Status,
		Count:     res.Count,
		Records:   res.Records,
		Truncated: int64(len(res.Records)) < res.Count,
	})
}

// --- API ---

type logResponse struct {
	ID             int64     `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	RemoteIP       string    `json:"remote_ip"`
	RemoteUser     string    `json:"remote_user"`
	Request        string    `json:"request"`
	ResponseStatus int       `json:"response"`
	BytesSent      int64     `json:"bytes"`
	Referrer       string    `json:"referrer"`
	Agent          string    `json:"agent"`
}

func recordToResponse(r record.Record) logResponse {
	return logResponse{
		ID:             r.ID,
		Timestamp:      r.Timestamp,
		RemoteIP:       r.RemoteIP,
		RemoteUser:     r.RemoteUser,
		Request:        r.Request,
		ResponseStatus: r.ResponseStatus,
		BytesSent:      r.BytesSent,
		Referrer:       r.Referrer,
		Agent:          r.Agent,
	}
}

func (h *QueryHandler) listStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.storage.Statuses(r.Context())
	if err != nil {
		h.log.Error("failed to list statuses", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if statuses == nil {
		statuses = []int{}
	}
	h.writeJSON(w, map[string]any{"statuses": statuses})
}

func (h *QueryHandler) listLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status, err := strconv.Atoi(q.Get("status"))
	if err != nil || status < 0 {
		http.Error(w, "status must be a non-negative integer", http.StatusBadRequest)
		return
	}

	limit := defaultAPILimit
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxAPILimit)
	}

	res, err := h.storage.QueryByStatus(r.Context(), status, limit)
	if err != nil {
		h.log.Error("failed to query logs", "status", status, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	logs := make([]logResponse, len(res.Records))
	for i, rec := range res.Records {
		logs[i] = recordToResponse(rec)
	}

	h.writeJSON(w, map[string]any{
		"status": res.Status,
		"count":  res.Count,
		"logs":   logs,
	})
}

func (h *QueryHandler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.Ping(r.Context()); err != nil {
		h.log.Warn("health check failed", "error", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// --- Helpers ---

func (h *QueryHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("failed to encode response", "error", err)
	}
}
