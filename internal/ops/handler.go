// Package ops serves the operational surface of serve mode.
//
// Routes:
//
//	GET /health                        → liveness plus a database ping
//	GET /runs?pipeline=NAME&limit=N    → newest sync runs first
//	GET /runs/stale?olderThan=2h       → RUNNING rows older than the window
//	GET /schedule                      → next fire time of every cron entry
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"jobmate/jobsync/internal/logger"
	"jobmate/jobsync/internal/scheduler"
	"jobmate/jobsync/internal/syncstate"
)

// Version is reported by /health.
const Version = "1.0.0"

// DefaultStaleAfter is the /runs/stale window when olderThan is absent.
const DefaultStaleAfter = 2 * time.Hour

// ─── Dependencies ────────────────────────────────────────────────────────────

// Runs is the read side of syncstate.Tracker.
type Runs interface {
	ListRuns(ctx context.Context, pipeline string, limit int) ([]syncstate.Run, error)
	StaleRuns(ctx context.Context, olderThan time.Duration) ([]syncstate.Run, error)
}

// Pinger checks a backing store. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Schedule lists upcoming cron fires.
type Schedule interface {
	Upcoming() []scheduler.Upcoming
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds shared dependencies.
type Handler struct {
	runs     Runs
	db       Pinger
	schedule Schedule
	log      *logger.Logger
}

// NewHandler returns a configured Handler. schedule may be nil.
func NewHandler(runs Runs, db Pinger, schedule Schedule, log *logger.Logger) *Handler {
	return &Handler{runs: runs, db: db, schedule: schedule, log: log}
}

// RegisterRoutes mounts every ops route on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/runs", h.handleRuns)
	mux.HandleFunc("/runs/stale", h.handleStaleRuns)
	mux.HandleFunc("/schedule", h.handleSchedule)
}

type healthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Version  string `json:"version"`
	Database string `json:"database"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := healthResponse{Status: "ok", Service: "jobsync", Version: Version, Database: "ok"}
	code := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		h.log.Warn("health: database ping failed", "error", err)
		resp.Status, resp.Database = "degraded", "unreachable"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (h *Handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 500 {
			jsonError(w, "limit must be an integer in [1, 500]", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), q.Get("pipeline"), limit)
	if err != nil {
		h.log.Error("ops: list runs failed", "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) handleStaleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	olderThan := DefaultStaleAfter
	if s := r.URL.Query().Get("olderThan"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			jsonError(w, "olderThan must be a positive duration such as 90m", http.StatusBadRequest)
			return
		}
		olderThan = d
	}

	runs, err := h.runs.StaleRuns(r.Context(), olderThan)
	if err != nil {
		h.log.Error("ops: stale runs failed", "error", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	upcoming := []scheduler.Upcoming{}
	if h.schedule != nil {
		upcoming = h.schedule.Upcoming()
	}
	writeJSON(w, http.StatusOK, upcoming)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
