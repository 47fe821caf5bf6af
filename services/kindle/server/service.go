// Package server exposes the scrape orchestrator and the progress
// ledger over a JSON HTTP API, with a server-sent-events endpoint for
// streaming passes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"readtrack-backend/lib/progressstore"
	"readtrack-backend/lib/scrapers/kindle/core"
	"readtrack-backend/services/kindle"
)

// Scraper is the slice of the orchestrator the API consumes.
type Scraper interface {
	RunScrape(ctx context.Context) kindle.Summary
	RunScrapeStreaming(ctx context.Context) <-chan kindle.Event
	Status(ctx context.Context) (core.Status, error)
	Login(ctx context.Context, email, password string) error
}

type Service struct {
	scraper Scraper
	store   progressstore.Store
}

// NewHandler builds the full route table wrapped in the API-key
// middleware. An empty apiKey disables authentication.
func NewHandler(scraper Scraper, store progressstore.Store, apiKey string) http.Handler {
	s := &Service{scraper: scraper, store: store}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats/today", s.handleTodayStats)
	mux.HandleFunc("GET /library", s.handleLibrary)
	mux.HandleFunc("GET /books/{id}", s.handleBook)
	mux.HandleFunc("POST /scrape", s.handleScrape)
	mux.HandleFunc("GET /scrape/stream", s.handleScrapeStream)
	mux.HandleFunc("GET /auth/status", s.handleAuthStatus)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("GET /settings/{key}", s.handleGetSetting)
	mux.HandleFunc("PUT /settings/{key}", s.handlePutSetting)
	mux.HandleFunc("POST /admin/reset-daily-stats", s.handleResetDailyStats)
	mux.HandleFunc("POST /admin/reset-progress", s.handleResetProgress)

	return requireAPIKey(mux, apiKey)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		slog.Warn("failed to write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

type statsResponse struct {
	Date           string `json:"date"`
	PagesRead      int64  `json:"pages_read"`
	PageGoal       int64  `json:"page_goal"`
	GoalMet        bool   `json:"goal_met"`
	GoalMetAt      string `json:"goal_met_at,omitempty"`
	PagesRemaining int64  `json:"pages_remaining"`
}

func (s *Service) handleTodayStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.TodayStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := statsResponse{
		Date:           stats.Date,
		PagesRead:      stats.PagesRead,
		PageGoal:       stats.PageGoal,
		GoalMet:        stats.GoalMet,
		PagesRemaining: stats.PagesRemaining,
	}
	if stats.GoalMetAt != nil {
		resp.GoalMetAt = stats.GoalMetAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

type snapshotResponse struct {
	Position   int64   `json:"position"`
	Percent    float64 `json:"percent"`
	RecordedAt string  `json:"recorded_at"`
}

type bookResponse struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Authors    []string          `json:"authors"`
	TotalPages int64             `json:"total_pages"`
	CoverURL   string            `json:"cover_url,omitempty"`
	Progress   *snapshotResponse `json:"progress"`
}

func toSnapshotResponse(snap progressstore.Snapshot) *snapshotResponse {
	return &snapshotResponse{
		Position:   snap.Position,
		Percent:    snap.Percent,
		RecordedAt: snap.RecordedAt.Format(time.RFC3339),
	}
}

func (s *Service) handleLibrary(w http.ResponseWriter, r *http.Request) {
	library, err := s.store.Library(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	books := make([]bookResponse, len(library))
	for i, entry := range library {
		books[i] = bookResponse{
			ID:         entry.Book.ID,
			Title:      entry.Book.Title,
			Authors:    entry.Book.Authors,
			TotalPages: entry.Book.TotalPages,
			CoverURL:   entry.Book.CoverURL,
		}
		if entry.Latest != nil {
			books[i].Progress = toSnapshotResponse(*entry.Latest)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"books": books,
		"count": len(books),
	})
}

func (s *Service) handleBook(w http.ResponseWriter, r *http.Request) {
	detail, err := s.store.GetBook(r.Context(), r.PathValue("id"))
	if errors.Is(err, progressstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown book")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	snapshots := make([]snapshotResponse, len(detail.Snapshots))
	for i, snap := range detail.Snapshots {
		snapshots[i] = *toSnapshotResponse(snap)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          detail.Book.ID,
		"title":       detail.Book.Title,
		"authors":     detail.Book.Authors,
		"total_pages": detail.Book.TotalPages,
		"cover_url":   detail.Book.CoverURL,
		"snapshots":   snapshots,
	})
}

func (s *Service) handleScrape(w http.ResponseWriter, r *http.Request) {
	summary := s.scraper.RunScrape(r.Context())
	status := http.StatusOK
	if !summary.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, summary)
}

func (s *Service) handleScrapeStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range s.scraper.RunScrapeStreaming(r.Context()) {
		data, err := json.Marshal(event)
		if err != nil {
			slog.WarnContext(r.Context(), "failed to marshal event", "kind", event.Kind(), "err", err)
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind(), data)
		flusher.Flush()
	}
}

func (s *Service) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.scraper.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status.String(),
		"logged_in": status == core.StatusLoggedIn,
	})
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if err := s.scraper.Login(r.Context(), req.Email, req.Password); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

var recognizedSettings = map[string]bool{
	progressstore.SettingDailyPageGoal: true,
	progressstore.SettingDayResetHour:  true,
}

func (s *Service) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !recognizedSettings[key] {
		writeError(w, http.StatusNotFound, "unrecognized setting")
		return
	}
	value, err := s.store.Setting(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

func (s *Service) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !recognizedSettings[key] {
		writeError(w, http.StatusNotFound, "unrecognized setting")
		return
	}
	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// both recognized settings are integers
	if _, err := strconv.ParseInt(req.Value, 10, 64); err != nil {
		writeError(w, http.StatusBadRequest, "value must be an integer")
		return
	}
	if err := s.store.SetSetting(r.Context(), key, req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
}

func (s *Service) handleResetDailyStats(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ResetDailyStats(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Service) handleResetProgress(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ResetAllProgress(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
