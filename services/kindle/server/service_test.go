package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"readtrack-backend/lib/progressstore"
	"readtrack-backend/lib/progressstore/db"
	"readtrack-backend/lib/scrapers/kindle/core"
	"readtrack-backend/lib/testutil"
	"readtrack-backend/services/kindle"

	"github.com/stretchr/testify/require"
)

type stubScraper struct {
	summary  kindle.Summary
	events   []kindle.Event
	status   core.Status
	loginErr error
}

func (s *stubScraper) RunScrape(ctx context.Context) kindle.Summary {
	return s.summary
}

func (s *stubScraper) RunScrapeStreaming(ctx context.Context) <-chan kindle.Event {
	ch := make(chan kindle.Event)
	go func() {
		defer close(ch)
		for _, event := range s.events {
			select {
			case <-ctx.Done():
				return
			case ch <- event:
			}
		}
	}()
	return ch
}

func (s *stubScraper) Status(ctx context.Context) (core.Status, error) {
	return s.status, nil
}

func (s *stubScraper) Login(ctx context.Context, email, password string) error {
	return s.loginErr
}

func setupServer(t *testing.T, scraper *stubScraper, apiKey string) (*httptest.Server, progressstore.Store) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "kindle-server",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)
	t.Cleanup(func() { res.DB.Close() })

	store := progressstore.NewStore(res.DB)
	srv := httptest.NewServer(NewHandler(scraper, store, apiKey))
	t.Cleanup(srv.Close)
	return srv, store
}

func get(t *testing.T, srv *httptest.Server, path, apiKey string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestAPIKeyMiddleware(t *testing.T) {
	srv, _ := setupServer(t, &stubScraper{}, "secret-key")

	resp := get(t, srv, "/stats/today", "")
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = get(t, srv, "/stats/today", "wrong")
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// health stays open for probes
	resp = get(t, srv, "/health", "")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, srv, "/stats/today", "secret-key")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTodayStats(t *testing.T) {
	srv, store := setupServer(t, &stubScraper{}, "")
	ctx := context.Background()

	require.NoError(t, store.UpsertBook(ctx, progressstore.Book{ID: "b1", Title: "Dune"}))
	require.NoError(t, store.RecordProgress(ctx, "b1", 10, 3))
	require.NoError(t, store.RecordProgress(ctx, "b1", 35, 10))

	var stats struct {
		PagesRead      int64 `json:"pages_read"`
		PageGoal       int64 `json:"page_goal"`
		PagesRemaining int64 `json:"pages_remaining"`
	}
	decode(t, get(t, srv, "/stats/today", ""), &stats)
	require.EqualValues(t, 25, stats.PagesRead)
	require.EqualValues(t, 30, stats.PageGoal)
	require.EqualValues(t, 5, stats.PagesRemaining)
}

func TestLibraryAndBook(t *testing.T) {
	srv, store := setupServer(t, &stubScraper{}, "")
	ctx := context.Background()

	require.NoError(t, store.UpsertBook(ctx, progressstore.Book{
		ID:      "b1",
		Title:   "Dune",
		Authors: []string{"Frank Herbert"},
	}))
	require.NoError(t, store.RecordProgress(ctx, "b1", 42, 12.5))

	var library struct {
		Count int `json:"count"`
		Books []struct {
			ID       string `json:"id"`
			Progress *struct {
				Position int64 `json:"position"`
			} `json:"progress"`
		} `json:"books"`
	}
	decode(t, get(t, srv, "/library", ""), &library)
	require.Equal(t, 1, library.Count)
	require.Equal(t, "b1", library.Books[0].ID)
	require.NotNil(t, library.Books[0].Progress)
	require.EqualValues(t, 42, library.Books[0].Progress.Position)

	resp := get(t, srv, "/books/b1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = get(t, srv, "/books/missing", "")
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScrapeEndpoint(t *testing.T) {
	scraper := &stubScraper{summary: kindle.Summary{
		Success:           true,
		BooksScraped:      4,
		BooksWithProgress: 2,
		Timestamp:         time.Now(),
	}}
	srv, _ := setupServer(t, scraper, "")

	resp, err := srv.Client().Post(srv.URL+"/scrape", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary kindle.Summary
	decode(t, resp, &summary)
	require.True(t, summary.Success)
	require.Equal(t, 4, summary.BooksScraped)
}

func TestScrapeStream(t *testing.T) {
	scraper := &stubScraper{events: []kindle.Event{
		kindle.StartedEvent{Event: "started", TotalBooks: 1},
		kindle.BookProgressEvent{Event: "book_progress", Index: 1, Total: 1, Title: "Dune", ID: "b1"},
		kindle.BookCompleteEvent{Event: "book_complete", Index: 1, Total: 1, Title: "Dune", ID: "b1", Success: true},
		kindle.CompletedEvent{Event: "completed", Success: true, BooksScraped: 1},
	}}
	srv, _ := setupServer(t, scraper, "")

	resp := get(t, srv, "/scrape/stream", "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var kinds []string
	for _, line := range strings.Split(string(body), "\n") {
		if after, ok := strings.CutPrefix(line, "event: "); ok {
			kinds = append(kinds, after)
		}
	}
	require.Equal(t, []string{"started", "book_progress", "book_complete", "completed"}, kinds)
}

func TestSettings(t *testing.T) {
	srv, _ := setupServer(t, &stubScraper{}, "")

	var setting struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	decode(t, get(t, srv, "/settings/daily_page_goal", ""), &setting)
	require.Equal(t, "30", setting.Value)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/settings/daily_page_goal", strings.NewReader(`{"value":"45"}`))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	decode(t, get(t, srv, "/settings/daily_page_goal", ""), &setting)
	require.Equal(t, "45", setting.Value)

	// non-integer values are rejected
	req, err = http.NewRequest(http.MethodPut, srv.URL+"/settings/daily_page_goal", strings.NewReader(`{"value":"lots"}`))
	require.NoError(t, err)
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = get(t, srv, "/settings/unknown_key", "")
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminResets(t *testing.T) {
	srv, store := setupServer(t, &stubScraper{}, "")
	ctx := context.Background()

	require.NoError(t, store.UpsertBook(ctx, progressstore.Book{ID: "b1", Title: "Dune"}))
	require.NoError(t, store.RecordProgress(ctx, "b1", 10, 3))
	require.NoError(t, store.RecordProgress(ctx, "b1", 35, 10))

	resp, err := srv.Client().Post(srv.URL+"/admin/reset-progress", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	detail, err := store.GetBook(ctx, "b1")
	require.NoError(t, err)
	require.Empty(t, detail.Snapshots)
}
