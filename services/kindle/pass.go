package kindle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"readtrack-backend/lib/browser"
	"readtrack-backend/lib/progressstore"
	"readtrack-backend/lib/scrapers/kindle/core"
	"readtrack-backend/lib/scrapers/kindle/extract"
	"readtrack-backend/lib/textutil"
)

// readerSelector matches the reader chrome once a book is open. A miss
// is tolerated: some books render straight into an iframe.
const readerSelector = `#kindleReader_book_container, #KindleReaderIFrame, [class*="reader"]`

var errNoMatch = fmt.Errorf("no progress indicator found on the page")

// fatalError marks a failure that ends the whole pass instead of the
// current item. Ledger writes are the main source: once the store
// errors, nothing is being persisted and the pass must not report
// success.
type fatalError struct{ err error }

func (e fatalError) Error() string { return e.err.Error() }
func (e fatalError) Unwrap() error { return e.err }

// runPass is the single scrape algorithm behind both output modes.
// emit reports false when the consumer is gone; the second return
// value says whether a failed pass is worth retrying automatically.
func (s *Service) runPass(ctx context.Context, emit func(Event) bool) (Summary, bool) {
	summary := Summary{Timestamp: s.now()}

	sess, release, err := s.browser.Acquire(ctx)
	if err != nil {
		summary.Error = fmt.Sprintf("acquire browser session: %s", err)
		return summary, true
	}
	defer release()

	status, err := s.ensureAuthenticated(ctx, sess)
	if err != nil {
		summary.Error = err.Error()
		return summary, status != core.StatusManual2FA
	}

	items, err := s.fetchLibrary(ctx, sess)
	if err != nil {
		summary.Error = fmt.Sprintf("read library listing: %s", err)
		return summary, true
	}

	if !emit(StartedEvent{
		Event:      "started",
		TotalBooks: len(items),
		Timestamp:  summary.Timestamp.Format(time.RFC3339),
	}) {
		summary.Error = "consumer cancelled"
		return summary, true
	}

	for i, item := range items {
		if ctx.Err() != nil {
			summary.Error = ctx.Err().Error()
			return summary, true
		}

		emit(BookProgressEvent{
			Event: "book_progress",
			Index: i + 1,
			Total: len(items),
			Title: item.Title,
			ID:    item.ID,
		})

		progress, err := s.scrapeBook(ctx, sess, item)
		var fatal fatalError
		if errors.As(err, &fatal) {
			summary.Error = err.Error()
			return summary, true
		}
		complete := BookCompleteEvent{
			Event: "book_complete",
			Index: i + 1,
			Total: len(items),
			Title: item.Title,
			ID:    item.ID,
		}

		switch {
		case err == nil:
			summary.BooksWithProgress++
			percent := float64(progress.Percent)
			complete.Percent = &percent
			complete.Success = true
			slog.InfoContext(ctx, "scraped book",
				"title", shortTitle(item.Title),
				"position", progress.Current,
				"total", progress.Total,
			)
		case errors.Is(err, extract.ErrLicenseLimited):
			summary.LicenseLimitBooks = append(summary.LicenseLimitBooks, item.Title)
			complete.Error = err.Error()
			slog.WarnContext(ctx, "book is license limited", "title", shortTitle(item.Title))
		case errors.Is(err, errNoMatch):
			complete.Error = err.Error()
			slog.WarnContext(ctx, "no progress found", "title", shortTitle(item.Title))
		default:
			// browser-side failures stay per-item: one broken book
			// never aborts the pass
			complete.Error = err.Error()
			slog.WarnContext(ctx, "failed to scrape book", "title", shortTitle(item.Title), "err", err)
		}
		summary.BooksScraped++
		emit(complete)

		if err := sess.Navigate(ctx, core.LibraryURL); err != nil {
			slog.WarnContext(ctx, "return to library failed", "err", err)
		}
		if err := s.wait(ctx); err != nil {
			summary.Error = err.Error()
			return summary, true
		}
	}

	summary.Success = true
	return summary, true
}

// ensureAuthenticated drives the session to the library view,
// attempting one explicit login when saved state is not enough.
func (s *Service) ensureAuthenticated(ctx context.Context, sess browser.Session) (core.Status, error) {
	nav := s.newNavigator(sess)

	status, err := nav.ReachLibrary(ctx)
	if err != nil {
		return status, fmt.Errorf("reach library: %w", err)
	}
	if status == core.StatusNotLoggedIn && s.creds.Configured() {
		slog.InfoContext(ctx, "not logged in, attempting login with configured credentials")
		if err := nav.Login(ctx, s.creds.Email, s.creds.Password); err != nil {
			return status, fmt.Errorf("login: %w", err)
		}
		status, err = nav.ReachLibrary(ctx)
		if err != nil {
			return status, fmt.Errorf("reach library after login: %w", err)
		}
	}

	switch status {
	case core.StatusLoggedIn:
		return status, nil
	case core.StatusManual2FA:
		return status, fmt.Errorf("manual two-factor verification required, complete it in the browser window")
	default:
		return status, fmt.Errorf("not logged in and no usable credentials configured")
	}
}

func (s *Service) fetchLibrary(ctx context.Context, sess browser.Session) ([]extract.LibraryItem, error) {
	html, err := evalString(ctx, sess, `document.documentElement.outerHTML`)
	if err != nil {
		return nil, err
	}
	items, err := extract.LibraryItems(html)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "library listing read", "books", len(items))
	return items, nil
}

// scrapeBook opens one book and extracts a progress reading. Browser
// and extraction errors are per-item: license limits and misses are
// expected outcomes, not failures of the pass. Ledger errors come back
// as fatalError.
func (s *Service) scrapeBook(ctx context.Context, sess browser.Session, item extract.LibraryItem) (extract.Progress, error) {
	err := s.store.UpsertBook(ctx, progressstore.Book{
		ID:       item.ID,
		Title:    item.Title,
		Authors:  item.Authors,
		CoverURL: item.CoverURL,
	})
	if err != nil {
		return extract.Progress{}, fatalError{fmt.Errorf("upsert book: %w", err)}
	}

	if err := sess.Click(ctx, "#library-item-option-"+item.ID); err != nil {
		return extract.Progress{}, fmt.Errorf("open book: %w", err)
	}
	if err := sess.WaitFor(ctx, readerSelector, s.readerWait); err != nil {
		slog.DebugContext(ctx, "reader chrome not detected", "title", shortTitle(item.Title))
	}
	if err := s.wait(ctx); err != nil {
		return extract.Progress{}, err
	}

	// tap the page center so the reader reveals its footer
	if _, err := sess.Evaluate(ctx, centerTapScript); err != nil {
		slog.DebugContext(ctx, "center tap failed", "err", err)
	}

	body, err := evalString(ctx, sess, `document.body ? document.body.innerText : ""`)
	if err != nil {
		return extract.Progress{}, err
	}
	if extract.LicenseLimited(body) {
		if _, err := sess.Evaluate(ctx, dismissDialogScript); err != nil {
			slog.DebugContext(ctx, "dismiss license dialog failed", "err", err)
		}
		return extract.Progress{}, extract.ErrLicenseLimited
	}

	fragments, err := s.regionFragments(ctx, sess)
	if err != nil {
		return extract.Progress{}, err
	}
	progress, ok := extract.FromFragments(fragments)
	if !ok {
		// whole-page fallback, once
		progress, ok = extract.Match(body)
	}
	if !ok {
		return extract.Progress{}, errNoMatch
	}

	if progress.Total > 0 && progress.Total != 100 {
		err = s.store.UpsertBook(ctx, progressstore.Book{
			ID:         item.ID,
			Title:      item.Title,
			TotalPages: int64(progress.Total),
		})
		if err != nil {
			return extract.Progress{}, fatalError{fmt.Errorf("refine book length: %w", err)}
		}
	}
	err = s.store.RecordProgress(ctx, item.ID, int64(progress.Current), float64(progress.Percent))
	if err != nil {
		return extract.Progress{}, fatalError{fmt.Errorf("record progress: %w", err)}
	}
	return progress, nil
}

// regionFragments collects short text fragments from the prioritized
// progress regions, in selector order.
func (s *Service) regionFragments(ctx context.Context, sess browser.Session) ([]string, error) {
	selectors, err := json.Marshal(extract.RegionSelectors)
	if err != nil {
		return nil, err
	}
	script := fmt.Sprintf(`(() => {
		const selectors = %s;
		const fragments = [];
		for (const sel of selectors) {
			let els = [];
			try { els = document.querySelectorAll(sel); } catch (e) { continue; }
			for (const el of els) {
				const text = (el.innerText || "").trim();
				if (text) fragments.push(text);
			}
		}
		return {fragments: fragments};
	})()`, selectors)

	raw, err := sess.Evaluate(ctx, script)
	if err != nil {
		return nil, err
	}
	var result struct {
		Fragments []string `json:"fragments"`
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("decode region fragments: %w", err)
	}
	return result.Fragments, nil
}

const centerTapScript = `(() => {
	const el = document.elementFromPoint(window.innerWidth / 2, window.innerHeight / 2);
	if (el) el.click();
	return true;
})()`

const dismissDialogScript = `(() => {
	const els = document.querySelectorAll('button, input[type="button"], span[role="button"]');
	for (const el of els) {
		const label = (el.innerText || el.value || "").trim().toLowerCase();
		if (label === "ok" || label === "close" || label === "cancel") {
			el.click();
			return true;
		}
	}
	return false;
})()`

func evalString(ctx context.Context, sess browser.Session, script string) (string, error) {
	raw, err := sess.Evaluate(ctx, script)
	if err != nil {
		return "", err
	}
	var out string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return "", fmt.Errorf("decode evaluate result: %w", err)
	}
	return out, nil
}

func (s *Service) wait(ctx context.Context) error {
	if s.settle <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.settle):
		return nil
	}
}

func shortTitle(title string) string {
	return textutil.Truncate(title, 40)
}
