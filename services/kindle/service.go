// Package kindle orchestrates reading-progress acquisition from the
// Kindle Cloud Reader: it sequences per-book scraping over the shared
// browser session and ledgers the results.
package kindle

import (
	"context"
	"time"

	"readtrack-backend/lib/browser"
	"readtrack-backend/lib/progressstore"
	"readtrack-backend/lib/scrapers/kindle/core"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/kindle")

type Service struct {
	browser *browser.Manager
	store   progressstore.Store
	creds   core.Credentials

	// test seams
	settle     time.Duration
	readerWait time.Duration
	now        func() time.Time
	tuneNav    func(*core.Navigator)
}

func NewService(mgr *browser.Manager, store progressstore.Store, creds core.Credentials) *Service {
	return &Service{
		browser:    mgr,
		store:      store,
		creds:      creds,
		settle:     2 * time.Second,
		readerWait: 10 * time.Second,
		now:        time.Now,
	}
}

func (s *Service) Store() progressstore.Store {
	return s.store
}

func (s *Service) newNavigator(sess browser.Session) *core.Navigator {
	nav := core.NewNavigator(sess, s.creds)
	if s.tuneNav != nil {
		s.tuneNav(nav)
	}
	return nav
}

// Status reports the current authentication state by driving the
// session toward the library view.
func (s *Service) Status(ctx context.Context) (core.Status, error) {
	ctx, span := tracer.Start(ctx, "Status")
	defer span.End()

	sess, release, err := s.browser.Acquire(ctx)
	if err != nil {
		return core.StatusNotLoggedIn, err
	}
	defer release()

	return s.newNavigator(sess).ReachLibrary(ctx)
}

// Login runs the explicit one-shot sign-in flow with the given
// credentials.
func (s *Service) Login(ctx context.Context, email, password string) error {
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	sess, release, err := s.browser.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	err = s.newNavigator(sess).Login(ctx, email, password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
	}
	return err
}

// Summary is the batch-mode result of one scrape pass. Failures are
// reported in-band: the pass never panics the host process.
type Summary struct {
	Success           bool      `json:"success"`
	BooksScraped      int       `json:"books_scraped"`
	BooksWithProgress int       `json:"books_with_progress"`
	LicenseLimitBooks []string  `json:"license_limit_books,omitempty"`
	Error             string    `json:"error,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// RunScrape performs one batch pass over the whole library.
func (s *Service) RunScrape(ctx context.Context) Summary {
	ctx, span := tracer.Start(ctx, "RunScrape")
	defer span.End()

	summary, _ := s.runPass(ctx, func(Event) bool { return true })
	if !summary.Success {
		span.SetStatus(codes.Error, summary.Error)
	}
	return summary
}

// RunScrapeStreaming performs one pass, emitting ordered events on the
// returned channel. The channel is closed after exactly one terminal
// event: completed on success, error on failure.
func (s *Service) RunScrapeStreaming(ctx context.Context) <-chan Event {
	ch := make(chan Event)

	go func() {
		defer close(ch)
		ctx, span := tracer.Start(ctx, "RunScrapeStreaming")
		defer span.End()

		emit := func(e Event) bool {
			select {
			case <-ctx.Done():
				return false
			case ch <- e:
				return true
			}
		}

		start := s.now()
		summary, recoverable := s.runPass(ctx, emit)
		if !summary.Success {
			span.SetStatus(codes.Error, summary.Error)
			emit(ErrorEvent{
				Event:       "error",
				Message:     summary.Error,
				Recoverable: recoverable,
			})
			return
		}
		emit(CompletedEvent{
			Event:             "completed",
			Success:           true,
			BooksScraped:      summary.BooksScraped,
			BooksWithProgress: summary.BooksWithProgress,
			DurationSeconds:   s.now().Sub(start).Seconds(),
			Timestamp:         summary.Timestamp.Format(time.RFC3339),
			LicenseLimitBooks: summary.LicenseLimitBooks,
		})
	}()

	return ch
}
