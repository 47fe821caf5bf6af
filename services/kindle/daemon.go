package kindle

import (
	"context"
	"log/slog"
	"time"
)

// ScrapeDaemon runs a batch pass on a fixed interval until the context
// is cancelled. Failed passes are logged and retried on the next tick.
func (s *Service) ScrapeDaemon(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary := s.RunScrape(ctx)
			if !summary.Success {
				slog.ErrorContext(ctx, "scheduled scrape failed", "err", summary.Error)
				continue
			}
			slog.InfoContext(ctx, "scheduled scrape finished",
				"books_scraped", summary.BooksScraped,
				"books_with_progress", summary.BooksWithProgress,
			)
		}
	}
}
