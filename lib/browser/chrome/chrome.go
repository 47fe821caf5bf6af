// Package chrome adapts a chromedp-driven Chrome instance to the
// browser.Session port. The profile directory is persistent so a
// completed login survives process restarts.
package chrome

import (
	"context"
	"encoding/json"
	"time"

	"readtrack-backend/lib/browser"

	"github.com/chromedp/chromedp"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/121.0.0.0 Safari/537.36"

type Options struct {
	// ProfileDir holds cookies and local storage between runs.
	ProfileDir string
	Headless   bool
}

func NewFactory(opts Options) browser.Factory {
	return func(ctx context.Context) (browser.Session, error) {
		allocOpts := append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.UserDataDir(opts.ProfileDir),
			chromedp.Flag("headless", opts.Headless),
			chromedp.WindowSize(1280, 720),
			chromedp.UserAgent(userAgent),
			// passkey prompts would hang the unattended login flow
			chromedp.Flag("disable-features", "WebAuthentication,WebAuthenticationConditionalUI"),
		)

		// the session must outlive the context used to acquire it
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
		taskCtx, taskCancel := chromedp.NewContext(allocCtx)

		if err := chromedp.Run(taskCtx); err != nil {
			taskCancel()
			allocCancel()
			return nil, err
		}
		return &session{
			taskCtx:     taskCtx,
			taskCancel:  taskCancel,
			allocCancel: allocCancel,
		}, nil
	}
}

type session struct {
	taskCtx     context.Context
	taskCancel  context.CancelFunc
	allocCancel context.CancelFunc
}

// run executes actions against the browser while staying cancellable
// through the caller's context.
func (s *session) run(ctx context.Context, runCtx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(runCtx, actions...)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (s *session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, s.taskCtx, chromedp.Navigate(url))
}

func (s *session) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(s.taskCtx, timeout)
	defer cancel()
	return s.run(ctx, waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (s *session) Fill(ctx context.Context, selector, value string) error {
	return s.run(ctx, s.taskCtx, chromedp.SendKeys(selector, value, chromedp.ByQuery))
}

func (s *session) Click(ctx context.Context, selector string) error {
	return s.run(ctx, s.taskCtx, chromedp.Click(selector, chromedp.ByQuery))
}

func (s *session) Evaluate(ctx context.Context, script string) (string, error) {
	var raw json.RawMessage
	err := s.run(ctx, s.taskCtx, chromedp.Evaluate(script, &raw))
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "null", nil
	}
	return string(raw), nil
}

func (s *session) CurrentURL(ctx context.Context) (string, error) {
	var location string
	err := s.run(ctx, s.taskCtx, chromedp.Location(&location))
	return location, err
}

func (s *session) Close() error {
	s.taskCancel()
	s.allocCancel()
	return nil
}
