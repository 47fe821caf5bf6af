// Package browsertest provides a scripted Session for tests that
// exercise navigation and scraping logic without a live browser.
package browsertest

import (
	"context"
	"sync"
	"time"
)

type Call struct {
	Method   string
	Selector string
	Value    string
}

// Session implements browser.Session with overridable behavior.
// The zero behavior is permissive: navigation updates URL, waits and
// clicks succeed, evaluate returns "null".
type Session struct {
	URL    string
	Closed bool
	Calls  []Call

	OnNavigate func(url string) error
	OnWaitFor  func(selector string) error
	OnFill     func(selector, value string) error
	OnClick    func(selector string) error
	OnEvaluate func(script string) (string, error)

	mu sync.Mutex
}

func NewSession() *Session {
	return &Session{}
}

// SetURL changes the reported URL. Use it instead of assigning the
// field when a test goroutine mutates the URL concurrently.
func (s *Session) SetURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.URL = url
}

func (s *Session) record(method, selector, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, Call{Method: method, Selector: selector, Value: value})
}

// CallsTo returns how many recorded calls used the given method.
func (s *Session) CallsTo(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.record("Navigate", url, "")
	if s.OnNavigate != nil {
		return s.OnNavigate(url)
	}
	s.SetURL(url)
	return nil
}

func (s *Session) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	s.record("WaitFor", selector, "")
	if s.OnWaitFor != nil {
		return s.OnWaitFor(selector)
	}
	return nil
}

func (s *Session) Fill(ctx context.Context, selector, value string) error {
	s.record("Fill", selector, value)
	if s.OnFill != nil {
		return s.OnFill(selector, value)
	}
	return nil
}

func (s *Session) Click(ctx context.Context, selector string) error {
	s.record("Click", selector, "")
	if s.OnClick != nil {
		return s.OnClick(selector)
	}
	return nil
}

func (s *Session) Evaluate(ctx context.Context, script string) (string, error) {
	s.record("Evaluate", script, "")
	if s.OnEvaluate != nil {
		return s.OnEvaluate(script)
	}
	return "null", nil
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.URL, nil
}

func (s *Session) Close() error {
	s.Closed = true
	return nil
}
