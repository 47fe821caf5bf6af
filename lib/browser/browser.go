package browser

import (
	"context"
	"fmt"
	"time"
)

// Session is the port implemented by browser automation adapters.
// Every method that talks to the page takes a context so a shutdown
// signal can interrupt it mid-wait.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// WaitFor blocks until an element matching the css selector exists,
	// or the timeout elapses. A timeout is returned as an error and is
	// expected to be recoverable by the caller.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	// Evaluate runs a javascript expression in the page and returns its
	// result serialized as JSON.
	Evaluate(ctx context.Context, script string) (string, error)
	CurrentURL(ctx context.Context) (string, error)
	Close() error
}

// Factory opens a fresh browser session.
type Factory func(ctx context.Context) (Session, error)

var ErrManagerClosed = fmt.Errorf("browser manager is closed")

// Manager owns the single browser session shared by the periodic
// scrape daemon and manually triggered passes. Only one holder may
// drive the session at a time since only one page can be open.
type Manager struct {
	factory Factory
	lock    chan struct{}
	sess    Session
	closed  bool
}

func NewManager(factory Factory) *Manager {
	m := &Manager{
		factory: factory,
		lock:    make(chan struct{}, 1),
	}
	m.lock <- struct{}{}
	return m
}

// Acquire blocks until the session is free, opening it on first use.
// The returned release func must be called exactly once.
func (m *Manager) Acquire(ctx context.Context) (Session, func(), error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-m.lock:
	}

	if m.closed {
		m.lock <- struct{}{}
		return nil, nil, ErrManagerClosed
	}

	if m.sess == nil {
		sess, err := m.factory(ctx)
		if err != nil {
			m.lock <- struct{}{}
			return nil, nil, fmt.Errorf("open browser session: %w", err)
		}
		m.sess = sess
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		m.lock <- struct{}{}
	}
	return m.sess, release, nil
}

// Shutdown waits for the current holder to release the session, then
// closes it. Further Acquire calls fail with ErrManagerClosed.
func (m *Manager) Shutdown(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.lock:
	}
	defer func() { m.lock <- struct{}{} }()

	m.closed = true
	if m.sess == nil {
		return nil
	}
	err := m.sess.Close()
	m.sess = nil
	return err
}
