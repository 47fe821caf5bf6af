package browser_test

import (
	"context"
	"testing"
	"time"

	"readtrack-backend/lib/browser"
	"readtrack-backend/lib/browser/browsertest"

	"github.com/stretchr/testify/require"
)

func TestManagerExclusive(t *testing.T) {
	opened := 0
	m := browser.NewManager(func(ctx context.Context) (browser.Session, error) {
		opened++
		return browsertest.NewSession(), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	sess1, release1, err := m.Acquire(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess1)
	require.Equal(t, 1, opened)

	// a second acquire must block until the first holder releases
	shortCtx, shortCancel := context.WithTimeout(ctx, time.Millisecond*50)
	defer shortCancel()
	_, _, err = m.Acquire(shortCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release1()
	release1() // double release is a no-op

	sess2, release2, err := m.Acquire(ctx)
	require.NoError(t, err)
	require.Equal(t, sess1, sess2, "session is reused, not reopened")
	require.Equal(t, 1, opened)
	release2()

	require.NoError(t, m.Shutdown(ctx))
	_, _, err = m.Acquire(ctx)
	require.ErrorIs(t, err, browser.ErrManagerClosed)
}

func TestManagerShutdownClosesSession(t *testing.T) {
	sess := browsertest.NewSession()
	m := browser.NewManager(func(ctx context.Context) (browser.Session, error) {
		return sess, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	_, release, err := m.Acquire(ctx)
	require.NoError(t, err)
	release()

	require.NoError(t, m.Shutdown(ctx))
	require.True(t, sess.Closed)
}
