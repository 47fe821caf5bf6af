package core

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"readtrack-backend/lib/browser/browsertest"

	"github.com/stretchr/testify/require"
)

func fastNavigator(sess *browsertest.Session, creds Credentials) *Navigator {
	n := NewNavigator(sess, creds)
	n.Settle = 0
	n.PollInterval = time.Millisecond
	return n
}

func jsonField(t *testing.T, present bool, value string) string {
	t.Helper()
	raw, err := json.Marshal(fieldState{Present: present, Value: value})
	require.NoError(t, err)
	return string(raw)
}

func TestReachLibraryAlreadyLoggedIn(t *testing.T) {
	sess := browsertest.NewSession()
	n := fastNavigator(sess, Credentials{})

	status, err := n.ReachLibrary(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusLoggedIn, status)
}

func TestReachLibraryFullSignInFlow(t *testing.T) {
	sess := browsertest.NewSession()
	passwordVisible := false
	emailFilled := false
	passwordFilled := false

	sess.OnNavigate = func(url string) error {
		// saved session state is gone, the library redirects to landing
		sess.URL = "https://read.amazon.com/landing"
		return nil
	}
	sess.OnEvaluate = func(script string) (string, error) {
		switch {
		case strings.Contains(script, "innerText : "):
			return `""`, nil
		case strings.Contains(script, signInAffordanceText):
			sess.URL = "https://www.amazon.com/ap/signin"
			return "true", nil
		case strings.Contains(script, "email") && strings.Contains(script, "present"):
			return jsonField(t, true, ""), nil
		case strings.Contains(script, "password") && strings.Contains(script, "present"):
			return jsonField(t, passwordVisible, ""), nil
		case strings.Contains(script, "passkey"):
			// the passkey/password chooser: picking password reveals the field
			passwordVisible = true
			return `"Sign in with password"`, nil
		case strings.Contains(script, "#continue"):
			return "true", nil
		case strings.Contains(script, "signInSubmit"):
			return "true", nil
		}
		return "null", nil
	}
	sess.OnFill = func(selector, value string) error {
		if strings.Contains(selector, "email") {
			require.Equal(t, "reader@example.com", value)
			emailFilled = true
		}
		if strings.Contains(selector, "password") {
			require.Equal(t, "hunter2", value)
			passwordFilled = true
		}
		return nil
	}
	sess.OnClick = func(selector string) error {
		if strings.Contains(selector, "signInSubmit") {
			sess.URL = "https://read.amazon.com/kindle-library"
		}
		return nil
	}

	n := fastNavigator(sess, Credentials{Email: "reader@example.com", Password: "hunter2"})
	status, err := n.ReachLibrary(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusLoggedIn, status)
	require.True(t, emailFilled)
	require.True(t, passwordFilled)
}

func TestReachLibraryManual2FA(t *testing.T) {
	sess := browsertest.NewSession()
	sess.OnNavigate = func(url string) error {
		sess.URL = "https://www.amazon.com/ap/mfa?ref=signin"
		return nil
	}

	n := fastNavigator(sess, Credentials{Email: "a@b.c", Password: "p"})
	status, err := n.ReachLibrary(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusManual2FA, status)
	// never interacts with the challenge page
	require.Zero(t, sess.CallsTo("Fill"))
	require.Zero(t, sess.CallsTo("Click"))
}

func TestReachLibraryNoCredentials(t *testing.T) {
	sess := browsertest.NewSession()
	sess.OnNavigate = func(url string) error {
		sess.URL = "https://www.amazon.com/ap/signin"
		return nil
	}
	sess.OnEvaluate = func(script string) (string, error) {
		if strings.Contains(script, "email") && strings.Contains(script, "present") {
			return jsonField(t, true, ""), nil
		}
		return `""`, nil
	}

	n := fastNavigator(sess, Credentials{})
	status, err := n.ReachLibrary(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusNotLoggedIn, status)
	require.Zero(t, sess.CallsTo("Fill"))
}

func TestReachLibraryExhaustsAttempts(t *testing.T) {
	sess := browsertest.NewSession()
	sess.OnNavigate = func(url string) error {
		sess.URL = "https://www.amazon.com/gp/unrelated"
		return nil
	}

	n := fastNavigator(sess, Credentials{})
	status, err := n.ReachLibrary(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusNotLoggedIn, status)
	// initial navigation plus one re-navigation per attempt
	require.Equal(t, n.Attempts+1, sess.CallsTo("Navigate"))
}

func TestLoginStraightThrough(t *testing.T) {
	sess := browsertest.NewSession()
	sess.OnEvaluate = func(script string) (string, error) {
		if strings.Contains(script, "#continue") {
			return "false", nil
		}
		return "null", nil
	}
	sess.OnClick = func(selector string) error {
		if strings.Contains(selector, "signInSubmit") {
			sess.URL = "https://read.amazon.com/kindle-library"
		}
		return nil
	}

	n := fastNavigator(sess, Credentials{})
	err := n.Login(context.Background(), "reader@example.com", "hunter2")
	require.NoError(t, err)
}

func TestLoginWaitsOutManualVerification(t *testing.T) {
	sess := browsertest.NewSession()
	sess.OnEvaluate = func(script string) (string, error) {
		if strings.Contains(script, "#continue") {
			return "false", nil
		}
		return "null", nil
	}
	sess.OnClick = func(selector string) error {
		if strings.Contains(selector, "signInSubmit") {
			sess.SetURL("https://www.amazon.com/ap/cvf/request")
		}
		return nil
	}
	sess.OnNavigate = func(url string) error {
		sess.SetURL(url)
		return nil
	}

	n := fastNavigator(sess, Credentials{})
	n.ManualWait = time.Second

	// flip the URL a moment after the challenge page appears, as if the
	// user finished the code entry in the open window
	go func() {
		time.Sleep(time.Millisecond * 30)
		sess.SetURL("https://read.amazon.com/")
	}()

	err := n.Login(context.Background(), "reader@example.com", "hunter2")
	require.NoError(t, err)
}

func TestLoginRedirectTimeout(t *testing.T) {
	sess := browsertest.NewSession()
	sess.OnClick = func(selector string) error { return nil }
	sess.OnEvaluate = func(script string) (string, error) { return "false", nil }
	sess.OnNavigate = func(url string) error {
		sess.URL = "https://www.amazon.com/ap/signin"
		return nil
	}

	n := fastNavigator(sess, Credentials{})
	n.LoginTimeout = time.Millisecond * 20

	err := n.Login(context.Background(), "reader@example.com", "hunter2")
	require.Error(t, err)
	require.Contains(t, err.Error(), "timed out")
}
