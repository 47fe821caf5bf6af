// Package core drives a browser session through the Kindle Cloud
// Reader sign-in flow. Amazon presents an unpredictable sequence of
// landing, sign-in and challenge pages, so navigation is a bounded
// classify-act loop rather than a fixed script.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"readtrack-backend/lib/browser"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/kindle/core")

const (
	ReaderURL  = "https://read.amazon.com/"
	LibraryURL = "https://read.amazon.com/kindle-library"
)

const (
	emailFieldSelector    = `input[type="email"], input[name="email"]`
	passwordFieldSelector = `input[type="password"]`
	continueSelector      = `input#continue, span#continue`
	submitSelector        = `input#signInSubmit, input[type="submit"], button[type="submit"]`
	signInAffordanceText  = "Sign in with your account"
)

// Status is the authentication state reported to the orchestrator.
type Status int

const (
	StatusNotLoggedIn Status = iota
	StatusLoggedIn
	StatusManual2FA
)

func (s Status) String() string {
	switch s {
	case StatusLoggedIn:
		return "logged_in"
	case StatusManual2FA:
		return "manual_2fa_required"
	default:
		return "not_logged_in"
	}
}

var errNoCredentials = fmt.Errorf("login form present but no credentials configured")

type Credentials struct {
	Email    string
	Password string
}

func (c Credentials) Configured() bool {
	return c.Email != "" && c.Password != ""
}

type Navigator struct {
	sess  browser.Session
	creds Credentials

	// knobs below exist so tests can run without real waits
	Attempts     int
	Settle       time.Duration
	FieldTimeout time.Duration
	LoginTimeout time.Duration
	ManualWait   time.Duration
	PollInterval time.Duration
}

func NewNavigator(sess browser.Session, creds Credentials) *Navigator {
	return &Navigator{
		sess:         sess,
		creds:        creds,
		Attempts:     5,
		Settle:       2 * time.Second,
		FieldTimeout: 30 * time.Second,
		LoginTimeout: time.Minute,
		ManualWait:   5 * time.Minute,
		PollInterval: 500 * time.Millisecond,
	}
}

// ReachLibrary tries to arrive at the authenticated library view by
// classifying the current page and acting on it, up to a bounded
// number of attempts. Saved browser state usually carries most of the
// flow; credentials are only typed into empty fields.
func (n *Navigator) ReachLibrary(ctx context.Context) (Status, error) {
	ctx, span := tracer.Start(ctx, "ReachLibrary")
	defer span.End()

	if err := n.sess.Navigate(ctx, LibraryURL); err != nil {
		slog.WarnContext(ctx, "initial library navigation failed", "err", err)
	}
	if err := n.settle(ctx); err != nil {
		return StatusNotLoggedIn, err
	}

	for attempt := 0; attempt < n.Attempts; attempt++ {
		url, err := n.sess.CurrentURL(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "read current url")
			return StatusNotLoggedIn, err
		}
		body, err := n.bodyText(ctx)
		if err != nil {
			slog.WarnContext(ctx, "read page text", "err", err)
		}

		c := ClassifyPage(url, body)
		slog.InfoContext(ctx, "login check", "attempt", attempt+1, "url", url, "state", c.State.String())

		switch c.State {
		case StateLibrary:
			return StatusLoggedIn, nil

		case StateLanding:
			if err := n.clickByText(ctx, signInAffordanceText); err != nil {
				slog.DebugContext(ctx, "sign in click failed", "err", err)
			}

		case StateAuthChallenge:
			if c.ManualIntervention {
				slog.WarnContext(ctx, "verification page requires manual intervention", "url", url)
				return StatusManual2FA, nil
			}
			err := n.fillAuthForm(ctx)
			if err == errNoCredentials {
				slog.WarnContext(ctx, "cannot proceed past sign-in form", "err", err)
				return StatusNotLoggedIn, nil
			}
			if err != nil {
				if ctx.Err() != nil {
					return StatusNotLoggedIn, ctx.Err()
				}
				slog.DebugContext(ctx, "auth form handling failed", "err", err)
			}

		case StateUnknown:
			slog.WarnContext(ctx, "on unexpected page", "url", url)
			if err := n.sess.Navigate(ctx, LibraryURL); err != nil {
				slog.WarnContext(ctx, "library navigation failed", "err", err)
			}
		}

		if err := n.settle(ctx); err != nil {
			return StatusNotLoggedIn, err
		}
	}

	slog.WarnContext(ctx, "failed to reach library", "attempts", n.Attempts)
	return StatusNotLoggedIn, nil
}

// fillAuthForm fills whatever part of the sign-in form is empty and
// submits. Amazon sometimes splits email and password across steps,
// and sometimes offers a passkey prompt in place of the password box.
func (n *Navigator) fillAuthForm(ctx context.Context) error {
	email, err := n.fieldValue(ctx, emailFieldSelector)
	if err != nil {
		return err
	}
	if email.Present && email.Value == "" {
		if n.creds.Email == "" {
			return errNoCredentials
		}
		if err := n.sess.Fill(ctx, emailFieldSelector, n.creds.Email); err != nil {
			return err
		}
		if ok, _ := n.exists(ctx, continueSelector); ok {
			if err := n.sess.Click(ctx, continueSelector); err != nil {
				return err
			}
			if err := n.settle(ctx); err != nil {
				return err
			}
		}
	}

	password, err := n.fieldValue(ctx, passwordFieldSelector)
	if err != nil {
		return err
	}
	if !password.Present {
		label, err := n.clickPasswordSignIn(ctx)
		if err != nil {
			return err
		}
		if label != "" {
			slog.InfoContext(ctx, "chose password sign-in over passkey", "button", label)
			if err := n.settle(ctx); err != nil {
				return err
			}
		}
		password, err = n.fieldValue(ctx, passwordFieldSelector)
		if err != nil {
			return err
		}
	}
	if password.Present && password.Value == "" {
		if n.creds.Password == "" {
			return errNoCredentials
		}
		if err := n.sess.Fill(ctx, passwordFieldSelector, n.creds.Password); err != nil {
			return err
		}
	}

	if ok, _ := n.exists(ctx, submitSelector); ok {
		return n.sess.Click(ctx, submitSelector)
	}
	slog.WarnContext(ctx, "no submit button found on auth page")
	return nil
}

// Login runs the explicit one-shot sign-in flow. When Amazon answers
// with a verification challenge, it waits (bounded) for the user to
// complete it in the open browser window.
func (n *Navigator) Login(ctx context.Context, email, password string) error {
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	if err := n.sess.Navigate(ctx, ReaderURL); err != nil {
		return fmt.Errorf("navigate to reader: %w", err)
	}

	if err := n.sess.WaitFor(ctx, emailFieldSelector, n.FieldTimeout); err != nil {
		return fmt.Errorf("wait for email field: %w", err)
	}
	if err := n.sess.Fill(ctx, emailFieldSelector, email); err != nil {
		return fmt.Errorf("fill email: %w", err)
	}
	if ok, _ := n.exists(ctx, continueSelector); ok {
		if err := n.sess.Click(ctx, continueSelector); err != nil {
			return fmt.Errorf("continue after email: %w", err)
		}
	}

	if err := n.sess.WaitFor(ctx, passwordFieldSelector, n.FieldTimeout); err != nil {
		return fmt.Errorf("wait for password field: %w", err)
	}
	if err := n.sess.Fill(ctx, passwordFieldSelector, password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	if err := n.sess.Click(ctx, submitSelector); err != nil {
		return fmt.Errorf("submit sign-in form: %w", err)
	}

	url, err := n.waitForURL(ctx, n.LoginTimeout, func(url string) bool {
		return strings.Contains(url, "read.amazon.com") ||
			strings.Contains(url, "ap/mfa") ||
			strings.Contains(url, "ap/cvf")
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no redirect after sign-in")
		return err
	}

	if strings.Contains(url, "mfa") || strings.Contains(url, "cvf") {
		slog.WarnContext(ctx, "verification required, waiting for manual completion in browser")
		_, err = n.waitForURL(ctx, n.ManualWait, func(url string) bool {
			return strings.Contains(url, "read.amazon.com")
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "manual verification not completed")
			return fmt.Errorf("manual verification not completed: %w", err)
		}
	}

	slog.InfoContext(ctx, "login successful")
	return nil
}

func (n *Navigator) waitForURL(ctx context.Context, timeout time.Duration, match func(string) bool) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		url, err := n.sess.CurrentURL(ctx)
		if err != nil {
			return "", err
		}
		if match(strings.ToLower(url)) {
			return strings.ToLower(url), nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("timed out after %s waiting for url transition", timeout)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(n.PollInterval):
		}
	}
}

func (n *Navigator) settle(ctx context.Context) error {
	if n.Settle <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(n.Settle):
		return nil
	}
}

type fieldState struct {
	Present bool   `json:"present"`
	Value   string `json:"value"`
}

func (n *Navigator) fieldValue(ctx context.Context, selector string) (fieldState, error) {
	script := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); return el ? {present: true, value: el.value || ""} : {present: false, value: ""}; })()`,
		selector,
	)
	raw, err := n.sess.Evaluate(ctx, script)
	if err != nil {
		return fieldState{}, err
	}
	var state fieldState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return fieldState{}, fmt.Errorf("decode field state: %w", err)
	}
	return state, nil
}

func (n *Navigator) exists(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(`document.querySelector(%q) !== null`, selector)
	raw, err := n.sess.Evaluate(ctx, script)
	if err != nil {
		return false, err
	}
	return raw == "true", nil
}

func (n *Navigator) bodyText(ctx context.Context) (string, error) {
	raw, err := n.sess.Evaluate(ctx, `document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", err
	}
	var text string
	if err := json.Unmarshal([]byte(raw), &text); err != nil {
		return "", fmt.Errorf("decode body text: %w", err)
	}
	return text, nil
}

func (n *Navigator) clickByText(ctx context.Context, text string) error {
	script := fmt.Sprintf(`(() => {
		const want = %q.toLowerCase();
		const els = document.querySelectorAll('a, button, span, input[type="submit"]');
		for (const el of els) {
			const label = (el.innerText || el.value || "").trim().toLowerCase();
			if (label === want) { el.click(); return true; }
		}
		return false;
	})()`, text)
	raw, err := n.sess.Evaluate(ctx, script)
	if err != nil {
		return err
	}
	if raw != "true" {
		return fmt.Errorf("no element with text %q", text)
	}
	return nil
}

// clickPasswordSignIn picks the password variant when Amazon offers a
// passkey/password choice. Buttons whose label mentions "passkey" are
// excluded; the label of the clicked button is returned, or "" when
// nothing qualified.
func (n *Navigator) clickPasswordSignIn(ctx context.Context) (string, error) {
	raw, err := n.sess.Evaluate(ctx, `(() => {
		const els = document.querySelectorAll('button, input[type="submit"], a');
		for (const el of els) {
			const label = (el.innerText || el.textContent || el.value || "").trim();
			if (!label.toLowerCase().includes("sign in")) continue;
			if (label.toLowerCase().includes("passkey")) continue;
			el.click();
			return label;
		}
		return "";
	})()`)
	if err != nil {
		return "", err
	}
	var label string
	if err := json.Unmarshal([]byte(raw), &label); err != nil {
		return "", fmt.Errorf("decode button label: %w", err)
	}
	return label, nil
}
