package core

import "strings"

// PageState is the closed set of page kinds the login flow can land on.
type PageState int

const (
	StateUnknown PageState = iota
	StateLibrary
	StateLanding
	StateAuthChallenge
)

func (s PageState) String() string {
	switch s {
	case StateLibrary:
		return "library"
	case StateLanding:
		return "landing"
	case StateAuthChallenge:
		return "auth_challenge"
	default:
		return "unknown"
	}
}

type Classification struct {
	State PageState
	// ManualIntervention marks challenge pages (2FA, CAPTCHA, device
	// questions) that must never be auto-filled.
	ManualIntervention bool
}

// authMarkers are URL path fragments of pages in the sign-in flow.
var authMarkers = []string{
	"signin",
	"ap/signin",
	"ap/mfa",
	"ap/cvf",
	"ap/dcq",
	"primememberpromo",
	"verification",
	"challenge",
}

// manualMarkers is the subset of auth pages a human has to complete.
var manualMarkers = []string{
	"ap/mfa",
	"ap/cvf",
	"ap/dcq",
	"challenge",
	"verification",
}

// ClassifyPage decides what kind of page the session is on, from the
// URL and the rendered body text. Pure string matching so it can be
// tested without a session; the body text only matters for landing
// pages served under unexpected URLs.
func ClassifyPage(rawURL, bodyText string) Classification {
	url := strings.ToLower(rawURL)

	if strings.Contains(url, "read.amazon.com/kindle-library") {
		return Classification{State: StateLibrary}
	}
	if strings.Contains(url, "landing") {
		return Classification{State: StateLanding}
	}
	for _, marker := range authMarkers {
		if !strings.Contains(url, marker) {
			continue
		}
		c := Classification{State: StateAuthChallenge}
		for _, manual := range manualMarkers {
			if strings.Contains(url, manual) {
				c.ManualIntervention = true
				break
			}
		}
		return c
	}
	if strings.Contains(bodyText, signInAffordanceText) {
		return Classification{State: StateLanding}
	}
	return Classification{State: StateUnknown}
}
