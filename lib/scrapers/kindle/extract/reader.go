// Package extract turns rendered Kindle Cloud Reader content into
// progress data. Everything here is a pure function over text or HTML
// so the heuristics can be tested without a browser.
package extract

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"readtrack-backend/lib/textutil"
)

var ErrLicenseLimited = fmt.Errorf("license limit reached for this book")

// Progress is one observation of how far into a book the reader is.
// Current/Total are pages or locations depending on what the reader
// displays; a percent-only observation is normalized to Total=100.
type Progress struct {
	Current int
	Total   int
	Percent int
}

// maxFragmentLen bounds the text fragments worth pattern-matching;
// progress indicators are short, full paragraphs are not.
const maxFragmentLen = 50

// RegionSelectors lists page regions likely to contain a progress
// indicator, in priority order. The whole-page fallback only runs when
// none of these produce a match.
var RegionSelectors = []string{
	`[class*="location"]`,
	`[class*="Location"]`,
	`[class*="page"]`,
	`[class*="Page"]`,
	`[class*="progress"]`,
	`[class*="Progress"]`,
	`[class*="position"]`,
	`[class*="Position"]`,
	`[id*="location"]`,
	`[id*="page"]`,
	`[id*="progress"]`,
	`[data-page]`,
	`[data-location]`,
	`#kindleReader_footer`,
	`.kindleReader_footer`,
	`[class*="footer"]`,
	`[class*="Footer"]`,
}

var (
	pagePattern     = regexp.MustCompile(`(?i)Page\s+(\d+)\s+of\s+(\d+)`)
	locationPattern = regexp.MustCompile(`(?i)Loc(?:ation)?\s+(\d+)\s+of\s+(\d+)`)
	genericPattern  = regexp.MustCompile(`(?i)^(\d+)\s+of\s+(\d+)$`)
	percentPattern  = regexp.MustCompile(`(\d+)%`)
)

// Match applies the pattern rules to a single text fragment. Rules are
// ordered so that an explicit page or location reading always beats a
// bare percentage appearing in the same fragment.
func Match(text string) (Progress, bool) {
	text = textutil.NormalizeSpace(text)
	if text == "" {
		return Progress{}, false
	}

	for _, pattern := range []*regexp.Regexp{pagePattern, locationPattern, genericPattern} {
		groups := pattern.FindStringSubmatch(text)
		if groups == nil {
			continue
		}
		current, err := strconv.Atoi(groups[1])
		if err != nil {
			continue
		}
		total, err := strconv.Atoi(groups[2])
		if err != nil || total <= 0 {
			continue
		}
		return Progress{
			Current: current,
			Total:   total,
			Percent: int(math.Round(float64(current) / float64(total) * 100)),
		}, true
	}

	groups := percentPattern.FindStringSubmatch(text)
	if groups != nil {
		percent, err := strconv.Atoi(groups[1])
		if err == nil {
			return Progress{Current: percent, Total: 100, Percent: percent}, true
		}
	}

	return Progress{}, false
}

// FromFragments scans fragments in order and returns the first match.
// Fragments longer than the bound are skipped rather than matched
// partially.
func FromFragments(fragments []string) (Progress, bool) {
	for _, fragment := range fragments {
		trimmed := textutil.NormalizeSpace(fragment)
		if trimmed == "" || len(trimmed) >= maxFragmentLen {
			continue
		}
		if progress, ok := Match(trimmed); ok {
			return progress, true
		}
	}
	return Progress{}, false
}

// licenseMarkers are phrases from the device-limit dialog Amazon shows
// when a book cannot be opened on another device.
var licenseMarkers = []string{
	"License Limit Reached",
	"exceeded the limit on the number of devices",
}

// LicenseLimited reports whether the rendered page is showing the
// device license limit dialog instead of book content.
func LicenseLimited(bodyText string) bool {
	for _, marker := range licenseMarkers {
		if strings.Contains(bodyText, marker) {
			return true
		}
	}
	return false
}
