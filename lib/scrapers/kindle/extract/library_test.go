package extract

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const libraryHTML = `
<html><body>
<div id="library">
  <div id="library-item-option-B0192CTMYG" aria-label="The Left Hand of Darkness">
    <img src="https://m.media-amazon.com/cover1.jpg"/>
    <div class="book-author">Ursula K. Le Guin</div>
  </div>
  <span id="percentage-read-B0192CTMYG">62% read</span>

  <div id="library-item-option-B000EXAMPL">
    <span>x</span>
    <span>Snow Crash</span>
    <div class="item-progress-bar">17</div>
  </div>

  <div id="library-item-option-B0SAMPLE11-sample" aria-label="A Sample Book"></div>

  <div id="library-item-option-B00PLAINBK">
    <p>Plain Book With No Badges, finished about 54% of it</p>
  </div>
</div>
</body></html>`

func TestLibraryItems(t *testing.T) {
	items, err := LibraryItems(libraryHTML)
	require.NoError(t, err)
	require.Len(t, items, 3, "sample items are skipped")

	expect := []LibraryItem{
		{
			ID:       "B0192CTMYG",
			Title:    "The Left Hand of Darkness",
			Authors:  []string{"Ursula K. Le Guin"},
			CoverURL: "https://m.media-amazon.com/cover1.jpg",
			Percent:  62,
		},
		{
			// no aria-label: first text node within [4,199] chars wins,
			// so the single-char span is passed over
			ID:      "B000EXAMPL",
			Title:   "Snow Crash",
			Percent: 17,
		},
		{
			// whole-item percent scan is the last resort
			ID:      "B00PLAINBK",
			Title:   "Plain Book With No Badges, finished about 54% of it",
			Percent: 54,
		},
	}
	if diff := cmp.Diff(expect, items); diff != "" {
		t.Fatalf("unexpected library items (-want +got):\n%s", diff)
	}
}

func TestLibraryItemsEmpty(t *testing.T) {
	items, err := LibraryItems("<html><body><div>nothing here</div></body></html>")
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestLibraryItemsMissingTitle(t *testing.T) {
	items, err := LibraryItems(`<div id="library-item-option-B00NOTITLE"><span>abc</span></div>`)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Unknown", items[0].Title, "short text nodes do not qualify as titles")
}
