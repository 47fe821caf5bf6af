package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const libraryItemIDPrefix = "library-item-option-"

// LibraryItem is the metadata visible for one book on the library
// listing, before the book itself is opened.
type LibraryItem struct {
	ID       string
	Title    string
	Authors  []string
	CoverURL string
	// Percent is the listing's own percentage-read badge. It is
	// discovery metadata only; positions are read from the opened book.
	Percent float64
}

// LibraryItems parses the rendered library listing. Items are located
// by their id prefix; sample books are skipped. Each field falls back
// through progressively cheaper strategies, stopping at the first one
// that yields something.
func LibraryItems(html string) ([]LibraryItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var items []LibraryItem
	doc.Find(`[id^="` + libraryItemIDPrefix + `"]`).Each(func(_ int, sel *goquery.Selection) {
		id := sel.AttrOr("id", "")
		if strings.Contains(id, "sample") {
			return
		}
		bookID := strings.TrimPrefix(id, libraryItemIDPrefix)
		if bookID == "" {
			return
		}

		items = append(items, LibraryItem{
			ID:       bookID,
			Title:    itemTitle(sel),
			Authors:  itemAuthors(sel),
			CoverURL: sel.Find("img").First().AttrOr("src", ""),
			Percent:  itemPercent(doc, sel, bookID),
		})
	})
	return items, nil
}

func itemTitle(sel *goquery.Selection) string {
	if label := sel.AttrOr("aria-label", ""); label != "" {
		return label
	}
	title := "Unknown"
	sel.Find("span, div, p").EachWithBreak(func(_ int, node *goquery.Selection) bool {
		text := strings.TrimSpace(node.Text())
		if len(text) > 3 && len(text) < 200 {
			title = text
			return false
		}
		return true
	})
	return title
}

func itemAuthors(sel *goquery.Selection) []string {
	author := sel.Find(`[class*="author"], [class*="Author"]`).First()
	if author.Length() == 0 {
		return nil
	}
	text := strings.TrimSpace(author.Text())
	if text == "" {
		return nil
	}
	return []string{text}
}

func itemPercent(doc *goquery.Document, sel *goquery.Selection, bookID string) float64 {
	// the percentage-read badge lives outside the item element and is
	// tied back to it by id
	badge := doc.Find(`#percentage-read-` + bookID)
	if badge.Length() > 0 {
		if percent, ok := firstNumber(badge.Text()); ok {
			return percent
		}
	}

	progress := sel.Find(`[class*="progress"], [class*="Progress"], [id*="percent"]`).First()
	if progress.Length() > 0 {
		if percent, ok := firstNumber(progress.Text()); ok {
			return percent
		}
	}

	groups := percentPattern.FindStringSubmatch(sel.Text())
	if groups != nil {
		if percent, ok := firstNumber(groups[1]); ok {
			return percent
		}
	}
	return 0
}

var digitRun = regexp.MustCompile(`(\d+)`)

func firstNumber(text string) (float64, bool) {
	groups := digitRun.FindStringSubmatch(text)
	if groups == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(groups[1], 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
