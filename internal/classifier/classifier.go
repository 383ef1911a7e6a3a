// Package classifier derives a page's type (content, blank, error, redirect)
// and its structural booleans from fetched HTML. Classification is heuristic:
// phrase lists catch interstitial and error pages, and a structural test
// compares main-content volume against header/footer/navigation volume to
// catch pages that render chrome but no substance.
package classifier

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/sitewatch/internal/domain"
)

// Structural blankness thresholds.
const (
	// minMainWords is the floor below which main content is compared
	// against header/footer volume.
	minMainWords = 20
	// mainShareThreshold marks a page blank when main content carries
	// less than this share of the total words.
	mainShareThreshold = 0.1
	// fallbackBlankThreshold is the plain word-count cutoff used only
	// when the structural parse fails.
	fallbackBlankThreshold = 50
)

// redirectPhrases mark interstitial pages that exist only to forward the
// visitor elsewhere.
var redirectPhrases = []string{
	"redirecting",
	"you will be redirected",
	"please wait",
	"this page has moved",
	"redirecting to",
	"click here if",
}

// errorMarkers are matched against both body text and title.
var errorMarkers = []string{
	"404", "not found", "page not found", "error", "oops",
	"something went wrong", "access denied", "forbidden",
	"internal server error", "500", "502", "503", "504",
}

// boilerplatePhrases mark main content that is a canned placeholder rather
// than real substance.
var boilerplatePhrases = []string{
	"coming soon", "under construction", "page not found", "404", "error",
	"loading", "please wait", "redirecting", "this page has moved",
	"access denied", "forbidden", "internal server error", "500", "502", "503",
	"click here if you are not redirected", "you will be redirected",
	"this content is not available", "content coming soon", "stay tuned",
}

// Class/id fragments that identify page chrome.
var (
	headerSectionMarkers = []string{"header", "top", "banner", "menu", "navigation"}
	footerSectionMarkers = []string{"footer", "bottom", "menu", "navigation"}
	mainRemovalMarkers   = []string{"header", "footer", "nav", "navigation", "menu", "top", "bottom", "banner"}
	navListMarkers       = []string{"nav", "menu", "navigation"}
)

// Class/id fragments for the independent has_header/has_footer/has_navigation
// booleans on the page record.
var (
	headerMarkers     = []string{"header", "top", "banner", "masthead"}
	footerMarkers     = []string{"footer", "bottom", "copyright"}
	navigationMarkers = []string{"nav", "menu", "navigation", "sidebar"}
)

// PageAnalysis is the classifier's view of a fetched page.
type PageAnalysis struct {
	Title         string
	Text          string
	WordCount     int
	HasHeader     bool
	HasFooter     bool
	HasNavigation bool
	PageType      domain.PageType
}

// Classifier analyzes fetched HTML. Stateless and safe for concurrent use.
type Classifier struct{}

// New creates a page classifier.
func New() *Classifier {
	return &Classifier{}
}

// Analyze extracts the title, whitespace-normalized text, word count, and
// structural booleans from the HTML, then classifies the page. The decision
// order is redirect, error, blank, content.
func (c *Classifier) Analyze(htmlContent string) (*PageAnalysis, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style").Remove()

	words := strings.Fields(doc.Text())
	text := strings.Join(words, " ")

	analysis := &PageAnalysis{
		Title:         title,
		Text:          text,
		WordCount:     len(words),
		HasHeader:     hasHeader(doc),
		HasFooter:     hasFooter(doc),
		HasNavigation: hasNavigation(doc),
	}
	analysis.PageType = c.classify(htmlContent, strings.ToLower(text), strings.ToLower(title), analysis.WordCount)

	return analysis, nil
}

// classify applies the decision order to an already-extracted page.
func (c *Classifier) classify(htmlContent, loweredText, loweredTitle string, wordCount int) domain.PageType {
	if containsAny(loweredText, redirectPhrases) {
		return domain.PageTypeRedirect
	}
	if containsAny(loweredText, errorMarkers) || containsAny(loweredTitle, errorMarkers) {
		return domain.PageTypeError
	}
	if c.isStructurallyBlank(htmlContent, wordCount) {
		return domain.PageTypeBlank
	}

	return domain.PageTypeContent
}

// isStructurallyBlank decides blankness by weighing main-content words
// against header/footer words. It re-parses the HTML because the measurement
// destructively strips chrome sections.
func (c *Classifier) isStructurallyBlank(htmlContent string, totalWords int) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return totalWords < fallbackBlankThreshold
	}

	doc.Find("script, style").Remove()

	headerWords := len(strings.Fields(sectionText(doc, "header, nav", headerSectionMarkers)))
	footerWords := len(strings.Fields(sectionText(doc, "footer", footerSectionMarkers)))

	main := mainContent(doc)
	mainWords := len(strings.Fields(main))

	if mainWords == 0 {
		return true
	}
	if mainWords < minMainWords && headerWords+footerWords > mainWords*2 {
		return true
	}
	if totalWords > 0 && float64(mainWords) < float64(totalWords)*mainShareThreshold {
		return true
	}

	return isBoilerplate(main)
}

// sectionText gathers the text of chrome sections: the named tags plus any
// div/section whose class or id contains one of the marker fragments.
func sectionText(doc *goquery.Document, tagSelector string, markers []string) string {
	var parts []string

	doc.Find(tagSelector).Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, s.Text())
	})
	doc.Find("div, section").Each(func(_ int, s *goquery.Selection) {
		if attrContainsAny(s, "class", markers) || attrContainsAny(s, "id", markers) {
			parts = append(parts, s.Text())
		}
	})

	return strings.Join(parts, " ")
}

// mainContent strips all chrome from the document and returns the remaining
// text. The document is consumed by this call.
func mainContent(doc *goquery.Document) string {
	doc.Find("header, footer, nav").Remove()

	doc.Find("div, section").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return attrContainsAny(s, "class", mainRemovalMarkers) || attrContainsAny(s, "id", mainRemovalMarkers)
	}).Remove()

	doc.Find("ul, ol").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return attrContainsAny(s, "class", navListMarkers)
	}).Remove()

	return doc.Text()
}

// isBoilerplate reports whether main content is a canned placeholder.
func isBoilerplate(main string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(main))

	for _, phrase := range boilerplatePhrases {
		if trimmed == phrase || strings.HasPrefix(trimmed, phrase) {
			return true
		}
	}

	return false
}

func hasHeader(doc *goquery.Document) bool {
	return doc.Find("header, nav").Length() > 0 ||
		anyElementMarked(doc, "div", headerMarkers, true)
}

func hasFooter(doc *goquery.Document) bool {
	return doc.Find("footer").Length() > 0 ||
		anyElementMarked(doc, "div", footerMarkers, true)
}

func hasNavigation(doc *goquery.Document) bool {
	return doc.Find("nav").Length() > 0 ||
		anyElementMarked(doc, "div", navigationMarkers, true) ||
		anyElementMarked(doc, "ul", navListMarkers, false)
}

// anyElementMarked reports whether any element of the given tag carries a
// marker fragment in its class, or in its id when checkID is set.
func anyElementMarked(doc *goquery.Document, tag string, markers []string, checkID bool) bool {
	found := false

	doc.Find(tag).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if attrContainsAny(s, "class", markers) || (checkID && attrContainsAny(s, "id", markers)) {
			found = true
			return false
		}
		return true
	})

	return found
}

// attrContainsAny reports whether the attribute value contains any marker
// fragment, case-insensitively.
func attrContainsAny(s *goquery.Selection, attr string, markers []string) bool {
	value, exists := s.Attr(attr)
	if !exists {
		return false
	}

	lowered := strings.ToLower(value)
	for _, marker := range markers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}

	return false
}

// containsAny reports whether text contains any of the phrases.
func containsAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}

	return false
}
