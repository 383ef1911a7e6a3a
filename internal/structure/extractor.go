// Package structure extracts the semantic skeleton of an HTML page: the
// element inventory (headings, links, forms, navigation) plus a cleaned
// copy of the markup with scripts, styles, and presentation attributes
// removed. Output is deterministic for identical input.
package structure

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/jonesrussell/sitewatch/internal/domain"
)

// removedElements are dropped from the skeleton entirely. The title element
// is read into page info first, then removed like the rest.
const removedElements = "script, style, noscript, iframe, embed, object, link, meta, title"

// keptAttributes is the structural attribute allow-list. Everything else,
// including all data-* and aria-* attributes, is stripped.
var keptAttributes = map[string]struct{}{
	"type": {}, "name": {}, "value": {}, "placeholder": {}, "alt": {},
	"title": {}, "colspan": {}, "rowspan": {}, "scope": {}, "headers": {},
	"for": {}, "method": {}, "action": {}, "enctype": {}, "target": {},
	"rel": {}, "media": {},
}

var (
	breadcrumbClass = regexp.MustCompile(`(?i)breadcrumb`)
	menuClass       = regexp.MustCompile(`(?i)menu|nav`)
)

// Extractor builds domain.PageStructure values from raw HTML.
type Extractor struct{}

// New creates a new structure extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract parses HTML and produces its structure. Page metadata is read
// first, then scripts/styles/embeds are removed, the element inventory is
// taken from what remains, and finally attributes outside the allow-list
// are stripped to render the skeleton.
func (e *Extractor) Extract(htmlContent string) (*domain.PageStructure, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	structure := &domain.PageStructure{
		PageInfo: extractPageInfo(doc),
	}

	doc.Find(removedElements).Remove()
	removeComments(doc)

	structure.Headings = extractHeadings(doc)
	structure.Links = extractLinkTexts(doc)
	structure.Images = extractImageAlts(doc)
	structure.Buttons = extractButtons(doc)
	structure.Inputs = extractInputs(doc)
	structure.Lists = extractLists(doc)
	structure.Forms = extractForms(doc)
	structure.Navigation = extractNavigation(doc)

	stripAttributes(doc)
	skeleton, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("render skeleton: %w", err)
	}
	structure.Skeleton = skeleton

	return structure, nil
}

func extractPageInfo(doc *goquery.Document) domain.PageInfo {
	return domain.PageInfo{
		Title:           strings.TrimSpace(doc.Find("title").First().Text()),
		MetaDescription: doc.Find(`meta[name="description"]`).First().AttrOr("content", ""),
		MetaKeywords:    doc.Find(`meta[name="keywords"]`).First().AttrOr("content", ""),
	}
}

// extractHeadings walks h1 through h6 level by level, so output is grouped
// by level and document-ordered within a level.
func extractHeadings(doc *goquery.Document) []domain.Heading {
	var headings []domain.Heading
	for level := 1; level <= 6; level++ {
		doc.Find(fmt.Sprintf("h%d", level)).Each(func(_ int, s *goquery.Selection) {
			headings = append(headings, domain.Heading{
				Level: level,
				Text:  strings.TrimSpace(s.Text()),
			})
		})
	}
	return headings
}

// extractLinkTexts collects anchor texts only; href targets are recorded by
// the crawl's link extraction, not the structure.
func extractLinkTexts(doc *goquery.Document) []string {
	var links []string
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		links = append(links, strings.TrimSpace(s.Text()))
	})
	return links
}

func extractImageAlts(doc *goquery.Document) []string {
	var alts []string
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		alts = append(alts, s.AttrOr("alt", ""))
	})
	return alts
}

func extractButtons(doc *goquery.Document) []domain.Button {
	var buttons []domain.Button
	doc.Find("button, input").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "input" {
			inputType := s.AttrOr("type", "")
			if inputType == "button" || inputType == "submit" || inputType == "reset" {
				buttons = append(buttons, domain.Button{
					Text: s.AttrOr("value", ""),
					Type: inputType,
				})
			}
			return
		}
		buttons = append(buttons, domain.Button{
			Text: strings.TrimSpace(s.Text()),
			Type: "button",
		})
	})
	return buttons
}

func extractInputs(doc *goquery.Document) []domain.Input {
	var inputs []domain.Input
	doc.Find("input").Each(func(_ int, s *goquery.Selection) {
		inputs = append(inputs, domain.Input{
			Type:        s.AttrOr("type", "text"),
			Name:        s.AttrOr("name", ""),
			Placeholder: s.AttrOr("placeholder", ""),
		})
	})
	return inputs
}

func extractLists(doc *goquery.Document) []domain.List {
	var lists []domain.List
	doc.Find("ul, ol").Each(func(_ int, s *goquery.Selection) {
		list := domain.List{Type: goquery.NodeName(s)}
		s.Find("li").Each(func(_ int, li *goquery.Selection) {
			list.Items = append(list.Items, strings.TrimSpace(li.Text()))
		})
		lists = append(lists, list)
	})
	return lists
}

func extractForms(doc *goquery.Document) []domain.Form {
	var forms []domain.Form
	doc.Find("form").Each(func(_ int, s *goquery.Selection) {
		form := domain.Form{
			Method: s.AttrOr("method", "get"),
			Action: s.AttrOr("action", ""),
		}
		s.Find("input").Each(func(_ int, in *goquery.Selection) {
			_, required := in.Attr("required")
			form.Inputs = append(form.Inputs, domain.Input{
				Type:     in.AttrOr("type", "text"),
				Name:     in.AttrOr("name", ""),
				Required: required,
			})
		})
		s.Find("select").Each(func(_ int, sel *goquery.Selection) {
			selectField := domain.Select{Name: sel.AttrOr("name", "")}
			sel.Find("option").Each(func(_ int, opt *goquery.Selection) {
				selectField.Options = append(selectField.Options, strings.TrimSpace(opt.Text()))
			})
			form.Selects = append(form.Selects, selectField)
		})
		forms = append(forms, form)
	})
	return forms
}

func extractNavigation(doc *goquery.Document) *domain.Navigation {
	nav := &domain.Navigation{}

	doc.Find("nav a").Each(func(_ int, s *goquery.Selection) {
		nav.NavLinks = append(nav.NavLinks, strings.TrimSpace(s.Text()))
	})

	doc.Find("[class]").Each(func(_ int, s *goquery.Selection) {
		if !breadcrumbClass.MatchString(s.AttrOr("class", "")) {
			return
		}
		s.Find("a, span").Each(func(_ int, item *goquery.Selection) {
			nav.Breadcrumbs = append(nav.Breadcrumbs, strings.TrimSpace(item.Text()))
		})
	})

	doc.Find("ul, ol").Each(func(_ int, s *goquery.Selection) {
		if !menuClass.MatchString(s.AttrOr("class", "")) {
			return
		}
		var items []string
		s.Find("li").Each(func(_ int, li *goquery.Selection) {
			items = append(items, strings.TrimSpace(li.Text()))
		})
		nav.Menus = append(nav.Menus, items)
	})

	return nav
}

// removeComments drops every comment node from the document tree.
func removeComments(doc *goquery.Document) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		child := n.FirstChild
		for child != nil {
			next := child.NextSibling
			if child.Type == html.CommentNode {
				n.RemoveChild(child)
			} else {
				walk(child)
			}
			child = next
		}
	}
	for _, root := range doc.Nodes {
		walk(root)
	}
}

// stripAttributes removes every attribute not on the structural allow-list.
func stripAttributes(doc *goquery.Document) {
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, node := range s.Nodes {
			kept := node.Attr[:0]
			for _, attr := range node.Attr {
				if _, ok := keptAttributes[strings.ToLower(attr.Key)]; ok {
					kept = append(kept, attr)
				}
			}
			node.Attr = kept
		}
	})
}
