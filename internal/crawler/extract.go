package crawler

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/sitewatch/internal/domain"
	"github.com/jonesrussell/sitewatch/internal/urlutil"
)

// urlPattern recovers absolute URLs from script text and inline handlers.
// Deliberately loose: downstream same-domain and page checks filter the
// false positives.
var urlPattern = regexp.MustCompile(`https?://[^\s'"]+`)

// skippedSchemes are href values that never name a fetchable target.
var skippedSchemes = []string{"javascript:", "mailto:", "tel:", "data:"}

// ExtractOptions toggles the four extraction modes.
type ExtractOptions struct {
	Static          bool
	Dynamic         bool
	Resource        bool
	IncludeExternal bool
}

// ExtractLinks pulls outbound links from a page's HTML. The four modes run
// independently and their union is deduplicated by target URL preserving
// first-seen order. Unparseable targets are dropped silently; static and
// dynamic modes also drop targets that point at resource files, while
// resource mode keeps them as resource-kind links. With IncludeExternal off,
// links to foreign hosts are filtered at extraction time.
func ExtractLinks(pageURL, startURL, html string, opts ExtractOptions) []domain.LinkRecord {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	c := &linkCollector{
		pageURL:  pageURL,
		startURL: startURL,
		opts:     opts,
		seen:     map[string]struct{}{},
	}

	if opts.Static {
		c.collectStatic(doc)
	}
	if opts.Dynamic {
		c.collectDynamic(doc)
	}
	if opts.Resource {
		c.collectResources(doc)
	}

	return c.links
}

type linkCollector struct {
	pageURL  string
	startURL string
	opts     ExtractOptions
	seen     map[string]struct{}
	links    []domain.LinkRecord
}

// add resolves and filters one candidate target, appending it if new.
func (c *linkCollector) add(ref, text, context string, kind domain.LinkKind) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return
	}
	lowered := strings.ToLower(ref)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lowered, scheme) {
			return
		}
	}

	target, err := urlutil.Resolve(c.pageURL, ref)
	if err != nil {
		return
	}

	if kind != domain.LinkKindResource && urlutil.IsResourceURL(target) {
		return
	}
	if !c.opts.IncludeExternal && !urlutil.SameHost(target, c.startURL) {
		return
	}
	if _, dup := c.seen[target]; dup {
		return
	}
	c.seen[target] = struct{}{}

	c.links = append(c.links, domain.LinkRecord{
		SourceURL: c.pageURL,
		TargetURL: target,
		Kind:      kind,
		Text:      strings.TrimSpace(text),
		Context:   context,
	})
}

// collectStatic gathers href targets from a, link, and area elements.
func (c *linkCollector) collectStatic(doc *goquery.Document) {
	doc.Find("a[href], link[href], area[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		c.add(href, s.Text(), "href", domain.LinkKindStatic)
	})
}

// collectDynamic recovers URLs from onclick handlers, data-url attributes,
// and raw script text.
func (c *linkCollector) collectDynamic(doc *goquery.Document) {
	doc.Find("[onclick]").Each(func(_ int, s *goquery.Selection) {
		onclick, _ := s.Attr("onclick")
		for _, match := range urlPattern.FindAllString(onclick, -1) {
			c.add(match, s.Text(), "onclick", domain.LinkKindDynamic)
		}
	})

	doc.Find("[data-url]").Each(func(_ int, s *goquery.Selection) {
		dataURL, _ := s.Attr("data-url")
		c.add(dataURL, s.Text(), "data-url", domain.LinkKindDynamic)
	})

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		for _, match := range urlPattern.FindAllString(s.Text(), -1) {
			c.add(match, "", "script", domain.LinkKindDynamic)
		}
	})
}

// collectResources gathers asset references: images, stylesheets, scripts.
func (c *linkCollector) collectResources(doc *goquery.Document) {
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		alt, _ := s.Attr("alt")
		c.add(src, alt, "img", domain.LinkKindResource)
	})

	doc.Find(`link[rel="stylesheet"][href]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		c.add(href, href, "stylesheet", domain.LinkKindResource)
	})

	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		c.add(src, src, "script", domain.LinkKindResource)
	})
}
