// Package extract turns a free-text extraction specification into a
// structured payload pulled from a rendered page. Classification is a
// pure function over the spec text (classify.go); the Dispatcher fetches
// the session HTML once and routes it to the matching extractor.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/use-agent/harvester/browser"
	"github.com/use-agent/harvester/models"
)

// maxResults bounds any single extractor's output.
const maxResults = 50

// Dispatcher routes extraction specifications to extractors over the
// live session's rendered HTML.
type Dispatcher struct {
	log *slog.Logger
}

func NewDispatcher(log *slog.Logger) *Dispatcher {
	return &Dispatcher{log: log}
}

// Extract classifies spec, runs the matching extractor against the
// session's rendered HTML, and augments the payload with extraction
// metadata. Extractor failures surface as EXTRACTION_FAILED carrying the
// spec and URL; retries are the coordinator's business, not ours.
func (d *Dispatcher) Extract(ctx context.Context, sess browser.Session, spec, sourceURL string) (map[string]any, error) {
	rawHTML, err := sess.HTML(ctx)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeExtraction,
			fmt.Sprintf("could not read page HTML for spec %q at %s", spec, sourceURL), err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeExtraction,
			fmt.Sprintf("could not parse page HTML for spec %q at %s", spec, sourceURL), err)
	}

	kind := Classify(spec)
	d.log.Debug("extraction dispatch", "kind", kind, "url", sourceURL)

	var payload map[string]any
	switch kind {
	case KindProducts:
		payload, err = extractProducts(doc, sourceURL)
	case KindImages:
		payload, err = extractImages(doc, sourceURL)
	case KindLinks:
		payload, err = extractLinks(doc, sourceURL)
	case KindHeadings:
		payload, err = extractHeadings(doc)
	case KindText:
		payload, err = extractText(rawHTML, sourceURL)
	case KindCSS:
		payload, err = extractCSS(doc, spec)
	default:
		payload, err = extractGeneric(doc, spec)
	}
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeExtraction,
			fmt.Sprintf("extraction failed for spec %q at %s", spec, sourceURL), err)
	}

	payload["extractedAt"] = time.Now().UTC().Format(time.RFC3339)
	payload["sourceUrl"] = sourceURL
	payload["extractionMethod"] = string(kind)
	payload["elementsFound"] = countElements(rawHTML)
	return payload, nil
}

// countElements returns the number of element nodes in the document,
// computed by a recursive walk.
func countElements(rawHTML string) int {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return 0
	}
	var count func(n *html.Node) int
	count = func(n *html.Node) int {
		total := 0
		if n.Type == html.ElementNode {
			total++
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			total += count(c)
		}
		return total
	}
	return count(root)
}

var pricePattern = regexp.MustCompile(`(?:[$€£¥]|USD|EUR|GBP)\s?\d[\d.,]*`)

// extractProducts scans for product-shaped containers: schema.org
// Product items first, then price-bearing elements grouped with their
// nearest name candidate.
func extractProducts(doc *goquery.Document, sourceURL string) (map[string]any, error) {
	base, _ := url.Parse(sourceURL)

	type product struct {
		Name  string `json:"name"`
		Price string `json:"price,omitempty"`
		Link  string `json:"link,omitempty"`
		Image string `json:"image,omitempty"`
	}
	products := []product{}
	seen := make(map[string]struct{})

	containers := doc.Find(`[itemtype*="Product"], [class*="product"], [data-product-id], [class*="item-card"]`)
	containers.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(products) >= maxResults {
			return false
		}

		p := product{}
		if name := s.Find(`[itemprop="name"], h1, h2, h3, [class*="title"], [class*="name"]`).First(); name.Length() > 0 {
			p.Name = strings.TrimSpace(name.Text())
		}
		if p.Name == "" {
			return true
		}

		if price := s.Find(`[itemprop="price"], [class*="price"], [data-price]`).First(); price.Length() > 0 {
			p.Price = strings.TrimSpace(price.Text())
		}
		if p.Price == "" {
			p.Price = pricePattern.FindString(s.Text())
		}

		if href, ok := s.Find("a[href]").First().Attr("href"); ok && base != nil {
			if resolved, err := base.Parse(href); err == nil {
				p.Link = resolved.String()
			}
		}
		if src, ok := s.Find("img[src]").First().Attr("src"); ok && base != nil {
			if resolved, err := base.Parse(src); err == nil && resolved.Scheme != "data" {
				p.Image = resolved.String()
			}
		}

		key := p.Name + "|" + p.Price
		if _, ok := seen[key]; ok {
			return true
		}
		seen[key] = struct{}{}
		products = append(products, p)
		return true
	})

	// Price-bearing text without product markup still counts on sparse
	// pages: fall back to standalone price matches.
	if len(products) == 0 {
		doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if len(products) >= maxResults {
				return false
			}
			if s.Children().Length() > 0 {
				return true
			}
			text := strings.TrimSpace(s.Text())
			price := pricePattern.FindString(text)
			if price == "" {
				return true
			}
			if _, ok := seen[text]; ok {
				return true
			}
			seen[text] = struct{}{}
			products = append(products, product{Name: text, Price: price})
			return true
		})
	}

	return map[string]any{
		"products": products,
		"count":    len(products),
	}, nil
}

func extractImages(doc *goquery.Document, sourceURL string) (map[string]any, error) {
	base, err := url.Parse(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("parse source URL: %w", err)
	}

	type image struct {
		Src string `json:"src"`
		Alt string `json:"alt,omitempty"`
	}
	images := []image{}
	seen := make(map[string]struct{})

	doc.Find("img[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(images) >= maxResults {
			return false
		}
		src, ok := s.Attr("src")
		if !ok || src == "" {
			return true
		}
		resolved, err := base.Parse(src)
		if err != nil || resolved.Scheme == "data" {
			return true
		}
		abs := resolved.String()
		if _, ok := seen[abs]; ok {
			return true
		}
		seen[abs] = struct{}{}

		alt, _ := s.Attr("alt")
		images = append(images, image{Src: abs, Alt: strings.TrimSpace(alt)})
		return true
	})

	return map[string]any{
		"images": images,
		"count":  len(images),
	}, nil
}

func extractLinks(doc *goquery.Document, sourceURL string) (map[string]any, error) {
	base, err := url.Parse(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("parse source URL: %w", err)
	}

	type link struct {
		Href string `json:"href"`
		Text string `json:"text,omitempty"`
	}
	internal := []link{}
	external := []link{}
	seen := make(map[string]struct{})

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(internal)+len(external) >= maxResults {
			return false
		}
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return true
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return true
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return true
		}
		abs := resolved.String()
		if _, ok := seen[abs]; ok {
			return true
		}
		seen[abs] = struct{}{}

		l := link{Href: abs, Text: strings.TrimSpace(s.Text())}
		if strings.EqualFold(resolved.Host, base.Host) {
			internal = append(internal, l)
		} else {
			external = append(external, l)
		}
		return true
	})

	return map[string]any{
		"internal": internal,
		"external": external,
		"count":    len(internal) + len(external),
	}, nil
}

func extractHeadings(doc *goquery.Document) (map[string]any, error) {
	type heading struct {
		Level int    `json:"level"`
		Text  string `json:"text"`
	}
	headings := []heading{}

	doc.Find("h1, h2, h3, h4, h5, h6").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(headings) >= maxResults {
			return false
		}
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return true
		}
		level := int(s.Nodes[0].Data[1] - '0')
		headings = append(headings, heading{Level: level, Text: text})
		return true
	})

	return map[string]any{
		"headings": headings,
		"count":    len(headings),
	}, nil
}

// extractText runs readability over the page and renders the article as
// markdown. Readability failure is not fatal: the raw text content still
// goes out, just without the article structure.
func extractText(rawHTML, sourceURL string) (map[string]any, error) {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("parse source URL: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsed)
	if err != nil {
		return nil, fmt.Errorf("readability: %w", err)
	}

	payload := map[string]any{
		"title":   article.Title,
		"text":    strings.TrimSpace(article.TextContent),
		"excerpt": article.Excerpt,
		"byline":  article.Byline,
	}
	if md, err := toMarkdown(article.Content, parsed.Host); err == nil {
		payload["markdown"] = md
	} else {
		slog.Warn("markdown rendering failed, returning text only", "url", sourceURL, "error", err)
	}
	return payload, nil
}

// extractCSS returns the text and outer HTML of elements matching the
// spec interpreted as a CSS selector.
func extractCSS(doc *goquery.Document, selector string) (map[string]any, error) {
	type match struct {
		Text string `json:"text"`
		HTML string `json:"html"`
	}
	matches := []match{}

	var iterErr error
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(matches) >= maxResults {
			return false
		}
		outer, err := goquery.OuterHtml(s)
		if err != nil {
			iterErr = err
			return false
		}
		matches = append(matches, match{
			Text: strings.TrimSpace(s.Text()),
			HTML: outer,
		})
		return true
	})
	if iterErr != nil {
		return nil, fmt.Errorf("render matched element: %w", iterErr)
	}

	return map[string]any{
		"selector": selector,
		"matches":  matches,
		"count":    len(matches),
	}, nil
}

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

var stopwords = map[string]struct{}{
	"the": {}, "all": {}, "and": {}, "for": {}, "from": {}, "with": {},
	"get": {}, "every": {}, "each": {}, "page": {}, "this": {}, "that": {},
}

// extractGeneric scans every DOM element for text or class-attribute
// matches against the spec's tokens. The last-resort branch: it trades
// precision for never coming back empty-handed on a spec nothing else
// understood.
func extractGeneric(doc *goquery.Document, spec string) (map[string]any, error) {
	tokens := []string{}
	for _, w := range wordPattern.FindAllString(strings.ToLower(spec), -1) {
		if len(w) < 3 {
			continue
		}
		if _, ok := stopwords[w]; ok {
			continue
		}
		tokens = append(tokens, w)
	}

	type match struct {
		Tag  string `json:"tag"`
		Text string `json:"text"`
	}
	matches := []match{}
	seen := make(map[string]struct{})

	if len(tokens) > 0 {
		doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if len(matches) >= maxResults {
				return false
			}
			// Leaf-ish elements only, otherwise every ancestor of a hit
			// matches too.
			if s.Children().Length() > 3 {
				return true
			}
			text := strings.TrimSpace(s.Text())
			class, _ := s.Attr("class")
			haystack := strings.ToLower(text + " " + class)

			hit := false
			for _, tok := range tokens {
				if strings.Contains(haystack, tok) {
					hit = true
					break
				}
			}
			if !hit || text == "" {
				return true
			}
			if _, ok := seen[text]; ok {
				return true
			}
			seen[text] = struct{}{}
			matches = append(matches, match{Tag: goquery.NodeName(s), Text: text})
			return true
		})
	}

	return map[string]any{
		"query":   spec,
		"matches": matches,
		"count":   len(matches),
	}, nil
}
