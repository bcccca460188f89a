package extract

import (
	"strings"

	"github.com/andybalholm/cascadia"
)

// Kind identifies which extraction routine handles a specification.
type Kind string

const (
	KindProducts Kind = "products"
	KindImages   Kind = "images"
	KindLinks    Kind = "links"
	KindHeadings Kind = "headings"
	KindText     Kind = "text"
	KindCSS      Kind = "css-selector"
	KindGeneric  Kind = "generic"
)

// keywordSets are tested in this fixed priority order; the first set with
// a hit wins. "price" lands in products so pricing specs never fall
// through to the generic scan.
var keywordSets = []struct {
	kind  Kind
	words []string
}{
	{KindProducts, []string{"product", "price", "pricing", "cost", "item", "listing", "sku", "sale", "deal"}},
	{KindImages, []string{"image", "photo", "picture", "img", "thumbnail", "logo"}},
	{KindLinks, []string{"link", "url", "href", "anchor", "navigation"}},
	{KindHeadings, []string{"heading", "headline", "title", "header", "h1", "h2", "h3"}},
	{KindText, []string{"text", "content", "article", "paragraph", "body", "story", "description"}},
}

// Classify maps a free-text specification to an extraction kind. The
// mapping is pure: keyword sets in priority order, then CSS-selector
// detection, then the generic fallback.
func Classify(spec string) Kind {
	lowered := strings.ToLower(spec)
	for _, set := range keywordSets {
		for _, w := range set.words {
			if strings.Contains(lowered, w) {
				return set.kind
			}
		}
	}
	if looksLikeSelector(spec) {
		return KindCSS
	}
	return KindGeneric
}

// looksLikeSelector reports whether the spec is plausibly a CSS selector
// rather than prose. Cascadia accepts almost any word sequence (spaces
// are descendant combinators), so we require selector punctuation and
// reject sentence-shaped input before asking it to parse.
func looksLikeSelector(spec string) bool {
	s := strings.TrimSpace(spec)
	if s == "" || strings.ContainsAny(s, "\n\t") {
		return false
	}
	if !strings.ContainsAny(s, ".#[>:") {
		return false
	}
	if strings.Count(s, " ") > 2 {
		return false
	}
	_, err := cascadia.Parse(s)
	return err == nil
}
