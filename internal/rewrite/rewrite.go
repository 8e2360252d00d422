package rewrite

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/user/mediarefinery/internal/domain"
)

// Attribute contexts recorded on applied replacements.
const (
	AttrSrc    = "src"
	AttrSrcset = "srcset"
)

// Rewrite performs a DOM-safe substitution of image URLs in a document body.
// The primary source attribute is replaced when its value exactly equals a
// mapping's original URL; each srcset candidate is rewritten independently,
// its descriptor token untouched. Returns the rewritten body and one applied
// replacement per substitution, tagged with its attribute context.
func Rewrite(html string, mapping []domain.ReplacementMapping) (string, []domain.ReplacementMapping, error) {
	byOriginal := make(map[string]domain.ReplacementMapping, len(mapping))
	for _, m := range mapping {
		byOriginal[m.OriginalURL] = m
	}

	var applied []domain.ReplacementMapping
	out, err := transform(html, func(url string, attr string) (string, bool) {
		m, ok := byOriginal[url]
		if !ok {
			return "", false
		}
		applied = append(applied, domain.ReplacementMapping{
			OriginalURL:  m.OriginalURL,
			OptimizedURL: m.OptimizedURL,
			Attr:         attr,
		})
		return m.OptimizedURL, true
	})
	if err != nil {
		return "", nil, err
	}
	return out, applied, nil
}

// Restore performs the exact inverse substitution (optimized back to
// original) using the same attribute-matching rule, so a document can be
// rolled back from its rewritten text plus the recorded mapping alone.
func Restore(html string, mapping []domain.ReplacementMapping) (string, error) {
	byOptimized := make(map[string]domain.ReplacementMapping, len(mapping))
	for _, m := range mapping {
		byOptimized[m.OptimizedURL] = m
	}

	out, err := transform(html, func(url string, _ string) (string, bool) {
		m, ok := byOptimized[url]
		if !ok {
			return "", false
		}
		return m.OriginalURL, true
	})
	return out, err
}

// transform walks every image element applying replace to the src value and
// to each srcset candidate URL.
func transform(html string, replace func(url, attr string) (string, bool)) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			if next, ok := replace(src, AttrSrc); ok {
				s.SetAttr("src", next)
			}
		}

		srcset, ok := s.Attr("srcset")
		if !ok || strings.TrimSpace(srcset) == "" {
			return
		}
		parts := strings.Split(srcset, ",")
		candidates := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			fields := strings.Fields(part)
			if next, ok := replace(fields[0], AttrSrcset); ok {
				fields[0] = next
			}
			candidates = append(candidates, strings.Join(fields, " "))
		}
		s.SetAttr("srcset", strings.Join(candidates, ", "))
	})

	// Bodies are fragments; serialize the parsed body's inner HTML rather
	// than the wrapping document the parser synthesized.
	return doc.Find("body").Html()
}

// PreviewEntry pairs a document with its would-be rewrite.
type PreviewEntry struct {
	DocumentID    int64                       `json:"document_id"`
	OriginalHTML  string                      `json:"original_html"`
	RewrittenHTML string                      `json:"rewritten_html"`
	Replacements  []domain.ReplacementMapping `json:"replacements"`
}

// Preview computes rewrites for a set of documents without persisting
// anything, for operator review.
func Preview(docs []domain.Document, mapping []domain.ReplacementMapping) ([]PreviewEntry, error) {
	entries := make([]PreviewEntry, 0, len(docs))
	for _, d := range docs {
		rewritten, applied, err := Rewrite(d.Content, mapping)
		if err != nil {
			return nil, err
		}
		entries = append(entries, PreviewEntry{
			DocumentID:    d.ID,
			OriginalHTML:  d.Content,
			RewrittenHTML: rewritten,
			Replacements:  applied,
		})
	}
	return entries, nil
}
