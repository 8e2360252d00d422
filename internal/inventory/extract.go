package inventory

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractImageURLs parses a document body and returns every image reference:
// each img src plus every URL half of each srcset candidate. Relative
// references are resolved against base when one is given. The result is
// deduplicated preserving first-seen order.
func ExtractImageURLs(html string, base *url.URL) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var urls []string
	add := func(u string) {
		if u == "" {
			return
		}
		u = absoluteURL(base, u)
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			add(strings.TrimSpace(src))
		}
		if srcset, ok := s.Attr("srcset"); ok {
			for _, part := range strings.Split(srcset, ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				fields := strings.Fields(part)
				add(fields[0])
			}
		}
	})

	return urls, nil
}

// absoluteURL resolves a possibly-relative reference against the document's
// base. References that fail to parse are kept as-is; the resolver downstream
// treats them as unresolvable.
func absoluteURL(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(refURL).String()
}
