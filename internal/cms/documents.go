package cms

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/user/mediarefinery/internal/domain"
)

// rendered mirrors the CMS shape {"rendered": "..."} used for title and body
// fields.
type rendered struct {
	Rendered string `json:"rendered"`
}

type documentWire struct {
	ID            int64    `json:"id"`
	Date          *string  `json:"date"`
	Content       rendered `json:"content"`
	FeaturedMedia *int64   `json:"featured_media"`
	Author        *int64   `json:"author"`
	Link          *string  `json:"link"`
}

func (w documentWire) toDomain() domain.Document {
	d := domain.Document{
		ID:      w.ID,
		Content: w.Content.Rendered,
		Author:  w.Author,
		Link:    w.Link,
	}
	if w.FeaturedMedia != nil && *w.FeaturedMedia != 0 {
		d.FeaturedAssetID = w.FeaturedMedia
	}
	if w.Date != nil {
		if t, err := time.Parse("2006-01-02T15:04:05", *w.Date); err == nil {
			d.Date = &t
		}
	}
	return d
}

// DocumentFilter narrows the published-document listing.
type DocumentFilter struct {
	Author *int64
	After  *time.Time
	Before *time.Time
}

// DocumentPager walks the published-document listing one page at a time.
// Callers stop early simply by not calling Next again; no page beyond the
// last requested one is fetched.
type DocumentPager struct {
	client  *Client
	perPage int
	filter  DocumentFilter
	page    int
	done    bool
}

func (c *Client) Documents(perPage int, filter DocumentFilter) *DocumentPager {
	if perPage <= 0 {
		perPage = 100
	}
	return &DocumentPager{client: c, perPage: perPage, filter: filter, page: 1}
}

// Next returns the next page of published documents, or nil when the listing
// is exhausted.
func (p *DocumentPager) Next(ctx context.Context) ([]domain.Document, error) {
	if p.done {
		return nil, nil
	}

	params := url.Values{}
	params.Set("status", "publish")
	params.Set("per_page", strconv.Itoa(p.perPage))
	params.Set("page", strconv.Itoa(p.page))
	if p.filter.Author != nil {
		params.Set("author", strconv.FormatInt(*p.filter.Author, 10))
	}
	if p.filter.After != nil {
		params.Set("after", p.filter.After.Format(time.RFC3339))
	}
	if p.filter.Before != nil {
		params.Set("before", p.filter.Before.Format(time.RFC3339))
	}

	var wires []documentWire
	status, err := p.client.getJSON(ctx, "/wp/v2/posts", params, &wires)
	if status == http.StatusNotFound {
		// Paging past the end responds 404.
		p.done = true
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(wires) == 0 {
		p.done = true
		return nil, nil
	}

	docs := make([]domain.Document, 0, len(wires))
	for _, w := range wires {
		docs = append(docs, w.toDomain())
	}
	if len(wires) < p.perPage {
		p.done = true
	}
	p.page++
	return docs, nil
}

// UpdateDocumentContent replaces a document's body text.
func (c *Client) UpdateDocumentContent(ctx context.Context, documentID int64, html string) error {
	payload := map[string]any{"content": html}
	_, err := c.postJSON(ctx, "/wp/v2/posts/"+strconv.FormatInt(documentID, 10), payload, nil)
	return err
}
