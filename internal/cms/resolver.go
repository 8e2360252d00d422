package cms

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/user/mediarefinery/internal/domain"
	"go.uber.org/zap"
)

// Resolver maps raw asset URLs to known CMS asset records. It is a pure
// lookup/cache layer: a URL that cannot be matched resolves to nil, which
// callers must treat as "unresolved", never as an error.
type Resolver struct {
	client   *Client
	logger   *zap.Logger
	perPage  int
	maxPages int

	mu    sync.Mutex
	cache map[string]*domain.Asset
}

func NewResolver(client *Client, logger *zap.Logger, perPage, maxPages int) *Resolver {
	if perPage <= 0 {
		perPage = 50
	}
	if maxPages <= 0 {
		maxPages = 5
	}
	return &Resolver{
		client:   client,
		logger:   logger,
		perPage:  perPage,
		maxPages: maxPages,
		cache:    make(map[string]*domain.Asset),
	}
}

// Resolve finds the asset record for a URL. It searches the asset index by
// basename preferring an exact URL match and falling back to a suffix match,
// which tolerates CDN rewrites of the host or path prefix. If search finds
// nothing it pages through the index up to the configured page bound.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) *domain.Asset {
	r.mu.Lock()
	if cached, ok := r.cache[rawURL]; ok {
		r.mu.Unlock()
		return cached
	}
	r.mu.Unlock()

	found := r.lookup(ctx, rawURL)

	r.mu.Lock()
	r.cache[rawURL] = found
	r.mu.Unlock()
	return found
}

func (r *Resolver) lookup(ctx context.Context, rawURL string) *domain.Asset {
	name := basenameFromURL(rawURL)

	results, err := r.client.SearchAssets(ctx, name, r.perPage)
	if err != nil {
		r.logger.Warn("asset search failed, falling back to index scan",
			zap.String("url", rawURL), zap.Error(err))
	}
	if m := matchAsset(results, rawURL, name); m != nil {
		return m
	}

	for page := 1; page <= r.maxPages; page++ {
		assets, err := r.client.ListAssetsPage(ctx, page, r.perPage)
		if err != nil {
			r.logger.Warn("asset index page scan failed",
				zap.Int("page", page), zap.Error(err))
			return nil
		}
		if len(assets) == 0 {
			return nil
		}
		if m := matchAsset(assets, rawURL, name); m != nil {
			return m
		}
		if len(assets) < r.perPage {
			return nil
		}
	}
	return nil
}

// matchAsset prefers an exact source URL match, then a basename suffix match.
func matchAsset(assets []domain.Asset, rawURL, name string) *domain.Asset {
	for i := range assets {
		if assets[i].SourceURL == rawURL {
			return &assets[i]
		}
	}
	if name == "" {
		return nil
	}
	for i := range assets {
		if strings.HasSuffix(assets[i].SourceURL, name) {
			return &assets[i]
		}
	}
	return nil
}

// ResolveMany resolves a batch of URLs with a bounded worker pool pulling
// from a shared cursor. A failed lookup is recorded as nil and never aborts
// the batch.
func (r *Resolver) ResolveMany(ctx context.Context, urls []string, concurrency int) map[string]*domain.Asset {
	out := make(map[string]*domain.Asset, len(urls))
	if len(urls) == 0 {
		return out
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > len(urls) {
		concurrency = len(urls)
	}

	var mu sync.Mutex
	var cursor atomic.Int64
	var wg sync.WaitGroup

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				idx := int(cursor.Add(1)) - 1
				if idx >= len(urls) || ctx.Err() != nil {
					return
				}
				u := urls[idx]
				found := r.Resolve(ctx, u)
				mu.Lock()
				out[u] = found
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return out
}

func basenameFromURL(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
		if len(parts) > 0 {
			return parts[len(parts)-1]
		}
		return ""
	}
	parts := strings.FieldsFunc(rawURL, func(r rune) bool { return r == '/' })
	if len(parts) > 0 {
		return parts[len(parts)-1]
	}
	return rawURL
}
