package inventory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/user/mediarefinery/internal/cms"
	"github.com/user/mediarefinery/internal/domain"
	"github.com/user/mediarefinery/internal/encoding"
	"github.com/user/mediarefinery/internal/repository"
	"go.uber.org/zap"
)

// SnapshotKeyDryRun is the snapshot slot holding the latest dry-run summary.
const SnapshotKeyDryRun = "dryrun:latest"

// Source is the slice of the CMS the discoverer needs.
type Source interface {
	Documents(perPage int, filter cms.DocumentFilter) *cms.DocumentPager
	GetAsset(ctx context.Context, id int64) (*domain.Asset, error)
	ProbeSize(ctx context.Context, rawURL string) (int64, error)
	FetchBytes(ctx context.Context, rawURL string) ([]byte, error)
}

// AssetResolver resolves raw URLs to known asset records; nil means
// unresolved.
type AssetResolver interface {
	ResolveMany(ctx context.Context, urls []string, concurrency int) map[string]*domain.Asset
}

// PolicySource yields the encoding policy in force when a pass starts, so
// estimates track operator settings changes the same way conversion does.
type PolicySource interface {
	Policy() encoding.Policy
}

// Options bound one discovery pass.
type Options struct {
	MaxDocuments       int // 0 means unbounded
	PageSize           int
	Author             *int64
	After              *time.Time
	Before             *time.Time
	ComputeSHA         bool
	ResolveConcurrency int
}

// Discoverer walks published documents, builds the deduplicated image
// inventory and estimates post-encoding sizes without encoding anything.
type Discoverer struct {
	source    Source
	resolver  AssetResolver
	inventory repository.InventoryRepository
	snapshots repository.SnapshotRepository
	policies  PolicySource
	logger    *zap.Logger
}

func NewDiscoverer(source Source, resolver AssetResolver, inv repository.InventoryRepository,
	snaps repository.SnapshotRepository, policies PolicySource, logger *zap.Logger) *Discoverer {
	return &Discoverer{
		source:    source,
		resolver:  resolver,
		inventory: inv,
		snapshots: snaps,
		policies:  policies,
		logger:    logger,
	}
}

// Run executes one discovery pass. Each unique URL is processed exactly once
// no matter how many documents reference it, so feeding the same document
// twice yields the same summary as once. The summary is persisted as the
// single latest snapshot.
func (d *Discoverer) Run(ctx context.Context, opts Options) (*domain.DryRunSummary, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.ResolveConcurrency <= 0 {
		opts.ResolveConcurrency = 4
	}

	uniqueURLs, err := d.collectURLs(ctx, opts)
	if err != nil {
		return nil, err
	}
	d.logger.Info("discovery collected image references", zap.Int("unique_urls", len(uniqueURLs)))

	resolved := d.resolver.ResolveMany(ctx, uniqueURLs, opts.ResolveConcurrency)
	policy := d.policies.Policy()

	summary := &domain.DryRunSummary{GeneratedAt: time.Now()}
	for _, u := range uniqueURLs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		asset := resolved[u]
		size, sha := d.measure(ctx, u, asset, opts.ComputeSHA)

		mime, filename := hintsFor(u, asset)
		graphic := encoding.IsLikelyGraphic(mime, filename)
		quality := policy.QualityFor(graphic, nil)
		estimated := encoding.EstimateEncodedSize(size, graphic, quality)

		summary.TotalImages++
		summary.TotalBytes += size
		summary.EstimatedBytes += estimated
		summary.PerImage = append(summary.PerImage, domain.ImageEstimate{
			URL:            u,
			OriginalBytes:  size,
			EstimatedBytes: estimated,
		})

		d.upsertPending(ctx, u, asset, size, sha)
	}
	summary.EstimatedSavings = summary.TotalBytes - summary.EstimatedBytes
	if summary.EstimatedSavings < 0 {
		summary.EstimatedSavings = 0
	}

	if err := d.snapshots.Put(ctx, SnapshotKeyDryRun, summary); err != nil {
		// The inventory rows are already in place; losing the snapshot is
		// not worth failing the whole pass.
		d.logger.Warn("failed to persist dry-run snapshot", zap.Error(err))
	}
	return summary, nil
}

// collectURLs pages through published documents accumulating a global URL
// set. Stops early once MaxDocuments is reached without fetching further
// pages.
func (d *Discoverer) collectURLs(ctx context.Context, opts Options) ([]string, error) {
	filter := cms.DocumentFilter{Author: opts.Author, After: opts.After, Before: opts.Before}
	pager := d.source.Documents(opts.PageSize, filter)

	seen := make(map[string]struct{})
	var urls []string
	add := func(u string) {
		if u == "" {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	processed := 0
	for {
		docs, err := pager.Next(ctx)
		if err != nil {
			return nil, err
		}
		if docs == nil {
			break
		}
		for _, doc := range docs {
			extracted, err := ExtractImageURLs(doc.Content, docBase(doc))
			if err != nil {
				d.logger.Warn("failed to parse document body", zap.Int64("document_id", doc.ID), zap.Error(err))
			} else {
				for _, u := range extracted {
					add(u)
				}
			}
			if doc.FeaturedAssetID != nil {
				if fa, err := d.source.GetAsset(ctx, *doc.FeaturedAssetID); err != nil {
					d.logger.Warn("failed to fetch featured asset",
						zap.Int64("document_id", doc.ID), zap.Int64("asset_id", *doc.FeaturedAssetID), zap.Error(err))
				} else if fa != nil {
					add(fa.SourceURL)
				}
			}
			processed++
			if opts.MaxDocuments > 0 && processed >= opts.MaxDocuments {
				return urls, nil
			}
		}
	}
	return urls, nil
}

// measure determines an asset's byte size: resolved metadata first, then a
// header-only probe, then a full fetch as the last resort. A full fetch also
// yields the content hash when requested.
func (d *Discoverer) measure(ctx context.Context, u string, asset *domain.Asset, computeSHA bool) (int64, *string) {
	if asset != nil && asset.FileSize != nil && *asset.FileSize > 0 {
		return *asset.FileSize, nil
	}

	if size, err := d.source.ProbeSize(ctx, u); err == nil && size > 0 {
		return size, nil
	}

	data, err := d.source.FetchBytes(ctx, u)
	if err != nil {
		d.logger.Warn("could not determine asset size", zap.String("url", u), zap.Error(err))
		return 0, nil
	}
	var sha *string
	if computeSHA {
		sum := sha256.Sum256(data)
		h := hex.EncodeToString(sum[:])
		sha = &h
	}
	return int64(len(data)), sha
}

func (d *Discoverer) upsertPending(ctx context.Context, u string, asset *domain.Asset, size int64, sha *string) {
	item := &domain.InventoryItem{
		SourceURL: u,
		Status:    domain.StatusPending,
		SHA256:    sha,
	}
	if size > 0 {
		item.FileSize = &size
	}
	if asset != nil {
		item.AssetID = &asset.ID
		item.MimeType = asset.MimeType
		if name := basename(asset.SourceURL); name != "" {
			item.Filename = &name
		}
		item.Metadata = asset.MediaDetails
	}
	if _, err := d.inventory.Upsert(ctx, item); err != nil {
		d.logger.Error("failed to upsert inventory item", zap.String("url", u), zap.Error(err))
	}
}

// docBase derives the base URL for resolving relative image references from
// the document's public link.
func docBase(doc domain.Document) *url.URL {
	if doc.Link == nil {
		return nil
	}
	u, err := url.Parse(*doc.Link)
	if err != nil || u.Host == "" {
		return nil
	}
	return u
}

func hintsFor(u string, asset *domain.Asset) (mime, filename string) {
	filename = basename(u)
	if asset != nil {
		if asset.MimeType != nil {
			mime = *asset.MimeType
		}
		if name := basename(asset.SourceURL); name != "" {
			filename = name
		}
	}
	return mime, filename
}

func basename(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}
	parts := strings.Split(strings.TrimRight(path, "/"), "/")
	return parts[len(parts)-1]
}
