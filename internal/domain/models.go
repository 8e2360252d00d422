package domain

import "time"

// Item lifecycle statuses. Transitions are monotonic forward; rollback never
// rewrites an item, it supersedes it via a replacement mapping.
const (
	StatusPending   = "pending"
	StatusOptimized = "optimized"
	StatusSkipped   = "skipped"
	StatusError     = "error"
)

// InventoryItem is one discovered source asset, unique per SourceURL within an
// inventory. Optional fields are pointers because CMS records carry no
// guarantees about which fields exist.
type InventoryItem struct {
	ID           int64          `json:"id"`
	SourceURL    string         `json:"source_url"`
	AssetID      *int64         `json:"asset_id,omitempty"`
	Filename     *string        `json:"filename,omitempty"`
	MimeType     *string        `json:"mime_type,omitempty"`
	FileSize     *int64         `json:"file_size_bytes,omitempty"`
	SHA256       *string        `json:"sha256,omitempty"`
	Status       string         `json:"status"`
	LastError    *string        `json:"last_error,omitempty"`
	DiscoveredAt time.Time      `json:"discovered_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// OptimizationVariant is one encoded output owned by exactly one inventory
// item. Rows are append-only: re-running conversion adds rows, it never
// mutates prior ones.
type OptimizationVariant struct {
	ID           int64     `json:"id"`
	InventoryID  int64     `json:"inventory_id"`
	OptimizedURL string    `json:"optimized_url"`
	Filename     string    `json:"filename"`
	MimeType     string    `json:"mime_type"`
	Format       string    `json:"format"`
	FileSize     int64     `json:"file_size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
}

// ReplacementMapping pairs an original URL with its optimized URL and records
// which attribute context a substitution was found in ("src" or "srcset").
type ReplacementMapping struct {
	OriginalURL  string `json:"original_url"`
	OptimizedURL string `json:"optimized_url"`
	Attr         string `json:"attr,omitempty"`
}

// RewriteAuditRecord is one row per reference actually substituted in one
// document. Append-only; a document's rollback mapping is reconstructed from
// these rows.
type RewriteAuditRecord struct {
	ID           int64     `json:"id"`
	DocumentID   int64     `json:"document_id"`
	OriginalURL  string    `json:"original_url"`
	OptimizedURL string    `json:"optimized_url"`
	Field        string    `json:"field"`
	CreatedAt    time.Time `json:"created_at"`
}

// ImageEstimate is one per-image entry in a dry-run summary.
type ImageEstimate struct {
	URL            string `json:"url"`
	OriginalBytes  int64  `json:"original"`
	EstimatedBytes int64  `json:"estimated"`
}

// DryRunSummary aggregates one discovery pass. Only the latest snapshot is
// persisted; each run overwrites the previous one.
type DryRunSummary struct {
	TotalImages      int             `json:"total_images"`
	TotalBytes       int64           `json:"total_bytes"`
	EstimatedBytes   int64           `json:"estimated_bytes"`
	EstimatedSavings int64           `json:"estimated_savings"`
	PerImage         []ImageEstimate `json:"per_image"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

// Document is a published CMS document with its rendered body.
type Document struct {
	ID              int64      `json:"id"`
	Content         string     `json:"content"`
	FeaturedAssetID *int64     `json:"featured_asset_id,omitempty"`
	Author          *int64     `json:"author,omitempty"`
	Date            *time.Time `json:"date,omitempty"`
	Link            *string    `json:"link,omitempty"`
}

// Asset is a CMS media record as returned by the asset index.
type Asset struct {
	ID           int64          `json:"id"`
	SourceURL    string         `json:"source_url"`
	MimeType     *string        `json:"mime_type,omitempty"`
	FileSize     *int64         `json:"file_size_bytes,omitempty"`
	MediaDetails map[string]any `json:"media_details,omitempty"`
}

// Job is one queued pipeline operation submitted by an operator.
type Job struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Job types accepted by the pipeline runner.
const (
	JobDiscover = "discover"
	JobConvert  = "convert"
	JobRollback = "rollback"
)
