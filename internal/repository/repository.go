package repository

import (
	"context"
	"errors"

	"github.com/user/mediarefinery/internal/domain"
)

// ErrNotFound is returned by Get-style lookups when no row matches.
var ErrNotFound = errors.New("not found")

// ErrQueueEmpty is returned by JobQueue.Pop when no job is waiting.
var ErrQueueEmpty = errors.New("queue empty")

// InventoryFilter narrows inventory listings. Zero values mean "no filter".
type InventoryFilter struct {
	Status string // equality on status
	Search string // substring on source URL
	Limit  int
	Offset int
}

// InventoryRepository stores discovered assets keyed by source URL.
type InventoryRepository interface {
	// Upsert inserts or updates the item by its source URL (the natural
	// dedup key) and returns the stored row.
	Upsert(ctx context.Context, item *domain.InventoryItem) (*domain.InventoryItem, error)
	GetByID(ctx context.Context, id int64) (*domain.InventoryItem, error)
	GetByURL(ctx context.Context, url string) (*domain.InventoryItem, error)
	List(ctx context.Context, f InventoryFilter) ([]domain.InventoryItem, error)
	ListPending(ctx context.Context, limit int) ([]domain.InventoryItem, error)
	// UpdateStatus moves an item forward in its lifecycle. A nil lastError
	// clears any previous error message.
	UpdateStatus(ctx context.Context, id int64, status string, lastError *string) error
}

// VariantRepository stores encoded outputs. Append-only.
type VariantRepository interface {
	Insert(ctx context.Context, v *domain.OptimizationVariant) (*domain.OptimizationVariant, error)
	ListByInventoryID(ctx context.Context, inventoryID int64) ([]domain.OptimizationVariant, error)
}

// AuditRepository stores one record per substitution applied to a document.
// Append-only; rollback mappings are reconstructed from these rows.
type AuditRepository interface {
	Insert(ctx context.Context, rec *domain.RewriteAuditRecord) (*domain.RewriteAuditRecord, error)
	ListByDocument(ctx context.Context, documentID int64) ([]domain.RewriteAuditRecord, error)
	List(ctx context.Context, limit, offset int) ([]domain.RewriteAuditRecord, error)
}

// SnapshotRepository stores single-row keyed snapshots (latest dry-run
// summary, policy settings). Overwrite semantics, not an append log.
type SnapshotRepository interface {
	Put(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string, out any) error
}

// JobQueue is the pipeline's work intake. It replaces the global in-memory
// job list of earlier revisions; implementations must be safe for one
// producer (the API) and one consumer (the runner).
type JobQueue interface {
	Push(ctx context.Context, job *domain.Job) error
	Pop(ctx context.Context) (*domain.Job, error)
	Size(ctx context.Context) (int64, error)
}
