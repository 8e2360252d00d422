package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/mediarefinery/internal/domain"
	"github.com/user/mediarefinery/internal/repository"
)

// inventoryStore implements repository.InventoryRepository on PostgreSQL.
type inventoryStore struct {
	db *pgxpool.Pool
}

const selectInventory = `SELECT id, source_url, asset_id, filename, mime_type, file_size_bytes, sha256, status, last_error, discovered_at FROM media_inventory`

// Upsert inserts or updates an item keyed by its source URL. The status of an
// existing row is left alone so re-discovery never regresses the lifecycle.
func (s *inventoryStore) Upsert(ctx context.Context, item *domain.InventoryItem) (*domain.InventoryItem, error) {
	metaJSON, err := json.Marshal(item.Metadata)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRow(ctx,
		`INSERT INTO media_inventory
		   (source_url, asset_id, filename, mime_type, file_size_bytes, sha256, status, last_error, discovered_at, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), $9)
		 ON CONFLICT (source_url) DO UPDATE SET
		   asset_id = EXCLUDED.asset_id,
		   filename = EXCLUDED.filename,
		   mime_type = EXCLUDED.mime_type,
		   file_size_bytes = EXCLUDED.file_size_bytes,
		   sha256 = COALESCE(EXCLUDED.sha256, media_inventory.sha256),
		   metadata = EXCLUDED.metadata
		 RETURNING id, source_url, asset_id, filename, mime_type, file_size_bytes, sha256, status, last_error, discovered_at`,
		item.SourceURL, item.AssetID, item.Filename, item.MimeType, item.FileSize, item.SHA256,
		item.Status, item.LastError, metaJSON,
	)
	return scanInventory(row)
}

func (s *inventoryStore) GetByID(ctx context.Context, id int64) (*domain.InventoryItem, error) {
	return scanInventory(s.db.QueryRow(ctx, selectInventory+` WHERE id = $1`, id))
}

func (s *inventoryStore) GetByURL(ctx context.Context, url string) (*domain.InventoryItem, error) {
	return scanInventory(s.db.QueryRow(ctx, selectInventory+` WHERE source_url = $1`, url))
}

func (s *inventoryStore) List(ctx context.Context, f repository.InventoryFilter) ([]domain.InventoryItem, error) {
	query := selectInventory + ` WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		query += fmt.Sprintf(" AND source_url ILIKE $%d", len(args))
	}
	query += " ORDER BY discovered_at DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInventory(rows)
}

func (s *inventoryStore) ListPending(ctx context.Context, limit int) ([]domain.InventoryItem, error) {
	rows, err := s.db.Query(ctx,
		selectInventory+` WHERE status = $1 ORDER BY discovered_at ASC, id ASC LIMIT $2`,
		domain.StatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInventory(rows)
}

func (s *inventoryStore) UpdateStatus(ctx context.Context, id int64, status string, lastError *string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE media_inventory SET status = $2, last_error = $3 WHERE id = $1`,
		id, status, lastError)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanInventory(row rowScanner) (*domain.InventoryItem, error) {
	var it domain.InventoryItem
	err := row.Scan(&it.ID, &it.SourceURL, &it.AssetID, &it.Filename, &it.MimeType,
		&it.FileSize, &it.SHA256, &it.Status, &it.LastError, &it.DiscoveredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}
