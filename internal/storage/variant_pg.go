package storage

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/mediarefinery/internal/domain"
)

// variantStore implements repository.VariantRepository on PostgreSQL.
// Variant rows are append-only.
type variantStore struct {
	db *pgxpool.Pool
}

func (s *variantStore) Insert(ctx context.Context, v *domain.OptimizationVariant) (*domain.OptimizationVariant, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO media_variant (inventory_id, optimized_url, filename, mime_type, format, file_size_bytes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING id, created_at`,
		v.InventoryID, v.OptimizedURL, v.Filename, v.MimeType, v.Format, v.FileSize)
	out := *v
	if err := row.Scan(&out.ID, &out.CreatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *variantStore) ListByInventoryID(ctx context.Context, inventoryID int64) ([]domain.OptimizationVariant, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, inventory_id, optimized_url, filename, mime_type, format, file_size_bytes, created_at
		 FROM media_variant WHERE inventory_id = $1 ORDER BY created_at ASC, id ASC`, inventoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OptimizationVariant
	for rows.Next() {
		var v domain.OptimizationVariant
		if err := rows.Scan(&v.ID, &v.InventoryID, &v.OptimizedURL, &v.Filename, &v.MimeType,
			&v.Format, &v.FileSize, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
