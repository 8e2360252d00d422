package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/mediarefinery/internal/domain"
	"github.com/user/mediarefinery/internal/repository"
)

// PostgresStore owns the connection pool shared by the per-table
// repositories.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// InitSchema creates the tables if they do not exist yet. Idempotent; meant
// to run once at startup.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS media_inventory (
			id BIGSERIAL PRIMARY KEY,
			source_url TEXT NOT NULL UNIQUE,
			asset_id BIGINT,
			filename TEXT,
			mime_type TEXT,
			file_size_bytes BIGINT,
			sha256 TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			last_error TEXT,
			discovered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			metadata JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_media_inventory_status ON media_inventory (status);

		CREATE TABLE IF NOT EXISTS media_variant (
			id BIGSERIAL PRIMARY KEY,
			inventory_id BIGINT NOT NULL REFERENCES media_inventory (id),
			optimized_url TEXT NOT NULL,
			filename TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			format TEXT NOT NULL,
			file_size_bytes BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_media_variant_inventory ON media_variant (inventory_id);

		CREATE TABLE IF NOT EXISTS rewrite_audit (
			id BIGSERIAL PRIMARY KEY,
			document_id BIGINT NOT NULL,
			original_url TEXT NOT NULL,
			optimized_url TEXT NOT NULL,
			field TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_rewrite_audit_document ON rewrite_audit (document_id);

		CREATE TABLE IF NOT EXISTS config_snapshot (
			key TEXT PRIMARY KEY,
			value JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

func (s *PostgresStore) Inventory() repository.InventoryRepository {
	return &inventoryStore{db: s.db}
}

func (s *PostgresStore) Variants() repository.VariantRepository {
	return &variantStore{db: s.db}
}

func (s *PostgresStore) Audit() repository.AuditRepository {
	return &auditStore{db: s.db}
}

func (s *PostgresStore) Snapshots() repository.SnapshotRepository {
	return &snapshotStore{db: s.db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func collectInventory(rows pgx.Rows) ([]domain.InventoryItem, error) {
	var items []domain.InventoryItem
	for rows.Next() {
		it, err := scanInventory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}
