package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/mediarefinery/internal/repository"
)

// snapshotStore implements repository.SnapshotRepository on PostgreSQL.
// One row per key; writes overwrite.
type snapshotStore struct {
	db *pgxpool.Pool
}

func (s *snapshotStore) Put(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO config_snapshot (key, value, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, payload)
	return err
}

func (s *snapshotStore) Get(ctx context.Context, key string, out any) error {
	var payload []byte
	err := s.db.QueryRow(ctx, `SELECT value FROM config_snapshot WHERE key = $1`, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, out)
}
