package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/mediarefinery/internal/domain"
)

// auditStore implements repository.AuditRepository on PostgreSQL.
type auditStore struct {
	db *pgxpool.Pool
}

const selectAudit = `SELECT id, document_id, original_url, optimized_url, field, created_at FROM rewrite_audit`

func (s *auditStore) Insert(ctx context.Context, rec *domain.RewriteAuditRecord) (*domain.RewriteAuditRecord, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO rewrite_audit (document_id, original_url, optimized_url, field, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 RETURNING id, created_at`,
		rec.DocumentID, rec.OriginalURL, rec.OptimizedURL, rec.Field)
	out := *rec
	if err := row.Scan(&out.ID, &out.CreatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *auditStore) ListByDocument(ctx context.Context, documentID int64) ([]domain.RewriteAuditRecord, error) {
	rows, err := s.db.Query(ctx,
		selectAudit+` WHERE document_id = $1 ORDER BY created_at ASC, id ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAudit(rows)
}

func (s *auditStore) List(ctx context.Context, limit, offset int) ([]domain.RewriteAuditRecord, error) {
	rows, err := s.db.Query(ctx,
		selectAudit+` ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAudit(rows)
}

func collectAudit(rows pgx.Rows) ([]domain.RewriteAuditRecord, error) {
	var out []domain.RewriteAuditRecord
	for rows.Next() {
		var r domain.RewriteAuditRecord
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.OriginalURL, &r.OptimizedURL, &r.Field, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
