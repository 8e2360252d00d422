package rewrite

import (
	"context"

	"github.com/user/mediarefinery/internal/domain"
	"github.com/user/mediarefinery/internal/monitoring"
	"github.com/user/mediarefinery/internal/repository"
	"go.uber.org/zap"
)

// DocumentClient is the slice of the CMS client the manager needs: pushing
// updated bodies and resolving featured assets.
type DocumentClient interface {
	UpdateDocumentContent(ctx context.Context, documentID int64, html string) error
	GetAsset(ctx context.Context, id int64) (*domain.Asset, error)
}

// Manager applies and reverts reference rewrites across documents, keeping
// the audit trail that makes rollback possible.
type Manager struct {
	client  DocumentClient
	audit   repository.AuditRepository
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

func NewManager(client DocumentClient, audit repository.AuditRepository, metrics *monitoring.Metrics, logger *zap.Logger) *Manager {
	return &Manager{client: client, audit: audit, metrics: metrics, logger: logger}
}

// DocumentResult is the per-document outcome of an apply or rollback pass.
type DocumentResult struct {
	DocumentID   int64  `json:"document_id"`
	Replacements int    `json:"replacements"`
	Error        string `json:"error,omitempty"`
}

// ApplySummary aggregates one apply or rollback pass.
type ApplySummary struct {
	Documents    int              `json:"documents"`
	Rewritten    int              `json:"rewritten"`
	Replacements int              `json:"replacements"`
	Failed       int              `json:"failed"`
	Results      []DocumentResult `json:"results"`
}

// ApplyRewrites rewrites each document's body against the mapping, pushes
// updated bodies back to the CMS, and records one audit row per substitution.
// Audit rows are written only after the push succeeds, so the trail never
// claims a substitution the CMS did not receive. One document's failure never
// aborts the pass.
func (m *Manager) ApplyRewrites(ctx context.Context, docs []domain.Document, mapping []domain.ReplacementMapping) *ApplySummary {
	summary := &ApplySummary{Documents: len(docs)}

	for _, doc := range docs {
		res := m.applyOne(ctx, doc, mapping)
		summary.Results = append(summary.Results, res)
		if res.Error != "" {
			summary.Failed++
			continue
		}
		if res.Replacements > 0 {
			summary.Rewritten++
			summary.Replacements += res.Replacements
		}
	}

	m.metrics.AddRewrites(summary.Replacements)
	m.logger.Info("rewrite pass finished",
		zap.Int("documents", summary.Documents),
		zap.Int("rewritten", summary.Rewritten),
		zap.Int("replacements", summary.Replacements),
		zap.Int("failed", summary.Failed))
	return summary
}

func (m *Manager) applyOne(ctx context.Context, doc domain.Document, mapping []domain.ReplacementMapping) DocumentResult {
	res := DocumentResult{DocumentID: doc.ID}

	rewritten, applied, err := Rewrite(doc.Content, mapping)
	if err != nil {
		res.Error = "rewrite: " + err.Error()
		m.metrics.IncError("rewrite_failed")
		return res
	}

	featured := m.featuredReplacement(ctx, doc, mapping)

	if len(applied) == 0 && featured == nil {
		return res
	}

	if len(applied) > 0 {
		if err := m.client.UpdateDocumentContent(ctx, doc.ID, rewritten); err != nil {
			res.Error = "push: " + err.Error()
			m.metrics.IncError("document_push_failed")
			m.logger.Warn("failed to push rewritten document",
				zap.Int64("document_id", doc.ID), zap.Error(err))
			return res
		}
	}

	records := applied
	if featured != nil {
		records = append(records, *featured)
	}
	for _, r := range records {
		rec := &domain.RewriteAuditRecord{
			DocumentID:   doc.ID,
			OriginalURL:  r.OriginalURL,
			OptimizedURL: r.OptimizedURL,
			Field:        r.Attr,
		}
		if _, err := m.audit.Insert(ctx, rec); err != nil {
			// The push already happened; an audit write failure must be
			// loud because it weakens rollback for this document.
			m.logger.Error("failed to record rewrite audit row",
				zap.Int64("document_id", doc.ID),
				zap.String("original_url", r.OriginalURL),
				zap.Error(err))
			m.metrics.IncError("audit_insert_failed")
		}
	}

	res.Replacements = len(applied)
	return res
}

// featuredReplacement records the intent to supersede a document's featured
// asset when that asset's URL appears in the mapping. The asset record itself
// is not mutated; the audit row keeps the linkage visible.
func (m *Manager) featuredReplacement(ctx context.Context, doc domain.Document, mapping []domain.ReplacementMapping) *domain.ReplacementMapping {
	if doc.FeaturedAssetID == nil {
		return nil
	}
	asset, err := m.client.GetAsset(ctx, *doc.FeaturedAssetID)
	if err != nil || asset == nil {
		return nil
	}
	for _, r := range mapping {
		if r.OriginalURL == asset.SourceURL {
			return &domain.ReplacementMapping{
				OriginalURL:  r.OriginalURL,
				OptimizedURL: r.OptimizedURL,
				Attr:         "featured_media",
			}
		}
	}
	return nil
}

// Rollback restores each document from its recorded audit rows: the mapping
// is reconstructed from the rows, inverted, and the restored body pushed
// back. Documents with no audit trail are left untouched.
func (m *Manager) Rollback(ctx context.Context, docs []domain.Document) *ApplySummary {
	summary := &ApplySummary{Documents: len(docs)}

	for _, doc := range docs {
		res := DocumentResult{DocumentID: doc.ID}
		n, err := m.rollbackOne(ctx, doc)
		if err != nil {
			res.Error = err.Error()
			summary.Failed++
		} else if n > 0 {
			res.Replacements = n
			summary.Rewritten++
			summary.Replacements += n
		}
		summary.Results = append(summary.Results, res)
	}

	m.logger.Info("rollback pass finished",
		zap.Int("documents", summary.Documents),
		zap.Int("restored", summary.Rewritten),
		zap.Int("replacements", summary.Replacements),
		zap.Int("failed", summary.Failed))
	return summary
}

func (m *Manager) rollbackOne(ctx context.Context, doc domain.Document) (int, error) {
	rows, err := m.audit.ListByDocument(ctx, doc.ID)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	// Distinct URL pairs; a pair substituted in several attribute contexts
	// still restores as one mapping entry.
	seen := make(map[string]bool, len(rows))
	var mapping []domain.ReplacementMapping
	for _, row := range rows {
		key := row.OriginalURL + "\x00" + row.OptimizedURL
		if seen[key] {
			continue
		}
		seen[key] = true
		mapping = append(mapping, domain.ReplacementMapping{
			OriginalURL:  row.OriginalURL,
			OptimizedURL: row.OptimizedURL,
		})
	}

	restored, err := Restore(doc.Content, mapping)
	if err != nil {
		return 0, err
	}
	if err := m.client.UpdateDocumentContent(ctx, doc.ID, restored); err != nil {
		m.metrics.IncError("document_push_failed")
		return 0, err
	}
	return len(mapping), nil
}
