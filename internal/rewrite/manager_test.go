package rewrite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/mediarefinery/internal/domain"
	"github.com/user/mediarefinery/internal/monitoring"
	"go.uber.org/zap"
)

var testMetrics = monitoring.NewMetrics()

type fakeDocClient struct {
	updates  map[int64]string
	failPush map[int64]bool
	assets   map[int64]*domain.Asset
}

func newFakeDocClient() *fakeDocClient {
	return &fakeDocClient{
		updates:  make(map[int64]string),
		failPush: make(map[int64]bool),
		assets:   make(map[int64]*domain.Asset),
	}
}

func (f *fakeDocClient) UpdateDocumentContent(_ context.Context, documentID int64, html string) error {
	if f.failPush[documentID] {
		return errors.New("cms rejected update")
	}
	f.updates[documentID] = html
	return nil
}

func (f *fakeDocClient) GetAsset(_ context.Context, id int64) (*domain.Asset, error) {
	return f.assets[id], nil
}

type fakeAudit struct {
	rows []domain.RewriteAuditRecord
}

func (f *fakeAudit) Insert(_ context.Context, rec *domain.RewriteAuditRecord) (*domain.RewriteAuditRecord, error) {
	rec.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, *rec)
	return rec, nil
}

func (f *fakeAudit) ListByDocument(_ context.Context, documentID int64) ([]domain.RewriteAuditRecord, error) {
	var out []domain.RewriteAuditRecord
	for _, r := range f.rows {
		if r.DocumentID == documentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeAudit) List(_ context.Context, limit, offset int) ([]domain.RewriteAuditRecord, error) {
	return f.rows, nil
}

func newTestManager() (*Manager, *fakeDocClient, *fakeAudit) {
	client := newFakeDocClient()
	audit := &fakeAudit{}
	return NewManager(client, audit, testMetrics, zap.NewNop()), client, audit
}

func TestApplyRewritesPersistsAuditTrail(t *testing.T) {
	m, client, audit := newTestManager()

	docs := []domain.Document{
		{ID: 1, Content: testBody},
		{ID: 2, Content: `<p>no images</p>`},
	}
	summary := m.ApplyRewrites(context.Background(), docs, testMapping)

	assert.Equal(t, 2, summary.Documents)
	assert.Equal(t, 1, summary.Rewritten)
	assert.Equal(t, 3, summary.Replacements)
	assert.Equal(t, 0, summary.Failed)

	// Only the touched document was pushed.
	assert.Contains(t, client.updates[1], "a__opt.jpg")
	_, pushed := client.updates[2]
	assert.False(t, pushed)

	// One audit row per substitution, all for document 1.
	require.Len(t, audit.rows, 3)
	for _, row := range audit.rows {
		assert.Equal(t, int64(1), row.DocumentID)
	}
}

func TestApplyRewritesIsolatesPushFailures(t *testing.T) {
	m, client, audit := newTestManager()
	client.failPush[1] = true

	docs := []domain.Document{
		{ID: 1, Content: testBody},
		{ID: 3, Content: testBody},
	}
	summary := m.ApplyRewrites(context.Background(), docs, testMapping)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Rewritten)

	// No audit rows for the document whose push was rejected.
	for _, row := range audit.rows {
		assert.Equal(t, int64(3), row.DocumentID)
	}
	require.Len(t, audit.rows, 3)
}

func TestApplyRewritesRecordsFeaturedAssetIntent(t *testing.T) {
	m, client, audit := newTestManager()
	featuredID := int64(42)
	client.assets[featuredID] = &domain.Asset{
		ID:        featuredID,
		SourceURL: "https://site.example.com/u/a.jpg",
	}

	docs := []domain.Document{
		{ID: 5, Content: `<p>body without inline images</p>`, FeaturedAssetID: &featuredID},
	}
	m.ApplyRewrites(context.Background(), docs, testMapping)

	require.Len(t, audit.rows, 1)
	assert.Equal(t, "featured_media", audit.rows[0].Field)
	assert.Equal(t, "https://site.example.com/u/a.jpg", audit.rows[0].OriginalURL)

	// No inline substitutions, so the body was not pushed.
	_, pushed := client.updates[5]
	assert.False(t, pushed)
}

func TestRollbackRestoresFromAuditTrail(t *testing.T) {
	m, client, _ := newTestManager()

	norm := normalize(t, testBody)
	docs := []domain.Document{{ID: 9, Content: norm}}
	apply := m.ApplyRewrites(context.Background(), docs, testMapping)
	require.Equal(t, 1, apply.Rewritten)
	rewritten := client.updates[9]

	// Roll the pushed content back using only the audit trail.
	rb := m.Rollback(context.Background(), []domain.Document{{ID: 9, Content: rewritten}})
	assert.Equal(t, 1, rb.Rewritten)
	assert.Equal(t, 0, rb.Failed)
	assert.Equal(t, norm, client.updates[9])
}

func TestRollbackSkipsDocumentsWithoutTrail(t *testing.T) {
	m, client, _ := newTestManager()

	rb := m.Rollback(context.Background(), []domain.Document{{ID: 11, Content: `<p>untouched</p>`}})
	assert.Equal(t, 0, rb.Rewritten)
	assert.Equal(t, 0, rb.Failed)
	_, pushed := client.updates[11]
	assert.False(t, pushed)
}
