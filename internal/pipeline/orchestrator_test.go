package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/mediarefinery/internal/domain"
	"github.com/user/mediarefinery/internal/encoding"
	"github.com/user/mediarefinery/internal/monitoring"
	"github.com/user/mediarefinery/internal/repository"
	"go.uber.org/zap"
)

// One registry-backed metrics instance per test process.
var testMetrics = monitoring.NewMetrics()

type fakeInventory struct {
	mu       sync.Mutex
	pending  []domain.InventoryItem
	statuses map[int64]string
	errors   map[int64]string
}

func newFakeInventory(items ...domain.InventoryItem) *fakeInventory {
	return &fakeInventory{
		pending:  items,
		statuses: make(map[int64]string),
		errors:   make(map[int64]string),
	}
}

func (f *fakeInventory) Upsert(ctx context.Context, item *domain.InventoryItem) (*domain.InventoryItem, error) {
	return item, nil
}

func (f *fakeInventory) GetByID(ctx context.Context, id int64) (*domain.InventoryItem, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeInventory) GetByURL(ctx context.Context, url string) (*domain.InventoryItem, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeInventory) List(ctx context.Context, _ repository.InventoryFilter) ([]domain.InventoryItem, error) {
	return f.pending, nil
}

func (f *fakeInventory) ListPending(ctx context.Context, limit int) ([]domain.InventoryItem, error) {
	if limit < len(f.pending) {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeInventory) UpdateStatus(ctx context.Context, id int64, status string, lastError *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	if lastError != nil {
		f.errors[id] = *lastError
	} else {
		delete(f.errors, id)
	}
	return nil
}

type fakeVariants struct {
	mu   sync.Mutex
	rows []domain.OptimizationVariant
	fail bool
}

func (f *fakeVariants) Insert(ctx context.Context, v *domain.OptimizationVariant) (*domain.OptimizationVariant, error) {
	if f.fail {
		return nil, errors.New("insert refused")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, *v)
	return v, nil
}

func (f *fakeVariants) ListByInventoryID(ctx context.Context, inventoryID int64) ([]domain.OptimizationVariant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.OptimizationVariant
	for _, r := range f.rows {
		if r.InventoryID == inventoryID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeUploader struct {
	mu    sync.Mutex
	count int
	fail  bool
}

func (f *fakeUploader) UploadAsset(ctx context.Context, filename, mimeType string, data []byte) (*domain.Asset, error) {
	if f.fail {
		return nil, errors.New("upload refused")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	return &domain.Asset{
		ID:        int64(f.count),
		SourceURL: "https://cdn.example.com/opt/" + filename,
	}, nil
}

type fakeFetcher struct {
	payloads map[string][]byte
	failures map[string]bool
}

func (f *fakeFetcher) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	if f.failures[rawURL] {
		return nil, errors.New("connection reset")
	}
	return f.payloads[rawURL], nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 15), G: uint8(y * 15), B: 99, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func pendingItem(id int64, url string) domain.InventoryItem {
	mime := "image/png"
	return domain.InventoryItem{ID: id, SourceURL: url, MimeType: &mime, Status: domain.StatusPending}
}

func testOrchestrator(inv *fakeInventory, variants *fakeVariants, up *fakeUploader, fetch *fakeFetcher, window ScheduleWindow) (*Orchestrator, *AdaptiveScaler) {
	engine := encoding.NewEngine(encoding.Policy{
		MaxWidth:       2560,
		QualityPhoto:   75,
		QualityGraphic: 85,
		PreserveICC:    encoding.ICCAuto,
	}, zap.NewNop())
	scaler := NewAdaptiveScaler(100, 1, 5, 1)
	prober := &fakeProber{taken: map[string]bool{}}
	o := NewOrchestrator(engine, prober, up, fetch, inv, variants, scaler, window, 2, testMetrics, zap.NewNop())
	return o, scaler
}

func TestRunOptimizesPendingItems(t *testing.T) {
	src := pngBytes(t)
	inv := newFakeInventory(
		pendingItem(1, "https://site.example.com/a.png"),
		pendingItem(2, "https://site.example.com/b.png"),
	)
	variants := &fakeVariants{}
	up := &fakeUploader{}
	fetch := &fakeFetcher{payloads: map[string][]byte{
		"https://site.example.com/a.png": src,
		"https://site.example.com/b.png": src,
	}}

	o, scaler := testOrchestrator(inv, variants, up, fetch, ScheduleWindow{})
	res, err := o.Run(context.Background(), BatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 2, res.Optimized)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, domain.StatusOptimized, inv.statuses[1])
	assert.Equal(t, domain.StatusOptimized, inv.statuses[2])
	assert.Len(t, variants.rows, 2)
	assert.Equal(t, 2, scaler.Stats().Success)
}

func TestRunIsolatesFetchFailures(t *testing.T) {
	src := pngBytes(t)
	inv := newFakeInventory(
		pendingItem(1, "https://site.example.com/a.png"),
		pendingItem(2, "https://site.example.com/broken.png"),
		pendingItem(3, "https://site.example.com/c.png"),
	)
	variants := &fakeVariants{}
	up := &fakeUploader{}
	fetch := &fakeFetcher{
		payloads: map[string][]byte{
			"https://site.example.com/a.png": src,
			"https://site.example.com/c.png": src,
		},
		failures: map[string]bool{"https://site.example.com/broken.png": true},
	}

	o, scaler := testOrchestrator(inv, variants, up, fetch, ScheduleWindow{})
	res, err := o.Run(context.Background(), BatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 2, res.Optimized)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, domain.StatusError, inv.statuses[2])
	assert.NotEmpty(t, inv.errors[2])
	assert.Equal(t, 1, scaler.Stats().Transient)
}

func TestRunClassifiesEncodeFailuresAsFatal(t *testing.T) {
	inv := newFakeInventory(pendingItem(1, "https://site.example.com/junk.png"))
	variants := &fakeVariants{}
	up := &fakeUploader{}
	fetch := &fakeFetcher{payloads: map[string][]byte{
		"https://site.example.com/junk.png": []byte("not an image at all"),
	}}

	o, scaler := testOrchestrator(inv, variants, up, fetch, ScheduleWindow{})
	res, err := o.Run(context.Background(), BatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, domain.StatusError, inv.statuses[1])
	assert.Equal(t, 1, scaler.Stats().Fatal)
}

func TestRunClassifiesUploadFailuresAsTransient(t *testing.T) {
	inv := newFakeInventory(pendingItem(1, "https://site.example.com/a.png"))
	variants := &fakeVariants{}
	up := &fakeUploader{fail: true}
	fetch := &fakeFetcher{payloads: map[string][]byte{
		"https://site.example.com/a.png": pngBytes(t),
	}}

	o, scaler := testOrchestrator(inv, variants, up, fetch, ScheduleWindow{})
	res, err := o.Run(context.Background(), BatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, scaler.Stats().Transient)
	assert.Empty(t, variants.rows)
}

func TestRunSkipsOutsideScheduleWindow(t *testing.T) {
	// A one-minute window at a fixed time of day is effectively always
	// closed for the duration of a test run.
	window, err := neverOpenWindow()
	require.NoError(t, err)

	inv := newFakeInventory(
		pendingItem(1, "https://site.example.com/a.png"),
		pendingItem(2, "https://site.example.com/b.png"),
	)
	o, _ := testOrchestrator(inv, &fakeVariants{}, &fakeUploader{}, &fakeFetcher{}, window)

	res, err := o.Run(context.Background(), BatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 2, res.Skipped)
	assert.Empty(t, inv.statuses)
}

func neverOpenWindow() (ScheduleWindow, error) {
	start := time.Now().Add(2 * time.Hour)
	end := start.Add(time.Minute)
	return ParseScheduleWindow(start.Format("15:04"), end.Format("15:04"))
}
