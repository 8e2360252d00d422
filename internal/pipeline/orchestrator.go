package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/mediarefinery/internal/domain"
	"github.com/user/mediarefinery/internal/encoding"
	"github.com/user/mediarefinery/internal/monitoring"
	"github.com/user/mediarefinery/internal/repository"
	"go.uber.org/zap"
)

// Uploader pushes an encoded buffer to the CMS and returns the created asset
// record with its public URL.
type Uploader interface {
	UploadAsset(ctx context.Context, filename, mimeType string, data []byte) (*domain.Asset, error)
}

// SourceFetcher retrieves the original bytes of an inventory item.
type SourceFetcher interface {
	FetchBytes(ctx context.Context, rawURL string) ([]byte, error)
}

// Orchestrator drives pending inventory items through the encoding engine
// and records per-item outcomes. One item's failure never aborts a batch.
type Orchestrator struct {
	engine    *encoding.Engine
	resolver  nameProber
	uploader  Uploader
	fetcher   SourceFetcher
	inventory repository.InventoryRepository
	variants  repository.VariantRepository
	scaler    *AdaptiveScaler
	window    ScheduleWindow
	metrics   *monitoring.Metrics
	logger    *zap.Logger

	base int
}

func NewOrchestrator(engine *encoding.Engine, resolver nameProber, uploader Uploader, fetcher SourceFetcher,
	inv repository.InventoryRepository, variants repository.VariantRepository,
	scaler *AdaptiveScaler, window ScheduleWindow, baseConcurrency int,
	metrics *monitoring.Metrics, logger *zap.Logger) *Orchestrator {
	if baseConcurrency < 1 {
		baseConcurrency = 1
	}
	return &Orchestrator{
		engine:    engine,
		resolver:  resolver,
		uploader:  uploader,
		fetcher:   fetcher,
		inventory: inv,
		variants:  variants,
		scaler:    scaler,
		window:    window,
		metrics:   metrics,
		logger:    logger,
		base:      baseConcurrency,
	}
}

// BatchOptions bound one conversion batch.
type BatchOptions struct {
	Limit int // max items to process; 0 means a default batch
}

// BatchResult summarizes one conversion batch.
type BatchResult struct {
	Processed int `json:"processed"`
	Optimized int `json:"optimized"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"` // schedule-gated leftovers
}

const defaultBatchLimit = 500

// Run processes pending items in waves whose size follows the adaptive
// scaler. Cancellation is cooperative: in-flight items finish, no new wave
// starts. Items outside the schedule window are left pending.
func (o *Orchestrator) Run(ctx context.Context, opts BatchOptions) (*BatchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultBatchLimit
	}

	items, err := o.inventory.ListPending(ctx, limit)
	if err != nil {
		return nil, err
	}
	result := &BatchResult{}
	if len(items) == 0 {
		return result, nil
	}

	conc := o.base
	var optimized, failed atomic.Int64
	pos := 0
	for pos < len(items) {
		if ctx.Err() != nil {
			break
		}
		if !o.window.Contains(time.Now()) {
			o.logger.Info("outside schedule window, leaving remaining items pending",
				zap.Int("remaining", len(items)-pos))
			result.Skipped = len(items) - pos
			break
		}

		// One wave: up to conc*2 items pulled by conc workers through a
		// shared cursor, then the pool size is re-evaluated.
		waveEnd := pos + conc*2
		if waveEnd > len(items) {
			waveEnd = len(items)
		}
		wave := items[pos:waveEnd]

		var cursor atomic.Int64
		var wg sync.WaitGroup
		outcomes := make([]Outcome, len(wave))
		workers := conc
		if workers > len(wave) {
			workers = len(wave)
		}
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					idx := int(cursor.Add(1)) - 1
					if idx >= len(wave) || ctx.Err() != nil {
						return
					}
					item := wave[idx]
					ok, outcome := o.processOne(ctx, &item)
					outcomes[idx] = outcome
					if ok {
						optimized.Add(1)
					} else {
						failed.Add(1)
					}
				}
			}()
		}
		wg.Wait()

		// Outcome recording is confined to this coordinating goroutine.
		for _, oc := range outcomes {
			if oc == "" {
				continue // not started before cancellation
			}
			o.scaler.Record(oc)
			o.metrics.IncProcessed(string(oc))
			result.Processed++
		}

		pos = waveEnd
		conc = o.scaler.Suggest(conc)
		o.metrics.SetConcurrency(conc)
	}

	result.Optimized = int(optimized.Load())
	result.Failed = int(failed.Load())
	o.logger.Info("conversion batch finished",
		zap.Int("processed", result.Processed),
		zap.Int("optimized", result.Optimized),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// processOne fetches the item's source bytes and optimizes it, classifying
// the outcome for the scaler.
func (o *Orchestrator) processOne(ctx context.Context, item *domain.InventoryItem) (bool, Outcome) {
	src, err := o.fetcher.FetchBytes(ctx, item.SourceURL)
	if err != nil {
		msg := err.Error()
		if uerr := o.inventory.UpdateStatus(ctx, item.ID, domain.StatusError, &msg); uerr != nil {
			o.logger.Error("failed to record fetch error", zap.Int64("item_id", item.ID), zap.Error(uerr))
		}
		o.metrics.IncError("source_fetch_failed")
		return false, OutcomeTransient
	}
	return o.optimize(ctx, item, src)
}

// OptimizeItem encodes one item, uploads every produced variant and records
// variant rows, then transitions the item to optimized. Any failure marks
// the item as error with the captured message and returns false; it never
// propagates.
func (o *Orchestrator) OptimizeItem(ctx context.Context, item *domain.InventoryItem, src []byte) bool {
	ok, _ := o.optimize(ctx, item, src)
	return ok
}

// optimize additionally classifies the failure for the scaler: encode
// failures are deterministic (fatal), network and storage failures are worth
// retrying later at lower pressure (transient).
func (o *Orchestrator) optimize(ctx context.Context, item *domain.InventoryItem, src []byte) (bool, Outcome) {
	mime, filename := "", ""
	if item.MimeType != nil {
		mime = *item.MimeType
	}
	if item.Filename != nil {
		filename = *item.Filename
	}

	res, err := o.engine.Encode(src, mime, filename, encoding.Options{})
	if err != nil {
		o.failItem(ctx, item, "encode: "+err.Error())
		o.metrics.IncError("encode_failed")
		return false, OutcomeFatal
	}

	variants := []*encoding.Variant{res.Primary}
	if res.Secondary != nil {
		variants = append(variants, res.Secondary)
	}

	for _, v := range variants {
		ext := encoding.ExtensionFor(v.Format)
		name := UniqueVariantFilename(ctx, o.resolver, item.SourceURL, ext)

		uploaded, err := o.uploader.UploadAsset(ctx, name, encoding.MimeTypeFor(v.Format), v.Data)
		if err != nil {
			o.failItem(ctx, item, "upload: "+err.Error())
			o.metrics.IncError("upload_failed")
			return false, OutcomeTransient
		}

		row := &domain.OptimizationVariant{
			InventoryID:  item.ID,
			OptimizedURL: uploaded.SourceURL,
			Filename:     name,
			MimeType:     encoding.MimeTypeFor(v.Format),
			Format:       v.Format,
			FileSize:     v.Bytes,
		}
		if _, err := o.variants.Insert(ctx, row); err != nil {
			o.failItem(ctx, item, "record variant: "+err.Error())
			o.metrics.IncError("db_insert_failed")
			return false, OutcomeTransient
		}
	}

	if err := o.inventory.UpdateStatus(ctx, item.ID, domain.StatusOptimized, nil); err != nil {
		o.logger.Error("failed to mark item optimized", zap.Int64("item_id", item.ID), zap.Error(err))
		return false, OutcomeTransient
	}
	o.logger.Info("optimized inventory item",
		zap.Int64("item_id", item.ID),
		zap.String("url", item.SourceURL),
		zap.Int("variants", len(variants)))
	return true, OutcomeSuccess
}

func (o *Orchestrator) failItem(ctx context.Context, item *domain.InventoryItem, msg string) {
	if err := o.inventory.UpdateStatus(ctx, item.ID, domain.StatusError, &msg); err != nil {
		o.logger.Error("failed to record item error", zap.Int64("item_id", item.ID), zap.Error(err))
	}
	o.logger.Warn("item optimization failed",
		zap.Int64("item_id", item.ID),
		zap.String("url", item.SourceURL),
		zap.String("reason", msg))
}
