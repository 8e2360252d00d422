package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/user/mediarefinery/internal/cms"
	"github.com/user/mediarefinery/internal/domain"
	"github.com/user/mediarefinery/internal/encoding"
	"github.com/user/mediarefinery/internal/inventory"
	"github.com/user/mediarefinery/internal/report"
	"github.com/user/mediarefinery/internal/repository"
	"github.com/user/mediarefinery/internal/rewrite"
	"github.com/user/mediarefinery/internal/verify"
	"go.uber.org/zap"
)

// SnapshotKeyRunSummary is the snapshot slot holding the latest conversion
// run summary.
const SnapshotKeyRunSummary = "summary:latest"

const queuePollInterval = 2 * time.Second

// VerifyOptions tunes the post-conversion sample check.
type VerifyOptions struct {
	Percent     int
	Cap         int
	Retries     int
	Timeout     time.Duration
	Concurrency int
}

// Runner consumes queued jobs and drives the matching pipeline stage. One
// runner instance is the queue's single consumer.
type Runner struct {
	queue        repository.JobQueue
	discoverer   *inventory.Discoverer
	orchestrator *Orchestrator
	rewriter     *rewrite.Manager
	checker      *verify.Checker
	client       *cms.Client
	inv          repository.InventoryRepository
	variants     repository.VariantRepository
	snapshots    repository.SnapshotRepository
	verifyOpts   VerifyOptions
	logger       *zap.Logger
}

func NewRunner(queue repository.JobQueue, disc *inventory.Discoverer, orch *Orchestrator,
	rewriter *rewrite.Manager, checker *verify.Checker, client *cms.Client,
	inv repository.InventoryRepository, variants repository.VariantRepository,
	snapshots repository.SnapshotRepository, verifyOpts VerifyOptions, logger *zap.Logger) *Runner {
	return &Runner{
		queue:        queue,
		discoverer:   disc,
		orchestrator: orch,
		rewriter:     rewriter,
		checker:      checker,
		client:       client,
		inv:          inv,
		variants:     variants,
		snapshots:    snapshots,
		verifyOpts:   verifyOpts,
		logger:       logger,
	}
}

// Start launches the consumer loop. It returns when ctx is cancelled; the job
// in flight finishes first.
func (r *Runner) Start(ctx context.Context) {
	go func() {
		for {
			job, err := r.queue.Pop(ctx)
			if err != nil {
				if errors.Is(err, repository.ErrQueueEmpty) {
					select {
					case <-ctx.Done():
						return
					case <-time.After(queuePollInterval):
					}
					continue
				}
				if ctx.Err() != nil {
					return
				}
				r.logger.Error("failed to pop job", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(queuePollInterval):
				}
				continue
			}
			r.dispatch(ctx, job)
			if ctx.Err() != nil {
				return
			}
		}
	}()
}

func (r *Runner) dispatch(ctx context.Context, job *domain.Job) {
	log := r.logger.With(zap.String("job_id", job.ID), zap.String("job_type", job.Type))
	log.Info("job started")
	start := time.Now()

	var err error
	switch job.Type {
	case domain.JobDiscover:
		err = r.runDiscover(ctx, job)
	case domain.JobConvert:
		err = r.runConvert(ctx, job)
	case domain.JobRollback:
		err = r.runRollback(ctx)
	default:
		log.Warn("unknown job type, dropping")
		return
	}

	if err != nil {
		log.Error("job failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return
	}
	log.Info("job finished", zap.Duration("elapsed", time.Since(start)))
}

func (r *Runner) runDiscover(ctx context.Context, job *domain.Job) error {
	opts := inventory.Options{}
	if v, ok := payloadInt(job.Payload, "max_documents"); ok {
		opts.MaxDocuments = v
	}
	if v, ok := job.Payload["compute_sha"].(bool); ok {
		opts.ComputeSHA = v
	}
	if v, ok := payloadInt(job.Payload, "author"); ok {
		author := int64(v)
		opts.Author = &author
	}
	_, err := r.discoverer.Run(ctx, opts)
	return err
}

// runConvert executes the full conversion stage: encode and upload pending
// items, rewrite document references to the new variants, verify a sample of
// the uploads, and persist the aggregated run summary.
func (r *Runner) runConvert(ctx context.Context, job *domain.Job) error {
	batch := BatchOptions{}
	if v, ok := payloadInt(job.Payload, "limit"); ok {
		batch.Limit = v
	}
	if _, err := r.orchestrator.Run(ctx, batch); err != nil {
		return err
	}

	mapping, err := r.buildMapping(ctx)
	if err != nil {
		return err
	}
	if len(mapping) > 0 {
		docs, err := r.collectDocuments(ctx)
		if err != nil {
			return err
		}
		r.rewriter.ApplyRewrites(ctx, docs, mapping)
	}

	results := r.verifySample(ctx, mapping)

	summary, err := r.aggregate(ctx, results)
	if err != nil {
		return err
	}
	if err := r.snapshots.Put(ctx, SnapshotKeyRunSummary, summary); err != nil {
		r.logger.Warn("failed to persist run summary snapshot", zap.Error(err))
	}
	return nil
}

func (r *Runner) runRollback(ctx context.Context) error {
	docs, err := r.collectDocuments(ctx)
	if err != nil {
		return err
	}
	r.rewriter.Rollback(ctx, docs)
	return nil
}

// buildMapping pairs every optimized item's source URL with its most recent
// primary-format variant URL.
func (r *Runner) buildMapping(ctx context.Context) ([]domain.ReplacementMapping, error) {
	var mapping []domain.ReplacementMapping
	const pageSize = 200
	for offset := 0; ; offset += pageSize {
		items, err := r.inv.List(ctx, repository.InventoryFilter{
			Status: domain.StatusOptimized,
			Limit:  pageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			break
		}
		for _, item := range items {
			variants, err := r.variants.ListByInventoryID(ctx, item.ID)
			if err != nil {
				return nil, err
			}
			var primary *domain.OptimizationVariant
			for i := range variants {
				v := &variants[i]
				if v.Format != encoding.FormatJPEG {
					continue
				}
				if primary == nil || v.CreatedAt.After(primary.CreatedAt) {
					primary = v
				}
			}
			if primary != nil {
				mapping = append(mapping, domain.ReplacementMapping{
					OriginalURL:  item.SourceURL,
					OptimizedURL: primary.OptimizedURL,
				})
			}
		}
		if len(items) < pageSize {
			break
		}
	}
	return mapping, nil
}

func (r *Runner) collectDocuments(ctx context.Context) ([]domain.Document, error) {
	pager := r.client.Documents(100, cms.DocumentFilter{})
	var docs []domain.Document
	for {
		page, err := pager.Next(ctx)
		if err != nil {
			return nil, err
		}
		if page == nil {
			return docs, nil
		}
		docs = append(docs, page...)
	}
}

func (r *Runner) verifySample(ctx context.Context, mapping []domain.ReplacementMapping) []verify.Result {
	if len(mapping) == 0 || r.verifyOpts.Percent <= 0 {
		return nil
	}
	urls := make([]string, 0, len(mapping))
	for _, m := range mapping {
		urls = append(urls, m.OptimizedURL)
	}
	sample := verify.PickSample(urls, r.verifyOpts.Percent, r.verifyOpts.Cap)
	return r.checker.Run(ctx, sample, verify.Options{
		Concurrency: r.verifyOpts.Concurrency,
		Timeout:     r.verifyOpts.Timeout,
		Retries:     r.verifyOpts.Retries,
	})
}

// aggregate folds the whole inventory into the operator-facing run summary.
func (r *Runner) aggregate(ctx context.Context, verification []verify.Result) (*report.Summary, error) {
	var items []report.Item
	const pageSize = 500
	for offset := 0; ; offset += pageSize {
		page, err := r.inv.List(ctx, repository.InventoryFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, it := range page {
			ri := report.Item{Status: it.Status}
			if it.FileSize != nil {
				ri.OriginalBytes = *it.FileSize
			}
			if it.LastError != nil {
				ri.Reason = *it.LastError
			}
			if it.Status == domain.StatusOptimized {
				if size, err := r.primaryVariantSize(ctx, it.ID); err == nil {
					ri.OptimizedBytes = size
				}
			}
			items = append(items, ri)
		}
		if len(page) < pageSize {
			break
		}
	}
	return report.Aggregate(items, verification), nil
}

func (r *Runner) primaryVariantSize(ctx context.Context, inventoryID int64) (int64, error) {
	variants, err := r.variants.ListByInventoryID(ctx, inventoryID)
	if err != nil {
		return 0, err
	}
	var best *domain.OptimizationVariant
	for i := range variants {
		v := &variants[i]
		if v.Format != encoding.FormatJPEG {
			continue
		}
		if best == nil || v.CreatedAt.After(best.CreatedAt) {
			best = v
		}
	}
	if best == nil {
		return 0, repository.ErrNotFound
	}
	return best.FileSize, nil
}

func payloadInt(payload map[string]any, key string) (int, bool) {
	switch v := payload[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
