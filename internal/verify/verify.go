package verify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Options tune one verification pass. Zero values fall back to the listed
// defaults.
type Options struct {
	Concurrency int           // parallel fetches (default 10)
	Timeout     time.Duration // per-attempt budget (default 5s)
	Retries     int           // extra attempts after the first
	RetryDelay  time.Duration // fixed pause between attempts (default 500ms)
}

func (o Options) withDefaults() Options {
	if o.Concurrency < 1 {
		o.Concurrency = 10
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.Retries < 0 {
		o.Retries = 1
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 500 * time.Millisecond
	}
	return o
}

// Result is the outcome of probing one URL.
type Result struct {
	URL      string `json:"url"`
	OK       bool   `json:"ok"`
	Status   int    `json:"status,omitempty"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// Checker probes uploaded URLs for reachability.
type Checker struct {
	client *http.Client
	logger *zap.Logger
}

func NewChecker(client *http.Client, logger *zap.Logger) *Checker {
	if client == nil {
		client = http.DefaultClient
	}
	return &Checker{client: client, logger: logger}
}

// Run probes every URL through a bounded worker pool and returns one result
// per URL, in input order. Individual failures are recorded, never returned.
func (c *Checker) Run(ctx context.Context, urls []string, opts Options) []Result {
	opts = opts.withDefaults()
	results := make([]Result, len(urls))
	if len(urls) == 0 {
		return results
	}

	workers := opts.Concurrency
	if workers > len(urls) {
		workers = len(urls)
	}

	var cursor atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				idx := int(cursor.Add(1)) - 1
				if idx >= len(urls) || ctx.Err() != nil {
					return
				}
				results[idx] = c.probe(ctx, urls[idx], opts)
			}
		}()
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if !r.OK {
			failed++
		}
	}
	c.logger.Info("verification pass finished",
		zap.Int("checked", len(urls)),
		zap.Int("failed", failed))
	return results
}

func (c *Checker) probe(ctx context.Context, url string, opts Options) Result {
	res := Result{URL: url}

	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				res.Error = ctx.Err().Error()
				return res
			case <-time.After(opts.RetryDelay):
			}
		}
		res.Attempts = attempt + 1

		status, err := c.fetch(ctx, url, opts.Timeout)
		res.Status = status
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				res.Error = "timeout"
			} else {
				res.Error = err.Error()
			}
			continue
		}
		if status == http.StatusOK {
			res.OK = true
			res.Error = ""
			return res
		}
		res.Error = http.StatusText(status)
	}
	return res
}

// fetch issues one GET with a hard per-attempt deadline. The body is drained
// so a 200 with a broken stream still counts as a failure.
func (c *Checker) fetch(ctx context.Context, url string, timeout time.Duration) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if attemptCtx.Err() != nil {
			return 0, context.DeadlineExceeded
		}
		return 0, err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		if attemptCtx.Err() != nil {
			return resp.StatusCode, context.DeadlineExceeded
		}
		return resp.StatusCode, err
	}
	return resp.StatusCode, nil
}
