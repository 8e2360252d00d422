package cms

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// BackoffStrategy decides whether a failed request should be retried and how
// long to wait first. Attempt numbering starts at 1.
type BackoffStrategy interface {
	Next(attempt int) (time.Duration, bool)
}

// LinearBackoff waits attempt*Delay between tries, up to MaxAttempts total.
type LinearBackoff struct {
	MaxAttempts int
	Delay       time.Duration
}

func (b LinearBackoff) Next(attempt int) (time.Duration, bool) {
	if attempt >= b.MaxAttempts {
		return 0, false
	}
	return time.Duration(attempt) * b.Delay, true
}

// NoRetry disables retries entirely.
type NoRetry struct{}

func (NoRetry) Next(int) (time.Duration, bool) { return 0, false }

// Client talks to the CMS REST API. Responses with status 429 or 5xx are
// retried according to the injected backoff strategy; everything else is
// returned to the caller as-is.
type Client struct {
	baseURL  string
	user     string
	password string
	http     *http.Client
	backoff  BackoffStrategy
}

type Option func(*Client)

func WithAuth(user, password string) Option {
	return func(c *Client) {
		c.user = user
		c.password = password
	}
}

func WithBackoff(b BackoffStrategy) Option {
	return func(c *Client) { c.backoff = b }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		backoff: LinearBackoff{MaxAttempts: 3, Delay: time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) authorize(req *http.Request) {
	if c.user != "" && c.password != "" {
		token := base64.StdEncoding.EncodeToString([]byte(c.user + ":" + c.password))
		req.Header.Set("Authorization", "Basic "+token)
	}
}

// getJSON issues a GET and decodes the body into out. It returns the HTTP
// status so callers can distinguish empty pages (404 past the last page) from
// failures.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) (int, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	attempt := 0
	for {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return 0, err
		}
		req.Header.Set("Accept", "application/json")
		c.authorize(req)

		resp, err := c.http.Do(req)
		if err != nil {
			if wait, retry := c.backoff.Next(attempt); retry {
				if err := sleepCtx(ctx, wait); err != nil {
					return 0, err
				}
				continue
			}
			return 0, fmt.Errorf("cms request failed after %d attempts: %w", attempt, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			if wait, retry := c.backoff.Next(attempt); retry {
				if err := sleepCtx(ctx, wait); err != nil {
					return 0, err
				}
				continue
			}
			return resp.StatusCode, fmt.Errorf("cms request failed after %d attempts: %d %s", attempt, resp.StatusCode, strings.TrimSpace(string(body)))
		}

		defer resp.Body.Close()
		if out != nil && resp.StatusCode < 400 {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return resp.StatusCode, fmt.Errorf("decoding cms response: %w", err)
			}
		}
		return resp.StatusCode, nil
	}
}

// postJSON issues a POST with a JSON body. Mutations go through the same
// retry policy as reads.
func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	attempt := 0
	for {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return 0, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		c.authorize(req)

		resp, err := c.http.Do(req)
		if err != nil {
			if wait, retry := c.backoff.Next(attempt); retry {
				if err := sleepCtx(ctx, wait); err != nil {
					return 0, err
				}
				continue
			}
			return 0, fmt.Errorf("cms request failed after %d attempts: %w", attempt, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if wait, retry := c.backoff.Next(attempt); retry {
				if err := sleepCtx(ctx, wait); err != nil {
					return 0, err
				}
				continue
			}
			return resp.StatusCode, fmt.Errorf("cms request failed after %d attempts: status %d", attempt, resp.StatusCode)
		}

		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return resp.StatusCode, fmt.Errorf("cms request rejected: %d %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return resp.StatusCode, fmt.Errorf("decoding cms response: %w", err)
			}
		}
		return resp.StatusCode, nil
	}
}

// FetchBytes downloads an arbitrary URL (image payloads, liveness checks for
// size measurement). Not routed through the API base.
func (c *Client) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ProbeSize issues a HEAD request and returns the Content-Length, or an error
// when the header is absent.
func (c *Client) ProbeSize(ctx context.Context, rawURL string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("probe %s: status %d", rawURL, resp.StatusCode)
	}
	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("probe %s: no content length", rawURL)
	}
	return resp.ContentLength, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
