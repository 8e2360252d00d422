package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/user/mediarefinery/internal/domain"
)

type assetWire struct {
	ID           int64          `json:"id"`
	SourceURL    string         `json:"source_url"`
	MimeType     *string        `json:"mime_type"`
	MediaDetails map[string]any `json:"media_details"`
	FileSize     *int64         `json:"filesize"`
}

func (w assetWire) toDomain() domain.Asset {
	a := domain.Asset{
		ID:           w.ID,
		SourceURL:    w.SourceURL,
		MimeType:     w.MimeType,
		MediaDetails: w.MediaDetails,
		FileSize:     w.FileSize,
	}
	if a.FileSize == nil {
		if size, ok := filesizeFromDetails(w.MediaDetails); ok {
			a.FileSize = &size
		}
	}
	return a
}

// filesizeFromDetails digs the byte size out of the asset's free-form details
// blob. CMS records carry no schema guarantees, so every level is checked.
func filesizeFromDetails(details map[string]any) (int64, bool) {
	if details == nil {
		return 0, false
	}
	if v, ok := details["filesize"]; ok {
		if n, ok := toInt64(v); ok {
			return n, true
		}
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// GetAsset fetches one asset record by identifier. A missing asset is
// reported as (nil, nil), matching the resolver's "unresolved" convention.
func (c *Client) GetAsset(ctx context.Context, id int64) (*domain.Asset, error) {
	var wire assetWire
	status, err := c.getJSON(ctx, "/wp/v2/media/"+strconv.FormatInt(id, 10), nil, &wire)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a := wire.toDomain()
	return &a, nil
}

// SearchAssets queries the asset index by name fragment.
func (c *Client) SearchAssets(ctx context.Context, fragment string, perPage int) ([]domain.Asset, error) {
	params := url.Values{}
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("search", fragment)

	var wires []assetWire
	if _, err := c.getJSON(ctx, "/wp/v2/media", params, &wires); err != nil {
		return nil, err
	}
	return toAssets(wires), nil
}

// ListAssetsPage returns page N of the full asset index.
func (c *Client) ListAssetsPage(ctx context.Context, page, perPage int) ([]domain.Asset, error) {
	params := url.Values{}
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("page", strconv.Itoa(page))

	var wires []assetWire
	status, err := c.getJSON(ctx, "/wp/v2/media", params, &wires)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toAssets(wires), nil
}

func toAssets(wires []assetWire) []domain.Asset {
	out := make([]domain.Asset, 0, len(wires))
	for _, w := range wires {
		out = append(out, w.toDomain())
	}
	return out
}

// UploadAsset creates a new media item from a buffer and returns its record,
// including the public URL assigned by the CMS.
func (c *Client) UploadAsset(ctx context.Context, filename, mimeType string, data []byte) (*domain.Asset, error) {
	attempt := 0
	for {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/wp/v2/media", bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mimeType)
		req.Header.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.authorize(req)

		resp, err := c.http.Do(req)
		if err != nil {
			if wait, retry := c.backoff.Next(attempt); retry {
				if err := sleepCtx(ctx, wait); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("asset upload failed after %d attempts: %w", attempt, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if wait, retry := c.backoff.Next(attempt); retry {
				if err := sleepCtx(ctx, wait); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("asset upload failed after %d attempts: status %d", attempt, resp.StatusCode)
		}

		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("asset upload rejected: %d %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}

		var wire assetWire
		if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
			return nil, fmt.Errorf("decoding upload response: %w", err)
		}
		a := wire.toDomain()
		return &a, nil
	}
}
