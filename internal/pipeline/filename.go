package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/user/mediarefinery/internal/domain"
)

const filenameProbeLimit = 100

// nameProber checks whether a candidate filename already resolves to a known
// asset. The content resolver satisfies this.
type nameProber interface {
	Resolve(ctx context.Context, rawURL string) *domain.Asset
}

// UniqueVariantFilename derives a collision-free target name from the source
// URL: base name plus an "__opt" suffix, numeric disambiguators when taken,
// and a timestamp suffix once the probe budget runs out.
func UniqueVariantFilename(ctx context.Context, prober nameProber, originalURL, ext string) string {
	name := stripExtension(basenameOf(originalURL))

	candidate := name + "__opt" + ext
	if prober.Resolve(ctx, candidate) == nil {
		return candidate
	}

	for i := 1; i < filenameProbeLimit; i++ {
		c := fmt.Sprintf("%s__opt_%d%s", name, i, ext)
		if prober.Resolve(ctx, c) == nil {
			return c
		}
	}

	return fmt.Sprintf("%s__opt_%d%s", name, time.Now().UnixMilli(), ext)
}

func basenameOf(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}
	parts := strings.Split(strings.TrimRight(path, "/"), "/")
	return parts[len(parts)-1]
}

func stripExtension(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}
