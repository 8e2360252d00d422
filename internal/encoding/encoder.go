package encoding

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	_ "image/gif"
	_ "image/png"

	"github.com/gen2brain/webp"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/webp"
)

// Output formats.
const (
	FormatJPEG = "jpeg"
	FormatWebP = "webp"
)

// Options override policy defaults for one encode call.
type Options struct {
	TargetMaxWidth int  // 0 means policy default
	Quality        *int // nil means policy default for the kind
}

// Variant is one encoded output.
type Variant struct {
	Format string
	Data   []byte
	Bytes  int64
	Width  int
	Height int
}

// Result carries the primary output and, when the secondary format is
// enabled and succeeds, a second one.
type Result struct {
	Primary   *Variant
	Secondary *Variant
}

// Engine applies the encoding policy to raw image buffers. The policy can be
// swapped at runtime; in-flight encodes keep the policy they started with.
type Engine struct {
	mu     sync.RWMutex
	policy Policy
	logger *zap.Logger
}

func NewEngine(policy Policy, logger *zap.Logger) *Engine {
	return &Engine{policy: policy, logger: logger}
}

func (e *Engine) Policy() Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy
}

func (e *Engine) SetPolicy(p Policy) {
	e.mu.Lock()
	e.policy = p
	e.mu.Unlock()
}

// Encode produces the primary variant and, if configured, a secondary WebP
// variant encoded independently from a fresh copy of the source buffer. A
// secondary-format failure is non-fatal: the primary result is still
// returned.
func (e *Engine) Encode(src []byte, mimeHint, filenameHint string, opts Options) (*Result, error) {
	policy := e.Policy()
	graphic := IsLikelyGraphic(mimeHint, filenameHint)

	primary, err := e.encodeOne(policy, src, FormatJPEG, graphic, opts)
	if err != nil {
		return nil, err
	}
	res := &Result{Primary: primary}

	if policy.WebPEnabled {
		secondary, err := e.encodeOne(policy, src, FormatWebP, graphic, opts)
		if err != nil {
			e.logger.Warn("secondary format encode failed, keeping primary only",
				zap.String("format", FormatWebP), zap.Error(err))
		} else {
			res.Secondary = secondary
		}
	}
	return res, nil
}

func (e *Engine) encodeOne(policy Policy, src []byte, format string, graphic bool, opts Options) (*Variant, error) {
	quality := policy.QualityFor(graphic, opts.Quality)
	maxWidth := policy.MaxWidth
	if opts.TargetMaxWidth > 0 {
		maxWidth = opts.TargetMaxWidth
	}

	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decoding source image: %w", err)
	}

	// Downscale when the source exceeds the width cap; never upscale.
	bounds := img.Bounds()
	if maxWidth > 0 && bounds.Dx() > maxWidth {
		img = downscale(img, maxWidth)
		bounds = img.Bounds()
	}

	profile := ExtractProfile(src)
	retain := policy.RetainProfile(graphic, len(profile))

	var buf bytes.Buffer
	switch format {
	case FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encoding jpeg: %w", err)
		}
	case FormatWebP:
		if err := webp.Encode(&buf, img, webp.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encoding webp: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}

	out := buf.Bytes()
	if retain && len(profile) > 0 && format == FormatJPEG {
		embedded, err := EmbedJPEGProfile(out, profile)
		if err != nil {
			return nil, fmt.Errorf("embedding ICC profile: %w", err)
		}
		out = embedded
	}

	return &Variant{
		Format: format,
		Data:   out,
		Bytes:  int64(len(out)),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// downscale resizes to the target width preserving aspect ratio.
func downscale(img image.Image, width int) image.Image {
	bounds := img.Bounds()
	height := int(float64(bounds.Dy()) * float64(width) / float64(bounds.Dx()))
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}

// MimeTypeFor maps an output format to its media type.
func MimeTypeFor(format string) string {
	switch format {
	case FormatWebP:
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// ExtensionFor maps an output format to its filename extension.
func ExtensionFor(format string) string {
	switch format {
	case FormatWebP:
		return ".webp"
	default:
		return ".jpg"
	}
}
