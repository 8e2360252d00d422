package encoding

import (
	"math"
	"strings"
)

// ICC retention modes.
const (
	ICCAuto   = "auto"
	ICCAlways = "always"
	ICCNever  = "never"
)

// Profiles larger than this are assumed not worth their byte cost under the
// auto mode.
const iccPreserveThreshold = 2048

// Policy holds the encoding knobs applied to every conversion.
type Policy struct {
	MaxWidth       int
	QualityPhoto   int
	QualityGraphic int
	PreserveICC    string // auto | always | never
	WebPEnabled    bool
}

// IsLikelyGraphic classifies content as "graphic" (vector or simple-palette)
// vs "photographic". Graphics compress worse and get a higher quality
// setting.
func IsLikelyGraphic(mimeType, filename string) bool {
	if mimeType == "" && filename == "" {
		return false
	}
	fn := strings.ToLower(filename)
	if strings.Contains(mimeType, "svg") || strings.HasSuffix(fn, ".svg") {
		return true
	}
	if strings.Contains(mimeType, "png") || strings.Contains(mimeType, "gif") {
		return true
	}
	if strings.HasSuffix(fn, ".png") || strings.HasSuffix(fn, ".gif") {
		return true
	}
	return false
}

// QualityFor selects the encode quality for the given kind. An explicit
// override (non-nil) always wins.
func (p Policy) QualityFor(graphic bool, override *int) int {
	if override != nil {
		return *override
	}
	if graphic {
		return p.QualityGraphic
	}
	return p.QualityPhoto
}

// RetainProfile decides whether an embedded color profile of profileSize
// bytes survives re-encoding.
func (p Policy) RetainProfile(graphic bool, profileSize int) bool {
	switch p.PreserveICC {
	case ICCAlways:
		return true
	case ICCNever:
		return false
	default:
		// auto: photographic content only, and only cheap profiles
		return !graphic && profileSize > 0 && profileSize <= iccPreserveThreshold
	}
}

// EstimateEncodedSize predicts the post-encoding byte size without encoding.
// Photographic content compresses to roughly 60% and graphics to roughly
// 80%, with a small linear quality adjustment that is neutral at quality 75.
// The result is floored at 100 bytes.
func EstimateEncodedSize(originalBytes int64, graphic bool, quality int) int64 {
	baseRatio := 0.6
	if graphic {
		baseRatio = 0.8
	}
	qAdj := 1 - float64(quality-75)/750
	est := int64(math.Round(float64(originalBytes) * baseRatio * qAdj))
	if est < 100 {
		est = 100
	}
	return est
}
