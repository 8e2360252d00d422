package report

import (
	"sort"

	"github.com/user/mediarefinery/internal/domain"
	"github.com/user/mediarefinery/internal/verify"
)

// Item is one inventory outcome as seen by the aggregator: lifecycle status,
// byte sizes before and after, and the human-readable reason attached to
// skipped and failed items.
type Item struct {
	Status         string
	OriginalBytes  int64
	OptimizedBytes int64
	Reason         string
}

// ReasonCount ranks one skip or failure reason.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// VerificationBlock summarizes the post-conversion sample check.
type VerificationBlock struct {
	Sampled  int     `json:"sampled"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	PassRate float64 `json:"pass_rate"`
}

// Summary is the end-of-run aggregate handed to operators.
type Summary struct {
	TotalItems int `json:"total_items"`
	Optimized  int `json:"optimized"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	Pending    int `json:"pending"`

	BytesBefore  int64   `json:"bytes_before"`
	BytesAfter   int64   `json:"bytes_after"`
	BytesSaved   int64   `json:"bytes_saved"`
	PercentSaved float64 `json:"percent_saved"`
	// Mean saving across optimized items only.
	AvgSavingsPerOptimized int64 `json:"avg_savings_per_optimized"`

	TopSkipReasons    []ReasonCount      `json:"top_skip_reasons,omitempty"`
	TopFailureReasons []ReasonCount      `json:"top_failure_reasons,omitempty"`
	Verification      *VerificationBlock `json:"verification,omitempty"`
}

const topReasonLimit = 5

// Aggregate folds per-item outcomes into a run summary. Byte totals run over
// every item and the savings floor is applied once to the total difference,
// so an item whose variant came out larger offsets savings elsewhere but can
// never drive the saved figure negative.
func Aggregate(items []Item, verification []verify.Result) *Summary {
	s := &Summary{TotalItems: len(items)}
	skips := newReasonTally()
	failures := newReasonTally()

	for _, it := range items {
		s.BytesBefore += it.OriginalBytes
		s.BytesAfter += it.OptimizedBytes
		switch it.Status {
		case domain.StatusOptimized:
			s.Optimized++
		case domain.StatusSkipped:
			s.Skipped++
			skips.add(it.Reason)
		case domain.StatusError:
			s.Failed++
			failures.add(it.Reason)
		default:
			s.Pending++
		}
	}
	if s.BytesSaved = s.BytesBefore - s.BytesAfter; s.BytesSaved < 0 {
		s.BytesSaved = 0
	}

	if s.BytesBefore > 0 {
		s.PercentSaved = float64(s.BytesSaved) / float64(s.BytesBefore) * 100
	}
	if s.Optimized > 0 {
		s.AvgSavingsPerOptimized = s.BytesSaved / int64(s.Optimized)
	}
	s.TopSkipReasons = skips.top(topReasonLimit)
	s.TopFailureReasons = failures.top(topReasonLimit)

	if len(verification) > 0 {
		block := &VerificationBlock{Sampled: len(verification)}
		for _, r := range verification {
			if r.OK {
				block.Passed++
			} else {
				block.Failed++
			}
		}
		block.PassRate = float64(block.Passed) / float64(block.Sampled) * 100
		s.Verification = block
	}
	return s
}

// reasonTally counts reasons while remembering first-seen order, which breaks
// ranking ties.
type reasonTally struct {
	counts map[string]int
	order  []string
}

func newReasonTally() *reasonTally {
	return &reasonTally{counts: make(map[string]int)}
}

func (t *reasonTally) add(reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	if _, seen := t.counts[reason]; !seen {
		t.order = append(t.order, reason)
	}
	t.counts[reason]++
}

func (t *reasonTally) top(limit int) []ReasonCount {
	if len(t.order) == 0 {
		return nil
	}
	out := make([]ReasonCount, 0, len(t.order))
	for _, r := range t.order {
		out = append(out, ReasonCount{Reason: r, Count: t.counts[r]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
