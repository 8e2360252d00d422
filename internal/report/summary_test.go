package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/mediarefinery/internal/domain"
	"github.com/user/mediarefinery/internal/verify"
)

func TestAggregateSavings(t *testing.T) {
	var items []Item
	for i := 0; i < 10; i++ {
		items = append(items, Item{Status: domain.StatusOptimized, OriginalBytes: 1000, OptimizedBytes: 600})
	}
	for i := 0; i < 10; i++ {
		items = append(items, Item{Status: domain.StatusSkipped, Reason: "already optimized"})
	}

	s := Aggregate(items, nil)
	assert.Equal(t, 20, s.TotalItems)
	assert.Equal(t, 10, s.Optimized)
	assert.Equal(t, 10, s.Skipped)
	assert.Equal(t, int64(10000), s.BytesBefore)
	assert.Equal(t, int64(6000), s.BytesAfter)
	assert.Equal(t, int64(4000), s.BytesSaved)
	assert.InDelta(t, 40.0, s.PercentSaved, 1e-9)
	assert.Equal(t, int64(400), s.AvgSavingsPerOptimized)

	require.Len(t, s.TopSkipReasons, 1)
	assert.Equal(t, ReasonCount{Reason: "already optimized", Count: 10}, s.TopSkipReasons[0])
}

func TestAggregateSavingsNetAcrossItems(t *testing.T) {
	items := []Item{
		{Status: domain.StatusOptimized, OriginalBytes: 1000, OptimizedBytes: 600},
		// A variant that came out larger offsets savings elsewhere.
		{Status: domain.StatusOptimized, OriginalBytes: 100, OptimizedBytes: 150},
	}
	s := Aggregate(items, nil)
	assert.Equal(t, int64(1100), s.BytesBefore)
	assert.Equal(t, int64(750), s.BytesAfter)
	assert.Equal(t, int64(350), s.BytesSaved)
}

func TestAggregateFloorsNegativeSavings(t *testing.T) {
	items := []Item{
		{Status: domain.StatusOptimized, OriginalBytes: 100, OptimizedBytes: 400},
		{Status: domain.StatusOptimized, OriginalBytes: 100, OptimizedBytes: 150},
	}
	s := Aggregate(items, nil)
	assert.Equal(t, int64(0), s.BytesSaved)
	assert.Equal(t, float64(0), s.PercentSaved)
	assert.Equal(t, int64(0), s.AvgSavingsPerOptimized)
}

func TestAggregateCountsAllItemBytes(t *testing.T) {
	items := []Item{
		{Status: domain.StatusOptimized, OriginalBytes: 1000, OptimizedBytes: 600},
		// Skipped and failed items still contribute their original size.
		{Status: domain.StatusSkipped, OriginalBytes: 500, Reason: "already optimized"},
		{Status: domain.StatusError, OriginalBytes: 300, Reason: "fetch"},
	}
	s := Aggregate(items, nil)
	assert.Equal(t, int64(1800), s.BytesBefore)
	assert.Equal(t, int64(600), s.BytesAfter)
	assert.Equal(t, int64(1200), s.BytesSaved)
	assert.InDelta(t, 100.0*1200/1800, s.PercentSaved, 1e-9)
}

func TestAggregateTopReasonsRanking(t *testing.T) {
	var items []Item
	add := func(reason string, n int) {
		for i := 0; i < n; i++ {
			items = append(items, Item{Status: domain.StatusError, Reason: reason})
		}
	}
	// Six distinct reasons; "fetch" and "encode" tie, "fetch" seen first.
	add("fetch", 3)
	add("encode", 3)
	add("upload", 5)
	add("db", 1)
	add("quota", 2)
	add("auth", 1)

	s := Aggregate(items, nil)
	require.Len(t, s.TopFailureReasons, 5, "ranking is capped at five")
	assert.Equal(t, "upload", s.TopFailureReasons[0].Reason)
	assert.Equal(t, "fetch", s.TopFailureReasons[1].Reason, "ties break by first appearance")
	assert.Equal(t, "encode", s.TopFailureReasons[2].Reason)
	assert.Equal(t, "quota", s.TopFailureReasons[3].Reason)
}

func TestAggregateBlankReasonIsLabelled(t *testing.T) {
	s := Aggregate([]Item{{Status: domain.StatusSkipped}}, nil)
	require.Len(t, s.TopSkipReasons, 1)
	assert.Equal(t, "unspecified", s.TopSkipReasons[0].Reason)
}

func TestAggregateVerificationBlock(t *testing.T) {
	results := []verify.Result{
		{URL: "a", OK: true},
		{URL: "b", OK: true},
		{URL: "c", OK: false, Error: "timeout"},
	}
	s := Aggregate(nil, results)
	require.NotNil(t, s.Verification)
	assert.Equal(t, 3, s.Verification.Sampled)
	assert.Equal(t, 2, s.Verification.Passed)
	assert.Equal(t, 1, s.Verification.Failed)
	assert.InDelta(t, 100.0*2/3, s.Verification.PassRate, 1e-9)
}

func TestAggregateEmpty(t *testing.T) {
	s := Aggregate(nil, nil)
	assert.Equal(t, 0, s.TotalItems)
	assert.Equal(t, float64(0), s.PercentSaved)
	assert.Nil(t, s.Verification)
	assert.Nil(t, s.TopSkipReasons)
}
