package verify

import "math/rand"

// PickSample draws a uniform random sample of floor(len*percent/100) items,
// at least one when the input is non-empty, never more than cap. An empty
// input yields an empty sample.
func PickSample[T any](items []T, percent, cap int) []T {
	if len(items) == 0 {
		return nil
	}

	n := len(items) * percent / 100
	if n < 1 {
		n = 1
	}
	if cap > 0 && n > cap {
		n = cap
	}
	if n > len(items) {
		n = len(items)
	}

	// Partial Fisher-Yates over a copy; the first n slots end up uniformly
	// drawn without replacement.
	shuffled := make([]T, len(items))
	copy(shuffled, items)
	for i := 0; i < n; i++ {
		j := i + rand.Intn(len(shuffled)-i)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:n]
}
