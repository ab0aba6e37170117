package util

import (
	"math"
	"sync"
)

// sizeBoundaries are the upper bounds of the histogram buckets, 16B to 4GB.
// Values above the last bound land in an overflow bucket.
var sizeBoundaries = []int64{
	16, 64, 256, 1 << 10, 4 << 10,
	16 << 10, 64 << 10, 256 << 10, 1 << 20,
	4 << 20, 16 << 20, 64 << 20,
	256 << 20, 1 << 30, 4 << 30,
}

// SizeStats is a point-in-time summary of a SizeHistogram
type SizeStats struct {
	Count  int64 `json:"count"`
	Total  int64 `json:"total_bytes"`
	Mean   int64 `json:"mean_bytes"`
	Median int64 `json:"median_bytes"`
	P99    int64 `json:"p99_bytes"`
	Max    int64 `json:"max_bytes"`
}

// SizeHistogram tracks the distribution of byte sizes in exponential buckets.
// Percentiles are estimated from bucket bounds, so they are exact only to the
// bucket a sample fell into.
//
// Thread-safety: all methods are safe for concurrent use.
type SizeHistogram struct {
	mu      sync.RWMutex
	buckets [16]int64
	count   int64
	sum     int64
	max     int64
}

// NewSizeHistogram creates an empty histogram.
func NewSizeHistogram() *SizeHistogram {
	return &SizeHistogram{}
}

// Observe adds one sample. Negative sizes are ignored.
func (h *SizeHistogram) Observe(size int) {
	if size < 0 {
		return
	}
	s := int64(size)

	i := len(sizeBoundaries)
	for b, bound := range sizeBoundaries {
		if s <= bound {
			i = b
			break
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.buckets[i]++
	h.count++
	h.sum += s
	h.max = max(h.max, s)
}

// Count returns the number of samples
func (h *SizeHistogram) Count() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Percentile estimates the p-th percentile (0-100) as the midpoint of the
// bucket it falls into, capped by the largest sample.
func (h *SizeHistogram) Percentile(p float64) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.percentile(p)
}

func (h *SizeHistogram) percentile(p float64) int64 {
	if h.count == 0 || p < 0 || p > 100 {
		return 0
	}

	target := max(int64(math.Ceil(float64(h.count)*p/100)), 1)
	var seen int64
	for i, n := range h.buckets {
		seen += n
		if seen < target {
			continue
		}
		var est int64
		switch {
		case i == 0:
			est = sizeBoundaries[0] / 2
		case i < len(sizeBoundaries):
			est = (sizeBoundaries[i-1] + sizeBoundaries[i]) / 2
		default:
			est = h.max
		}
		return min(est, h.max)
	}
	return h.max
}

// Stats returns a summary of all samples
func (h *SizeHistogram) Stats() SizeStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := SizeStats{Count: h.count, Total: h.sum, Max: h.max}
	if h.count > 0 {
		st.Mean = h.sum / h.count
		st.Median = h.percentile(50)
		st.P99 = h.percentile(99)
	}
	return st
}

// Reset drops all samples
func (h *SizeHistogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buckets = [16]int64{}
	h.count, h.sum, h.max = 0, 0, 0
}
