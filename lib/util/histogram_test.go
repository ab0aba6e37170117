package util

import (
	"sync"
	"testing"
)

func TestSizeHistogramEmpty(t *testing.T) {
	h := NewSizeHistogram()

	if st := h.Stats(); st != (SizeStats{}) {
		t.Errorf("Expected zero stats, got %+v", st)
	}
	if p := h.Percentile(50); p != 0 {
		t.Errorf("Expected 0, got %d", p)
	}
}

func TestSizeHistogramStats(t *testing.T) {
	h := NewSizeHistogram()

	// 99 small samples and one large
	for i := 0; i < 99; i++ {
		h.Observe(10)
	}
	h.Observe(5000)
	h.Observe(-1) // ignored

	st := h.Stats()
	if st.Count != 100 {
		t.Errorf("Expected count 100, got %d", st.Count)
	}
	if st.Total != 99*10+5000 {
		t.Errorf("Expected total %d, got %d", 99*10+5000, st.Total)
	}
	if st.Max != 5000 {
		t.Errorf("Expected max 5000, got %d", st.Max)
	}
	if st.Mean != (99*10+5000)/100 {
		t.Errorf("Expected mean %d, got %d", (99*10+5000)/100, st.Mean)
	}
	// the first bucket is estimated as half its bound
	if st.Median != 8 {
		t.Errorf("Expected median 8, got %d", st.Median)
	}
	if st.P99 != 8 {
		t.Errorf("Expected p99 8, got %d", st.P99)
	}
	// 5000 is in the 4KB-16KB bucket, capped by max
	if p := h.Percentile(100); p != 5000 {
		t.Errorf("Expected p100 5000, got %d", p)
	}
	if p := h.Percentile(101); p != 0 {
		t.Errorf("Expected 0 for invalid percentile, got %d", p)
	}
}

func TestSizeHistogramBucketMidpoint(t *testing.T) {
	h := NewSizeHistogram()
	h.Observe(100)  // 64-256
	h.Observe(1000) // 256-1024

	if p := h.Percentile(50); p != (64+256)/2 {
		t.Errorf("Expected %d, got %d", (64+256)/2, p)
	}
	// midpoint of 256-1024 is 640, below the max
	if p := h.Percentile(100); p != 640 {
		t.Errorf("Expected 640, got %d", p)
	}
}

func TestSizeHistogramReset(t *testing.T) {
	h := NewSizeHistogram()
	h.Observe(1 << 20)
	h.Reset()

	if c := h.Count(); c != 0 {
		t.Errorf("Expected count 0 after reset, got %d", c)
	}
	if m := h.Stats().Max; m != 0 {
		t.Errorf("Expected max 0 after reset, got %d", m)
	}
}

func TestSizeHistogramConcurrent(t *testing.T) {
	h := NewSizeHistogram()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				h.Observe(i)
			}
		}()
	}
	wg.Wait()

	if c := h.Count(); c != 8000 {
		t.Errorf("Expected count 8000, got %d", c)
	}
	if m := h.Stats().Max; m != 999 {
		t.Errorf("Expected max 999, got %d", m)
	}
}
