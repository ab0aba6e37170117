package fstore

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/fKV/lib/store"
	"github.com/VictoriaMetrics/metrics"
)

// storeMetrics counts operations per store instance
type storeMetrics struct {
	set *metrics.Set
}

func newStoreMetrics() *storeMetrics {
	return &storeMetrics{set: metrics.NewSet()}
}

// done records a settled operation
func (m *storeMetrics) done(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.set.GetOrCreateCounter(fmt.Sprintf(`fkv_operations_total{op=%q,result=%q}`, op, result)).Inc()
	m.set.GetOrCreateHistogram(fmt.Sprintf(`fkv_operation_duration_seconds{op=%q}`, op)).Update(time.Since(start).Seconds())
}

func (m *storeMetrics) guardFailure(code store.RetCode) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`fkv_guard_failures_total{code=%q}`, code.String())).Inc()
}

// counter returns the current value of a counter, 0 if it was never used
func (m *storeMetrics) counter(name string) uint64 {
	return m.set.GetOrCreateCounter(name).Get()
}

// WritePrometheus writes all metrics in prometheus text format
func (m *storeMetrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}
