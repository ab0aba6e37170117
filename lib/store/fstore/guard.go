package fstore

import (
	"github.com/ValentinKolb/fKV/lib/store"
)

// guard validates a connection and store name before a transaction is
// started. Both checks are always evaluated and every failure is reported;
// the first failure is returned.
type guard struct {
	metrics *storeMetrics
}

// Validate runs on the loop
func (g guard) Validate(conn *connection, storeName string) error {
	var failures []*store.Error

	if conn.handle == nil {
		failures = append(failures, store.NewError(store.RetCConfigurationError, "no database; create one before querying"))
	}
	if conn.handle == nil || !conn.handle.Contains(storeName) {
		failures = append(failures, store.NewError(store.RetCSchemaError, "object store does not exist: "+storeName))
	}

	for _, f := range failures {
		log.Warningf("guard: %v", f)
		g.metrics.guardFailure(f.Code)
	}
	if len(failures) > 0 {
		return failures[0]
	}
	return nil
}
