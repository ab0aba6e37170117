package fstore

import (
	"testing"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/engine/core"
	"github.com/ValentinKolb/fKV/lib/engine/kv"
	"github.com/ValentinKolb/fKV/lib/engine/kv/maple"
)

func mustFactory(t *testing.T) engine.Factory {
	t.Helper()
	f, err := core.NewFactory(core.Options{
		Variant: "maple",
		Open: func(string) (kv.Backend, error) {
			return maple.New(), nil
		},
	})
	if err != nil {
		t.Fatalf("Failed to create factory: %v", err)
	}
	return f
}
