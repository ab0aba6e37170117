package capability

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ValentinKolb/fKV/lib/common"
	"github.com/ValentinKolb/fKV/lib/engine"
	enginetesting "github.com/ValentinKolb/fKV/lib/engine/testing"
)

func TestModes(t *testing.T) {
	if ReadOnly != engine.ReadOnly || ReadWrite != engine.ReadWrite {
		t.Errorf("Expected engine modes, got %s and %s", ReadOnly, ReadWrite)
	}
}

func TestVariants(t *testing.T) {
	expected := []Variant{Bolt, LMDB, Maple}
	if got := Variants(); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected %v, got %v", expected, got)
	}
}

func TestResolvePreference(t *testing.T) {
	tests := []struct {
		name     string
		engine   string
		dataDir  bool
		expected Variant
	}{
		{"auto with data dir", "", true, Bolt},
		{"auto without data dir", "", false, Maple},
		{"explicit lmdb", "lmdb", true, LMDB},
		{"explicit maple", "maple", true, Maple},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := common.DefaultEngineConfig()
			cfg.Engine = tc.engine
			if tc.dataDir {
				cfg.DataDir = filepath.Join(t.TempDir(), "data")
			}

			f, variant, err := Resolve(cfg)
			if err != nil {
				t.Fatalf("Failed to resolve: %v", err)
			}
			defer f.Close()

			if variant != tc.expected {
				t.Errorf("Expected variant %s, got %s", tc.expected, variant)
			}
			if f.Variant() != string(tc.expected) {
				t.Errorf("Expected factory variant %s, got %s", tc.expected, f.Variant())
			}
			if !tc.dataDir {
				return
			}
			// only the file backed variants touch the data dir
			_, err = os.Stat(cfg.DataDir)
			switch tc.expected {
			case Bolt, LMDB:
				if err != nil {
					t.Errorf("Expected data dir to be created: %v", err)
				}
			default:
				if !os.IsNotExist(err) {
					t.Errorf("Expected no data dir for %s, got %v", tc.expected, err)
				}
			}
		})
	}
}

func TestResolveErrors(t *testing.T) {
	cfg := common.DefaultEngineConfig()
	cfg.Engine = "rocks"
	if _, _, err := Resolve(cfg); err == nil {
		t.Error("Expected error for unknown variant")
	}

	cfg = common.DefaultEngineConfig()
	cfg.Engine = "bolt"
	if _, _, err := Resolve(cfg); err == nil {
		t.Error("Expected error for bolt without data dir")
	}

	cfg = common.DefaultEngineConfig()
	cfg.Codec = "xml"
	if _, _, err := Resolve(cfg); err == nil {
		t.Error("Expected error for unknown codec")
	}
}

func TestUnavailable(t *testing.T) {
	_, err := boltOpener(common.EngineConfig{})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

// TestEscapedNames opens a database whose name is not a valid file name
func TestEscapedNames(t *testing.T) {
	cfg := common.DefaultEngineConfig()
	cfg.DataDir = t.TempDir()
	cfg.NoSync = true

	f, _, err := Resolve(cfg)
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	defer f.Close()

	db := enginetesting.MustOpen(t, f, "a/b c", 1, nil)
	if db.Name() != "a/b c" {
		t.Errorf("Expected name a/b c, got %s", db.Name())
	}
	if _, err := os.Stat(filepath.Join(cfg.DataDir, "a%2Fb%20c.bolt")); err != nil {
		t.Errorf("Expected escaped database file: %v", err)
	}
}
