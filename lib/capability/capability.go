// Package capability locates the storage engine the adapter runs on. Every
// engine variant is registered under a name; Resolve walks the preference
// list and returns the first variant that can be constructed, normalized to
// engine.Factory, so the rest of the code never looks at variants again.
package capability

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/ValentinKolb/fKV/lib/codec"
	"github.com/ValentinKolb/fKV/lib/common"
	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/engine/core"
	"github.com/ValentinKolb/fKV/lib/engine/kv"
	"github.com/ValentinKolb/fKV/lib/engine/kv/bolt"
	"github.com/ValentinKolb/fKV/lib/engine/kv/lmdb"
	"github.com/ValentinKolb/fKV/lib/engine/kv/maple"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/pkg/errors"
)

var log = logger.GetLogger("capability")

// The two supported access modes
const (
	ReadOnly  = engine.ReadOnly
	ReadWrite = engine.ReadWrite
)

// Variant names an engine variant
type Variant string

const (
	Bolt  Variant = "bolt"
	LMDB  Variant = "lmdb"
	Maple Variant = "maple"
)

// ErrUnavailable is returned by a constructor whose prerequisites are missing
var ErrUnavailable = errors.New("engine variant not available")

type constructor func(cfg common.EngineConfig) (core.BackendOpener, error)

// registry in preference order
var registry = []struct {
	variant Variant
	build   constructor
}{
	{Bolt, boltOpener},
	{LMDB, lmdbOpener},
	{Maple, mapleOpener},
}

// Variants returns the registered variant names in preference order
func Variants() []Variant {
	out := make([]Variant, 0, len(registry))
	for _, r := range registry {
		out = append(out, r.variant)
	}
	return out
}

// Resolve returns a factory for cfg.Engine, or for the first available
// variant if no engine is configured.
func Resolve(cfg common.EngineConfig) (engine.Factory, Variant, error) {
	c, err := codec.New(cfg.Codec)
	if err != nil {
		return nil, "", err
	}

	var tried []string
	for _, r := range registry {
		if cfg.Engine != "" && Variant(cfg.Engine) != r.variant {
			continue
		}

		opener, err := r.build(cfg)
		if err != nil {
			log.Debugf("engine variant %s skipped: %v", r.variant, err)
			tried = append(tried, fmt.Sprintf("%s (%v)", r.variant, err))
			continue
		}

		f, err := core.NewFactory(core.Options{Variant: string(r.variant), Open: opener, Codec: c})
		if err != nil {
			return nil, "", errors.Wrapf(err, "cannot create %s engine", r.variant)
		}
		log.Infof("using engine variant %s (codec %s)", r.variant, c.Name())
		return f, r.variant, nil
	}

	if cfg.Engine != "" && len(tried) == 0 {
		return nil, "", fmt.Errorf("unknown engine variant %q, must be one of %v", cfg.Engine, Variants())
	}
	return nil, "", fmt.Errorf("no engine variant available: %v", tried)
}

// --------------------------------------------------------------------------
// Variant constructors
// --------------------------------------------------------------------------

// fileName maps a database name to a file name inside the data directory
func fileName(name string) string {
	return url.PathEscape(name)
}

func prepareDataDir(cfg common.EngineConfig) error {
	if cfg.DataDir == "" {
		return errors.Wrap(ErrUnavailable, "no data directory configured")
	}
	mode := cfg.FileMode
	if mode == 0 {
		mode = 0700
	}
	if err := os.MkdirAll(cfg.DataDir, mode); err != nil {
		return errors.Wrap(err, "cannot create data directory")
	}
	return nil
}

func boltOpener(cfg common.EngineConfig) (core.BackendOpener, error) {
	if err := prepareDataDir(cfg); err != nil {
		return nil, err
	}
	return func(name string) (kv.Backend, error) {
		return bolt.New(filepath.Join(cfg.DataDir, fileName(name)+".bolt"), &bolt.Options{
			NoSync: cfg.NoSync,
		})
	}, nil
}

func lmdbOpener(cfg common.EngineConfig) (core.BackendOpener, error) {
	if err := prepareDataDir(cfg); err != nil {
		return nil, err
	}
	return func(name string) (kv.Backend, error) {
		return lmdb.New(filepath.Join(cfg.DataDir, fileName(name)+".lmdb"), &lmdb.Options{
			FileMode: cfg.FileMode,
			MapSize:  cfg.LMDBMapSize,
			NoSync:   cfg.NoSync,
		})
	}, nil
}

func mapleOpener(common.EngineConfig) (core.BackendOpener, error) {
	return func(string) (kv.Backend, error) {
		return maple.New(), nil
	}, nil
}
