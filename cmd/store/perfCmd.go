package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/fKV/cmd/util"
	"github.com/ValentinKolb/fKV/lib/engine"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const perfStore = "__perf"

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the local engine",
		Long:    "Runs add, get, put, list and delete benchmarks against the object store " + perfStore + ", which is created on first use.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfNumThreads = 10
	perfKeySpread  = 100
	perfOps        = 1000
	perfSkip       = make([]string, 0)

	perfBenchmarks = []string{"add", "get", "put", "list", "delete"}
)

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. add,list)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines issuing operations"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "ops"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("Operations per goroutine and benchmark"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfOps = max(viper.GetInt("ops"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for the local engine")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.String())
	fmt.Printf("Threads: %d, Keys: %d, Ops: %d\n", perfNumThreads, perfKeySpread, perfOps)
	fmt.Println()

	if err := ensurePerfStore(); err != nil {
		return err
	}

	registry := metrics.NewRegistry()
	errorCount := metrics.GetOrRegisterCounter("errors", registry)
	value := map[string]any{"payload": "test", "n": 1}

	bench := map[string]func(key float64) error{
		"add": func(key float64) error {
			// duplicates are expected once every key exists
			_, err := await(localStore.Add(perfStore, value, key))
			if errors.Is(err, engine.ErrConstraint) {
				return nil
			}
			return err
		},
		"get": func(key float64) error {
			_, err := await(localStore.GetByKey(perfStore, key))
			return err
		},
		"put": func(key float64) error {
			_, err := await(localStore.Update(perfStore, value, key))
			return err
		},
		"list": func(key float64) error {
			rng, err := engine.Bound(key, key+10, false, true)
			if err != nil {
				return err
			}
			_, err = await(localStore.GetAll(perfStore, rng, nil))
			return err
		},
		"delete": func(key float64) error {
			_, err := await(localStore.Delete(perfStore, key))
			return err
		},
	}

	fmt.Println("starting tests...")
	for _, name := range perfBenchmarks {
		if shouldSkip(name) {
			printResult(name, nil)
			continue
		}
		if name == "get" || name == "list" || name == "delete" {
			if err := seedPerfStore(value); err != nil {
				return err
			}
		}

		timer := metrics.GetOrRegisterTimer(name, registry)
		fn := bench[name]

		var wg sync.WaitGroup
		for t := 0; t < perfNumThreads; t++ {
			wg.Add(1)
			go func(t int) {
				defer wg.Done()
				for i := 0; i < perfOps; i++ {
					key := float64((t*perfOps + i) % perfKeySpread)
					start := time.Now()
					err := fn(key)
					timer.UpdateSince(start)
					if err != nil {
						errorCount.Inc(1)
						log.Warningf("(%s) - error for key %v: %v", name, key, err)
					}
				}
			}(t)
		}
		wg.Wait()

		printResult(name, timer.Snapshot())
	}

	if _, err := await(localStore.Clear(perfStore)); err != nil {
		log.Warningf("error clearing %s: %v", perfStore, err)
	}
	if n := errorCount.Count(); n > 0 {
		fmt.Printf("\n%d operations failed\n", n)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, registry); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// ensurePerfStore creates the benchmark store in a new version if it is missing
func ensurePerfStore() error {
	info, err := await(localStore.Info())
	if err != nil {
		return err
	}
	for _, st := range info.Stores {
		if st.Name == perfStore {
			return nil
		}
	}
	_, err = await(localStore.CreateStore(info.Version+1, func(_ *engine.Event, db engine.Database) error {
		_, err := db.CreateObjectStore(perfStore, engine.ObjectStoreOptions{})
		return err
	}))
	return err
}

func seedPerfStore(value any) error {
	for i := 0; i < perfKeySpread; i++ {
		if _, err := await(localStore.Update(perfStore, value, float64(i))); err != nil {
			return err
		}
	}
	return nil
}

// printResult prints one timer snapshot, nil means skipped
func printResult(test string, t metrics.Timer) {
	if t == nil || t.Count() == 0 {
		fmt.Printf("%-10sskipped\n", test)
		return
	}
	fmt.Printf("%-10s%8d ops  mean %-12s p99 %-12s %.0f ops/sec\n",
		test, t.Count(), time.Duration(t.Mean()), time.Duration(t.Percentile(0.99)), t.RateMean())
}

// writeResultsToCSV writes every timer of the registry to csvPath
func writeResultsToCSV(csvPath string, registry metrics.Registry) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "Count", "MeanNs", "P50Ns", "P99Ns", "MaxNs", "OpsPerSec",
		"Engine", "Codec", "NoSync", "Threads", "Keys", "Ops",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	var werr error
	registry.Each(func(name string, m any) {
		timer, ok := m.(metrics.Timer)
		if !ok || werr != nil {
			return
		}
		t := timer.Snapshot()
		row := []string{
			name,
			strconv.FormatInt(t.Count(), 10),
			fmt.Sprintf("%.0f", t.Mean()),
			fmt.Sprintf("%.0f", t.Percentile(0.5)),
			fmt.Sprintf("%.0f", t.Percentile(0.99)),
			strconv.FormatInt(t.Max(), 10),
			fmt.Sprintf("%.0f", t.RateMean()),
			config.Engine,
			config.Codec,
			strconv.FormatBool(config.NoSync),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(perfOps),
		}
		if err := writer.Write(row); err != nil {
			werr = fmt.Errorf("failed to write row for test %s: %v", name, err)
		}
	})
	return werr
}
