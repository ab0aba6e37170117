package store

import (
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/fKV/cmd/util"
	"github.com/ValentinKolb/fKV/lib/engine"
	istore "github.com/ValentinKolb/fKV/lib/store"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	createCmd = &cobra.Command{
		Use:   "create [store]",
		Short: "Creates an object store (or adds indexes to it) in a new database version",
		Long: `Creates an object store (or adds indexes to it) by upgrading the database to the next version.
Indexes are given as NAME=KEYPATH[:unique][:multi], e.g. --index name=name --index email=contact.email:unique`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			keyPath, _ := cmd.Flags().GetString("key-path")
			autoIncrement, _ := cmd.Flags().GetBool("auto-increment")
			indexDefs, _ := cmd.Flags().GetStringArray("index")

			indexes, err := parseIndexes(indexDefs)
			if err != nil {
				return err
			}

			current, err := await(localStore.CurrentVersion())
			if err != nil {
				return err
			}

			_, err = await(localStore.CreateStore(current+1, func(ev *engine.Event, db engine.Database) error {
				var st engine.ObjectStore
				var err error
				if db.Contains(name) {
					st, err = ev.Transaction.ObjectStore(name)
				} else {
					st, err = db.CreateObjectStore(name, engine.ObjectStoreOptions{KeyPath: keyPath, AutoIncrement: autoIncrement})
				}
				if err != nil {
					return err
				}
				for _, idx := range indexes {
					if _, err := st.CreateIndex(idx.name, idx.keyPath, idx.opts); err != nil {
						return err
					}
				}
				return nil
			}))
			if err != nil {
				return err
			}
			fmt.Printf("store %s ready (database %s, version %d)\n", name, config.DBName, current+1)
			return nil
		},
	}
	addCmd = &cobra.Command{
		Use:   "add [store] [value] [key]",
		Short: "Adds a value, fails if the key exists. The key is optional for stores with key path or generator",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key any
			if len(args) == 3 {
				key = util.ParseKey(args[2])
			}
			kv, err := await(localStore.Add(args[0], util.ParseValue(args[1]), key))
			if err != nil {
				return err
			}
			fmt.Printf("added key=%s\n", util.FormatValue(kv.Key))
			return nil
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [store] [value] [key]",
		Short: "Inserts or replaces a value",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key any
			if len(args) == 3 {
				key = util.ParseKey(args[2])
			}
			if _, err := await(localStore.Update(args[0], util.ParseValue(args[1]), key)); err != nil {
				return err
			}
			fmt.Println("put successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [store] [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := await(localStore.GetByKey(args[0], util.ParseKey(args[1])))
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%t, value=%s\n", args[1], v != nil, util.FormatValue(v))
			return nil
		},
	}
	getIndexCmd = &cobra.Command{
		Use:   "get-index [store] [index] [key]",
		Short: "Reads the first value whose index key matches",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := await(localStore.GetByIndex(args[0], args[1], util.ParseKey(args[2])))
			if err != nil {
				return err
			}
			fmt.Printf("index=%s, key=%s, found=%t, value=%s\n", args[1], args[2], v != nil, util.FormatValue(v))
			return nil
		},
	}
	listCmd = &cobra.Command{
		Use:   "list [store]",
		Short: "Lists all values, optionally in a key range or ordered by an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, err := rangeFromFlags(cmd)
			if err != nil {
				return err
			}

			var index *istore.IndexDetails
			if name, _ := cmd.Flags().GetString("index"); name != "" {
				order := "asc"
				if desc, _ := cmd.Flags().GetBool("desc"); desc {
					order = "desc"
				}
				index = &istore.IndexDetails{IndexName: name, Order: order}
			}

			values, err := await(localStore.GetAll(args[0], rng, index))
			if err != nil {
				return err
			}
			for _, v := range values {
				fmt.Println(util.FormatValue(v))
			}
			fmt.Printf("(%d values)\n", len(values))
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [store] [key]",
		Short: "Deletes a key, or every key in the range given by --lower/--upper",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var query any
			if len(args) == 2 {
				query = util.ParseKey(args[1])
			} else {
				rng, err := rangeFromFlags(cmd)
				if err != nil {
					return err
				}
				if rng == nil {
					return fmt.Errorf("either a key or --lower/--upper is required")
				}
				query = rng
			}
			if _, err := await(localStore.Delete(args[0], query)); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear [store]",
		Short: "Removes every value of a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := await(localStore.Clear(args[0])); err != nil {
				return err
			}
			fmt.Println("clear successfully")
			return nil
		},
	}
	scanCmd = &cobra.Command{
		Use:   "scan [store]",
		Short: "Walks a store with a cursor and prints key and value of each position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, err := rangeFromFlags(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")

			n := 0
			_, err = await(localStore.OpenCursor(args[0], func(c engine.Cursor) {
				if c == nil {
					return
				}
				n++
				fmt.Printf("%s\t%s\n", util.FormatValue(c.Key()), util.FormatValue(c.Value()))
				if limit <= 0 || n < limit {
					_ = c.Continue()
				}
			}, rng))
			if err != nil {
				return err
			}
			fmt.Printf("(%d positions)\n", n)
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints schema and backend information of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := await(localStore.Info())
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))

			if withMetrics, _ := cmd.Flags().GetBool("metrics"); withMetrics {
				fmt.Println()
				localStore.WritePrometheus(os.Stdout)
			}
			return nil
		},
	}
)

func init() {
	createCmd.Flags().String("key-path", "", util.WrapString("Key path for in-line keys (e.g. id or meta.id). Empty means keys are passed explicitly"))
	createCmd.Flags().Bool("auto-increment", false, util.WrapString("Generate keys for values without one"))
	createCmd.Flags().StringArray("index", nil, util.WrapString("Index to create, NAME=KEYPATH[:unique][:multi]. Can be repeated"))

	for _, cmd := range []*cobra.Command{listCmd, delCmd, scanCmd} {
		cmd.Flags().String("lower", "", util.WrapString("Lower bound of the key range"))
		cmd.Flags().String("upper", "", util.WrapString("Upper bound of the key range"))
		cmd.Flags().Bool("lower-open", false, util.WrapString("Exclude the lower bound"))
		cmd.Flags().Bool("upper-open", false, util.WrapString("Exclude the upper bound"))
	}

	listCmd.Flags().String("index", "", util.WrapString("Order the values by this index"))
	listCmd.Flags().Bool("desc", false, util.WrapString("Descending index order"))

	scanCmd.Flags().Int("limit", 0, util.WrapString("Stop after this many positions (0 = all)"))

	infoCmd.Flags().Bool("metrics", false, util.WrapString("Also print the operation metrics of this run"))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

type indexDef struct {
	name    string
	keyPath string
	opts    engine.IndexOptions
}

// parseIndexes parses NAME=KEYPATH[:unique][:multi]
func parseIndexes(defs []string) ([]indexDef, error) {
	out := make([]indexDef, 0, len(defs))
	for _, def := range defs {
		name, rest, ok := strings.Cut(def, "=")
		if !ok || name == "" || rest == "" {
			return nil, fmt.Errorf("invalid index %q, expected NAME=KEYPATH[:unique][:multi]", def)
		}
		parts := strings.Split(rest, ":")
		idx := indexDef{name: name, keyPath: parts[0]}
		for _, flag := range parts[1:] {
			switch flag {
			case "unique":
				idx.opts.Unique = true
			case "multi":
				idx.opts.MultiEntry = true
			default:
				return nil, fmt.Errorf("invalid index option %q in %q", flag, def)
			}
		}
		out = append(out, idx)
	}
	return out, nil
}

// rangeFromFlags builds a key range from --lower/--upper, nil if neither is set
func rangeFromFlags(cmd *cobra.Command) (*engine.KeyRange, error) {
	lowerArg, _ := cmd.Flags().GetString("lower")
	upperArg, _ := cmd.Flags().GetString("upper")
	lowerOpen, _ := cmd.Flags().GetBool("lower-open")
	upperOpen, _ := cmd.Flags().GetBool("upper-open")

	var lower, upper any
	if lowerArg != "" {
		lower = util.ParseKey(lowerArg)
	}
	if upperArg != "" {
		upper = util.ParseKey(upperArg)
	}

	switch {
	case lower == nil && upper == nil:
		return nil, nil
	case upper == nil:
		return engine.LowerBound(lower, lowerOpen)
	case lower == nil:
		return engine.UpperBound(upper, upperOpen)
	default:
		return engine.Bound(lower, upper, lowerOpen, upperOpen)
	}
}
