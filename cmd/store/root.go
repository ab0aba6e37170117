package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/fKV/cmd/util"
	"github.com/ValentinKolb/fKV/lib/common"
	"github.com/ValentinKolb/fKV/lib/future"
	"github.com/ValentinKolb/fKV/lib/store/fstore"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
)

var log = logger.GetLogger("cli")

var (
	localStore *fstore.Store
	config     common.EngineConfig

	// StoreCommands represents the store command group
	StoreCommands = &cobra.Command{
		Use:                "store",
		Short:              "Perform object store operations on a local database",
		Long:               `Perform object store operations on a local database. The configuration can be set via command line flags or environment variables. The format of the environment variables is FKV_<flag> (e.g. FKV_DATA_DIR=/var/lib/fkv)`,
		PersistentPreRunE:  setupStore,
		PersistentPostRunE: closeStore,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	util.SetupEngineFlags(StoreCommands)

	// Add subcommands
	StoreCommands.AddCommand(createCmd)
	StoreCommands.AddCommand(addCmd)
	StoreCommands.AddCommand(putCmd)
	StoreCommands.AddCommand(getCmd)
	StoreCommands.AddCommand(getIndexCmd)
	StoreCommands.AddCommand(listCmd)
	StoreCommands.AddCommand(delCmd)
	StoreCommands.AddCommand(clearCmd)
	StoreCommands.AddCommand(scanCmd)
	StoreCommands.AddCommand(infoCmd)
	StoreCommands.AddCommand(perfTestCmd)
}

// setupStore resolves the engine and opens the configured database
func setupStore(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	if config, err = util.GetEngineConfig(); err != nil {
		return err
	}
	if err := common.InitLoggers(config); err != nil {
		return err
	}

	s, variant, err := fstore.Open(config)
	if err != nil {
		return err
	}
	localStore = s
	log.Debugf("opened store with engine %s:%s", variant, config.String())

	version := config.DBVersion
	if version == 0 {
		if version, err = await(localStore.CurrentVersion()); err != nil {
			return err
		}
	}
	_, err = await(localStore.CreateStore(version, nil))
	return err
}

func closeStore(*cobra.Command, []string) error {
	if localStore == nil {
		return nil
	}
	err := localStore.Close()
	localStore = nil
	return err
}

// await waits for f with the configured timeout
func await[T any](f *future.Future[T]) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(util.GetTimeoutSecond())*time.Second)
	defer cancel()
	v, err := f.Await(ctx)
	if err == context.DeadlineExceeded {
		err = fmt.Errorf("operation timed out after %d sec", util.GetTimeoutSecond())
	}
	return v, err
}
