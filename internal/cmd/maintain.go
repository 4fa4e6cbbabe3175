package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crashworks/tombstone/internal/artifact"
	"github.com/crashworks/tombstone/internal/config"
	"github.com/crashworks/tombstone/internal/logging"
	"github.com/crashworks/tombstone/internal/store"
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run a full maintenance pass now",
	Long: `Run one synchronous maintenance pass over the store directory:
evict artifacts beyond their retention ceilings (oldest first) and drive
the clean placeholder pool to its configured size.`,
	RunE: runMaintain,
}

func init() {
	rootCmd.AddCommand(maintainCmd)
}

func runMaintain(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logging.NopLogger()
	if cfg.Logging.Enabled {
		log, err = logging.NewLogger(cfg.Logging.File, cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
	}
	defer func() { _ = log.Close() }()

	st := store.New(store.Config{
		Dir:               cfg.Store.ResolveStoreDir(),
		Ceilings:          cfg.Store.Ceilings(),
		PlaceholderTarget: cfg.Store.PlaceholderCount,
		PlaceholderSizeKB: cfg.Store.PlaceholderSizeKB,
	}, log)

	st.MaintainNow()

	fmt.Println(titleStyle.Render("Maintenance complete: " + st.Dir()))
	for _, kind := range artifact.LogKinds {
		fmt.Printf("  %-17s %d\n", kind.String(), st.CountKind(kind))
	}
	fmt.Printf("  %-17s %d (target %d)\n", "clean pool", st.CleanPoolSize(), cfg.Store.PlaceholderCount)
	return nil
}
