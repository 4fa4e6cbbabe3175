// Package cmd implements the tombstone operator CLI: inspection and
// maintenance of an artifact directory, and offline trace extraction.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/crashworks/tombstone/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "tombstone",
	Short: "Crash artifact store inspector",
	Long: `Tombstone manages a directory of crash, hang and trace artifacts:
fixed-width sequence naming, per-kind retention ceilings and a pool of
pre-zeroed placeholder files that reserve disk space for future reports.

This CLI inspects and maintains such a directory, and extracts a single
process's block from a shared hang-trace file.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/tombstone/config.yaml)")
	rootCmd.PersistentFlags().StringP("dir", "d", "", "artifact directory (overrides store.dir)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("store.dir", rootCmd.PersistentFlags().Lookup("dir"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/tombstone")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("TOMBSTONE")
	// Replace dots with underscores for nested keys in env vars
	// e.g., TOMBSTONE_STORE_MAX_ANR for store.max_anr
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
