package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/franz/crate/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "crate",
		Short: "Crate - browse a Discogs vinyl collection on a kiosk",
		Long: `crate keeps a local copy of a Discogs collection and its cover art.
It syncs the collection into a JSON snapshot, caches one JPEG per release,
and serves search, random picks by mood or genre and release details to a
kiosk front end over a small HTTP API.`,
		Version: Version,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/crate.yaml)")
	rootCmd.PersistentFlags().String("token", "", "Discogs personal access token")
	rootCmd.PersistentFlags().String("username", "", "collection owner (default: the token's identity)")
	rootCmd.PersistentFlags().String("cache-dir", defaultCacheDir, "directory for the snapshot and cover art")
	rootCmd.PersistentFlags().String("db", "", "history database file (default: <cache-dir>/crate.db)")
	rootCmd.PersistentFlags().String("events-dir", "", "write JSONL events to this directory")
	rootCmd.PersistentFlags().String("event-level", "info", "minimum event level (debug, info, warning, error)")
	rootCmd.PersistentFlags().Int("per-page", defaultPerPage, "collection page size")
	rootCmd.PersistentFlags().Int("max-items", 0, "stop after this many items (0 = all)")
	rootCmd.PersistentFlags().Duration("max-age", defaultMaxAge, "snapshot age before a refetch")
	rootCmd.PersistentFlags().Duration("rate-limit", defaultRateLimit, "minimum spacing between API requests")
	rootCmd.PersistentFlags().Int("prewarm", defaultPrewarm, "covers downloaded with per-item progress first")
	rootCmd.PersistentFlags().Int("cover-max-dim", 0, "downscale covers to this many pixels (0 = original size)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	for _, name := range []string{
		"token", "username", "cache-dir", "db", "events-dir", "event-level",
		"per-page", "max-items", "max-age", "rate-limit", "prewarm", "cover-max-dim",
		"verbose", "quiet",
	} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("crate")
		viper.SetConfigType("yaml")
	}

	// CRATE_TOKEN, CRATE_CACHE_DIR, ...
	viper.SetEnvPrefix("CRATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
