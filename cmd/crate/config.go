package main

import (
	"path/filepath"
	"time"

	"github.com/franz/crate/internal/util"
	"github.com/spf13/viper"
)

const (
	defaultCacheDir  = "./cache"
	defaultPerPage   = 100
	defaultMaxAge    = 24 * time.Hour
	defaultRateLimit = 1 * time.Second
	defaultPrewarm   = 20
	defaultListen    = ":8080"
	dbFileName       = "crate.db"
)

// GetConfigString retrieves a string config value with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (CRATE_*)
// 3. Config file
// 4. Default value
func GetConfigString(key string, defaultValue string) string {
	val := viper.GetString(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// GetConfigInt retrieves an int config value with proper precedence
func GetConfigInt(key string, defaultValue int) int {
	val := viper.GetInt(key)
	if val == 0 {
		return defaultValue
	}
	return val
}

// GetConfigDuration retrieves a duration config value ("90s", "24h")
func GetConfigDuration(key string, defaultValue time.Duration) time.Duration {
	val := viper.GetDuration(key)
	if val <= 0 {
		return defaultValue
	}
	return val
}

// GetConfigBool retrieves a bool config value
func GetConfigBool(key string) bool {
	return viper.GetBool(key)
}

// cacheDir is the configured cache directory
func cacheDir() string {
	return GetConfigString("cache-dir", defaultCacheDir)
}

// dbPath is the history database, next to the cache unless configured
func dbPath() string {
	return GetConfigString("db", filepath.Join(cacheDir(), dbFileName))
}

// setupLogging applies --verbose and --quiet
func setupLogging() {
	util.SetVerbose(GetConfigBool("verbose"))
	util.SetQuiet(GetConfigBool("quiet"))
}
