package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/btcmap-triage/internal/config"
	"github.com/joescharf/btcmap-triage/internal/gitea"
	"github.com/joescharf/btcmap-triage/internal/osm"
	"github.com/joescharf/btcmap-triage/internal/output"
	"github.com/joescharf/btcmap-triage/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "btctriage",
	Short: "BTC Map submission triage - score merchant submissions for review",
	Long: `btctriage fetches merchant submissions from the BTC Map issue tracker,
gathers evidence that each merchant accepts Bitcoin, optionally asks the
merchant directly, and produces a confidence score with a recommendation
for the volunteer reviewing the issue.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/btcmap-triage/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BTCTRIAGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	defaultConfigDir, _ := configDirFunc()
	setDefaults(defaultConfigDir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every key the CLI reads. Scoring keys come from
// internal/config so the CLI and the library agree on them.
func setDefaults(dir string) {
	config.SetDefaults(viper.GetViper())

	viper.SetDefault("state_dir", dir)
	viper.SetDefault("db_path", filepath.Join(dir, "btctriage.db"))
	viper.SetDefault("ledger_path", filepath.Join(dir, "ledger.yaml"))
	viper.SetDefault("gitea.url", gitea.DefaultBaseURL)
	viper.SetDefault("gitea.repo", "teambtcmap/btcmap-data")
	viper.SetDefault("gitea.token", "")
	viper.SetDefault("gitea.labels", []string{})
	viper.SetDefault("overpass.endpoint", osm.DefaultOverpassURL)
	viper.SetDefault("overpass.interval", "1s")
	viper.SetDefault("website.user_agent", "btcmap-triage")
	viper.SetDefault("website.timeout", "20s")
	viper.SetDefault("cache.redis_url", "")
	viper.SetDefault("cache.ttl", "6h")
	viper.SetDefault("outreach.enabled", false)
	viper.SetDefault("outreach.channels", []string{"email", "social_dm"})
	viper.SetDefault("outreach.poll_interval", "1m")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("port", 8080)
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Initialize store lazily, only when commands actually need it.
	// This allows config/version commands to run without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// loadConfig builds the validated scoring configuration from viper.
func loadConfig() (config.Config, error) {
	return config.FromViper(viper.GetViper())
}
