package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/btcmap-triage/internal/config"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "btcmap-triage"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage btctriage configuration.

Running bare 'btctriage config' is the same as 'btctriage config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# btcmap-triage configuration
# See: btctriage config show (for effective values and sources)

# SQLite database path (default: ~/.config/btcmap-triage/btctriage.db)
# db_path: {{ .DBPath }}

# Reviewer-maintained social and cross-reference evidence
# ledger_path: {{ .LedgerPath }}

# Issue tracker
gitea:
  url: "{{ .GiteaURL }}"
  repo: "{{ .GiteaRepo }}"
  # API token; prefer BTCTRIAGE_GITEA_TOKEN
  token: ""
  # Only triage issues carrying these labels (empty = all open issues)
  labels: []

# Evidence
overpass:
  endpoint: "{{ .OverpassEndpoint }}"
  # Minimum spacing between Overpass requests
  interval: {{ .OverpassInterval }}

cache:
  # redis://host:6379/0 to share evidence between runs (empty = in-process)
  redis_url: "{{ .RedisURL }}"
  ttl: {{ .CacheTTL }}

# Merchant outreach (Phase 2)
outreach:
  enabled: {{ .OutreachEnabled }}
  channels: [email, social_dm]
  poll_interval: {{ .OutreachPollInterval }}

# Reply classification; falls back to keywords without a key
anthropic:
  model: "{{ .AnthropicModel }}"

# Scoring: category maxima must sum to 100
weights:
  osm: {{ .Config.Weights.OSM }}
  website: {{ .Config.Weights.Website }}
  social: {{ .Config.Weights.Social }}
  crossref: {{ .Config.Weights.CrossRef }}
  consistency: {{ .Config.Weights.Consistency }}

phase2_weights:
  email: {{ .Config.Phase2Weights.Email }}
  social_dm: {{ .Config.Phase2Weights.SocialDM }}

# Lower bounds of HIGH / MEDIUM / LOW
thresholds:
  high: {{ .Config.Thresholds.High }}
  medium: {{ .Config.Thresholds.Medium }}
  low: {{ .Config.Thresholds.Low }}

# Phase 1 totals below this trigger outreach
phase1_threshold: {{ .Config.Phase1Threshold }}
outreach_timeout: {{ .Config.OutreachTimeout }}
`

type configTemplateData struct {
	DBPath               string
	LedgerPath           string
	GiteaURL             string
	GiteaRepo            string
	OverpassEndpoint     string
	OverpassInterval     string
	RedisURL             string
	CacheTTL             string
	OutreachEnabled      bool
	OutreachPollInterval string
	AnthropicModel       string
	Config               config.Config
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Build template data from current viper values
	data := configTemplateData{
		DBPath:               viper.GetString("db_path"),
		LedgerPath:           viper.GetString("ledger_path"),
		GiteaURL:             viper.GetString("gitea.url"),
		GiteaRepo:            viper.GetString("gitea.repo"),
		OverpassEndpoint:     viper.GetString("overpass.endpoint"),
		OverpassInterval:     viper.GetDuration("overpass.interval").String(),
		RedisURL:             viper.GetString("cache.redis_url"),
		CacheTTL:             viper.GetDuration("cache.ttl").String(),
		OutreachEnabled:      viper.GetBool("outreach.enabled"),
		OutreachPollInterval: viper.GetDuration("outreach.poll_interval").String(),
		AnthropicModel:       viper.GetString("anthropic.model"),
		Config:               cfg,
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "db_path", EnvVar: "BTCTRIAGE_DB_PATH"},
	{Key: "ledger_path", EnvVar: "BTCTRIAGE_LEDGER_PATH"},
	{Key: "gitea.url", EnvVar: "BTCTRIAGE_GITEA_URL"},
	{Key: "gitea.repo", EnvVar: "BTCTRIAGE_GITEA_REPO"},
	{Key: "gitea.token", EnvVar: "BTCTRIAGE_GITEA_TOKEN"},
	{Key: "gitea.labels", EnvVar: "BTCTRIAGE_GITEA_LABELS"},
	{Key: "overpass.endpoint", EnvVar: "BTCTRIAGE_OVERPASS_ENDPOINT"},
	{Key: "overpass.interval", EnvVar: "BTCTRIAGE_OVERPASS_INTERVAL"},
	{Key: "cache.redis_url", EnvVar: "BTCTRIAGE_CACHE_REDIS_URL"},
	{Key: "cache.ttl", EnvVar: "BTCTRIAGE_CACHE_TTL"},
	{Key: "outreach.enabled", EnvVar: "BTCTRIAGE_OUTREACH_ENABLED"},
	{Key: "outreach.channels", EnvVar: "BTCTRIAGE_OUTREACH_CHANNELS"},
	{Key: "outreach.poll_interval", EnvVar: "BTCTRIAGE_OUTREACH_POLL_INTERVAL"},
	{Key: "anthropic.api_key", EnvVar: "BTCTRIAGE_ANTHROPIC_API_KEY"},
	{Key: "anthropic.model", EnvVar: "BTCTRIAGE_ANTHROPIC_MODEL"},
	{Key: "port", EnvVar: "BTCTRIAGE_PORT"},
	{Key: "weights.osm", EnvVar: "BTCTRIAGE_WEIGHTS_OSM"},
	{Key: "weights.website", EnvVar: "BTCTRIAGE_WEIGHTS_WEBSITE"},
	{Key: "weights.social", EnvVar: "BTCTRIAGE_WEIGHTS_SOCIAL"},
	{Key: "weights.crossref", EnvVar: "BTCTRIAGE_WEIGHTS_CROSSREF"},
	{Key: "weights.consistency", EnvVar: "BTCTRIAGE_WEIGHTS_CONSISTENCY"},
	{Key: "phase2_weights.email", EnvVar: "BTCTRIAGE_PHASE2_WEIGHTS_EMAIL"},
	{Key: "phase2_weights.social_dm", EnvVar: "BTCTRIAGE_PHASE2_WEIGHTS_SOCIAL_DM"},
	{Key: "thresholds.high", EnvVar: "BTCTRIAGE_THRESHOLDS_HIGH"},
	{Key: "thresholds.medium", EnvVar: "BTCTRIAGE_THRESHOLDS_MEDIUM"},
	{Key: "thresholds.low", EnvVar: "BTCTRIAGE_THRESHOLDS_LOW"},
	{Key: "phase1_threshold", EnvVar: "BTCTRIAGE_PHASE1_THRESHOLD"},
	{Key: "trusted_source_labels", EnvVar: "BTCTRIAGE_TRUSTED_SOURCE_LABELS"},
	{Key: "trusted_source_floor", EnvVar: "BTCTRIAGE_TRUSTED_SOURCE_FLOOR"},
	{Key: "conflict_penalty", EnvVar: "BTCTRIAGE_CONFLICT_PENALTY"},
	{Key: "denial_penalty", EnvVar: "BTCTRIAGE_DENIAL_PENALTY"},
	{Key: "outreach_timeout", EnvVar: "BTCTRIAGE_OUTREACH_TIMEOUT"},
	{Key: "social_recency_window", EnvVar: "BTCTRIAGE_SOCIAL_RECENCY_WINDOW"},
	{Key: "duplicate_radius_m", EnvVar: "BTCTRIAGE_DUPLICATE_RADIUS_M"},
	{Key: "retry.max_attempts", EnvVar: "BTCTRIAGE_RETRY_MAX_ATTEMPTS"},
	{Key: "retry.base_delay", EnvVar: "BTCTRIAGE_RETRY_BASE_DELAY"},
}

// secretKeys are masked by config show.
var secretKeys = map[string]bool{"gitea.token": true, "anthropic.api_key": true}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if secretKeys[k.Key] && viper.GetString(k.Key) != "" {
			val = "********"
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-24s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'btctriage config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
