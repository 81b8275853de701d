package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/google/renameio/v2"

	"gameboost/internal/maps"
)

// Configuration sources, later ones win:
// - DefaultConfig()
// - TOML file given with -config
// - GAMEBOOST_* environment variables
// - command-line flags

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "GAMEBOOST_"

// AppConfig represents the complete application configuration
type AppConfig struct {
	// Server configuration
	Server ServerConfig `toml:"server"`

	// Session engine configuration, read at each activation
	Session SessionConfig `toml:"session" envPrefix:"SESSION_"`

	// Auto-detect trigger configuration
	Detector DetectorConfig `toml:"detector" envPrefix:"DETECTOR_"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Listen address for the control API and metrics (default: "localhost:9189")
	ListenAddress string `toml:"listen_address" env:"LISTEN_ADDRESS"`

	// Metrics endpoint path (default: "/metrics")
	MetricsPath string `toml:"metrics_path" env:"METRICS_PATH"`

	// Serve /debug/pprof on the same listener (default: false)
	PprofEnabled bool `toml:"pprof_enabled" env:"PPROF_ENABLED"`
}

// SessionConfig is what an activation snapshots.
type SessionConfig struct {
	// Process groups suspended while a session is active
	Groups []GroupConfig `toml:"groups"`

	// Tweaks applied while a session is active
	Tweaks TweaksConfig `toml:"tweaks" envPrefix:"TWEAKS_"`

	// Power scheme GUIDs tried in order (default: Ultimate Performance, High Performance)
	PowerPlans []string `toml:"power_plans" env:"POWER_PLANS" envSeparator:","`

	// Executables never trimmed by memory_trim
	TrimExclude []string `toml:"trim_exclude" env:"TRIM_EXCLUDE" envSeparator:","`

	// Maximum parallel primitive calls per pass (default: 8)
	Concurrency int `toml:"concurrency" env:"CONCURRENCY"`

	// Suspension registry map: "xsync", "cornelk" or "sync" (default: xsync)
	RegistryMap string `toml:"registry_map" env:"REGISTRY_MAP"`
}

// GroupConfig is one named process group.
type GroupConfig struct {
	Name     string   `toml:"name"`
	Patterns []string `toml:"patterns"`
	Enabled  bool     `toml:"enabled"`

	// Display order only
	Priority int `toml:"priority"`
}

// TweaksConfig selects the reversible system tweaks.
type TweaksConfig struct {
	MemoryTrim  bool `toml:"memory_trim" env:"MEMORY_TRIM"`
	PowerPlan   bool `toml:"power_plan" env:"POWER_PLAN"`
	Network     bool `toml:"network" env:"NETWORK"`
	GPUPriority bool `toml:"gpu_priority" env:"GPU_PRIORITY"`
}

// DetectorConfig contains auto-detect settings.
type DetectorConfig struct {
	// Poll process snapshots for known games (default: false)
	Enabled bool `toml:"enabled" env:"ENABLED"`

	// Poll interval (default: "5s")
	Interval time.Duration `toml:"interval" env:"INTERVAL"`

	// Deactivate when the last detected game exits, if the detector started
	// the session (default: true)
	AutoDeactivate bool `toml:"auto_deactivate" env:"AUTO_DEACTIVATE"`

	// YAML game catalog replacing the built-in one (default: "" = built-in)
	Catalog string `toml:"catalog" env:"CATALOG"`
}

// LoggingConfig contains the complete logging configuration
type LoggingConfig struct {
	// Default logging settings applied to all loggers
	Defaults LogDefaults `toml:"defaults"`

	// Output configurations - can have multiple outputs
	Outputs []LogOutput `toml:"outputs"`

	// Per-component level overrides, e.g. session = "debug"
	Components map[string]string `toml:"components,omitempty"`
}

// LogDefaults contains default logger settings
type LogDefaults struct {
	// Log level (default: "info")
	Level string `toml:"level" env:"LOG_LEVEL"`

	// Include caller information (default: 0)
	Caller int `toml:"caller"`

	// Time field name (default: "time")
	TimeField string `toml:"time_field"`

	// Time format (default: "" = RFC3339 with milliseconds)
	TimeFormat string `toml:"time_format"`

	// Time zone (default: "Local")
	TimeLocation string `toml:"time_location"`
}

// LogOutput represents a single output configuration
type LogOutput struct {
	// Output type: "console", "file", "syslog", "eventlog"
	Type string `toml:"type"`

	// Enable this output (default: true)
	Enabled bool `toml:"enabled"`

	// Configuration specific to the output type
	Console  *ConsoleConfig  `toml:"console,omitempty"`
	File     *FileConfig     `toml:"file,omitempty"`
	Syslog   *SyslogConfig   `toml:"syslog,omitempty"`
	Eventlog *EventlogConfig `toml:"eventlog,omitempty"`
}

// ConsoleConfig contains console/terminal output settings
type ConsoleConfig struct {
	// Use fast JSON output (default: false)
	FastIO bool `toml:"fast_io"`

	// Output format when fast_io=false (default: "auto")
	Format string `toml:"format"`

	// Enable colored output (default: true)
	ColorOutput bool `toml:"color_output"`

	// Quote string values (default: true)
	QuoteString bool `toml:"quote_string"`

	// Output destination (default: "stderr")
	Writer string `toml:"writer"`

	// Use asynchronous writing (default: false)
	Async bool `toml:"async"`
}

// FileConfig contains file output settings
type FileConfig struct {
	// Log file path (required)
	Filename string `toml:"filename"`

	// Maximum file size in megabytes (default: 10)
	MaxSize int64 `toml:"max_size"`

	// Maximum number of old log files to keep (default: 7)
	MaxBackups int `toml:"max_backups"`

	// Time format for rotated filenames (default: "2006-01-02T15-04-05")
	TimeFormat string `toml:"time_format"`

	// Use local time for rotation timestamps (default: true)
	LocalTime bool `toml:"local_time"`

	// Include hostname in filename (default: true)
	HostName bool `toml:"host_name"`

	// Include process ID in filename (default: true)
	ProcessID bool `toml:"process_id"`

	// Create directory if it doesn't exist (default: true)
	EnsureFolder bool `toml:"ensure_folder"`

	// Use asynchronous writing (default: true)
	Async bool `toml:"async"`
}

// SyslogConfig contains syslog output settings
type SyslogConfig struct {
	// Network protocol (default: "udp")
	Network string `toml:"network"`

	// Syslog server address (default: "localhost:514")
	Address string `toml:"address"`

	// Hostname for syslog messages (default: system hostname)
	Hostname string `toml:"hostname"`

	// Syslog tag/program name (default: "gameboost")
	Tag string `toml:"tag"`

	// Message prefix marker (default: "@cee:")
	Marker string `toml:"marker"`

	// Use asynchronous writing (default: true)
	Async bool `toml:"async"`
}

// EventlogConfig contains Windows Event Log settings
type EventlogConfig struct {
	// Event source name (default: "GameBoost")
	Source string `toml:"source"`

	// Event ID for log entries (default: 1000)
	ID int `toml:"id"`

	// Target host (default: local machine)
	Host string `toml:"host"`

	// Use asynchronous writing (default: false)
	Async bool `toml:"async"`
}

// Power scheme GUIDs offered as defaults.
const (
	UltimatePerformancePlan = "e9a42b02-d5df-448d-aa00-03f14749eb61"
	HighPerformancePlan     = "8c5e7fda-e8bf-4a96-9a85-a6e23a8c635c"
)

// DefaultGroups returns the built-in process groups.
func DefaultGroups() []GroupConfig {
	return []GroupConfig{
		{
			Name:     "explorer",
			Patterns: []string{"explorer.exe"},
			Enabled:  true,
			Priority: 0,
		},
		{
			Name: "browsers",
			Patterns: []string{
				"chrome.exe", "firefox.exe", "msedge.exe", "opera.exe", "brave.exe",
				"vivaldi.exe", "waterfox.exe", "iexplore.exe", "safari.exe",
				"chrome_crashpad_handler.exe", "firefox_crashpad_handler.exe",
			},
			Enabled:  true,
			Priority: 1,
		},
		{
			Name: "launchers",
			Patterns: []string{
				"steam.exe", "steamwebhelper.exe", "steamservice.exe",
				"EpicGamesLauncher.exe", "EpicWebHelper.exe",
				"Battle.net.exe", "Agent.exe",
				"EADesktop.exe", "EABackgroundService.exe", "Origin.exe",
				"UbisoftConnect.exe", "upc.exe",
				"GalaxyClient.exe", "GalaxyClientService.exe",
				"XboxPcApp.exe", "XboxPcAppFT.exe",
				"Rockstar-Launcher.exe",
				"RiotClientServices.exe",
			},
			Enabled:  true,
			Priority: 2,
		},
		{
			Name: "background",
			Patterns: []string{
				"Discord.exe", "Slack.exe", "Teams.exe", "Zoom.exe", "Skype.exe",
				"Spotify.exe", "iTunes.exe",
				"OneDrive.exe", "Dropbox.exe", "GoogleDriveFS.exe",
				"iCUE.exe", "NZXT CAM.exe", "RazerCentral.exe",
			},
			Enabled:  false,
			Priority: 3,
		},
	}
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			ListenAddress: "localhost:9189",
			MetricsPath:   "/metrics",
			PprofEnabled:  false,
		},
		Session: SessionConfig{
			Groups: DefaultGroups(),
			Tweaks: TweaksConfig{
				MemoryTrim:  true,
				PowerPlan:   true,
				Network:     true,
				GPUPriority: true,
			},
			PowerPlans:  []string{UltimatePerformancePlan, HighPerformancePlan},
			TrimExclude: []string{},
			Concurrency: 8,
			RegistryMap: string(maps.DefaultBackend),
		},
		Detector: DetectorConfig{
			Enabled:        false,
			Interval:       5 * time.Second,
			AutoDeactivate: true,
		},
		Logging: LoggingConfig{
			Defaults: LogDefaults{
				Level:        "info",
				Caller:       0,
				TimeField:    "time",
				TimeFormat:   "",
				TimeLocation: "Local",
			},
			Outputs: []LogOutput{
				{
					Type:    "console",
					Enabled: true,
					Console: &ConsoleConfig{
						FastIO:      false,
						Format:      "auto",
						ColorOutput: true,
						QuoteString: true,
						Writer:      "stderr",
						Async:       false,
					},
				},
				{
					Type:    "file",
					Enabled: false,
					File: &FileConfig{
						Filename:     "logs/gameboost.log",
						MaxSize:      10, // 10MB
						MaxBackups:   7,
						TimeFormat:   "2006-01-02T15-04-05",
						LocalTime:    true,
						HostName:     true,
						ProcessID:    true,
						EnsureFolder: true,
						Async:        true,
					},
				},
				{
					Type:    "syslog",
					Enabled: false,
					Syslog: &SyslogConfig{
						Network:  "udp",
						Address:  "localhost:514",
						Tag:      "gameboost",
						Hostname: "", // Uses system hostname by default
						Marker:   "@cee:",
						Async:    true,
					},
				},
				{
					Type:    "eventlog",
					Enabled: false,
					Eventlog: &EventlogConfig{
						Source: "GameBoost",
						ID:     1000,
						Host:   "",
						Async:  false,
					},
				},
			},
		},
	}
}

// LoadConfig loads configuration from a TOML file, falling back to defaults
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		return config, fmt.Errorf("config file not found: %s", configPath)
	}

	// Arrays in the file replace the defaults instead of merging into them.
	config.Session.Groups = nil
	meta, err := toml.DecodeFile(configPath, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	if !meta.IsDefined("session", "groups") {
		config.Session.Groups = DefaultGroups()
	}

	return config, nil
}

// ApplyEnv overlays GAMEBOOST_* environment variables onto config.
func ApplyEnv(config *AppConfig) error {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func encode(config *AppConfig) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return nil, fmt.Errorf("failed to encode config to TOML: %w", err)
	}
	return buf.Bytes(), nil
}

// SaveConfig atomically replaces configPath with config.
func SaveConfig(configPath string, config *AppConfig) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := encode(config)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configPath, err)
	}
	return nil
}

const exampleHeader = `# GameBoost Example Configuration
# This file is auto-generated and serves as an example configuration.
# Copy this file to create your own configuration and modify as needed.
# Every value can also be set through GAMEBOOST_* environment variables.
#
# Format: TOML (Tom's Obvious, Minimal Language)

`

// GenerateExampleConfig generates a TOML configuration file with default values
func GenerateExampleConfig(outputPath string) error {
	data, err := encode(DefaultConfig())
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(outputPath, append([]byte(exampleHeader), data...), 0o644); err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	return nil
}

// Validate checks the configuration for errors
func (c *AppConfig) Validate() error {
	if c.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address cannot be empty")
	}
	if c.Server.MetricsPath == "" || !strings.HasPrefix(c.Server.MetricsPath, "/") {
		return fmt.Errorf("server.metrics_path must start with '/'")
	}

	seen := make(map[string]bool, len(c.Session.Groups))
	for i, g := range c.Session.Groups {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			return fmt.Errorf("session.groups[%d].name cannot be empty", i)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return fmt.Errorf("session.groups: duplicate group name %q", g.Name)
		}
		seen[key] = true
		if len(g.Patterns) == 0 {
			return fmt.Errorf("session.groups[%s] has no patterns", g.Name)
		}
		for _, p := range g.Patterns {
			if strings.TrimSpace(p) == "" {
				return fmt.Errorf("session.groups[%s] has an empty pattern", g.Name)
			}
		}
	}
	for _, id := range c.Session.PowerPlans {
		if strings.Trim(strings.TrimSpace(id), "{}") == "" {
			return fmt.Errorf("session.power_plans cannot contain empty ids")
		}
	}
	if c.Session.Concurrency < 1 {
		return fmt.Errorf("session.concurrency must be at least 1")
	}
	if _, err := maps.ParseBackend(c.Session.RegistryMap); err != nil {
		return fmt.Errorf("session.registry_map: %w", err)
	}

	if c.Detector.Enabled && c.Detector.Interval <= 0 {
		return fmt.Errorf("detector.interval must be positive")
	}
	if c.Detector.Enabled && c.Detector.Catalog != "" {
		if _, err := os.Stat(c.Detector.Catalog); err != nil {
			return fmt.Errorf("detector.catalog: %w", err)
		}
	}

	if !validLogLevel(c.Logging.Defaults.Level) {
		return fmt.Errorf("logging.defaults.level: unknown level %q", c.Logging.Defaults.Level)
	}
	for component, level := range c.Logging.Components {
		if !validLogLevel(level) {
			return fmt.Errorf("logging.components.%s: unknown level %q", component, level)
		}
	}

	hasEnabledOutput := false
	for _, output := range c.Logging.Outputs {
		if output.Enabled {
			hasEnabledOutput = true
			break
		}
	}
	if !hasEnabledOutput {
		return fmt.Errorf("at least one logging output must be enabled")
	}

	return nil
}

// LogLevels lists the accepted level names. Empty means info.
var LogLevels = []string{"trace", "debug", "info", "warn", "warning", "error", "fatal"}

func validLogLevel(level string) bool {
	level = strings.ToLower(strings.TrimSpace(level))
	return level == "" || slices.Contains(LogLevels, level)
}

// Flags holds the command-line flags
type Flags struct {
	ListenAddress  string
	MetricsPath    string
	ConfigPath     string
	GenerateConfig string
}

// NewConfig creates a new configuration by parsing flags, loading the config
// file and applying the environment. A nil config with a nil error means the
// program should exit cleanly. The returned path is the config file in use.
func NewConfig() (*AppConfig, string, error) {
	flags := &Flags{}

	flag.StringVar(&flags.ListenAddress,
		"web.listen-address",
		"localhost:9189",
		"Address to listen on for the control API and telemetry.")
	flag.StringVar(&flags.MetricsPath,
		"web.telemetry-path",
		"/metrics",
		"Path under which to expose metrics.")
	flag.StringVar(&flags.ConfigPath,
		"config",
		"",
		"Path to configuration file (optional).")
	flag.StringVar(&flags.GenerateConfig,
		"generate-config",
		"",
		"Generate example config file to specified path and exit.")
	flag.Parse()

	if flags.GenerateConfig != "" {
		if err := GenerateExampleConfig(flags.GenerateConfig); err != nil {
			return nil, "", fmt.Errorf("error generating example config: %w", err)
		}
		fmt.Printf("Generated %s successfully\n", flags.GenerateConfig)
		return nil, "", nil
	}

	config, err := Load(flags.ConfigPath)
	if err != nil {
		return nil, "", err
	}

	ApplyFlags(config)

	if err := config.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}

	return config, flags.ConfigPath, nil
}

// Load reads the file (if any) and applies the environment, without
// validating. It is shared by startup and the file watcher.
func Load(configPath string) (*AppConfig, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyFlags copies the -web.* flags given on the command line over c.
// Flags win over the file and the environment, on startup and on reload.
func ApplyFlags(c *AppConfig) { applyFlagOverrides(flag.CommandLine, c) }

func applyFlagOverrides(fs *flag.FlagSet, c *AppConfig) {
	if !fs.Parsed() {
		return
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "web.listen-address":
			c.Server.ListenAddress = f.Value.String()
		case "web.telemetry-path":
			c.Server.MetricsPath = f.Value.String()
		}
	})
}
