// Package config loads and validates Qguardarr's YAML configuration and
// holds the process-wide singleton flags used by the cmd/ package, the way
// the teacher's config package exposes ConfigFile/LockFile/VerboseLevel to
// cmd.go.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/mrInvincible29/Qguardarr/apperr"
)

// Process-wide CLI flags, set by cmd/ before Execute() runs.
var (
	VerboseLevel = 0
	ConfigDir    = ""
	ConfigFile   = ""
	LockFile     = ""
)

const CatchAllPattern = ".*"

// Version is set at build time via -ldflags; "dev" otherwise.
var Version = "dev"

type GlobalSettings struct {
	UpdateInterval            int     `mapstructure:"update_interval"`
	ActiveTorrentThresholdKB  int     `mapstructure:"active_torrent_threshold_kb"`
	MaxAPICallsPerCycle       int     `mapstructure:"max_api_calls_per_cycle"`
	DifferentialThreshold     float64 `mapstructure:"differential_threshold"`
	RolloutPercentage         int     `mapstructure:"rollout_percentage"`
	Host                      string  `mapstructure:"host"`
	Port                      int     `mapstructure:"port"`
	AllocationStrategy        string  `mapstructure:"allocation_strategy"`
	MaxManagedTorrents        int     `mapstructure:"max_managed_torrents"`
	CacheTTLSeconds           int     `mapstructure:"cache_ttl_seconds"`
	DryRun                    bool    `mapstructure:"dry_run"`
	DryRunStorePath           string  `mapstructure:"dry_run_store_path"`
	AutoUnlimitOnInactive     bool    `mapstructure:"auto_unlimit_on_inactive"`
	BorrowThresholdRatio      float64 `mapstructure:"borrow_threshold_ratio"`
	MaxBorrowFraction         float64 `mapstructure:"max_borrow_fraction"`
	SmoothingAlpha            float64 `mapstructure:"smoothing_alpha"`
	MinEffectiveDelta         float64 `mapstructure:"min_effective_delta"`
}

type QBittorrentSettings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Timeout  int    `mapstructure:"timeout"`
}

type CrossSeedSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"`
}

type RollbackSettings struct {
	DatabasePath    string `mapstructure:"database_path"`
	TrackAllChanges bool   `mapstructure:"track_all_changes"`
}

type LoggingSettings struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	BackupCount int   `mapstructure:"backup_count"`
}

// TrackerConfig is one entry of the ordered tracker pattern list. The catch-all
// entry (Pattern == ".*") must be last.
type TrackerConfig struct {
	ID             string `mapstructure:"id"`
	Name           string `mapstructure:"name"`
	Pattern        string `mapstructure:"pattern"`
	MaxUploadSpeed int64  `mapstructure:"max_upload_speed"`
	Priority       int    `mapstructure:"priority"`
}

// Config is the fully parsed and validated Qguardarr configuration.
type Config struct {
	Global      GlobalSettings      `mapstructure:"global"`
	QBittorrent QBittorrentSettings `mapstructure:"qbittorrent"`
	CrossSeed   CrossSeedSettings   `mapstructure:"cross_seed"`
	Trackers    []TrackerConfig     `mapstructure:"trackers"`
	Rollback    RollbackSettings    `mapstructure:"rollback"`
	Logging     LoggingSettings     `mapstructure:"logging"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("global.update_interval", 300)
	v.SetDefault("global.active_torrent_threshold_kb", 10)
	v.SetDefault("global.max_api_calls_per_cycle", 500)
	v.SetDefault("global.differential_threshold", 0.2)
	v.SetDefault("global.rollout_percentage", 100)
	v.SetDefault("global.host", "0.0.0.0")
	v.SetDefault("global.port", 8089)
	v.SetDefault("global.allocation_strategy", "equal")
	v.SetDefault("global.max_managed_torrents", 1000)
	v.SetDefault("global.cache_ttl_seconds", 1800)
	v.SetDefault("global.dry_run", false)
	v.SetDefault("global.dry_run_store_path", "./data/dry_run.json")
	v.SetDefault("global.auto_unlimit_on_inactive", true)
	v.SetDefault("global.borrow_threshold_ratio", 0.9)
	v.SetDefault("global.max_borrow_fraction", 0.5)
	v.SetDefault("global.smoothing_alpha", 0.4)
	v.SetDefault("global.min_effective_delta", 0.1)

	v.SetDefault("qbittorrent.host", "localhost")
	v.SetDefault("qbittorrent.port", 8080)
	v.SetDefault("qbittorrent.timeout", 30)

	v.SetDefault("cross_seed.timeout", 15)

	v.SetDefault("rollback.database_path", "./data/rollback.db")
	v.SetDefault("rollback.track_all_changes", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "./logs/qguardarr.log")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.backup_count", 5)
}

// Load reads and validates the configuration file at path, substituting
// ${VAR}/$VAR environment references into the raw bytes before parsing, the
// way the teacher's config layer post-processes raw values after reading.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.NewConfigError("read config file", err)
	}
	expanded := os.Expand(string(raw), func(name string) string {
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return "${" + name + "}"
	})

	v := viper.New()
	v.SetConfigType("yaml")
	defaults(v)
	if err := v.ReadConfig(strings.NewReader(expanded)); err != nil {
		return nil, apperr.NewConfigError("parse yaml", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperr.NewConfigError("unmarshal config", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the invariants spec.md §3(iv) and §6 place on tracker
// ordering and uniqueness.
func Validate(cfg *Config) error {
	if len(cfg.Trackers) == 0 {
		return apperr.NewConfigError("at least one tracker must be configured", nil)
	}
	seen := make(map[string]bool, len(cfg.Trackers))
	catchAllIdx := -1
	for i, t := range cfg.Trackers {
		if seen[t.ID] {
			return apperr.NewConfigError(fmt.Sprintf("duplicate tracker id %q", t.ID), nil)
		}
		seen[t.ID] = true
		if t.Pattern == CatchAllPattern {
			catchAllIdx = i
		}
	}
	if catchAllIdx == -1 {
		return apperr.NewConfigError("a catch-all tracker with pattern \".*\" must be configured", nil)
	}
	if catchAllIdx != len(cfg.Trackers)-1 {
		return apperr.NewConfigError("catch-all pattern \".*\" must be the last tracker", nil)
	}
	switch cfg.Global.AllocationStrategy {
	case "equal", "weighted", "soft":
	default:
		return apperr.NewConfigError(fmt.Sprintf("unknown allocation_strategy %q", cfg.Global.AllocationStrategy), nil)
	}
	return nil
}

// Watcher wraps viper's file watch to reload the configuration whenever the
// file changes (the /config/reload endpoint uses Reload instead); the core
// never depends on it directly, it only receives freshly-loaded *Config
// values through onChange.
type Watcher struct {
	mu   sync.Mutex
	path string
	v    *viper.Viper
}

func NewWatcher(path string, onChange func(*Config, error)) *Watcher {
	w := &Watcher{path: path, v: viper.New()}
	w.v.SetConfigFile(path)
	w.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := Load(path)
		onChange(cfg, err)
	})
	return w
}

func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.v.WatchConfig()
}

// Reload re-reads and validates the configuration file synchronously; used
// by the HTTP /config/reload handler.
func Reload(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		log.Warnf("config reload failed: %v", err)
		return nil, err
	}
	return cfg, nil
}
