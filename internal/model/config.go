package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// IMAPConfig holds the connection settings for the remote mailbox.
type IMAPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Mailbox  string `mapstructure:"mailbox" yaml:"mailbox"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`
}

// ArchiveConfig holds the local storage layout settings.
type ArchiveConfig struct {
	// DataRoot is the base directory for archived mail, review records,
	// the message index and log files.
	DataRoot string `mapstructure:"data_root" yaml:"data_root"`
}

// FilterConfig holds the exclusion rule set. Missing keys mean "no rules
// of that kind"; the pipeline still produces a verdict for every message.
type FilterConfig struct {
	// BlockedExtensions lists attachment extensions that exclude a
	// message outright. Matching is case-insensitive.
	BlockedExtensions []string `mapstructure:"blocked_extensions" yaml:"blocked_extensions"`

	// Keywords is the ordered blocklist tested against normalized
	// subject and body text.
	Keywords []string `mapstructure:"keywords" yaml:"keywords"`
}

// NormalizationConfig toggles the individual text normalization steps.
type NormalizationConfig struct {
	ToHalfWidth bool `mapstructure:"to_half_width" yaml:"to_half_width"`
	UnifyKana   bool `mapstructure:"unify_kana" yaml:"unify_kana"`
	TrimSpaces  bool `mapstructure:"trim_spaces" yaml:"trim_spaces"`
}

// ScheduleConfig controls the periodic fetch job.
type ScheduleConfig struct {
	// Times lists local wall-clock times ("15:04") at which a fetch run
	// starts. Ignored when IntervalSec is set.
	Times []string `mapstructure:"times" yaml:"times"`

	// IntervalSec runs the job on a fixed interval instead of at fixed
	// times; useful for verifying a new deployment.
	IntervalSec int `mapstructure:"interval_sec" yaml:"interval_sec"`

	// Limit caps how many messages one scheduled run fetches.
	Limit int `mapstructure:"limit" yaml:"limit"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	IMAP          IMAPConfig          `mapstructure:"imap" yaml:"imap"`
	Archive       ArchiveConfig       `mapstructure:"archive" yaml:"archive"`
	Filter        FilterConfig        `mapstructure:"filter" yaml:"filter"`
	Normalization NormalizationConfig `mapstructure:"normalization" yaml:"normalization"`
	Schedule      ScheduleConfig      `mapstructure:"schedule" yaml:"schedule"`
}

// ArchiveDir returns the directory holding archived message text files.
func (c *AppConfig) ArchiveDir() string {
	return filepath.Join(c.Archive.DataRoot, "mail_archive", "imap")
}

// ReviewDir returns the directory holding exclusion review CSV files.
func (c *AppConfig) ReviewDir() string {
	return filepath.Join(c.Archive.DataRoot, "review")
}

// LogDir returns the directory holding per-day log files.
func (c *AppConfig) LogDir() string {
	return filepath.Join(c.Archive.DataRoot, "mail_archive", "logs")
}

// IndexPath returns the path of the sqlite message index.
func (c *AppConfig) IndexPath() string {
	return filepath.Join(c.Archive.DataRoot, "mailsift.db")
}

// EnsureDirs creates the data directories so a first run does not fail
// on a missing path.
func (c *AppConfig) EnsureDirs() error {
	for _, d := range []string{c.ArchiveDir(), c.ReviewDir(), c.LogDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("creating data directory %s: %w", d, err)
		}
	}
	return nil
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailsift/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailsift", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		IMAP: IMAPConfig{
			Port:    "993",
			Mailbox: "INBOX",
			TLS:     true,
		},
		Archive: ArchiveConfig{
			DataRoot: "./data",
		},
		Normalization: NormalizationConfig{
			ToHalfWidth: true,
			UnifyKana:   true,
			TrimSpaces:  true,
		},
		Schedule: ScheduleConfig{
			Times: []string{"10:00", "13:00", "16:00"},
			Limit: 20,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration. Missing
// keys resolve to defaults, so a partial config is always usable.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("imap.port", "993")
	v.SetDefault("imap.mailbox", "INBOX")
	v.SetDefault("imap.tls", true)
	v.SetDefault("archive.data_root", "./data")
	v.SetDefault("normalization.to_half_width", true)
	v.SetDefault("normalization.unify_kana", true)
	v.SetDefault("normalization.trim_spaces", true)
	v.SetDefault("schedule.times", []string{"10:00", "13:00", "16:00"})
	v.SetDefault("schedule.limit", 20)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
