package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/maxiofs/headerauth/internal/headerauth"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides, e.g.
// HEADERAUTH_HEADER_AUTH_SHARED_SECRET
const EnvPrefix = "HEADERAUTH"

// Config holds all configuration for headerauth
type Config struct {
	// Server configuration
	Listen   string `mapstructure:"listen" validate:"required"`
	DataDir  string `mapstructure:"data_dir" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=trace debug info warn warning error fatal panic"`

	// Header authentication
	HeaderAuth HeaderAuthConfig `mapstructure:"header_auth"`

	// Identity sync
	Sync SyncConfig `mapstructure:"sync"`

	// Identity repository
	Storage StorageConfig `mapstructure:"storage"`

	// Metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Log forwarding
	Logging LoggingConfig `mapstructure:"logging"`
}

// HeaderAuthConfig defines the trusted proxy contract
type HeaderAuthConfig struct {
	SharedSecret               string `mapstructure:"shared_secret"`
	AllowEmptySharedSecret     bool   `mapstructure:"allow_empty_shared_secret"`
	RemoteUserHeader           string `mapstructure:"remote_user_header" validate:"required"`
	UsernameWhitelist          string `mapstructure:"username_whitelist"`
	UserProfileHeaderWhitelist string `mapstructure:"user_profile_header_whitelist"`
	LoginCookie                string `mapstructure:"login_cookie"`
}

// SyncConfig names the collaborators used for identity sync
type SyncConfig struct {
	HandlerName string `mapstructure:"handler_name" validate:"required"`
	IDPName     string `mapstructure:"idp_name" validate:"required"`
}

// StorageConfig selects the identity repository backend
type StorageConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=badger pebble sqlite"`
}

// MetricsConfig defines metrics configuration
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path" validate:"omitempty,startswith=/"`
}

// LoggingConfig lists log forwarding targets
type LoggingConfig struct {
	Targets []LogTargetConfig `mapstructure:"targets" validate:"dive"`
}

// LogTargetConfig describes one syslog or http forwarding target
type LogTargetConfig struct {
	Name          string `mapstructure:"name" validate:"required"`
	Type          string `mapstructure:"type" validate:"oneof=syslog http"`
	Level         string `mapstructure:"level"`
	Protocol      string `mapstructure:"protocol" validate:"omitempty,oneof=tcp udp"`
	Host          string `mapstructure:"host" validate:"required_if=Type syslog"`
	Port          int    `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Tag           string `mapstructure:"tag"`
	URL           string `mapstructure:"url" validate:"required_if=Type http"`
	AuthToken     string `mapstructure:"auth_token"`
	BatchSize     int    `mapstructure:"batch_size" validate:"gte=0"`
	FlushInterval int    `mapstructure:"flush_interval" validate:"gte=0"`
}

// Settings converts the header auth section into extractor settings
func (c *Config) Settings() headerauth.Settings {
	return headerauth.Settings{
		SharedSecret:           c.HeaderAuth.SharedSecret,
		AllowEmptySharedSecret: c.HeaderAuth.AllowEmptySharedSecret,
		RemoteUserHeader:       c.HeaderAuth.RemoteUserHeader,
		UsernameWhitelist:      c.HeaderAuth.UsernameWhitelist,
		ProfileHeaderWhitelist: c.HeaderAuth.UserProfileHeaderWhitelist,
		LoginCookie:            c.HeaderAuth.LoginCookie,
	}
}

// Snapshot builds an immutable extractor snapshot from the configuration
func (c *Config) Snapshot() (*headerauth.Snapshot, error) {
	return headerauth.NewSnapshot(c.Settings())
}

// Loader reads configuration and keeps watching the config file for changes
type Loader struct {
	v       *viper.Viper
	mu      sync.RWMutex
	current *Config
}

// Load loads configuration from various sources
func Load(cmd *cobra.Command) (*Config, error) {
	l, err := NewLoader(cmd)
	if err != nil {
		return nil, err
	}
	return l.Config(), nil
}

// NewLoader reads defaults, flags, the optional config file and environment
func NewLoader(cmd *cobra.Command) (*Loader, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Bind command line flags
	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	// Read from config file if specified
	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Read from environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	l := &Loader{v: v}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Config returns the last valid configuration
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Watch calls fn after every config file change. fn receives the new
// configuration, or the error that kept the previous one in place. Without
// a config file there is nothing to watch.
func (l *Loader) Watch(fn func(*Config, error)) {
	if l.v.ConfigFileUsed() == "" {
		logrus.Debug("No config file in use, configuration reload disabled")
		return
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		logrus.WithField("file", e.Name).Info("Configuration file changed")
		fn(l.reload())
	})
	l.v.WatchConfig()
}

func (l *Loader) reload() (*Config, error) {
	cfg, err := l.load()
	if err != nil {
		logrus.WithError(err).Error("Ignoring invalid configuration change")
		return nil, err
	}

	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

func (l *Loader) load() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("listen", ":8080")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("log_level", "info")

	// Header auth defaults. The shared secret is empty on purpose: with
	// allow_empty_shared_secret off, nothing authenticates until it is set.
	v.SetDefault("header_auth.shared_secret", "")
	v.SetDefault("header_auth.allow_empty_shared_secret", false)
	v.SetDefault("header_auth.remote_user_header", headerauth.DefaultRemoteUserHeader)
	v.SetDefault("header_auth.username_whitelist", headerauth.DefaultUsernameWhitelist)
	v.SetDefault("header_auth.user_profile_header_whitelist", headerauth.DefaultProfileHeaderWhitelist)
	v.SetDefault("header_auth.login_cookie", headerauth.DefaultLoginCookie)

	// Sync defaults
	v.SetDefault("sync.handler_name", "default")
	v.SetDefault("sync.idp_name", "HeaderExternalIdentityProvider")

	// Storage defaults
	v.SetDefault("storage.backend", "badger")

	// Metrics defaults
	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"listen":          "listen",
		"data-dir":        "data_dir",
		"log-level":       "log_level",
		"storage-backend": "storage.backend",
	}

	for flag, key := range flags {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}

	return nil
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

func validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return err
	}

	// Both patterns must compile
	if _, err := cfg.Snapshot(); err != nil {
		return err
	}

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if cfg.HeaderAuth.SharedSecret == "" && !cfg.HeaderAuth.AllowEmptySharedSecret {
		logrus.Warn("header_auth.shared_secret is empty, all header logins will be rejected")
	}

	return nil
}
