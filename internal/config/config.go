// Package config defines the recognized server configuration and loads it
// from files and environment variables.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// StatusTimeouts are the thresholds classifying namespace health from the
// elapsed time since last activity.
type StatusTimeouts struct {
	Warning  time.Duration `mapstructure:"warning"`
	Inactive time.Duration `mapstructure:"inactive"`
}

// MessageLimits bounds inbound frames per client.
type MessageLimits struct {
	// MaxSize is the per-frame byte ceiling. Larger frames are dropped.
	MaxSize int64 `mapstructure:"maxSize"`
	// Interval is the sliding window length for frequency limiting.
	Interval time.Duration `mapstructure:"interval"`
	// MaxMessages is the number of accepted messages allowed per Interval.
	MaxMessages int `mapstructure:"maxMessages"`
}

// PublicAccess controls the unprivileged metrics view and the authorization
// bypass for whitelisted namespace paths.
type PublicAccess struct {
	Enabled bool `mapstructure:"enabled"`
	// Whitelisted entries are exact paths or prefix wildcards such as
	// "/api/1/ws/public/*".
	Whitelisted []string `mapstructure:"whitelisted"`
}

// UpgradeLimits throttles connection attempts at the HTTP handler.
type UpgradeLimits struct {
	PerSecond float64 `mapstructure:"perSecond"`
	Burst     int     `mapstructure:"burst"`
}

// Redis configures the optional distributed transport.
type Redis struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Config is the full recognized configuration.
type Config struct {
	Addr string `mapstructure:"addr"`

	PingInterval time.Duration `mapstructure:"pingInterval"`
	PongTimeout  time.Duration `mapstructure:"pongTimeout"`

	// Reconnect intervals are client guidance only; the server does not act
	// on them.
	ReconnectBaseInterval time.Duration `mapstructure:"reconnectBaseInterval"`
	ReconnectMaxInterval  time.Duration `mapstructure:"reconnectMaxInterval"`

	InstanceRegistryInterval time.Duration `mapstructure:"instanceRegistryInterval"`

	ActivityLogMaxSize    int `mapstructure:"activityLogMaxSize"`
	ActivityLogEntryBytes int `mapstructure:"activityLogEntryBytes"`

	StatusTimeouts StatusTimeouts `mapstructure:"statusTimeouts"`
	MessageLimits  MessageLimits  `mapstructure:"messageLimits"`
	PublicAccess   PublicAccess   `mapstructure:"publicAccess"`
	UpgradeLimits  UpgradeLimits  `mapstructure:"upgradeLimits"`
	Redis          Redis          `mapstructure:"redis"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Addr:                     ":8080",
		PingInterval:             25 * time.Second,
		PongTimeout:              60 * time.Second,
		ReconnectBaseInterval:    time.Second,
		ReconnectMaxInterval:     30 * time.Second,
		InstanceRegistryInterval: 15 * time.Second,
		ActivityLogMaxSize:       100,
		ActivityLogEntryBytes:    512,
		StatusTimeouts: StatusTimeouts{
			Warning:  5 * time.Minute,
			Inactive: 30 * time.Minute,
		},
		MessageLimits: MessageLimits{
			MaxSize:     65536,
			Interval:    10 * time.Second,
			MaxMessages: 50,
		},
		PublicAccess: PublicAccess{Enabled: false},
		UpgradeLimits: UpgradeLimits{
			PerSecond: 50,
			Burst:     100,
		},
		Redis: Redis{Addr: "localhost:6379"},
	}
}

// Load reads configuration from the given file (optional) and NSWIRE_*
// environment variables, layered over the defaults.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("NSWIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.PingInterval <= 0 || c.PongTimeout <= 0 {
		return errors.New("pingInterval and pongTimeout must be positive")
	}
	if c.ActivityLogMaxSize <= 0 || c.ActivityLogEntryBytes <= 0 {
		return errors.New("activity log bounds must be positive")
	}
	if c.MessageLimits.MaxSize <= 0 {
		return errors.New("messageLimits.maxSize must be positive")
	}
	if c.MessageLimits.MaxMessages <= 0 || c.MessageLimits.Interval <= 0 {
		return errors.New("messageLimits.maxMessages and interval must be positive")
	}
	if c.StatusTimeouts.Warning <= 0 || c.StatusTimeouts.Inactive <= c.StatusTimeouts.Warning {
		return errors.New("statusTimeouts.inactive must exceed statusTimeouts.warning")
	}
	return nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("addr", d.Addr)
	v.SetDefault("pingInterval", d.PingInterval)
	v.SetDefault("pongTimeout", d.PongTimeout)
	v.SetDefault("reconnectBaseInterval", d.ReconnectBaseInterval)
	v.SetDefault("reconnectMaxInterval", d.ReconnectMaxInterval)
	v.SetDefault("instanceRegistryInterval", d.InstanceRegistryInterval)
	v.SetDefault("activityLogMaxSize", d.ActivityLogMaxSize)
	v.SetDefault("activityLogEntryBytes", d.ActivityLogEntryBytes)
	v.SetDefault("statusTimeouts.warning", d.StatusTimeouts.Warning)
	v.SetDefault("statusTimeouts.inactive", d.StatusTimeouts.Inactive)
	v.SetDefault("messageLimits.maxSize", d.MessageLimits.MaxSize)
	v.SetDefault("messageLimits.interval", d.MessageLimits.Interval)
	v.SetDefault("messageLimits.maxMessages", d.MessageLimits.MaxMessages)
	v.SetDefault("publicAccess.enabled", d.PublicAccess.Enabled)
	v.SetDefault("publicAccess.whitelisted", d.PublicAccess.Whitelisted)
	v.SetDefault("upgradeLimits.perSecond", d.UpgradeLimits.PerSecond)
	v.SetDefault("upgradeLimits.burst", d.UpgradeLimits.Burst)
	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
}
