package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	// DatabasePath is the SQLite file backing the service registry and
	// verified identity links.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	// UserSalt feeds the anonymous connection key derivation. Connections
	// cannot be correlated across deployments using different salts.
	UserSalt string `mapstructure:"user_salt" yaml:"user_salt"`

	// AdminKey is the static bearer credential for the admin endpoints.
	AdminKey string `mapstructure:"admin_key" yaml:"admin_key"`

	ModerationAPIKey   string        `mapstructure:"moderation_api_key" yaml:"moderation_api_key"`
	ModerationEndpoint string        `mapstructure:"moderation_endpoint" yaml:"moderation_endpoint"`
	ModerationCooldown time.Duration `mapstructure:"moderation_cooldown" yaml:"moderation_cooldown"`
	ModerationQueueCap int           `mapstructure:"moderation_queue_cap" yaml:"moderation_queue_cap"`

	// MaxMessageBytes caps a single streaming payload.
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`

	MailboxTTL   time.Duration `mapstructure:"mailbox_ttl" yaml:"mailbox_ttl"`
	MailboxSweep time.Duration `mapstructure:"mailbox_sweep" yaml:"mailbox_sweep"`

	// EchoRatePerSecond caps /echo requests per trusted client address.
	EchoRatePerSecond int `mapstructure:"echo_rate_per_second" yaml:"echo_rate_per_second"`

	// ResolverBaseURL points at the external username/profile API.
	ResolverBaseURL string `mapstructure:"resolver_base_url" yaml:"resolver_base_url"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",

		DatabasePath: "relay.db",

		ModerationEndpoint: "https://commentanalyzer.googleapis.com/v1alpha1/comments:analyze",
		ModerationCooldown: time.Second,
		ModerationQueueCap: 100,

		MaxMessageBytes:   1024,
		HeartbeatInterval: 30 * time.Second,

		MailboxTTL:   5 * time.Second,
		MailboxSweep: 5 * time.Second,

		EchoRatePerSecond: 5,

		ResolverBaseURL: "https://users.roblox.com",
	}
}
