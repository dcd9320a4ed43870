package config

import "time"

// Role selects which room list the current actor sees.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleOwner    Role = "owner"
	RoleCoach    Role = "coach"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleOwner, RoleCoach:
		return true
	}
	return false
}

// Config holds client configuration values.
type Config struct {
	APIBaseURL        string        `mapstructure:"api_base_url" yaml:"api_base_url"`
	WSURL             string        `mapstructure:"ws_url" yaml:"ws_url"`
	Role              Role          `mapstructure:"role" yaml:"role"`
	StatePath         string        `mapstructure:"state_path" yaml:"state_path"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts" yaml:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	Notifications     bool          `mapstructure:"notifications" yaml:"notifications"`
	NotifyCommand     string        `mapstructure:"notify_command" yaml:"notify_command"`
	DevAddr           string        `mapstructure:"dev_addr" yaml:"dev_addr"`
	DevJWTSecret      string        `mapstructure:"dev_jwt_secret" yaml:"dev_jwt_secret"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		APIBaseURL:        "http://localhost:8090",
		WSURL:             "ws://localhost:8090/ws",
		Role:              RoleCustomer,
		StatePath:         "bookchat.db",
		LogLevel:          "info",
		ConnectTimeout:    5 * time.Second,
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Second,
		RequestTimeout:    10 * time.Second,
		Notifications:     true,
		NotifyCommand:     "notify-send",
		DevAddr:           ":8090",
		DevJWTSecret:      "dev-secret-change-me",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Notifications is a bool and cannot be distinguished from unset; it is left alone.
func (c *Config) UpdateFrom(other Config) {
	if other.APIBaseURL != "" {
		c.APIBaseURL = other.APIBaseURL
	}
	if other.WSURL != "" {
		c.WSURL = other.WSURL
	}
	if other.Role != "" {
		c.Role = other.Role
	}
	if other.StatePath != "" {
		c.StatePath = other.StatePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.ConnectTimeout != 0 {
		c.ConnectTimeout = other.ConnectTimeout
	}
	if other.ReconnectAttempts != 0 {
		c.ReconnectAttempts = other.ReconnectAttempts
	}
	if other.ReconnectDelay != 0 {
		c.ReconnectDelay = other.ReconnectDelay
	}
	if other.RequestTimeout != 0 {
		c.RequestTimeout = other.RequestTimeout
	}
	if other.NotifyCommand != "" {
		c.NotifyCommand = other.NotifyCommand
	}
	if other.DevAddr != "" {
		c.DevAddr = other.DevAddr
	}
	if other.DevJWTSecret != "" {
		c.DevJWTSecret = other.DevJWTSecret
	}
}
