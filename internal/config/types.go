package config

import "time"

// Config represents the complete lockerlink configuration.
type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	State       StateConfig       `yaml:"state"`
	Callback    CallbackConfig    `yaml:"callback"`
	API         APIConfig         `yaml:"api"`
	Integration IntegrationConfig `yaml:"integration"`
	Bus         BusConfig         `yaml:"bus"`
	Mail        MailConfig        `yaml:"mail"`
	Notify      NotifyConfig      `yaml:"notify"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// CallbackConfig defines the inbound assignment-update endpoint.
type CallbackConfig struct {
	// PathPrefix is where the callback router is mounted, e.g. /lockerlink/v1.
	PathPrefix  string          `yaml:"path_prefix"`
	MaxBodySize int64           `yaml:"max_body_size"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig is a token bucket. RPS of zero disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// APIConfig defines the HTTP server. The callback is always served on Listen;
// Enabled only gates the admin routes.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// IntegrationConfig seeds the stored credentials on first start.
type IntegrationConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	APIKey     string `yaml:"api_key"`
	Enabled    *bool  `yaml:"enabled,omitempty"`
}

// BusConfig defines outbound webhook delivery settings.
type BusConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
	Timeout      time.Duration `yaml:"timeout"`
	BatchSize    int           `yaml:"batch_size"`
}

// MailConfig selects and configures the mail transport.
type MailConfig struct {
	Driver   string `yaml:"driver"` // smtp or log
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	// ViewOrderURL may contain {order_id} and {order_number}.
	ViewOrderURL string `yaml:"view_order_url"`
}

// NotifyConfig defines the notification outbox worker.
type NotifyConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "lockerlink",
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			Path: "./data/lockerlink.db",
		},
		Callback: CallbackConfig{
			PathPrefix:  "/lockerlink/v1",
			MaxBodySize: 64 * 1024,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
		Bus: BusConfig{
			PollInterval: 2 * time.Second,
			MaxAttempts:  10,
			Timeout:      15 * time.Second,
			BatchSize:    20,
		},
		Mail: MailConfig{
			Driver: "log",
			Port:   587,
		},
		Notify: NotifyConfig{
			PollInterval: 2 * time.Second,
			MaxAttempts:  5,
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}
