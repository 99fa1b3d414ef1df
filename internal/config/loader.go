package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, interpolates, defaults and validates the configuration file.
// When a checksum manifest sits beside the file, the file must match it.
func Load(configPath string) (*Config, error) {
	return load(configPath, true)
}

// LoadUnverified is Load without the checksum check, for re-locking an edited file.
func LoadUnverified(configPath string) (*Config, error) {
	return load(configPath, false)
}

// ResolvePath returns the absolute config file path. A directory resolves to
// the config.yaml inside it.
func ResolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

func load(configPath string, verify bool) (*Config, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}

	if verify {
		if err := VerifyChecksum(absPath); err != nil && !errors.Is(err, ErrNoChecksums) {
			return nil, err
		}
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}

	cfg = applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadConfigFile loads and parses a single config file without defaults.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}

	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}

	if cfg.Callback.PathPrefix == "" {
		cfg.Callback.PathPrefix = defaults.Callback.PathPrefix
	}
	cfg.Callback.PathPrefix = "/" + strings.Trim(cfg.Callback.PathPrefix, "/")
	if cfg.Callback.MaxBodySize == 0 {
		cfg.Callback.MaxBodySize = defaults.Callback.MaxBodySize
	}
	if cfg.Callback.RateLimit.RPS > 0 && cfg.Callback.RateLimit.Burst == 0 {
		cfg.Callback.RateLimit.Burst = int(cfg.Callback.RateLimit.RPS) + 1
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	if cfg.Bus.PollInterval == 0 {
		cfg.Bus.PollInterval = defaults.Bus.PollInterval
	}
	if cfg.Bus.MaxAttempts == 0 {
		cfg.Bus.MaxAttempts = defaults.Bus.MaxAttempts
	}
	if cfg.Bus.Timeout == 0 {
		cfg.Bus.Timeout = defaults.Bus.Timeout
	}
	if cfg.Bus.BatchSize == 0 {
		cfg.Bus.BatchSize = defaults.Bus.BatchSize
	}

	if cfg.Mail.Driver == "" {
		cfg.Mail.Driver = defaults.Mail.Driver
	}
	if cfg.Mail.Port == 0 {
		cfg.Mail.Port = defaults.Mail.Port
	}

	if cfg.Notify.PollInterval == 0 {
		cfg.Notify.PollInterval = defaults.Notify.PollInterval
	}
	if cfg.Notify.MaxAttempts == 0 {
		cfg.Notify.MaxAttempts = defaults.Notify.MaxAttempts
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaults.Metrics.Path
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place so validate can name the missing variable.
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if cfg.Callback.MaxBodySize < 0 {
		return fmt.Errorf("callback.max_body_size must be positive")
	}
	if cfg.Callback.RateLimit.RPS < 0 {
		return fmt.Errorf("callback.rate_limit.rps must not be negative")
	}

	if cfg.API.Enabled {
		if len(cfg.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api.auth.tokens must be non-empty when api.enabled is true")
		}
		for i, tok := range cfg.API.Auth.Tokens {
			if tok.Token == "" {
				return fmt.Errorf("api.auth.tokens[%d].token is required", i)
			}
			if err := checkUnresolved(fmt.Sprintf("api.auth.tokens[%d].token", i), tok.Token); err != nil {
				return err
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.auth.tokens[%d].scopes must be non-empty", i)
			}
		}
	}

	if err := checkUnresolved("integration.api_key", cfg.Integration.APIKey); err != nil {
		return err
	}
	if err := checkUnresolved("integration.webhook_url", cfg.Integration.WebhookURL); err != nil {
		return err
	}
	if cfg.Integration.WebhookURL != "" {
		u, err := url.Parse(cfg.Integration.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("integration.webhook_url must be an absolute http(s) URL (got %q)", cfg.Integration.WebhookURL)
		}
	}

	if cfg.Bus.MaxAttempts < 1 {
		return fmt.Errorf("bus.max_attempts must be at least 1")
	}
	if cfg.Bus.PollInterval < 0 || cfg.Bus.Timeout < 0 {
		return fmt.Errorf("bus.poll_interval and bus.timeout must be positive")
	}

	switch cfg.Mail.Driver {
	case "log":
	case "smtp":
		if cfg.Mail.Host == "" {
			return fmt.Errorf("mail.host is required for the smtp driver")
		}
		if cfg.Mail.From == "" {
			return fmt.Errorf("mail.from is required for the smtp driver")
		}
		if err := checkUnresolved("mail.password", cfg.Mail.Password); err != nil {
			return err
		}
	default:
		return fmt.Errorf("mail.driver must be smtp or log (got %q)", cfg.Mail.Driver)
	}

	if cfg.Notify.MaxAttempts < 1 {
		return fmt.Errorf("notify.max_attempts must be at least 1")
	}

	return nil
}

// checkUnresolved rejects values still holding a ${VAR} placeholder, naming the variable.
func checkUnresolved(field, value string) error {
	matches := envVarPattern.FindStringSubmatch(value)
	if matches == nil {
		return nil
	}
	return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
}
