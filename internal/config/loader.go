package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. A directory path is
// accepted and resolves to config.yaml inside it.
func Load(configPath string) (*Config, error) {
	// Resolve to absolute path for consistent relative path resolution
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		// Directory provided - look for config.yaml inside
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}

	// Apply config defaults before validation
	cfg = applyConfigDefaults(cfg)

	// Hash-verify the config file when a .checksums manifest is present
	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DiscoverConfig finds the configuration by checking standard locations.
// Priority order: $HERALD_CONFIG_DIR, ~/.config/herald, /etc/herald,
// ./config.yaml
func DiscoverConfig() (string, error) {
	// 1. Check environment variable
	if dir := os.Getenv("HERALD_CONFIG_DIR"); dir != "" {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}

	// 2. Check user config directory
	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigDir := filepath.Join(homeDir, ".config", "herald")
		if _, err := os.Stat(userConfigDir); err == nil {
			return userConfigDir, nil
		}
	}

	// 3. Check system config directory
	systemConfigDir := "/etc/herald"
	if _, err := os.Stat(systemConfigDir); err == nil {
		return systemConfigDir, nil
	}

	// 4. Fallback to single-file config in current directory
	localConfigPath := "./config.yaml"
	if _, err := os.Stat(localConfigPath); err == nil {
		return localConfigPath, nil
	}

	return "", fmt.Errorf("no config found (checked: $HERALD_CONFIG_DIR, ~/.config/herald, /etc/herald, ./config.yaml)")
}

// loadConfigFile loads and parses a single config file.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// Apply environment variable interpolation
	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &cfg, nil
}

// verifyConfigHash checks the config file against the .checksums manifest in
// its directory. A missing manifest skips verification (locking is opt-in);
// a present manifest must list the file and match.
func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)

	checksums, err := LoadChecksums(dir)
	if err != nil {
		return nil
	}

	basename := filepath.Base(path)
	expectedHash, ok := checksums.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: herald config lock --config %s", basename, dir, dir)
	}

	if err := VerifyFileHash(path, expectedHash); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"This indicates tampering or unauthorized modification.\n"+
			"If you edited this file intentionally, run: herald config lock --config %s", path, err, dir)
	}

	return nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	// Apply service defaults if not set
	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}

	// Apply gateway defaults if not set
	if cfg.Gateway.Listen == "" {
		cfg.Gateway.Listen = defaults.Gateway.Listen
	}
	if cfg.Gateway.Tolerance == 0 {
		cfg.Gateway.Tolerance = defaults.Gateway.Tolerance
	}
	if cfg.Gateway.MaxBodySize == 0 {
		cfg.Gateway.MaxBodySize = defaults.Gateway.MaxBodySize
	}
	// The events endpoint defaults on only when no endpoint is configured
	// at all; an explicit endpoint selection is left alone.
	if cfg.Gateway.EventsPath == "" && cfg.Gateway.InteractivePath == "" && cfg.Gateway.OptionsPath == "" {
		cfg.Gateway.EventsPath = defaults.Gateway.EventsPath
	}
	for i := range cfg.Gateway.Forwards {
		if cfg.Gateway.Forwards[i].Timeout == 0 {
			cfg.Gateway.Forwards[i].Timeout = 5 * time.Second
		}
	}

	// Apply audit defaults if not set
	if cfg.Audit.Path == "" {
		cfg.Audit.Path = defaults.Audit.Path
	}
	if cfg.Audit.Retention == 0 {
		cfg.Audit.Retention = defaults.Audit.Retention
	}
	if cfg.Audit.PruneInterval == 0 {
		cfg.Audit.PruneInterval = defaults.Audit.PruneInterval
	}

	// Apply API defaults if not set
	if !cfg.API.Enabled && cfg.API.Listen == "" {
		cfg.API = defaults.API
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		// Extract variable name from ${VAR}
		varName := envVarPattern.FindStringSubmatch(match)[1]

		// Look up environment variable
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}

		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	// Service validation
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	// Gateway validation
	if cfg.Gateway.SigningSecret == "" {
		return fmt.Errorf("gateway.signing_secret is required")
	}
	if envVarPattern.MatchString(cfg.Gateway.SigningSecret) {
		matches := envVarPattern.FindStringSubmatch(cfg.Gateway.SigningSecret)
		if len(matches) > 1 {
			return fmt.Errorf("gateway.signing_secret: environment variable ${%s} is not set", matches[1])
		}
		return fmt.Errorf("gateway.signing_secret: unresolved environment variable")
	}
	if cfg.Gateway.EventsPath == "" && cfg.Gateway.InteractivePath == "" && cfg.Gateway.OptionsPath == "" {
		return fmt.Errorf("gateway: at least one endpoint path is required")
	}
	if cfg.Gateway.Tolerance < 0 {
		return fmt.Errorf("gateway.tolerance must not be negative")
	}
	if cfg.Gateway.MaxBodySize < 0 {
		return fmt.Errorf("gateway.max_body_size must not be negative")
	}

	// Forward sink validation
	for i, fwd := range cfg.Gateway.Forwards {
		if fwd.Name == "" {
			return fmt.Errorf("gateway.forwards[%d].name is required", i)
		}
		if fwd.URL == "" {
			return fmt.Errorf("gateway.forwards[%d].url is required", i)
		}
		u, err := url.Parse(fwd.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("gateway.forwards[%d].url must be an http or https URL (got %q)", i, fwd.URL)
		}
	}

	// Audit validation
	if cfg.Audit.Enabled {
		if cfg.Audit.Path == "" {
			return fmt.Errorf("audit.path is required when audit is enabled")
		}
		if cfg.Audit.Retention <= 0 {
			return fmt.Errorf("audit.retention must be positive")
		}
		if cfg.Audit.PruneInterval <= 0 {
			return fmt.Errorf("audit.prune_interval must be positive")
		}
	}

	// API auth validation
	if cfg.API.Enabled {
		// If tokens are configured, validate them. api_key remains supported for back-compat.
		if envVarPattern.MatchString(cfg.API.Auth.APIKey) {
			matches := envVarPattern.FindStringSubmatch(cfg.API.Auth.APIKey)
			if len(matches) > 1 {
				return fmt.Errorf("api.auth.api_key: environment variable ${%s} is not set", matches[1])
			}
			return fmt.Errorf("api.auth.api_key: unresolved environment variable")
		}
		for i, tok := range cfg.API.Auth.Tokens {
			if tok.Token == "" {
				return fmt.Errorf("api.auth.tokens[%d].token is required", i)
			}
			if envVarPattern.MatchString(tok.Token) {
				matches := envVarPattern.FindStringSubmatch(tok.Token)
				if len(matches) > 1 {
					return fmt.Errorf("api.auth.tokens[%d].token: environment variable ${%s} is not set", i, matches[1])
				}
				return fmt.Errorf("api.auth.tokens[%d].token: unresolved environment variable", i)
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.auth.tokens[%d].scopes must be non-empty", i)
			}
		}
	}

	return nil
}
