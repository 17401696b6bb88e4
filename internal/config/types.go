package config

import "time"

// Config represents the complete herald gateway configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Gateway GatewayConfig `yaml:"gateway"`
	Audit   AuditConfig   `yaml:"audit,omitempty"`
	API     APIConfig     `yaml:"api,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// GatewayConfig defines the inbound event gateway.
type GatewayConfig struct {
	// Listen is the address the gateway binds to.
	Listen string `yaml:"listen"`

	// SigningSecret verifies inbound request signatures. Use ${VAR}
	// interpolation rather than a literal secret in the file.
	SigningSecret string `yaml:"signing_secret"`

	// EventsPath, InteractivePath and OptionsPath enable the three
	// endpoints. An empty path disables its endpoint.
	EventsPath      string `yaml:"events_path,omitempty"`
	InteractivePath string `yaml:"interactive_path,omitempty"`
	OptionsPath     string `yaml:"options_path,omitempty"`

	// Tolerance is the accepted request timestamp skew (default: 5m)
	Tolerance time.Duration `yaml:"tolerance,omitempty"`

	// MaxBodySize is the maximum allowed request body size in bytes (default: 1MB)
	MaxBodySize int64 `yaml:"max_body_size,omitempty"`

	// Options is the static option list served from the options endpoint.
	Options []MenuOption `yaml:"options,omitempty"`

	// Forwards are HTTP sinks that receive dispatched events.
	Forwards []ForwardConfig `yaml:"forwards,omitempty"`
}

// MenuOption is one entry of the static options menu.
type MenuOption struct {
	Text  string `yaml:"text"`
	Value string `yaml:"value"`
}

// ForwardConfig defines a single HTTP forward sink.
type ForwardConfig struct {
	// Name identifies the sink in logs and the audit trail.
	Name string `yaml:"name"`

	// URL receives dispatched events as JSON POST bodies.
	URL string `yaml:"url"`

	// EventTypes limits which event types are forwarded. Empty means all.
	EventTypes []string `yaml:"event_types,omitempty"`

	// Timeout bounds each forward request (default: 5s)
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// AuditConfig defines delivery audit trail settings.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`

	// Retention is how long delivery records are kept (default: 30 days)
	Retention time.Duration `yaml:"retention,omitempty"`

	// PruneInterval is how often expired records are removed (default: 1h)
	PruneInterval time.Duration `yaml:"prune_interval,omitempty"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is the legacy single bearer token (admin/full access).
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// ChecksumManifest is the parsed .checksums file guarding config integrity.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "herald",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Gateway: GatewayConfig{
			Listen:      "127.0.0.1:3000",
			EventsPath:  "/slack/events",
			Tolerance:   5 * time.Minute,
			MaxBodySize: 1048576,
		},
		Audit: AuditConfig{
			Enabled:       false,
			Path:          "./data/audit.db",
			Retention:     30 * 24 * time.Hour,
			PruneInterval: time.Hour,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
			Auth: APIAuthConfig{
				APIKey: "",
			},
		},
	}
}
