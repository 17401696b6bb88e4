// Package doctor validates herald gateway configuration beyond what the
// loader enforces: cross-field checks, suspicious values, and operational
// footguns.
package doctor

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mattjoyce/herald/internal/config"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateSigningSecret(r)
	d.validateEndpointPaths(r)
	d.validateAPIConfig(r)
	d.validateTokenScopes(r)
	d.validateForwards(r)
	d.validateAudit(r)
	d.warnSuspiciousTolerance(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateSigningSecret checks the secret is present and fully resolved.
func (d *Doctor) validateSigningSecret(r *Result) {
	secret := d.cfg.Gateway.SigningSecret
	if secret == "" {
		d.addError(r, "gateway", "gateway.signing_secret", "signing_secret is required")
		return
	}
	if m := envVarPattern.FindStringSubmatch(secret); m != nil {
		d.addError(r, "gateway", "gateway.signing_secret",
			fmt.Sprintf("environment variable ${%s} is not set", m[1]))
	}
	if len(secret) < 16 {
		d.addWarning(r, "gateway", "gateway.signing_secret",
			"signing_secret is unusually short; verify it against the platform's app credentials")
	}
}

// validateEndpointPaths checks the endpoint paths are well-formed and
// distinct.
func (d *Doctor) validateEndpointPaths(r *Result) {
	paths := map[string]string{
		"gateway.events_path":      d.cfg.Gateway.EventsPath,
		"gateway.interactive_path": d.cfg.Gateway.InteractivePath,
		"gateway.options_path":     d.cfg.Gateway.OptionsPath,
	}

	configured := 0
	seen := map[string]string{}
	for field, path := range paths {
		if path == "" {
			continue
		}
		configured++

		if !strings.HasPrefix(path, "/") {
			d.addError(r, "endpoints", field, fmt.Sprintf("path %q must start with /", path))
		}
		if strings.ContainsAny(path, " \t?#") {
			d.addError(r, "endpoints", field, fmt.Sprintf("path %q contains invalid characters", path))
		}

		if prev, dup := seen[path]; dup {
			d.addError(r, "endpoints", field,
				fmt.Sprintf("path %q is already used by %s", path, prev))
			continue
		}
		seen[path] = field
	}

	if configured == 0 {
		d.addError(r, "endpoints", "gateway", "at least one endpoint path is required")
	}
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
	}
	if d.cfg.API.Auth.APIKey == "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "api", "api.auth", "API enabled but no authentication configured")
	}
}

// validateTokenScopes checks that scopes name known resources.
func (d *Doctor) validateTokenScopes(r *Result) {
	known := map[string]struct{}{
		"*":         {},
		"events:ro": {},
		"events:rw": {},
		"audit:ro":  {},
		"audit:rw":  {},
	}

	for i, token := range d.cfg.API.Auth.Tokens {
		if token.Token == "" {
			d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].token", i), "token is empty")
		}
		for j, scope := range token.Scopes {
			if _, ok := known[scope]; !ok {
				d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].scopes[%d]", i, j),
					fmt.Sprintf("unknown scope %q (expected one of: *, events:ro, events:rw, audit:ro, audit:rw)", scope))
			}
		}
	}
}

// validateForwards checks downstream sink definitions.
func (d *Doctor) validateForwards(r *Result) {
	seen := map[string]struct{}{}
	for i, fwd := range d.cfg.Gateway.Forwards {
		field := fmt.Sprintf("gateway.forwards[%d]", i)

		if fwd.Name == "" {
			d.addError(r, "forwards", field+".name", "name is required")
		} else if _, dup := seen[fwd.Name]; dup {
			d.addWarning(r, "forwards", field+".name", fmt.Sprintf("duplicate sink name %q", fwd.Name))
		} else {
			seen[fwd.Name] = struct{}{}
		}

		u, err := url.Parse(fwd.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			d.addError(r, "forwards", field+".url",
				fmt.Sprintf("url %q must be an absolute http or https URL", fwd.URL))
		}
	}
}

// validateAudit checks audit trail settings.
func (d *Doctor) validateAudit(r *Result) {
	if !d.cfg.Audit.Enabled {
		return
	}
	if d.cfg.Audit.Path == "" {
		d.addError(r, "audit", "audit.path", "audit.path is required when audit is enabled")
	}
	if d.cfg.Audit.Retention <= 0 {
		d.addError(r, "audit", "audit.retention", "retention must be positive")
	}
	if d.cfg.Audit.PruneInterval <= 0 {
		d.addError(r, "audit", "audit.prune_interval", "prune_interval must be positive")
	}
	if d.cfg.Audit.Retention > 0 && d.cfg.Audit.PruneInterval > d.cfg.Audit.Retention {
		d.addWarning(r, "audit", "audit.prune_interval",
			"prune_interval is longer than retention; expired records will linger")
	}
}

// warnSuspiciousTolerance flags replay windows wide enough to defeat the
// point of the check.
func (d *Doctor) warnSuspiciousTolerance(r *Result) {
	if d.cfg.Gateway.Tolerance > time.Hour {
		d.addWarning(r, "gateway", "gateway.tolerance",
			fmt.Sprintf("tolerance %s is unusually wide for replay protection", d.cfg.Gateway.Tolerance))
	}
}

// JSON renders the result as indented JSON.
func (r *Result) JSON() (string, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal doctor result: %w", err)
	}
	return string(b), nil
}
