package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rhuss/homebrain/pkg/api"
)

// Validate checks required fields and value ranges, reporting every
// problem at once with its field path.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port <= 0 {
		add("server.port must be > 0, got %d", c.Server.Port)
	}
	if c.Server.MaxBodySize < 0 {
		add("server.max_body_size must be >= 0, got %d", c.Server.MaxBodySize)
	}

	if c.Engine.MinConfidence < 0 || c.Engine.MinConfidence > 1 {
		add("engine.min_confidence must be within [0, 1], got %v", c.Engine.MinConfidence)
	}
	if c.Engine.RouterRetryAttempts < 0 {
		add("engine.router_retry_attempts must be >= 0, got %d", c.Engine.RouterRetryAttempts)
	}
	if c.Engine.ToolLoopMaxIterations < 0 {
		add("engine.tool_loop_max_iterations must be >= 0, got %d", c.Engine.ToolLoopMaxIterations)
	}

	switch c.Generator.Provider {
	case "openai", "anthropic":
	default:
		add("generator.provider must be \"openai\" or \"anthropic\", got %q", c.Generator.Provider)
	}
	if c.Generator.Model == "" {
		add("generator.model is required")
	}

	for name := range c.Capabilities {
		if !api.Route(name).IsValid() {
			add("capabilities.%s: unknown route", name)
		}
	}

	for i, s := range c.MCP.Servers {
		if s.Name == "" {
			add("mcp.servers[%d].name is required", i)
		}
		if s.URL == "" {
			add("mcp.servers[%d].url is required", i)
		}
		switch s.Transport {
		case "", "sse", "streamable-http":
		default:
			add("mcp.servers[%d].transport must be \"sse\" or \"streamable-http\", got %q", i, s.Transport)
		}
	}

	switch c.Storage.Type {
	case "memory":
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			add("storage.sqlite.path is required when storage.type is \"sqlite\"")
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			add("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\"")
		}
	default:
		add("storage.type must be \"memory\", \"sqlite\" or \"postgres\", got %q", c.Storage.Type)
	}

	errs = append(errs, c.Auth.validate()...)

	if r := c.Observability.Tracing.SampleRatio; r < 0 || r > 1 {
		add("observability.tracing.sample_ratio must be within [0, 1], got %v", r)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		add("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}

	return errors.Join(errs...)
}

func (a *AuthConfig) validate() []error {
	var errs []error
	wantKeys, wantJWT := false, false
	switch a.Type {
	case "none":
	case "apikey":
		wantKeys = true
	case "jwt":
		wantJWT = true
	case "chain":
		wantKeys, wantJWT = true, true
	default:
		return []error{fmt.Errorf("auth.type must be \"none\", \"apikey\", \"jwt\" or \"chain\", got %q", a.Type)}
	}

	if wantKeys {
		if len(a.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is %q", a.Type))
		}
		for i, k := range a.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].subject is required", i))
			}
		}
	}
	if wantJWT && a.JWT.Secret == "" && a.JWT.SecretFile == "" && a.JWT.JWKSURL == "" {
		errs = append(errs, fmt.Errorf("auth.jwt.secret, secret_file or jwks_url is required when auth.type is %q", a.Type))
	}
	if a.RateLimitRPM < 0 {
		errs = append(errs, fmt.Errorf("auth.rate_limit_rpm must be >= 0, got %d", a.RateLimitRPM))
	}
	return errs
}
