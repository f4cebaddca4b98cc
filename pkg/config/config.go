// Package config loads homebrain configuration.
//
// Sources are layered, later ones winning:
//  1. Built-in defaults
//  2. A .env file in the working directory (only fills unset variables)
//  3. YAML config file (discovered or explicitly specified)
//  4. HOMEBRAIN_* environment overrides
//  5. Secret file references (*_file fields)
//  6. Validation
package config

import "time"

// Config holds all homebrain configuration.
type Config struct {
	Server        ServerConfig                `yaml:"server"`
	Engine        EngineConfig                `yaml:"engine"`
	Generator     GeneratorConfig             `yaml:"generator"`
	Capabilities  map[string]CapabilityConfig `yaml:"capabilities"`
	MCP           MCPConfig                   `yaml:"mcp"`
	Storage       StorageConfig               `yaml:"storage"`
	Auth          AuthConfig                  `yaml:"auth"`
	Observability ObservabilityConfig         `yaml:"observability"`
	Logging       LoggingConfig               `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port              int           `yaml:"port"`               // default: 8080
	ReadTimeout       time.Duration `yaml:"read_timeout"`       // default: 30s
	WriteTimeout      time.Duration `yaml:"write_timeout"`      // default: 0, streams are long-lived
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"` // SSE keep-alive, default: 15s
	MaxBodySize       int64         `yaml:"max_body_size"`      // default: 1 MiB
}

// EngineConfig tunes the turn pipeline.
type EngineConfig struct {
	MinConfidence         float64       `yaml:"min_confidence"`           // default: 0.55
	InterruptOnAmbiguity  bool          `yaml:"interrupt_on_ambiguity"`   // default: true
	RouterRetryAttempts   int           `yaml:"router_retry_attempts"`    // default: 2
	RouterRetryBackoff    time.Duration `yaml:"router_retry_backoff"`     // default: 500ms
	ToolLoopMaxIterations int           `yaml:"tool_loop_max_iterations"` // default: 10
}

// GeneratorConfig selects and configures the language model backend.
type GeneratorConfig struct {
	Provider    string        `yaml:"provider"` // "openai" or "anthropic", default: "openai"
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	APIKeyFile  string        `yaml:"api_key_file"`
	Model       string        `yaml:"model"` // required
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int64         `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"` // default: 60s
	MaxRetries  int           `yaml:"max_retries"`
}

// CapabilityConfig customizes one route. Keys of Config.Capabilities are
// route names.
type CapabilityConfig struct {
	// Instruction replaces the built-in system instruction when set.
	Instruction string `yaml:"instruction"`

	// Tools names the tools this route may call. An empty list makes the
	// route single-shot.
	Tools []string `yaml:"tools"`
}

// MCPConfig lists remote tool servers.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes a single MCP server connection.
type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "sse" or "streamable-http"
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
	Auth      MCPAuthConfig     `yaml:"auth"`
}

// MCPAuthConfig configures OAuth client credentials for an MCP server.
type MCPAuthConfig struct {
	Type             string   `yaml:"type"` // "" or "oauth_client_credentials"
	TokenURL         string   `yaml:"token_url"`
	ClientID         string   `yaml:"client_id"`
	ClientIDFile     string   `yaml:"client_id_file"`
	ClientSecret     string   `yaml:"client_secret"`
	ClientSecretFile string   `yaml:"client_secret_file"`
	Scopes           []string `yaml:"scopes"`
}

// StorageConfig selects the checkpoint store.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory", "sqlite" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // memory store only, default: 10000
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds the embedded store settings.
type SQLiteConfig struct {
	Path string `yaml:"path"` // default: "homebrain.db"
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: true
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// Type is "none", "apikey", "jwt" or "chain" (API keys, then JWT).
	Type         string         `yaml:"type"`
	APIKeys      []APIKeyConfig `yaml:"api_keys"`
	JWT          JWTConfig      `yaml:"jwt"`
	RateLimitRPM int            `yaml:"rate_limit_rpm"` // per subject, 0 disables
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key     string   `yaml:"key"`
	KeyFile string   `yaml:"key_file"`
	Subject string   `yaml:"subject"`
	Scopes  []string `yaml:"scopes"`
}

// JWTConfig configures bearer JWT verification.
type JWTConfig struct {
	Secret      string `yaml:"secret"`
	SecretFile  string `yaml:"secret_file"`
	JWKSURL     string `yaml:"jwks_url"`
	Issuer      string `yaml:"issuer"`
	Audience    string `yaml:"audience"`
	UserClaim   string `yaml:"user_claim"`
	ScopesClaim string `yaml:"scopes_claim"`
}

// ObservabilityConfig holds tracing settings. Prometheus metrics are always
// served on /metrics.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig controls OTLP span export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"` // default: "localhost:4317"
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"` // default: "homebrain"
	SampleRatio float64 `yaml:"sample_ratio"`
}

// LoggingConfig holds log settings. HOMEBRAIN_DEBUG and HOMEBRAIN_LOG_LEVEL
// take precedence at startup.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error; default: "info"
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:              8080,
			ReadTimeout:       30 * time.Second,
			HeartbeatInterval: 15 * time.Second,
			MaxBodySize:       1 << 20,
		},
		Engine: EngineConfig{
			MinConfidence:         0.55,
			InterruptOnAmbiguity:  true,
			RouterRetryAttempts:   2,
			RouterRetryBackoff:    500 * time.Millisecond,
			ToolLoopMaxIterations: 10,
		},
		Generator: GeneratorConfig{
			Provider: "openai",
			Timeout:  60 * time.Second,
		},
		Capabilities: map[string]CapabilityConfig{
			"general": {Tools: []string{"get_utc_time"}},
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			SQLite:  SQLiteConfig{Path: "homebrain.db"},
			Postgres: PostgresConfig{
				MaxConns:       25,
				MigrateOnStart: true,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Endpoint:    "localhost:4317",
				ServiceName: "homebrain",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
