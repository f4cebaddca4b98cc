package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HOMEBRAIN_"

// Load builds the configuration from defaults, an optional .env file, the
// discovered YAML file, environment overrides and secret files, then
// validates it.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	if path := discoverConfigFile(configPath); path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
		slog.Debug("config file loaded", "path", path)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// loadDotEnv exports variables from path without overriding ones already
// set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	slog.Debug("environment file loaded", "path", path)
	return nil
}

// discoverConfigFile resolves the config path: the explicit argument, then
// HOMEBRAIN_CONFIG, then ./config.yaml and /etc/homebrain/config.yaml.
// Returns empty string if none exists.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv(EnvPrefix + "CONFIG"); envPath != "" {
		return envPath
	}
	for _, path := range []string{"config.yaml", "/etc/homebrain/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile decodes path over cfg; absent keys keep their defaults.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// envSetter applies one HOMEBRAIN_* variable.
type envSetter struct {
	name  string
	apply func(cfg *Config, v string) error
}

func str(set func(*Config, string)) func(*Config, string) error {
	return func(c *Config, v string) error { set(c, v); return nil }
}

func integer(set func(*Config, int)) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		set(c, n)
		return nil
	}
}

func float(set func(*Config, float64)) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		set(c, f)
		return nil
	}
}

func boolean(set func(*Config, bool)) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		set(c, b)
		return nil
	}
}

func duration(set func(*Config, time.Duration)) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		set(c, d)
		return nil
	}
}

func jsonList[T any](set func(*Config, []T)) func(*Config, string) error {
	return func(c *Config, v string) error {
		var items []T
		if err := json.Unmarshal([]byte(v), &items); err != nil {
			return err
		}
		set(c, items)
		return nil
	}
}

var envSetters = []envSetter{
	{"PORT", integer(func(c *Config, n int) { c.Server.Port = n })},
	{"MIN_CONFIDENCE", float(func(c *Config, f float64) { c.Engine.MinConfidence = f })},
	{"INTERRUPT_ON_AMBIGUITY", boolean(func(c *Config, b bool) { c.Engine.InterruptOnAmbiguity = b })},
	{"ROUTER_RETRY_ATTEMPTS", integer(func(c *Config, n int) { c.Engine.RouterRetryAttempts = n })},
	{"ROUTER_RETRY_BACKOFF", duration(func(c *Config, d time.Duration) { c.Engine.RouterRetryBackoff = d })},
	{"TOOL_LOOP_MAX_ITERATIONS", integer(func(c *Config, n int) { c.Engine.ToolLoopMaxIterations = n })},
	{"GENERATOR_PROVIDER", str(func(c *Config, v string) { c.Generator.Provider = v })},
	{"GENERATOR_BASE_URL", str(func(c *Config, v string) { c.Generator.BaseURL = v })},
	{"GENERATOR_API_KEY", str(func(c *Config, v string) { c.Generator.APIKey = v })},
	{"GENERATOR_MODEL", str(func(c *Config, v string) { c.Generator.Model = v })},
	{"GENERATOR_TEMPERATURE", float(func(c *Config, f float64) { c.Generator.Temperature = f })},
	{"GENERATOR_MAX_RETRIES", integer(func(c *Config, n int) { c.Generator.MaxRetries = n })},
	{"STORAGE", str(func(c *Config, v string) { c.Storage.Type = v })},
	{"STORAGE_SIZE", integer(func(c *Config, n int) { c.Storage.MaxSize = n })},
	{"SQLITE_PATH", str(func(c *Config, v string) { c.Storage.SQLite.Path = v })},
	{"DATABASE_URL", str(func(c *Config, v string) { c.Storage.Postgres.DSN = v })},
	{"AUTH_TYPE", str(func(c *Config, v string) { c.Auth.Type = v })},
	{"API_KEYS", jsonList(func(c *Config, keys []APIKeyConfig) { c.Auth.APIKeys = keys })},
	{"JWT_SECRET", str(func(c *Config, v string) { c.Auth.JWT.Secret = v })},
	{"MCP_SERVERS", jsonList(func(c *Config, s []MCPServerConfig) { c.MCP.Servers = s })},
	{"OTLP_ENDPOINT", str(func(c *Config, v string) {
		c.Observability.Tracing.Endpoint = v
		c.Observability.Tracing.Enabled = true
	})},
	{"LOG_FORMAT", str(func(c *Config, v string) { c.Logging.Format = v })},
}

// applyEnvOverrides applies every HOMEBRAIN_* variable that is set. A value
// that does not parse is an error rather than silently ignored.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	for _, s := range envSetters {
		v, ok := os.LookupEnv(EnvPrefix + s.name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := s.apply(cfg, strings.TrimSpace(v)); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, s.name, err))
		}
	}
	return errors.Join(errs...)
}

// resolveFileReferences fills each secret from its *_file path unless the
// value is already set.
func resolveFileReferences(cfg *Config) error {
	type ref struct {
		field string
		file  string
		value *string
	}

	refs := []ref{
		{"generator.api_key_file", cfg.Generator.APIKeyFile, &cfg.Generator.APIKey},
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
		{"auth.jwt.secret_file", cfg.Auth.JWT.SecretFile, &cfg.Auth.JWT.Secret},
	}
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		refs = append(refs, ref{fmt.Sprintf("auth.api_keys[%d].key_file", i), k.KeyFile, &k.Key})
	}
	for i := range cfg.MCP.Servers {
		a := &cfg.MCP.Servers[i].Auth
		refs = append(refs,
			ref{fmt.Sprintf("mcp.servers[%d].auth.client_id_file", i), a.ClientIDFile, &a.ClientID},
			ref{fmt.Sprintf("mcp.servers[%d].auth.client_secret_file", i), a.ClientSecretFile, &a.ClientSecret},
		)
	}

	for _, r := range refs {
		if r.file == "" || *r.value != "" {
			continue
		}
		val, err := readSecretFile(r.file)
		if err != nil {
			return fmt.Errorf("%s: %w", r.field, err)
		}
		*r.value = val
	}
	return nil
}

// readSecretFile returns the file content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
