package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/auth"
	"github.com/rhuss/homebrain/pkg/auth/apikey"
	"github.com/rhuss/homebrain/pkg/auth/jwt"
	"github.com/rhuss/homebrain/pkg/config"
	"github.com/rhuss/homebrain/pkg/engine"
	"github.com/rhuss/homebrain/pkg/generator"
	"github.com/rhuss/homebrain/pkg/generator/anthropic"
	"github.com/rhuss/homebrain/pkg/generator/openai"
	"github.com/rhuss/homebrain/pkg/storage/memory"
	"github.com/rhuss/homebrain/pkg/storage/postgres"
	"github.com/rhuss/homebrain/pkg/storage/sqlite"
	"github.com/rhuss/homebrain/pkg/tools/builtins/clock"
	"github.com/rhuss/homebrain/pkg/tools/mcp"
	"github.com/rhuss/homebrain/pkg/tools/registry"
	"github.com/rhuss/homebrain/pkg/transport"
)

// app holds the long-lived collaborators shared by serve and chat.
type app struct {
	store    transport.CheckpointStore
	registry *registry.Registry
	engine   *engine.Engine
}

// build wires the store, generator, tools and engine described by cfg.
func build(ctx context.Context, cfg *config.Config) (*app, error) {
	gen, err := newGenerator(cfg.Generator)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	reg := newRegistry(ctx, cfg.MCP)
	eng, err := engine.New(generator.Instrument(gen), store, engineConfig(cfg, reg))
	if err != nil {
		return nil, errors.Join(err, reg.Close(), store.Close())
	}

	return &app{store: store, registry: reg, engine: eng}, nil
}

// Close releases the tool providers and the store.
func (a *app) Close() error {
	return errors.Join(a.registry.Close(), a.store.Close())
}

func newGenerator(gc config.GeneratorConfig) (generator.Generator, error) {
	switch gc.Provider {
	case "anthropic":
		g, err := anthropic.New(anthropic.Config{
			BaseURL:     gc.BaseURL,
			APIKey:      gc.APIKey,
			Model:       gc.Model,
			Temperature: gc.Temperature,
			MaxTokens:   gc.MaxTokens,
			Timeout:     gc.Timeout,
			MaxRetries:  gc.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	case "openai":
		g, err := openai.New(openai.Config{
			BaseURL:     gc.BaseURL,
			APIKey:      gc.APIKey,
			Model:       gc.Model,
			Temperature: gc.Temperature,
			MaxTokens:   gc.MaxTokens,
			Timeout:     gc.Timeout,
			MaxRetries:  gc.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown generator provider %q", gc.Provider)
	}
}

func openStore(ctx context.Context, sc config.StorageConfig) (transport.CheckpointStore, error) {
	switch sc.Type {
	case "sqlite":
		s, err := sqlite.New(sc.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		slog.Info("storage enabled", "type", "sqlite", "path", sc.SQLite.Path)
		return s, nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            sc.Postgres.DSN,
			MaxConns:       sc.Postgres.MaxConns,
			MigrateOnStart: sc.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		slog.Info("storage enabled", "type", "postgres")
		return s, nil
	case "memory", "":
		slog.Info("storage enabled", "type", "memory", "max_size", sc.MaxSize)
		return memory.New(sc.MaxSize), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", sc.Type)
	}
}

// newRegistry registers the built-in tools and every reachable MCP server.
func newRegistry(ctx context.Context, mc config.MCPConfig) *registry.Registry {
	reg := registry.New()
	reg.Register(clock.New(nil))
	if len(mc.Servers) > 0 {
		reg.Register(mcp.Connect(ctx, mcpConfig(mc)))
	}
	return reg
}

func mcpConfig(mc config.MCPConfig) mcp.Config {
	out := mcp.Config{Servers: make([]mcp.ServerConfig, 0, len(mc.Servers))}
	for _, s := range mc.Servers {
		out.Servers = append(out.Servers, mcp.ServerConfig{
			Name:      s.Name,
			Transport: s.Transport,
			URL:       s.URL,
			Headers:   s.Headers,
			Auth: mcp.AuthConfig{
				Type:         s.Auth.Type,
				TokenURL:     s.Auth.TokenURL,
				ClientID:     s.Auth.ClientID,
				ClientSecret: s.Auth.ClientSecret,
				Scopes:       s.Auth.Scopes,
			},
		})
	}
	return out
}

func engineConfig(cfg *config.Config, reg *registry.Registry) engine.Config {
	ec := engine.DefaultConfig()
	ec.MinConfidence = cfg.Engine.MinConfidence
	ec.InterruptOnAmbiguity = cfg.Engine.InterruptOnAmbiguity
	ec.RouterRetryAttempts = cfg.Engine.RouterRetryAttempts
	ec.RouterRetryBackoff = cfg.Engine.RouterRetryBackoff
	ec.ToolLoopMaxIterations = cfg.Engine.ToolLoopMaxIterations

	ec.Capabilities = make(map[api.Route]engine.Capability, len(cfg.Capabilities))
	for name, cc := range cfg.Capabilities {
		ec.Capabilities[api.Route(name)] = engine.Capability{
			Instruction: cc.Instruction,
			Tools:       reg.Toolset(cc.Tools),
		}
	}
	return ec
}

// authMiddleware returns nil when auth is disabled.
func authMiddleware(ac config.AuthConfig) func(http.Handler) http.Handler {
	var authns []auth.Authenticator
	switch ac.Type {
	case "apikey":
		authns = append(authns, newAPIKeyAuth(ac))
	case "jwt":
		authns = append(authns, newJWTAuth(ac))
	case "chain":
		authns = append(authns, newAPIKeyAuth(ac), newJWTAuth(ac))
	default:
		return nil
	}

	var limiter auth.RateLimiter
	if ac.RateLimitRPM > 0 {
		limiter = auth.NewInProcessLimiter(ac.RateLimitRPM)
	}

	slog.Info("authentication enabled", "type", ac.Type, "rate_limit_rpm", ac.RateLimitRPM)
	chain := &auth.AuthChain{Authenticators: authns, DefaultDecision: auth.No}
	return auth.Middleware(chain, limiter, auth.DefaultBypassEndpoints)
}

func newAPIKeyAuth(ac config.AuthConfig) *apikey.Authenticator {
	keys := make([]apikey.Key, 0, len(ac.APIKeys))
	for _, k := range ac.APIKeys {
		keys = append(keys, apikey.Key{Key: k.Key, Subject: k.Subject, Scopes: k.Scopes})
	}
	return apikey.New(keys)
}

func newJWTAuth(ac config.AuthConfig) *jwt.Authenticator {
	return jwt.New(jwt.Config{
		Secret:      ac.JWT.Secret,
		JWKSURL:     ac.JWT.JWKSURL,
		Issuer:      ac.JWT.Issuer,
		Audience:    ac.JWT.Audience,
		UserClaim:   ac.JWT.UserClaim,
		ScopesClaim: ac.JWT.ScopesClaim,
	})
}
