package mcp

// Config holds the configuration for all MCP server connections.
type Config struct {
	Servers []ServerConfig `yaml:"servers"`
}

// ServerConfig describes a single MCP server connection.
type ServerConfig struct {
	// Name is the logical name for this server, used in logs.
	Name string `yaml:"name"`

	// Transport is "sse" or "streamable-http". Empty means streamable-http.
	Transport string `yaml:"transport"`

	URL string `yaml:"url"`

	// Headers are sent with every request (API keys and the like).
	Headers map[string]string `yaml:"headers,omitempty"`

	Auth AuthConfig `yaml:"auth,omitempty"`
}

// AuthConfig selects dynamic authentication for a server.
type AuthConfig struct {
	// Type is "" (none) or "oauth_client_credentials".
	Type         string   `yaml:"type"`
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes,omitempty"`
}
