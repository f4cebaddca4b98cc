package mcp

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const authOAuthClientCredentials = "oauth_client_credentials"

// buildHTTPClient returns an HTTP client carrying the server's static
// headers and, when configured, OAuth bearer tokens. It returns nil when
// neither is configured so the SDK uses its default client.
func buildHTTPClient(cfg ServerConfig) (*http.Client, error) {
	var rt http.RoundTripper = http.DefaultTransport
	custom := false

	if len(cfg.Headers) > 0 {
		rt = &headerTransport{base: rt, headers: cfg.Headers}
		custom = true
	}

	switch cfg.Auth.Type {
	case "":
	case authOAuthClientCredentials:
		cc := clientcredentials.Config{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			TokenURL:     cfg.Auth.TokenURL,
			Scopes:       cfg.Auth.Scopes,
		}
		// Token requests go out on the plain default client, not through
		// the static headers meant for the MCP server.
		rt = &oauth2.Transport{Source: cc.TokenSource(context.Background()), Base: rt}
		custom = true
	default:
		return nil, fmt.Errorf("unsupported auth type %q", cfg.Auth.Type)
	}

	if !custom {
		return nil, nil
	}
	return &http.Client{Transport: rt}, nil
}

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
