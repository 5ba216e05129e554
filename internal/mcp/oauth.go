package mcp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuthFlow selects which OAuth 2.0 grant an MCP server's ServerConfig uses
// to obtain a bearer token for the http/websocket transports.
type OAuthFlow string

const (
	OAuthFlowClientCredentials OAuthFlow = "client_credentials"
	OAuthFlowAuthorizationCode OAuthFlow = "authorization_code"
)

// OAuthConfig configures bearer-token acquisition for a single MCP server.
type OAuthConfig struct {
	Flow         OAuthFlow `yaml:"flow" json:"flow"`
	ClientID     string    `yaml:"client_id" json:"client_id"`
	ClientSecret string    `yaml:"client_secret" json:"client_secret,omitempty"`
	TokenURL     string    `yaml:"token_url" json:"token_url"`
	AuthURL      string    `yaml:"auth_url" json:"auth_url,omitempty"`
	RedirectURL  string    `yaml:"redirect_url" json:"redirect_url,omitempty"`
	Scopes       []string  `yaml:"scopes" json:"scopes,omitempty"`
}

func (c *OAuthConfig) validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.TokenURL == "" {
		return fmt.Errorf("token_url is required")
	}
	switch c.Flow {
	case OAuthFlowClientCredentials:
		if c.ClientSecret == "" {
			return fmt.Errorf("client_secret is required for client_credentials")
		}
	case OAuthFlowAuthorizationCode:
		if c.AuthURL == "" {
			return fmt.Errorf("auth_url is required for authorization_code")
		}
	default:
		return fmt.Errorf("unknown oauth flow %q", c.Flow)
	}
	return nil
}

// FetchToken obtains a bearer token per cfg.Flow. client_credentials runs
// unattended via clientcredentials.Config. authorization_code requires a
// prior interactive grant; callers pass the authorization code and PKCE
// verifier obtained out of band (ExchangeAuthCode), so FetchToken only
// handles the flow that needs no user interaction.
func FetchToken(ctx context.Context, cfg *OAuthConfig) (*oauth2.Token, error) {
	if cfg == nil {
		return nil, fmt.Errorf("oauth config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	if cfg.Flow != OAuthFlowClientCredentials {
		return nil, fmt.Errorf("FetchToken only supports client_credentials; use AuthCodeURL/ExchangeAuthCode for %s", cfg.Flow)
	}

	ccCfg := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return ccCfg.Token(ctx)
}

// PKCEVerifier holds a generated PKCE code verifier and its S256 challenge.
type PKCEVerifier struct {
	Verifier  string
	Challenge string
}

// NewPKCEVerifier generates an RFC 7636 code verifier and S256 challenge.
func NewPKCEVerifier() (*PKCEVerifier, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate pkce verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(raw)
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])
	return &PKCEVerifier{Verifier: verifier, Challenge: challenge}, nil
}

func (cfg *OAuthConfig) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}
}

// AuthCodeURL builds the authorization-code+PKCE URL a user visits to grant
// access. state should be an unguessable per-attempt value the caller
// verifies on callback.
func AuthCodeURL(cfg *OAuthConfig, state string, pkce *PKCEVerifier) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("oauth config is nil")
	}
	if err := cfg.validate(); err != nil {
		return "", fmt.Errorf("oauth config: %w", err)
	}
	return cfg.oauth2Config().AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", pkce.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	), nil
}

// ExchangeAuthCode completes the authorization-code+PKCE flow, trading the
// callback code and original verifier for a token.
func ExchangeAuthCode(ctx context.Context, cfg *OAuthConfig, code string, pkce *PKCEVerifier) (*oauth2.Token, error) {
	if cfg == nil {
		return nil, fmt.Errorf("oauth config is nil")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg.oauth2Config().Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", pkce.Verifier),
	)
}
