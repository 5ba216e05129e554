package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchTokenClientCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	cfg := &OAuthConfig{
		Flow:         OAuthFlowClientCredentials,
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     srv.URL,
	}

	token, err := FetchToken(context.Background(), cfg)
	if err != nil {
		t.Fatalf("FetchToken: %v", err)
	}
	if token.AccessToken != "test-token" {
		t.Errorf("access token = %q, want test-token", token.AccessToken)
	}
}

func TestFetchTokenRejectsAuthorizationCode(t *testing.T) {
	cfg := &OAuthConfig{
		Flow:     OAuthFlowAuthorizationCode,
		ClientID: "client",
		TokenURL: "https://example.com/token",
		AuthURL:  "https://example.com/authorize",
	}
	if _, err := FetchToken(context.Background(), cfg); err == nil {
		t.Fatal("expected error for authorization_code flow")
	}
}

func TestFetchTokenValidatesConfig(t *testing.T) {
	if _, err := FetchToken(context.Background(), &OAuthConfig{Flow: OAuthFlowClientCredentials}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestAuthCodeURLIncludesPKCEChallenge(t *testing.T) {
	cfg := &OAuthConfig{
		Flow:        OAuthFlowAuthorizationCode,
		ClientID:    "client",
		TokenURL:    "https://example.com/token",
		AuthURL:     "https://example.com/authorize",
		RedirectURL: "https://example.com/callback",
	}
	pkce, err := NewPKCEVerifier()
	if err != nil {
		t.Fatalf("NewPKCEVerifier: %v", err)
	}
	url, err := AuthCodeURL(cfg, "state123", pkce)
	if err != nil {
		t.Fatalf("AuthCodeURL: %v", err)
	}
	if !strings.Contains(url, "code_challenge="+pkce.Challenge) {
		t.Errorf("auth URL missing code_challenge: %s", url)
	}
	if !strings.Contains(url, "code_challenge_method=S256") {
		t.Errorf("auth URL missing code_challenge_method: %s", url)
	}
}

func TestNewPKCEVerifierProducesDistinctValues(t *testing.T) {
	a, err := NewPKCEVerifier()
	if err != nil {
		t.Fatalf("NewPKCEVerifier: %v", err)
	}
	b, err := NewPKCEVerifier()
	if err != nil {
		t.Fatalf("NewPKCEVerifier: %v", err)
	}
	if a.Verifier == b.Verifier {
		t.Error("expected distinct verifiers across calls")
	}
	if a.Challenge == "" || a.Verifier == "" {
		t.Error("expected non-empty verifier/challenge")
	}
}
