package models

// McpTransportKind selects how the manager dials a configured MCP server.
type McpTransportKind string

const (
	McpTransportStdio     McpTransportKind = "stdio"
	McpTransportWebsocket McpTransportKind = "websocket"
	McpTransportHTTP      McpTransportKind = "http"
)

// McpAuthKind selects how the manager authenticates an http/websocket MCP
// connection.
type McpAuthKind string

const (
	McpAuthNone              McpAuthKind = ""
	McpAuthBearer            McpAuthKind = "bearer"
	McpAuthOAuthClientCreds  McpAuthKind = "oauth_client_credentials"
	McpAuthOAuthAuthCodePKCE McpAuthKind = "oauth_authorization_code_pkce"
)

// McpAuthConfig carries the fields relevant to whichever McpAuthKind is set.
type McpAuthConfig struct {
	Kind McpAuthKind

	// bearer
	Token string

	// oauth (both flows)
	ClientID string
	Scopes   []string

	// client_credentials
	ClientSecret string
	TokenURL     string
	Audience     string

	// authorization_code_pkce
	AuthorizationURL string
	RedirectPort     int // 0 = pick an ephemeral port
}

// McpServerConfig is a transport-tagged description of one external tool
// server. Exactly the fields relevant to Transport are meaningful.
type McpServerConfig struct {
	Name      string
	Transport McpTransportKind

	// stdio
	Command string
	Args    []string
	Env     map[string]string

	// websocket / http
	URL  string
	Auth *McpAuthConfig

	Enabled bool
}
