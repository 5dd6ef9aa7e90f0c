package auth

// OAuth scopes understood by the coach API.
const (
	ScopeSessionsWrite = "sessions:write"
	ScopeSessionsRead  = "sessions:read"
	ScopePlansRead     = "plans:read"
	ScopeSignalsWrite  = "signals:write"
)

// AllScopes lists every scope, for minting operator tokens.
var AllScopes = []string{ScopeSessionsWrite, ScopeSessionsRead, ScopePlansRead, ScopeSignalsWrite}
