package core

import (
	"context"

	"github.com/gorilla/sessions"
)

// Authenticator defines authentication behaviour.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*MemberPrincipal, error)
}

// AuthState is the per-session position in the login/logout lifecycle.
type AuthState int

const (
	StateAnonymous AuthState = iota
	StateAuthenticating
	StateAuthenticated
	StateLoggedOut
)

func (s AuthState) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// Session value keys.
const (
	sessionKeyUsername     = "username"
	sessionKeyAuthorities  = "authorities"
	sessionKeySavedRequest = "saved_request"
	sessionKeyCSRF         = "csrf_token"
)

// StateOf reports the lifecycle state recorded in session. Authenticating is
// transient and only observed inside a login request.
func StateOf(session *sessions.Session) AuthState {
	if session == nil {
		return StateAnonymous
	}
	if session.Options != nil && session.Options.MaxAge < 0 {
		return StateLoggedOut
	}
	if _, ok := principalFromSession(session); ok {
		return StateAuthenticated
	}
	return StateAnonymous
}

func principalFromSession(session *sessions.Session) (*MemberPrincipal, bool) {
	username, _ := session.Values[sessionKeyUsername].(string)
	if username == "" {
		return nil, false
	}
	authorities, _ := session.Values[sessionKeyAuthorities].([]string)
	return RestorePrincipal(username, authorities), true
}
