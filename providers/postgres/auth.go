package postgres

import (
	"context"

	"github.com/Konsultn-Engineering/pgprovider/connector"
)

// SessionContextKey is the session entry a successful login fills.
const SessionContextKey = "context"

// Session is the slice of an HTTP session the authenticator touches.
type Session interface {
	Assign(key string, value any)
	Destroy()
}

// LoginResult reports the outcome of a login. Detail carries the reason of
// a failure.
type LoginResult struct {
	Result bool   `json:"result"`
	Detail string `json:"detail,omitempty"`
}

// Authenticator checks credentials by opening a session with them.
type Authenticator struct {
	Provider *Provider
}

func NewAuthenticator(p *Provider) *Authenticator {
	return &Authenticator{Provider: p}
}

// Login connects as user and releases the session right away. On success
// the user is recorded in s.
func (a *Authenticator) Login(ctx context.Context, user, password string, s Session) LoginResult {
	creds := connector.Credentials{User: user, Password: password}
	conn, err := a.Provider.Connect(ctx, creds, ConnectOptions{ForceCredentials: true})
	if err != nil {
		a.Provider.logger.InfoContext(ctx, "login failed", "provider", a.Provider.name, "user", user, "error", err)
		return LoginResult{Detail: err.Error()}
	}
	if err := a.Provider.Release(ctx, conn); err != nil {
		a.Provider.logger.WarnContext(ctx, "release after login", "provider", a.Provider.name, "error", err)
	}
	s.Assign(SessionContextKey, map[string]any{"user": user})
	return LoginResult{Result: true}
}

func (a *Authenticator) Logout(s Session) {
	s.Destroy()
}
