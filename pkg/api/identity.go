package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/TheEntropyCollective/mediavault/pkg/access"
)

// IdentityProvider extracts the caller's identity from a request. ok is false
// when the request carries no identity.
type IdentityProvider interface {
	Identify(r *http.Request) (identity access.Identity, ok bool)
}

// HeaderIdentityProvider trusts headers set by an authenticating reverse
// proxy. The proxy must strip these headers from client requests.
type HeaderIdentityProvider struct {
	UserHeader  string
	AdminHeader string
}

// Identify reads the user and administrator headers.
func (p HeaderIdentityProvider) Identify(r *http.Request) (access.Identity, bool) {
	userID := strings.TrimSpace(r.Header.Get(p.UserHeader))
	if userID == "" {
		return access.Identity{}, false
	}

	identity := access.Identity{UserID: userID}
	if p.AdminHeader != "" {
		switch strings.ToLower(strings.TrimSpace(r.Header.Get(p.AdminHeader))) {
		case "1", "true", "yes":
			identity.IsAdministrator = true
		}
	}
	return identity, true
}

type identityKey struct{}

func withIdentity(ctx context.Context, identity access.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFrom returns the identity stored on ctx by the server middleware.
func IdentityFrom(ctx context.Context) (access.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(access.Identity)
	return identity, ok
}
