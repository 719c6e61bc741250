package api

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaderIdentityProvider(t *testing.T) {
	provider := HeaderIdentityProvider{UserHeader: "X-User", AdminHeader: "X-Admin"}

	tests := []struct {
		name    string
		user    string
		admin   string
		ok      bool
		isAdmin bool
	}{
		{"no identity", "", "", false, false},
		{"blank user", "   ", "true", false, false},
		{"plain user", "alice", "", true, false},
		{"administrator", "root", "true", true, true},
		{"administrator numeric", "root", "1", true, true},
		{"unrecognised admin value", "mallory", "maybe", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.user != "" {
				req.Header.Set("X-User", tt.user)
			}
			if tt.admin != "" {
				req.Header.Set("X-Admin", tt.admin)
			}

			identity, ok := provider.Identify(req)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.isAdmin, identity.IsAdministrator)
		})
	}
}

func TestAdminHeaderIgnoredWhenUnset(t *testing.T) {
	provider := HeaderIdentityProvider{UserHeader: "X-User"}
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-User", "alice")
	req.Header.Set("X-Admin", "true")

	identity, ok := provider.Identify(req)
	assert.True(t, ok)
	assert.False(t, identity.IsAdministrator)
}

func TestIdentityFromEmptyContext(t *testing.T) {
	_, ok := IdentityFrom(context.Background())
	assert.False(t, ok)
}
