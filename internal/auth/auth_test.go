package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tierfs/tierfs/internal/config"
)

func newAuthenticator() *Authenticator {
	return New(config.AuthConfig{
		AllowAnonymousRead: true,
		Tokens: []config.AuthToken{
			{Token: "r", Scopes: []string{"read"}},
			{Token: "w", Scopes: []string{"files:write"}},
			{Token: "a", Scopes: []string{"admin"}},
		},
	})
}

func TestFromHeaderSchemes(t *testing.T) {
	a := newAuthenticator()

	info := a.FromHeader("")
	assert.False(t, info.Authenticated)
	assert.Empty(t, info.Token)

	info = a.FromHeader("Bearer r")
	assert.True(t, info.Authenticated)
	assert.True(t, info.Has(ScopeRead))

	// Scheme prefix is case-insensitive.
	info = a.FromHeader("bearer r")
	assert.True(t, info.Authenticated)

	// A raw value resolves verbatim.
	info = a.FromHeader("w")
	assert.True(t, info.Authenticated)
	assert.True(t, info.Has(ScopeWrite))

	// Unknown tokens are carried but unauthenticated.
	info = a.FromHeader("Bearer nope")
	assert.False(t, info.Authenticated)
	assert.Equal(t, "nope", info.Token)
}

func TestScopeNormalization(t *testing.T) {
	// write implies read.
	scopes := NormalizeScopes([]string{"write"})
	assert.True(t, scopes[ScopeWrite])
	assert.True(t, scopes[ScopeRead])
	assert.False(t, scopes[ScopeAdmin])

	// files:read / files:write are synonyms.
	scopes = NormalizeScopes([]string{"files:read"})
	assert.True(t, scopes[ScopeRead])
	scopes = NormalizeScopes([]string{"files:write"})
	assert.True(t, scopes[ScopeWrite])
	assert.True(t, scopes[ScopeRead])

	// admin implies everything.
	scopes = NormalizeScopes([]string{"admin"})
	assert.True(t, scopes[ScopeAdmin])
	assert.True(t, scopes[ScopeWrite])
	assert.True(t, scopes[ScopeRead])

	// Unrecognized scopes are dropped.
	scopes = NormalizeScopes([]string{"launch:missiles"})
	assert.Empty(t, scopes)
}

func TestHasOnNil(t *testing.T) {
	var info *Info
	assert.False(t, info.Has(ScopeRead))
	assert.False(t, Anonymous().Has(ScopeRead))
}
