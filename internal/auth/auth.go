// Package auth implements token authentication and scope checks shared by
// the HTTP request layer and the tool middleware. Authentication is token
// presence plus scopes; there is no cryptographic verification.
package auth

import (
	"strings"

	"github.com/tierfs/tierfs/internal/config"
)

// Scope names a granted capability after normalization.
type Scope string

const (
	ScopeRead  Scope = "read"
	ScopeWrite Scope = "write"
	ScopeAdmin Scope = "admin"
)

// Info is the authenticated identity of one request.
type Info struct {
	Authenticated bool
	Token         string
	Scopes        map[Scope]bool
}

// Anonymous is the identity of a request with no credentials.
func Anonymous() *Info {
	return &Info{Scopes: map[Scope]bool{}}
}

// Authenticator resolves tokens against the configured token table.
type Authenticator struct {
	tokens             map[string][]string
	allowAnonymousRead bool
}

// New builds an Authenticator from configuration.
func New(cfg config.AuthConfig) *Authenticator {
	tokens := make(map[string][]string, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		tokens[t.Token] = t.Scopes
	}
	return &Authenticator{tokens: tokens, allowAnonymousRead: cfg.AllowAnonymousRead}
}

// AllowAnonymousRead reports whether unauthenticated reads are permitted.
func (a *Authenticator) AllowAnonymousRead() bool { return a.allowAnonymousRead }

// FromHeader resolves an Authorization header value. Accepted schemes:
// "Bearer <token>" or a raw value taken verbatim. An empty header yields
// the anonymous identity; an unknown token yields an authenticated=false
// identity carrying the token, so callers can distinguish "no credentials"
// from "bad credentials".
func (a *Authenticator) FromHeader(header string) *Info {
	header = strings.TrimSpace(header)
	if header == "" {
		return Anonymous()
	}
	token := header
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		token = strings.TrimSpace(header[len("bearer "):])
	}
	return a.FromToken(token)
}

// FromToken resolves a bare token.
func (a *Authenticator) FromToken(token string) *Info {
	scopes, ok := a.tokens[token]
	if !ok {
		return &Info{Token: token, Scopes: map[Scope]bool{}}
	}
	return &Info{Authenticated: true, Token: token, Scopes: NormalizeScopes(scopes)}
}

// NormalizeScopes expands raw scope strings into the effective set:
// files:read/files:write are synonyms of read/write, write implies read,
// and admin implies everything.
func NormalizeScopes(raw []string) map[Scope]bool {
	out := make(map[Scope]bool, len(raw))
	for _, s := range raw {
		switch strings.TrimSpace(strings.ToLower(s)) {
		case "read", "files:read":
			out[ScopeRead] = true
		case "write", "files:write":
			out[ScopeWrite] = true
			out[ScopeRead] = true
		case "admin":
			out[ScopeAdmin] = true
			out[ScopeWrite] = true
			out[ScopeRead] = true
		}
	}
	return out
}

// Has reports whether the identity carries a scope.
func (i *Info) Has(s Scope) bool {
	if i == nil {
		return false
	}
	return i.Scopes[s]
}
