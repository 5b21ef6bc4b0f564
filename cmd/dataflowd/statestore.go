package main

import (
	"github.com/gorilla/sessions"
)

// newOAuthSessionStore builds the gorilla/sessions store the OAuth
// login/callback handlers use to carry the CSRF state token across the
// provider redirect. A signed cookie store needs no shared backend, so the
// OAuth flow works the same whether dataflowd is running as one replica or
// many, unlike a server-side nonce table would.
func newOAuthSessionStore(secret string) sessions.Store {
	return sessions.NewCookieStore([]byte(secret))
}
