// Package tokenstore persists the OAuth2 TokenState between runs.
package tokenstore

import (
	"context"
	"errors"
)

// ErrNotFound: no token has been cached yet.
var ErrNotFound = errors.New("tokenstore: token not found")

// TokenState is the cached OAuth2 token pair. The expiry fields keep the
// provider's names but hold absolute epoch seconds computed at fetch
// time, not relative lifetimes.
type TokenState struct {
	AccessToken           string  `json:"access_token"`
	RefreshToken          string  `json:"refresh_token"`
	AccessTokenExpiresAt  float64 `json:"expires_in"`
	RefreshTokenExpiresAt float64 `json:"refresh_token_expires_in"`
	TokenType             string  `json:"token_type,omitempty"`
	Scope                 string  `json:"scope,omitempty"`
}

// Store loads and saves a TokenState.
type Store interface {
	// Load returns ErrNotFound when nothing is cached.
	Load(ctx context.Context) (*TokenState, error)
	// Save replaces the cached state; readers never see a partial write.
	Save(ctx context.Context, st *TokenState) error
}
