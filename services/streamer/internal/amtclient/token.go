// services/streamer/internal/amtclient/token.go
package amtclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/market-stream/common/logger"
	"github.com/YaganovValera/market-stream/services/streamer/internal/metrics"
	"github.com/YaganovValera/market-stream/services/streamer/internal/tokenstore"
)

// ErrReauthRequired: both the access and the refresh token have expired.
// A new authorization code is needed; retrying cannot help.
var ErrReauthRequired = errors.New("amtclient: cannot retrieve token, re-login required")

const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"
)

// TokenConfig identifies the OAuth2 client.
type TokenConfig struct {
	ClientID    string
	RedirectURI string
	Code        string
	TokenURL    string
}

type tokenResponse struct {
	AccessToken           string  `json:"access_token"`
	RefreshToken          string  `json:"refresh_token"`
	ExpiresIn             float64 `json:"expires_in"`
	RefreshTokenExpiresIn float64 `json:"refresh_token_expires_in"`
	TokenType             string  `json:"token_type"`
	Scope                 string  `json:"scope"`
}

// TokenRetriever owns the OAuth2 token pair and keeps it fresh.
type TokenRetriever struct {
	mu    sync.Mutex
	cfg   TokenConfig
	store tokenstore.Store
	exec  *Executor
	now   func() time.Time
	log   *logger.Logger
	state tokenstore.TokenState
}

// NewTokenRetriever loads the cached token or, when none is cached,
// exchanges the authorization code and caches the result.
func NewTokenRetriever(ctx context.Context, cfg TokenConfig, store tokenstore.Store, exec *Executor, log *logger.Logger) (*TokenRetriever, error) {
	t := &TokenRetriever{
		cfg:   cfg,
		store: store,
		exec:  exec.WithTokenSource(nil),
		now:   time.Now,
		log:   log.Named("token"),
	}
	if err := t.init(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *TokenRetriever) init(ctx context.Context) error {
	st, err := t.store.Load(ctx)
	switch {
	case err == nil:
		t.state = *st
		t.log.Info("token loaded from cache")
		return nil
	case !errors.Is(err, tokenstore.ErrNotFound):
		return fmt.Errorf("token retriever: load cache: %w", err)
	}
	t.log.Info("no cached token, exchanging authorization code")
	return t.exchange(ctx, grantAuthorizationCode)
}

// AccessToken returns a valid access token, refreshing it when expired.
func (t *TokenRetriever) AccessToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := epochSeconds(t.now())
	if t.state.AccessTokenExpiresAt >= now {
		return t.state.AccessToken, nil
	}
	if t.state.RefreshTokenExpiresAt >= now {
		t.log.Info("access token expired, refreshing")
		if err := t.exchange(ctx, grantRefreshToken); err != nil {
			return "", err
		}
		return t.state.AccessToken, nil
	}
	return "", ErrReauthRequired
}

// exchange calls the token endpoint, persists and adopts the new state.
func (t *TokenRetriever) exchange(ctx context.Context, grant string) error {
	form := url.Values{}
	form.Set("grant_type", grant)
	if grant == grantRefreshToken {
		form.Set("refresh_token", t.state.RefreshToken)
	}
	form.Set("access_type", "offline")
	form.Set("client_id", t.cfg.ClientID)
	if grant == grantAuthorizationCode {
		form.Set("code", t.cfg.Code)
		form.Set("redirect_uri", t.cfg.RedirectURI)
	}

	metrics.TokenExchanges.WithLabelValues(grant).Inc()
	var resp tokenResponse
	err := t.exec.Execute(ctx, Request{
		Method:      http.MethodPost,
		URL:         t.cfg.TokenURL,
		Body:        form,
		ContentType: ContentForm,
	}, &resp)
	if err != nil {
		return fmt.Errorf("token retriever: %s exchange: %w", grant, err)
	}

	fetched := epochSeconds(t.now())
	next := tokenstore.TokenState{
		AccessToken:           resp.AccessToken,
		RefreshToken:          resp.RefreshToken,
		AccessTokenExpiresAt:  fetched + resp.ExpiresIn,
		RefreshTokenExpiresAt: fetched + resp.RefreshTokenExpiresIn,
		TokenType:             resp.TokenType,
		Scope:                 resp.Scope,
	}
	// A refresh response may omit the refresh token; the old one stays valid.
	if resp.RefreshToken == "" {
		next.RefreshToken = t.state.RefreshToken
		next.RefreshTokenExpiresAt = t.state.RefreshTokenExpiresAt
	}

	if err := t.store.Save(ctx, &next); err != nil {
		return fmt.Errorf("token retriever: save cache: %w", err)
	}
	t.state = next
	t.log.Info("token exchanged",
		zap.String("grant_type", grant),
		zap.Time("access_expires_at", fromEpochSeconds(next.AccessTokenExpiresAt)),
	)
	return nil
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromEpochSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*float64(time.Second)))
}
