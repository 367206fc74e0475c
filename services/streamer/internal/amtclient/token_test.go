package amtclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/market-stream/common/logger"
	"github.com/YaganovValera/market-stream/services/streamer/internal/tokenstore"
)

type tokenEndpoint struct {
	mu    sync.Mutex
	forms []map[string][]string
	resp  map[string]any
}

func (e *tokenEndpoint) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.forms)
}

func newTokenEndpoint(t *testing.T, resp map[string]any) (*httptest.Server, *tokenEndpoint) {
	t.Helper()
	ep := &tokenEndpoint{resp: resp}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		ep.mu.Lock()
		ep.forms = append(ep.forms, r.PostForm)
		ep.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ep.resp)
	}))
	t.Cleanup(srv.Close)
	return srv, ep
}

func defaultTokenResponse() map[string]any {
	return map[string]any{
		"access_token":             "token_value",
		"refresh_token":            "refresh_token_value",
		"token_type":               "type",
		"expires_in":               1800,
		"scope":                    "scope",
		"refresh_token_expires_in": 3600,
	}
}

func newRetriever(t *testing.T, srvURL, path string) (*TokenRetriever, error) {
	t.Helper()
	cfg := TokenConfig{
		ClientID:    "123456",
		RedirectURI: "http://localhost/test",
		Code:        "secretcode",
		TokenURL:    srvURL,
	}
	exec := NewExecutor(nil, nil, logger.NewNop())
	return NewTokenRetriever(context.Background(), cfg, tokenstore.NewFileStore(path, logger.NewNop()), exec, logger.NewNop())
}

func writeState(t *testing.T, path string, st tokenstore.TokenState) {
	t.Helper()
	b, err := json.Marshal(st)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
}

func TestTokenRetriever_NoCache_ExchangesCode(t *testing.T) {
	srv, ep := newTokenEndpoint(t, defaultTokenResponse())
	path := filepath.Join(t.TempDir(), "token.json")

	before := float64(time.Now().Unix())
	tr, err := newRetriever(t, srv.URL, path)
	require.NoError(t, err)

	tok, err := tr.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token_value", tok)
	assert.Equal(t, 1, ep.calls())

	form := ep.forms[0]
	assert.Equal(t, []string{"authorization_code"}, form["grant_type"])
	assert.Equal(t, []string{"secretcode"}, form["code"])
	assert.Equal(t, []string{"http://localhost/test"}, form["redirect_uri"])
	assert.Equal(t, []string{"offline"}, form["access_type"])
	assert.Equal(t, []string{"123456"}, form["client_id"])
	assert.NotContains(t, form, "refresh_token")

	cached, err := tokenstore.NewFileStore(path, logger.NewNop()).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refresh_token_value", cached.RefreshToken)
	assert.GreaterOrEqual(t, cached.AccessTokenExpiresAt, before+1800)
	assert.LessOrEqual(t, cached.AccessTokenExpiresAt, float64(time.Now().Unix())+1801)
	assert.GreaterOrEqual(t, cached.RefreshTokenExpiresAt, before+3600)
}

func TestTokenRetriever_ValidCache_NoNetwork(t *testing.T) {
	srv, ep := newTokenEndpoint(t, defaultTokenResponse())
	path := filepath.Join(t.TempDir(), "token.json")
	now := float64(time.Now().Unix())
	writeState(t, path, tokenstore.TokenState{
		AccessToken:           "file_token_value",
		RefreshToken:          "file_refresh_token_value",
		AccessTokenExpiresAt:  now + 3600,
		RefreshTokenExpiresAt: now + 3600,
	})

	tr, err := newRetriever(t, srv.URL, path)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		tok, err := tr.AccessToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "file_token_value", tok)
	}
	assert.Equal(t, 0, ep.calls())
}

func TestTokenRetriever_ExpiredAccess_RefreshesOnce(t *testing.T) {
	srv, ep := newTokenEndpoint(t, defaultTokenResponse())
	path := filepath.Join(t.TempDir(), "token.json")
	now := float64(time.Now().Unix())
	writeState(t, path, tokenstore.TokenState{
		AccessToken:           "old",
		RefreshToken:          "file_refresh_token_value",
		AccessTokenExpiresAt:  now - 10,
		RefreshTokenExpiresAt: now + 3600,
	})

	tr, err := newRetriever(t, srv.URL, path)
	require.NoError(t, err)

	tok, err := tr.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token_value", tok)
	tok, err = tr.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token_value", tok)

	require.Equal(t, 1, ep.calls())
	form := ep.forms[0]
	assert.Equal(t, []string{"refresh_token"}, form["grant_type"])
	assert.Equal(t, []string{"file_refresh_token_value"}, form["refresh_token"])
	assert.NotContains(t, form, "code")
	assert.NotContains(t, form, "redirect_uri")

	cached, err := tokenstore.NewFileStore(path, logger.NewNop()).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token_value", cached.AccessToken)
}

func TestTokenRetriever_RefreshWithoutNewRefreshToken(t *testing.T) {
	srv, _ := newTokenEndpoint(t, map[string]any{"access_token": "fresh", "expires_in": 1800})
	path := filepath.Join(t.TempDir(), "token.json")
	now := float64(time.Now().Unix())
	writeState(t, path, tokenstore.TokenState{
		AccessToken:           "old",
		RefreshToken:          "keep-me",
		AccessTokenExpiresAt:  now - 10,
		RefreshTokenExpiresAt: now + 3600,
	})

	tr, err := newRetriever(t, srv.URL, path)
	require.NoError(t, err)
	tok, err := tr.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
	assert.Equal(t, "keep-me", tr.state.RefreshToken)
	assert.Equal(t, now+3600, tr.state.RefreshTokenExpiresAt)
}

func TestTokenRetriever_BothExpired(t *testing.T) {
	srv, ep := newTokenEndpoint(t, defaultTokenResponse())
	path := filepath.Join(t.TempDir(), "token.json")
	now := float64(time.Now().Unix())
	writeState(t, path, tokenstore.TokenState{
		AccessToken:           "old",
		RefreshToken:          "old_refresh",
		AccessTokenExpiresAt:  now - 10,
		RefreshTokenExpiresAt: now - 10,
	})

	tr, err := newRetriever(t, srv.URL, path)
	require.NoError(t, err)
	_, err = tr.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrReauthRequired)
	assert.Equal(t, 0, ep.calls())
}

func TestTokenRetriever_ClockInjection(t *testing.T) {
	srv, ep := newTokenEndpoint(t, defaultTokenResponse())
	path := filepath.Join(t.TempDir(), "token.json")

	tr, err := newRetriever(t, srv.URL, path)
	require.NoError(t, err)
	require.Equal(t, 1, ep.calls())

	tr.now = func() time.Time { return time.Now().Add(45 * time.Minute) }
	_, err = tr.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ep.calls())

	tr.now = func() time.Time { return time.Now().Add(3 * time.Hour) }
	_, err = tr.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrReauthRequired)
	assert.Equal(t, 2, ep.calls())
}

func TestTokenRetriever_ExchangeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newRetriever(t, srv.URL, filepath.Join(t.TempDir(), "token.json"))
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusUnauthorized, reqErr.StatusCode)
}
