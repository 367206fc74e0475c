package amtclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/market-stream/common/logger"
)

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) { return string(s), nil }

type failingToken struct{}

func (failingToken) AccessToken(context.Context) (string, error) { return "", ErrReauthRequired }

type captured struct {
	method      string
	auth        []string
	contentType string
	query       url.Values
	body        string
}

func captureServer(t *testing.T, status int, resp string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		c.method = r.Method
		c.auth = r.Header.Values("Authorization")
		c.contentType = r.Header.Get("Content-type")
		c.query = r.URL.Query()
		c.body = string(b)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, resp)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestExecute_AuthHeader(t *testing.T) {
	tests := []struct {
		name         string
		method       string
		tokens       TokenSource
		requiresAuth bool
		want         []string
	}{
		{"get without auth", http.MethodGet, staticToken("T"), false, nil},
		{"post without auth", http.MethodPost, staticToken("T"), false, nil},
		{"get with auth", http.MethodGet, staticToken("T"), true, []string{"Bearer T"}},
		{"post with auth", http.MethodPost, staticToken("T"), true, []string{"Bearer T"}},
		{"auth without source", http.MethodGet, nil, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, c := captureServer(t, http.StatusOK, `{"id":"value"}`)
			exec := NewExecutor(srv.Client(), tt.tokens, logger.NewNop())

			var out map[string]string
			err := exec.Execute(context.Background(), Request{
				Method:       tt.method,
				URL:          srv.URL,
				ContentType:  ContentJSON,
				RequiresAuth: tt.requiresAuth,
			}, &out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.auth)
			assert.Equal(t, map[string]string{"id": "value"}, out)
		})
	}
}

func TestExecute_FormPost(t *testing.T) {
	srv, c := captureServer(t, http.StatusOK, `{}`)
	exec := NewExecutor(srv.Client(), nil, logger.NewNop())

	err := exec.Execute(context.Background(), Request{
		Method:      http.MethodPost,
		URL:         srv.URL,
		Body:        url.Values{"grant_type": {"authorization_code"}},
		ContentType: ContentForm,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, c.method)
	assert.Equal(t, "application/x-www-form-urlencoded", c.contentType)
	assert.Equal(t, "grant_type=authorization_code", c.body)
}

func TestExecute_GetSendsQueryNotBody(t *testing.T) {
	srv, c := captureServer(t, http.StatusOK, `{}`)
	exec := NewExecutor(srv.Client(), nil, logger.NewNop())

	err := exec.Execute(context.Background(), Request{
		Method:      http.MethodGet,
		URL:         srv.URL + "/v1/userprincipals",
		Body:        map[string]string{"ignored": "yes"},
		ContentType: ContentJSON,
		Query:       url.Values{"fields": {"a,b"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "application/json", c.contentType)
	assert.Equal(t, "a,b", c.query.Get("fields"))
	assert.Empty(t, c.body)
}

func TestExecute_Non2xx(t *testing.T) {
	srv, _ := captureServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)
	exec := NewExecutor(srv.Client(), nil, logger.NewNop())

	err := exec.Execute(context.Background(), Request{Method: http.MethodPost, URL: srv.URL}, nil)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusBadRequest, reqErr.StatusCode)
	assert.Equal(t, srv.URL, reqErr.URL)
	assert.JSONEq(t, `{"error":"invalid_grant"}`, string(reqErr.Body))
}

func TestExecute_TokenSourceError(t *testing.T) {
	srv, c := captureServer(t, http.StatusOK, `{}`)
	exec := NewExecutor(srv.Client(), failingToken{}, logger.NewNop())

	err := exec.Execute(context.Background(), Request{Method: http.MethodGet, URL: srv.URL, RequiresAuth: true}, nil)
	assert.True(t, errors.Is(err, ErrReauthRequired))
	assert.Empty(t, c.method, "no request must reach the server")
}

func TestExecute_UnsupportedMethod(t *testing.T) {
	exec := NewExecutor(nil, nil, logger.NewNop())
	err := exec.Execute(context.Background(), Request{Method: http.MethodDelete, URL: "http://localhost"}, nil)
	assert.Error(t, err)
}
