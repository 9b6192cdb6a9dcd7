package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingsis25/snippet-searcher/internal/apperror"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestAuthorizationHeader(t *testing.T) {
	t.Run("attaches bearer token when a source is installed", func(t *testing.T) {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		c := New(srv.URL, testLogger())
		c.SetTokenSource(func(ctx context.Context) (string, error) { return "tok-123", nil })

		err := c.Get(context.Background(), "/snippets/abc", nil, &map[string]any{})
		require.NoError(t, err)
		assert.Equal(t, "Bearer tok-123", gotAuth)
	})

	t.Run("omits header when no source configured", func(t *testing.T) {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		c := New(srv.URL, testLogger())
		err := c.Get(context.Background(), "/languages/all", nil, &map[string]any{})
		require.NoError(t, err)
		assert.Empty(t, gotAuth)
	})

	t.Run("omits header when retrieval fails", func(t *testing.T) {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		c := New(srv.URL, testLogger())
		c.SetTokenSource(func(ctx context.Context) (string, error) { return "", errors.New("provider down") })

		err := c.Get(context.Background(), "/languages/all", nil, &map[string]any{})
		require.NoError(t, err, "token failure must not fail the request")
		assert.Empty(t, gotAuth)
	})

	t.Run("treats literal undefined and null as absent", func(t *testing.T) {
		for _, junk := range []string{"undefined", "null", ""} {
			var gotAuth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				w.Write([]byte(`{}`))
			}))

			c := New(srv.URL, testLogger())
			c.SetTokenSource(func(ctx context.Context) (string, error) { return junk, nil })

			err := c.Get(context.Background(), "/languages/all", nil, &map[string]any{})
			require.NoError(t, err)
			assert.Empty(t, gotAuth, "token %q must not become a header", junk)
			srv.Close()
		}
	})

	t.Run("last installed source wins", func(t *testing.T) {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		c := New(srv.URL, testLogger())
		c.SetTokenSource(func(ctx context.Context) (string, error) { return "first", nil })
		c.SetTokenSource(func(ctx context.Context) (string, error) { return "second", nil })

		err := c.Get(context.Background(), "/snippets/abc", nil, &map[string]any{})
		require.NoError(t, err)
		assert.Equal(t, "Bearer second", gotAuth)
	})
}

func TestErrorResponses(t *testing.T) {
	t.Run("structured JSON error body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"snippet rejected","code":"SNIPPET_INVALID","diagnostics":["line 2: unexpected token"]}`))
		}))
		defer srv.Close()

		c := New(srv.URL, testLogger())
		err := c.Post(context.Background(), "/snippets", map[string]string{"name": "x"}, nil)
		require.Error(t, err)

		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, 400, appErr.Status)
		assert.Equal(t, "SNIPPET_INVALID", appErr.Code)
		assert.Equal(t, "snippet rejected", appErr.Message)
		assert.Equal(t, []string{"line 2: unexpected token"}, appErr.Diagnostics)
		assert.True(t, errors.Is(err, apperror.ErrValidation))
	})

	t.Run("plain text error body degrades to message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte("User is not the owner of the snippet"))
		}))
		defer srv.Close()

		c := New(srv.URL, testLogger())
		err := c.Post(context.Background(), "/snippets/abc/check-owner", nil, nil)
		require.Error(t, err)

		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, 403, appErr.Status)
		assert.Equal(t, "User is not the owner of the snippet", appErr.Message)
		assert.True(t, errors.Is(err, apperror.ErrForbidden))
	})

	t.Run("unparseable body falls back to generic message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"broken`))
		}))
		defer srv.Close()

		c := New(srv.URL, testLogger())
		err := c.Get(context.Background(), "/snippets/abc", nil, nil)
		require.Error(t, err)

		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, 502, appErr.Status)
		assert.Contains(t, appErr.Message, "HTTP 502")
		assert.True(t, errors.Is(err, apperror.ErrUpstream))
	})
}

func TestDoText(t *testing.T) {
	t.Run("plain string body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("User is the owner of the snippet"))
		}))
		defer srv.Close()

		c := New(srv.URL, testLogger())
		got, err := c.DoText(context.Background(), http.MethodPost, "/snippets/abc/check-owner", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "User is the owner of the snippet", got)
	})

	t.Run("JSON quoted string body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`"Snippet deleted"`))
		}))
		defer srv.Close()

		c := New(srv.URL, testLogger())
		got, err := c.DoText(context.Background(), http.MethodPost, "/snippets/delete/abc", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "Snippet deleted", got)
	})
}

func TestQueryParameters(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	q := map[string][]string{"userId": {"auth0|123"}, "page": {"0"}, "pageSize": {"10"}}
	err := c.Get(context.Background(), "/snippets/user", q, &map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "page=0")
	assert.Contains(t, gotQuery, "pageSize=10")
	assert.Contains(t, gotQuery, "userId=auth0%7C123")
}
