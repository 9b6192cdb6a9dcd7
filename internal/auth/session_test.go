package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingsis25/snippet-searcher/internal/client"
	"github.com/ingsis25/snippet-searcher/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// signTestToken issues an HS256 token the way the devserver does. The
// session never verifies the signature, so any key works here.
func signTestToken(t *testing.T, sub, email string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func newTestSession(t *testing.T, domain string) (*Session, *client.Client) {
	t.Helper()
	cfg := config.AuthConfig{
		Domain:   domain,
		ClientID: "test-client",
		Audience: "https://snippet-searcher.api",
		Username: "test@gmail.com",
		Password: "secret",
	}
	snippets := client.New("http://unused.invalid", testLogger())
	runner := client.New("http://unused.invalid", testLogger())
	return NewSession(cfg, snippets, runner, testLogger()), snippets
}

func TestSessionStartsUnauthenticated(t *testing.T) {
	session, snippets := newTestSession(t, "http://unused.invalid")
	assert.Equal(t, StateUnauthenticated, session.State())
	_, ok := session.Operations()
	assert.False(t, ok, "no facade before authentication")
	assert.False(t, snippets.HasTokenSource())
}

func TestLoginWithStaticToken(t *testing.T) {
	session, snippets := newTestSession(t, "http://unused.invalid")
	token := signTestToken(t, "auth0|abc", "tester@mail.com")

	require.NoError(t, session.LoginWithStaticToken(token))

	assert.Equal(t, StateAuthenticated, session.State())
	assert.Equal(t, "auth0|abc", session.Identity().Sub)
	assert.Equal(t, "tester@mail.com", session.Identity().Email)

	facade, ok := session.Operations()
	assert.True(t, ok)
	assert.NotNil(t, facade)
	assert.True(t, snippets.HasTokenSource(), "token source installed into the client")
}

func TestLoginWithPasswordGrant(t *testing.T) {
	accessToken := ""
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.Form.Get("grant_type"))
		assert.Equal(t, "test@gmail.com", r.Form.Get("username"))
		assert.Equal(t, "https://snippet-searcher.api", r.URL.Query().Get("audience"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": accessToken,
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer provider.Close()

	session, _ := newTestSession(t, provider.URL)
	accessToken = signTestToken(t, "auth0|pw", "test@gmail.com")

	require.NoError(t, session.LoginWithPassword(context.Background()))
	assert.Equal(t, StateAuthenticated, session.State())
	assert.Equal(t, "auth0|pw", session.Identity().Sub)
}

func TestLoginFailureReturnsToUnauthenticated(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer provider.Close()

	session, snippets := newTestSession(t, provider.URL)
	err := session.LoginWithPassword(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateUnauthenticated, session.State())
	assert.False(t, snippets.HasTokenSource())
}

func TestLogoutClearsEverything(t *testing.T) {
	session, snippets := newTestSession(t, "http://unused.invalid")
	require.NoError(t, session.LoginWithStaticToken(signTestToken(t, "auth0|abc", "t@mail.com")))

	session.Logout()

	assert.Equal(t, StateUnauthenticated, session.State())
	assert.False(t, snippets.HasTokenSource())
	_, ok := session.Operations()
	assert.False(t, ok)
	assert.Empty(t, session.Identity().Sub)
}

func TestIdentityFromToken(t *testing.T) {
	t.Run("standard email claim", func(t *testing.T) {
		identity, err := identityFromToken(signTestToken(t, "auth0|x", "a@mail.com"))
		require.NoError(t, err)
		assert.Equal(t, "auth0|x", identity.Sub)
		assert.Equal(t, "a@mail.com", identity.Email)
	})

	t.Run("namespaced email claim", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":      "auth0|y",
			emailClaim: "b@mail.com",
		})
		signed, err := token.SignedString([]byte("k"))
		require.NoError(t, err)

		identity, err := identityFromToken(signed)
		require.NoError(t, err)
		assert.Equal(t, "b@mail.com", identity.Email)
	})

	t.Run("garbage token fails", func(t *testing.T) {
		_, err := identityFromToken("not-a-jwt")
		assert.Error(t, err)
	})

	t.Run("missing subject fails", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"email": "x@mail.com"})
		signed, err := token.SignedString([]byte("k"))
		require.NoError(t, err)

		_, err = identityFromToken(signed)
		assert.Error(t, err)
	})
}
