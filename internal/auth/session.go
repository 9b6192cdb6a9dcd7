// Package auth owns the authentication state of the process: the token
// lifecycle and the single live facade bound to the current user.
//
// SESSION STATE MACHINE:
//
//	Unauthenticated → Authenticating → Authenticated → (logout) → Unauthenticated
//
// On entering Authenticated the session does two things:
//  1. installs a token-retrieval function into the HTTP clients, so every
//     subsequent request carries a bearer token, silently refreshed by the
//     underlying oauth2.TokenSource
//  2. constructs ONE ops.Service bound to the user identity read from the
//     token's claims
//
// While Authenticating, Operations() reports no facade — callers block or
// show a pending state; no backend call is issued before the identity is
// known. Token retrieval failures after login are non-fatal: the client
// logs and sends the request unauthenticated, because some endpoints accept
// anonymous calls.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ingsis25/snippet-searcher/internal/client"
	"github.com/ingsis25/snippet-searcher/internal/config"
	"github.com/ingsis25/snippet-searcher/internal/ops"
)

// State is the session's position in the lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Session is the process-wide token/session provider. It owns the token
// source exclusively — the HTTP clients only ever see it through the
// injected retrieval function, never the raw token.
type Session struct {
	cfg      config.AuthConfig
	snippets *client.Client
	runner   *client.Client
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	identity   ops.Identity
	operations ops.SnippetOperations
}

// NewSession creates an unauthenticated session over the given clients.
func NewSession(cfg config.AuthConfig, snippets, runner *client.Client, logger *slog.Logger) *Session {
	return &Session{
		cfg:      cfg,
		snippets: snippets,
		runner:   runner,
		logger:   logger,
		state:    StateUnauthenticated,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the authenticated user, zero-valued before login.
func (s *Session) Identity() ops.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Operations returns the facade for the current session. ok is false until
// the session reaches Authenticated — callers must not fall back to a nil
// facade, they wait or use ops.NewFake explicitly.
func (s *Session) Operations() (ops.SnippetOperations, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operations, s.operations != nil
}

// LoginWithPassword authenticates with the resource-owner password grant
// using the configured test credentials. Test environments only — the
// interactive product uses the provider's own redirect flow, which is out
// of this SDK's scope.
func (s *Session) LoginWithPassword(ctx context.Context) error {
	// The audience rides on the token URL: the password grant helper has no
	// slot for extra form values, and the provider accepts it as a query
	// parameter.
	conf := &oauth2.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: s.tokenURL(true),
		},
	}

	s.setState(StateAuthenticating)
	token, err := conf.PasswordCredentialsToken(ctx, s.cfg.Username, s.cfg.Password)
	if err != nil {
		s.setState(StateUnauthenticated)
		return fmt.Errorf("auth: password grant failed: %w", err)
	}

	return s.establish(conf.TokenSource(context.Background(), token))
}

// LoginWithClientCredentials authenticates machine-to-machine with the
// client-credentials grant. The returned token source refreshes silently.
func (s *Session) LoginWithClientCredentials(ctx context.Context) error {
	conf := &clientcredentials.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		TokenURL:     s.tokenURL(false),
		EndpointParams: url.Values{
			"audience": {s.cfg.Audience},
		},
	}

	s.setState(StateAuthenticating)
	ts := conf.TokenSource(ctx)
	if _, err := ts.Token(); err != nil {
		s.setState(StateUnauthenticated)
		return fmt.Errorf("auth: client credentials grant failed: %w", err)
	}

	return s.establish(ts)
}

// LoginWithStaticToken installs a fixed, externally obtained token. No
// refresh happens; when it expires the caller logs in again.
func (s *Session) LoginWithStaticToken(token string) error {
	if token == "" {
		return fmt.Errorf("auth: static token is empty")
	}
	s.setState(StateAuthenticating)
	return s.establish(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
}

// Logout tears the session down: clears the token sources from both
// clients, drops the facade, and returns to Unauthenticated.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snippets.SetTokenSource(nil)
	s.runner.SetTokenSource(nil)
	s.operations = nil
	s.identity = ops.Identity{}
	s.state = StateUnauthenticated
	s.logger.Info("session logged out")
}

// establish moves the session to Authenticated: reads the identity out of
// the access token, installs the retrieval function into both clients, and
// builds the live facade. Called with a source that has already produced at
// least one valid token.
func (s *Session) establish(ts oauth2.TokenSource) error {
	// ReuseTokenSource caches the current token and refreshes it silently
	// just before expiry — this is the "silent token retrieval" the clients
	// see behind the retrieval function.
	cached := oauth2.ReuseTokenSource(nil, ts)

	token, err := cached.Token()
	if err != nil {
		s.setState(StateUnauthenticated)
		return fmt.Errorf("auth: obtaining access token: %w", err)
	}

	identity, err := identityFromToken(token.AccessToken)
	if err != nil {
		s.setState(StateUnauthenticated)
		return fmt.Errorf("auth: reading identity from token: %w", err)
	}

	retrieve := func(ctx context.Context) (string, error) {
		t, err := cached.Token()
		if err != nil {
			return "", err
		}
		return t.AccessToken, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snippets.SetTokenSource(retrieve)
	s.runner.SetTokenSource(retrieve)
	s.identity = identity
	s.operations = ops.NewService(s.snippets, s.runner, identity, s.logger)
	s.state = StateAuthenticated

	s.logger.Info("session authenticated",
		slog.String("sub", identity.Sub),
		slog.String("email", identity.Email),
	)
	return nil
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// tokenURL builds the provider's token endpoint, optionally carrying the
// audience as a query parameter for grant helpers without EndpointParams.
func (s *Session) tokenURL(withAudience bool) string {
	u := s.cfg.Domain + "/oauth/token"
	if withAudience && s.cfg.Audience != "" {
		u += "?audience=" + url.QueryEscape(s.cfg.Audience)
	}
	return u
}
