package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "snippet-searcher-devserver"

// tokenLifetime mirrors the default expiry Auth0 hands out for SPA tokens.
const tokenLifetime = 24 * time.Hour

// TokenService signs and validates the emulator's HS256 access tokens.
//
// The tokens carry the same claims the production identity provider emits:
// "sub" for the user id, plus the email both as the plain "email" claim and
// under the API's namespaced claim, since access tokens from custom-claim
// setups only carry the namespaced form.
type TokenService struct {
	secret   []byte
	audience string
}

// NewTokenService creates a TokenService with the given HMAC secret.
// The secret should be at least 32 bytes of random data outside local use.
func NewTokenService(secret, audience string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("devserver: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), audience: audience}, nil
}

type accessClaims struct {
	Email           string `json:"email,omitempty"`
	NamespacedEmail string `json:"https://snippet-searcher.api/email,omitempty"`
	jwt.RegisteredClaims
}

// Generate creates and signs an access token for the user.
func (s *TokenService) Generate(userID, email string) (string, error) {
	now := time.Now()

	c := accessClaims{
		Email:           email,
		NamespacedEmail: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("devserver: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token string, returning the subject and
// email claims.
//
// Restricting the accepted algorithms to HS256 blocks algorithm-confusion
// tokens signed with "none".
func (s *TokenService) Validate(tokenStr string) (userID, email string, err error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&accessClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("devserver: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", errors.New("devserver: token expired")
		}
		return "", "", fmt.Errorf("devserver: invalid token: %w", err)
	}

	c, ok := token.Claims.(*accessClaims)
	if !ok || c.Subject == "" {
		return "", "", errors.New("devserver: token missing subject")
	}
	email = c.Email
	if email == "" {
		email = c.NamespacedEmail
	}
	return c.Subject, email, nil
}

// contextKey keeps the caller identity private to this package; a plain
// string key would let any package shadow it.
type contextKey string

const callerKey contextKey = "caller"

// caller is the authenticated identity attached to the request context.
type caller struct {
	UserID string
	Email  string
}

// requireAuth enforces a valid bearer token on protected routes. Unlike the
// cookie flow a browser backend would use, the emulator reads the
// Authorization header because that is how the client attaches tokens.
func requireAuth(tokens *TokenService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			userID, email, err := tokens.Validate(raw)
			if err != nil {
				logger.Warn("rejected token", slog.String("path", r.URL.Path), slog.Any("error", err))
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), callerKey, caller{UserID: userID, Email: email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// callerFromContext retrieves the authenticated caller. The zero value with
// ok=false means the route was reached without requireAuth.
func callerFromContext(ctx context.Context) (caller, bool) {
	c, ok := ctx.Value(callerKey).(caller)
	return c, ok && c.Email != ""
}

// requestLogger logs each request with method, path, status and duration.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.written += int64(n)
	return n, err
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.Info("request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", rec.written),
			)
		})
	}
}
