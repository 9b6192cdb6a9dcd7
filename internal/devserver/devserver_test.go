package devserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingsis25/snippet-searcher/internal/auth"
	"github.com/ingsis25/snippet-searcher/internal/client"
	"github.com/ingsis25/snippet-searcher/internal/config"
	"github.com/ingsis25/snippet-searcher/internal/model"
)

const (
	testEmail    = "test@gmail.com"
	testPassword = "local-dev-password"
	testAudience = "https://snippet-searcher.api"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv, err := New(Config{
		// A file in the test's temp dir: a shared :memory: database does not
		// survive the connection pool opening a second connection.
		DBPath:       filepath.Join(t.TempDir(), "devserver.db"),
		JWTSecret:    "integration-test-secret",
		Audience:     testAudience,
		SeedEmail:    testEmail,
		SeedPassword: testPassword,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { srv.store.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// login runs the password grant against the test server and returns an
// authenticated operations facade.
func login(t *testing.T, ts *httptest.Server) *auth.Session {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	snippets := client.New(ts.URL+"/api", logger)
	runner := client.New(ts.URL+"/api", logger)
	session := auth.NewSession(config.AuthConfig{
		Domain:   ts.URL,
		Audience: testAudience,
		Username: testEmail,
		Password: testPassword,
	}, snippets, runner, logger)

	require.NoError(t, session.LoginWithPassword(context.Background()))
	return session
}

func postForm(t *testing.T, ts *httptest.Server, values url.Values) *http.Response {
	t.Helper()
	resp, err := http.PostForm(ts.URL+"/oauth/token", values)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestTokenEndpointRejectsBadCredentials(t *testing.T) {
	ts := newTestServer(t)

	resp := postForm(t, ts, url.Values{
		"grant_type": {"password"},
		"username":   {testEmail},
		"password":   {"wrong"},
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = postForm(t, ts, url.Values{
		"grant_type": {"password"},
		"username":   {"nobody@example.com"},
		"password":   {testPassword},
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = postForm(t, ts, url.Values{"grant_type": {"authorization_code"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClientCredentialsGrant(t *testing.T) {
	ts := newTestServer(t)

	resp := postForm(t, ts, url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {"ci-runner"},
		"client_secret": {"s3cret"},
		"audience":      {testAudience},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var token tokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&token))
	assert.NotEmpty(t, token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)

	// The machine token opens protected routes like any user token.
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/snippets/user", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	listResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer listResp.Body.Close()
	assert.Equal(t, http.StatusOK, listResp.StatusCode)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/snippets/user")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/snippets/user", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)

	// The language catalogue stays public.
	resp3, err := http.Get(ts.URL + "/api/languages/all")
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusOK, resp3.StatusCode)
}

func TestSnippetLifecycleThroughFacade(t *testing.T) {
	ts := newTestServer(t)
	session := login(t, ts)

	operations, ok := session.Operations()
	require.True(t, ok)
	ctx := context.Background()

	created, err := operations.CreateSnippet(ctx, model.CreateSnippet{
		Name:      "greeting",
		Content:   `println("Hello devserver");`,
		Language:  "printscript",
		Extension: "ps",
		Version:   "1.1",
	})
	require.NoError(t, err)
	assert.Equal(t, testEmail, created.Owner)
	assert.Equal(t, model.CompliancePending, created.Compliance)

	page, err := operations.ListSnippetDescriptors(ctx, 0, 10, "")
	require.NoError(t, err)
	require.Len(t, page.Snippets, 1)
	assert.Equal(t, 1, page.Count)
	assert.Equal(t, "greeting", page.Snippets[0].Name)
	assert.Equal(t, model.RoleOwner, page.Snippets[0].UserRole)

	updated, err := operations.UpdateSnippetByID(ctx, created.ID, model.UpdateSnippet{
		Content: `println("Hello again");`,
	})
	require.NoError(t, err)
	assert.Equal(t, `println("Hello again");`, updated.Content)

	outputs, err := operations.RunSnippet(ctx, created.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello again"}, outputs)

	dir := t.TempDir()
	path, err := operations.DownloadSnippet(ctx, created.ID, true, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "greeting.ps"), path)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "// Name: greeting")
	assert.Contains(t, string(content), `println("Hello again");`)

	confirmation, err := operations.DeleteSnippet(ctx, created.ID)
	require.NoError(t, err)
	assert.Contains(t, confirmation, "deleted")

	page, err = operations.ListSnippetDescriptors(ctx, 0, 10, "")
	require.NoError(t, err)
	assert.Empty(t, page.Snippets)
}

func TestSharingEnforcesRoles(t *testing.T) {
	ts := newTestServer(t)
	owner := login(t, ts)
	ownerOps, _ := owner.Operations()
	ctx := context.Background()

	created, err := ownerOps.CreateSnippet(ctx, model.CreateSnippet{
		Name: "shared", Content: "let x: number = 1;", Language: "printscript",
		Extension: "ps", Version: "1.1",
	})
	require.NoError(t, err)

	_, err = ownerOps.ShareSnippet(ctx, created.ID, "viewer@clients", model.RoleViewer)
	require.NoError(t, err)

	// A machine identity with a Viewer grant can read but not edit,
	// and the download probe turns it away before any content moves.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	viewerClient := client.New(ts.URL+"/api", logger)
	viewerSession := auth.NewSession(config.AuthConfig{
		Domain:       ts.URL,
		Audience:     testAudience,
		ClientID:     "viewer",
		ClientSecret: "s3cret",
	}, viewerClient, client.New(ts.URL+"/api", logger), logger)
	require.NoError(t, viewerSession.LoginWithClientCredentials(ctx))
	viewerOps, _ := viewerSession.Operations()

	got, err := viewerOps.GetSnippetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleViewer, got.UserRole)

	_, err = viewerOps.UpdateSnippetByID(ctx, created.ID, model.UpdateSnippet{Content: "let y: number = 2;"})
	require.Error(t, err)

	_, err = viewerOps.DownloadSnippet(ctx, created.ID, false, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner")

	_, err = viewerOps.DeleteSnippet(ctx, created.ID)
	require.Error(t, err)
}

func TestRulesRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	session := login(t, ts)
	operations, _ := session.Operations()
	ctx := context.Background()

	rules, err := operations.GetFormatRules(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, rules)

	rules[0].Enabled = !rules[0].Enabled
	updated, err := operations.ModifyFormatRule(ctx, rules)
	require.NoError(t, err)
	assert.Equal(t, rules[0].Enabled, updated[0].Enabled)

	fetched, err := operations.GetFormatRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, rules[0].Enabled, fetched[0].Enabled)

	lint, err := operations.GetLintingRules(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, lint)
}

func TestTestCaseVerdicts(t *testing.T) {
	ts := newTestServer(t)
	session := login(t, ts)
	operations, _ := session.Operations()
	ctx := context.Background()

	created, err := operations.CreateSnippet(ctx, model.CreateSnippet{
		Name: "echo", Content: `println("one");` + "\n" + `println("two");`,
		Language: "printscript", Extension: "ps", Version: "1.1",
	})
	require.NoError(t, err)

	passing, err := operations.PostTestCase(ctx, model.TestCase{
		Name:   "matches output",
		Output: []string{"one", "two"},
	}, created.ID)
	require.NoError(t, err)
	require.NotEmpty(t, passing.ID)

	verdict, err := operations.TestSnippet(ctx, *passing)
	require.NoError(t, err)
	assert.Equal(t, model.TestSuccess, verdict)

	failing, err := operations.PostTestCase(ctx, model.TestCase{
		Name:   "wrong output",
		Output: []string{"one"},
	}, created.ID)
	require.NoError(t, err)

	verdict, err = operations.TestSnippet(ctx, *failing)
	require.NoError(t, err)
	assert.Equal(t, model.TestFail, verdict)

	cases, err := operations.GetTestCases(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, cases, 2)

	_, err = operations.RemoveTestCase(ctx, failing.ID)
	require.NoError(t, err)
	cases, err = operations.GetTestCases(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, cases, 1)
}

func TestLanguageCatalogueNormalization(t *testing.T) {
	ts := newTestServer(t)
	session := login(t, ts)
	operations, _ := session.Operations()

	fileTypes, err := operations.GetFileTypes(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, fileTypes)

	// The version-in-name entry arrives split into language and version.
	var found bool
	for _, ft := range fileTypes {
		if ft.Version == "1.0" {
			found = true
			assert.Equal(t, "PrintScript", ft.Language)
		}
	}
	assert.True(t, found, "expected the catalogue's PrintScript 1.0 entry")
}

func TestInterpretConsumesInputs(t *testing.T) {
	got := interpret(strings.Join([]string{
		`println("start");`,
		`let name: string = readInput("Name:");`,
		`println(readInput("Name:"));`,
		`println(42);`,
	}, "\n"), []string{"Ada"})

	assert.Equal(t, []string{"start", "Ada", "42"}, got)
}

func TestUserDirectorySearch(t *testing.T) {
	ts := newTestServer(t)
	session := login(t, ts)
	operations, _ := session.Operations()

	// The only seeded user is the caller, and callers never see themselves.
	friends, err := operations.GetUserFriends(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, friends.Users)
}
