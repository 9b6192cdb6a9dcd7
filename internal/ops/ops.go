// Package ops is the snippet operations facade — the single contract
// consumers of this SDK depend on.
//
// There are two implementations behind the SnippetOperations interface:
//
//	Service — network-backed, talks to the snippet and runner services
//	          through the client package and the normalize layer
//	Fake    — an isolated in-memory store with artificial latency, used
//	          when no backend session exists and in isolated tests
//
// Which one a consumer gets is decided at composition time (the auth
// session provider builds a Service once a user identity is known; the CLI
// builds a Fake on --fake). Consumers never construct either directly from
// UI-ish code — they accept the interface.
package ops

import (
	"context"

	"github.com/ingsis25/snippet-searcher/internal/model"
)

// SnippetOperations exposes every snippet-related action the platform
// supports. All methods take a context and return typed errors from the
// apperror package on failure — never a success-shaped sentinel value.
//
// Ordering: two concurrently issued calls may resolve in any order. Callers
// that need "save then reload" semantics sequence the calls themselves.
type SnippetOperations interface {
	// ListSnippetDescriptors returns one page of the authenticated user's
	// snippets, optionally filtered by name. Requires a user identity.
	// The result never holds more than pageSize items.
	ListSnippetDescriptors(ctx context.Context, page, pageSize int, snippetName string) (*model.PaginatedSnippets, error)

	// CreateSnippet stores a new snippet. The returned snippet may carry a
	// non-empty Errors list (compilation problems) inside a successful result.
	CreateSnippet(ctx context.Context, create model.CreateSnippet) (*model.Snippet, error)

	// GetSnippetByID returns the snippet, or (nil, nil) when id is empty —
	// that short-circuit never touches the network.
	GetSnippetByID(ctx context.Context, id string) (*model.Snippet, error)

	// UpdateSnippetByID replaces the snippet's content. A Viewer gets a
	// permission error.
	UpdateSnippetByID(ctx context.Context, id string, update model.UpdateSnippet) (*model.Snippet, error)

	// DeleteSnippet removes the snippet and returns the backend's
	// confirmation message.
	DeleteSnippet(ctx context.Context, id string) (string, error)

	// ShareSnippet grants userEmail the given role on the snippet. An empty
	// grantee fails locally without a network call.
	ShareSnippet(ctx context.Context, snippetID, userEmail string, role model.Role) (*model.Snippet, error)

	// GetUserFriends searches the user directory, excluding the caller.
	GetUserFriends(ctx context.Context, search string) (*model.PaginatedUsers, error)

	// GetFileTypes returns the supported languages, deduplicated by
	// (language, version). A 401 yields an empty slice, not an error.
	GetFileTypes(ctx context.Context) ([]model.FileType, error)

	GetFormatRules(ctx context.Context) ([]model.Rule, error)
	ModifyFormatRule(ctx context.Context, rules []model.Rule) ([]model.Rule, error)
	GetLintingRules(ctx context.Context) ([]model.Rule, error)
	ModifyLintingRule(ctx context.Context, rules []model.Rule) ([]model.Rule, error)

	// FormatSnippet runs the formatter over the snippet and returns the
	// formatted source text.
	FormatSnippet(ctx context.Context, id string) (string, error)

	// RunSnippet executes the snippet and returns its output lines.
	RunSnippet(ctx context.Context, id string, inputs []string) ([]string, error)

	GetTestCases(ctx context.Context, snippetID string) ([]model.TestCase, error)
	PostTestCase(ctx context.Context, testCase model.TestCase, snippetID string) (*model.TestCase, error)
	RemoveTestCase(ctx context.Context, id string) (string, error)

	// TestSnippet runs a stored test case. Only the literal "success"
	// response maps to TestSuccess; everything else is TestFail.
	TestSnippet(ctx context.Context, testCase model.TestCase) (model.TestVerdict, error)

	// DownloadSnippet saves the snippet to a local file under dir, optionally
	// prefixed with a metadata header. Only the owner may download; the
	// ownership pre-flight runs before any content is fetched.
	DownloadSnippet(ctx context.Context, id string, includeMetadata bool, dir string) (string, error)
}
