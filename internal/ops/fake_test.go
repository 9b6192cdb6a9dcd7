package ops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingsis25/snippet-searcher/internal/apperror"
	"github.com/ingsis25/snippet-searcher/internal/model"
)

func newTestFake() *Fake {
	return NewFakeWithoutLatency(Identity{Sub: "fake|tester", Email: "tester@mail.com"})
}

func TestFakeCreateThenGetRoundTrip(t *testing.T) {
	f := newTestFake()
	ctx := context.Background()

	created, err := f.CreateSnippet(ctx, model.CreateSnippet{
		Name: "Test name", Content: "print(1)", Language: "Printscript", Extension: ".ps", Version: "1.0",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	fetched, err := f.GetSnippetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, fetched.Name)
	assert.Equal(t, created.Content, fetched.Content)
	assert.Equal(t, created.Language, fetched.Language)
	assert.Equal(t, model.RoleOwner, fetched.UserRole)
}

func TestFakeGetSnippetByID_EmptyID(t *testing.T) {
	f := newTestFake()
	snippet, err := f.GetSnippetByID(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, snippet)
}

func TestFakeListPagination(t *testing.T) {
	f := newTestFake()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.CreateSnippet(ctx, model.CreateSnippet{
			Name: "extra", Content: "x", Language: "PrintScript", Extension: ".ps", Version: "1.1",
		})
		require.NoError(t, err)
	}

	page, err := f.ListSnippetDescriptors(ctx, 0, 3, "")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(page.Snippets), 3)
	assert.Equal(t, 7, page.Count, "two seeded plus five created")

	filtered, err := f.ListSnippetDescriptors(ctx, 0, 10, "hello")
	require.NoError(t, err)
	require.Len(t, filtered.Snippets, 1)
	assert.Equal(t, "Hello snippet", filtered.Snippets[0].Name)
}

func TestFakeUpdateAndDelete(t *testing.T) {
	f := newTestFake()
	ctx := context.Background()

	page, err := f.ListSnippetDescriptors(ctx, 0, 1, "")
	require.NoError(t, err)
	require.Len(t, page.Snippets, 1)
	id := page.Snippets[0].ID

	updated, err := f.UpdateSnippetByID(ctx, id, model.UpdateSnippet{Content: "new content"})
	require.NoError(t, err)
	assert.Equal(t, "new content", updated.Content)
	assert.Equal(t, model.CompliancePending, updated.Status, "update resets compliance")

	msg, err := f.DeleteSnippet(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Snippet deleted", msg)

	_, err = f.GetSnippetByID(ctx, id)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestFakeShare(t *testing.T) {
	f := newTestFake()
	ctx := context.Background()

	_, err := f.ShareSnippet(ctx, "whatever", "", model.RoleEditor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "User email not found")

	page, _ := f.ListSnippetDescriptors(ctx, 0, 1, "")
	shared, err := f.ShareSnippet(ctx, page.Snippets[0].ID, "ana@mail.com", model.RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, page.Snippets[0].ID, shared.ID)
}

func TestFakefriendsExcludeCaller(t *testing.T) {
	f := newTestFake()
	result, err := f.GetUserFriends(context.Background(), "")
	require.NoError(t, err)
	for _, u := range result.Users {
		assert.NotEqual(t, "tester@mail.com", u.Name)
	}

	filtered, err := f.GetUserFriends(context.Background(), "ana")
	require.NoError(t, err)
	require.Len(t, filtered.Users, 1)
	assert.Equal(t, "ana@mail.com", filtered.Users[0].Name)
}

func TestFakeRules(t *testing.T) {
	f := newTestFake()
	ctx := context.Background()

	rules, err := f.GetFormatRules(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, rules)

	rules[0].Enabled = !rules[0].Enabled
	updated, err := f.ModifyFormatRule(ctx, rules)
	require.NoError(t, err)
	assert.Equal(t, rules[0].Enabled, updated[0].Enabled)

	lint, err := f.GetLintingRules(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, lint)
}

func TestFakeTestCases(t *testing.T) {
	f := newTestFake()
	ctx := context.Background()

	page, _ := f.ListSnippetDescriptors(ctx, 0, 1, "")
	snippetID := page.Snippets[0].ID

	created, err := f.PostTestCase(ctx, model.TestCase{
		Name: "prints hello", Input: []string{}, Output: []string{"Hello"},
	}, snippetID)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	cases, err := f.GetTestCases(ctx, snippetID)
	require.NoError(t, err)
	require.Len(t, cases, 1)

	verdict, err := f.TestSnippet(ctx, *created)
	require.NoError(t, err)
	assert.Equal(t, model.TestSuccess, verdict)

	verdict, err = f.TestSnippet(ctx, model.TestCase{ID: "missing"})
	require.NoError(t, err)
	assert.Equal(t, model.TestFail, verdict)

	removed, err := f.RemoveTestCase(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, removed)
}

func TestFakeRunAndFormat(t *testing.T) {
	f := newTestFake()
	ctx := context.Background()

	page, _ := f.ListSnippetDescriptors(ctx, 0, 1, "")
	id := page.Snippets[0].ID

	output, err := f.RunSnippet(ctx, id, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, output)

	_, err = f.RunSnippet(ctx, "missing", nil)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	formatted, err := f.FormatSnippet(ctx, id)
	require.NoError(t, err)
	assert.NotEmpty(t, formatted)
}

func TestFakeDownload(t *testing.T) {
	f := newTestFake()
	ctx := context.Background()

	page, _ := f.ListSnippetDescriptors(ctx, 0, 10, "hello")
	require.NotEmpty(t, page.Snippets)
	id := page.Snippets[0].ID

	dir := t.TempDir()
	path, err := f.DownloadSnippet(ctx, id, true, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Hello snippet.ps"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "// Name: Hello snippet")
	assert.Contains(t, string(content), "// Language: PrintScript")
}

func TestFakeLatencyHonoursCancellation(t *testing.T) {
	f := newFake(Identity{Email: "tester@mail.com"}, defaultFakeLatency)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.GetFileTypes(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFakeStoresAreIsolated(t *testing.T) {
	a := newTestFake()
	b := newTestFake()
	ctx := context.Background()

	created, err := a.CreateSnippet(ctx, model.CreateSnippet{
		Name: "only in a", Content: "x", Language: "PrintScript", Extension: ".ps", Version: "1.1",
	})
	require.NoError(t, err)

	_, err = b.GetSnippetByID(ctx, created.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
