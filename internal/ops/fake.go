package ops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/ingsis25/snippet-searcher/internal/apperror"
	"github.com/ingsis25/snippet-searcher/internal/model"
)

// Compile check: *Fake satisfies the facade contract.
var _ SnippetOperations = (*Fake)(nil)

// defaultFakeLatency imitates a backend round-trip so consumers exercise
// their pending states. Tests construct the fake with zero latency.
const defaultFakeLatency = 300 * time.Millisecond

// Fake is the in-memory facade used when no backend session exists and for
// isolated tests. It holds its own isolated store — nothing leaks between
// two Fake instances — and simulates latency with a context-aware sleep.
//
// All access goes through one mutex. The consumers we care about are
// sequential, but the interface promises safety under concurrent calls and
// a mutex is cheaper than documenting an exception.
type Fake struct {
	latency time.Duration
	user    Identity

	mu          sync.Mutex
	snippets    map[string]*model.Snippet
	testCases   map[string]*model.TestCase
	formatRules []model.Rule
	lintRules   []model.Rule
	fileTypes   []model.FileType
	users       []model.User
}

// NewFake creates a fake facade seeded with a couple of snippets, the
// standard rule sets, the platform's languages and a tiny user directory.
func NewFake(user Identity) *Fake {
	return newFake(user, defaultFakeLatency)
}

// NewFakeWithoutLatency is NewFake for tests that don't want to wait.
func NewFakeWithoutLatency(user Identity) *Fake {
	return newFake(user, 0)
}

func newFake(user Identity, latency time.Duration) *Fake {
	f := &Fake{
		latency:   latency,
		user:      user,
		snippets:  make(map[string]*model.Snippet),
		testCases: make(map[string]*model.TestCase),
	}
	f.seed()
	return f
}

func (f *Fake) seed() {
	for _, s := range []model.Snippet{
		{
			Name: "Hello snippet", Content: `println("Hello");`,
			Language: "PrintScript", Extension: ".ps", Version: "1.1",
		},
		{
			Name: "Sum of two", Content: "let a: number = 1;\nlet b: number = 2;\nprintln(a + b);",
			Language: "PrintScript", Extension: ".ps", Version: "1.0",
		},
	} {
		snippet := s
		snippet.ID = xid.New().String()
		snippet.Status = model.CompliancePending
		snippet.Compliance = model.CompliancePending
		snippet.Author = f.user.Email
		snippet.Owner = f.user.Email
		snippet.UserRole = model.RoleOwner
		snippet.LintWarnings = []string{}
		f.snippets[snippet.ID] = &snippet
	}

	f.formatRules = []model.Rule{
		{ID: "1", Name: "enforce-spacing-before-colon-in-declaration", Enabled: false},
		{ID: "2", Name: "enforce-spacing-after-colon-in-declaration", Enabled: true},
		{ID: "3", Name: "indent-inside-if", Enabled: true, Value: 4},
	}
	f.lintRules = []model.Rule{
		{ID: "1", Name: "identifier_format", Enabled: true, Value: "camel case"},
		{ID: "2", Name: "mandatory-variable-or-literal-in-println", Enabled: false},
	}
	f.fileTypes = []model.FileType{
		{Language: "PrintScript", Extension: ".ps", Version: "1.0", ID: "1"},
		{Language: "PrintScript", Extension: ".ps", Version: "1.1", ID: "2"},
	}
	f.users = []model.User{
		{ID: "u1", Name: "ana@mail.com"},
		{ID: "u2", Name: "bruno@mail.com"},
		{ID: "u3", Name: "carla@mail.com"},
	}
}

// wait simulates the backend round-trip. Honours ctx so a cancelled caller
// isn't stuck behind the artificial delay.
func (f *Fake) wait(ctx context.Context) error {
	if f.latency == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(f.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (f *Fake) ListSnippetDescriptors(ctx context.Context, page, pageSize int, snippetName string) (*model.PaginatedSnippets, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if page < 0 || pageSize < 1 {
		return nil, apperror.ValidationFailed("page", "invalid pagination parameters")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	all := make([]model.Snippet, 0, len(f.snippets))
	for _, s := range f.snippets {
		if snippetName != "" && !strings.Contains(strings.ToLower(s.Name), strings.ToLower(snippetName)) {
			continue
		}
		all = append(all, *s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	start := page * pageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}

	return &model.PaginatedSnippets{
		Page:     page,
		PageSize: pageSize,
		Count:    len(all),
		Snippets: all[start:end],
	}, nil
}

func (f *Fake) CreateSnippet(ctx context.Context, create model.CreateSnippet) (*model.Snippet, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(create.Name) == "" {
		return nil, apperror.ValidationFailed("name", "snippet name is required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	snippet := &model.Snippet{
		ID:           xid.New().String(),
		Name:         create.Name,
		Content:      create.Content,
		Language:     create.Language,
		Extension:    create.Extension,
		Version:      create.Version,
		Status:       model.CompliancePending,
		Compliance:   model.CompliancePending,
		Author:       f.user.Email,
		Owner:        f.user.Email,
		UserRole:     model.RoleOwner,
		LintWarnings: []string{},
	}
	f.snippets[snippet.ID] = snippet

	result := *snippet
	return &result, nil
}

func (f *Fake) GetSnippetByID(ctx context.Context, id string) (*model.Snippet, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	snippet, ok := f.snippets[id]
	if !ok {
		return nil, apperror.NotFound("snippet", id)
	}
	result := *snippet
	return &result, nil
}

func (f *Fake) UpdateSnippetByID(ctx context.Context, id string, update model.UpdateSnippet) (*model.Snippet, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	snippet, ok := f.snippets[id]
	if !ok {
		return nil, apperror.NotFound("snippet", id)
	}
	if snippet.UserRole == model.RoleViewer {
		return nil, apperror.Forbidden("You don't have permission to edit this snippet. Viewers can only read.")
	}

	snippet.Content = update.Content
	snippet.Status = model.CompliancePending
	snippet.Compliance = model.CompliancePending

	result := *snippet
	return &result, nil
}

func (f *Fake) DeleteSnippet(ctx context.Context, id string) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.snippets[id]; !ok {
		return "", apperror.NotFound("snippet", id)
	}
	delete(f.snippets, id)

	for tcID, tc := range f.testCases {
		if tc.SnippetID == id {
			delete(f.testCases, tcID)
		}
	}
	return "Snippet deleted", nil
}

func (f *Fake) ShareSnippet(ctx context.Context, snippetID, userEmail string, role model.Role) (*model.Snippet, error) {
	if strings.TrimSpace(userEmail) == "" {
		return nil, apperror.ValidationFailed("userEmail", "User email not found")
	}
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	snippet, ok := f.snippets[snippetID]
	if !ok {
		return nil, apperror.NotFound("snippet", snippetID)
	}
	result := *snippet
	return &result, nil
}

func (f *Fake) GetUserFriends(ctx context.Context, search string) (*model.PaginatedUsers, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	matched := make([]model.User, 0, len(f.users))
	for _, u := range f.users {
		if u.Name == f.user.Email {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(u.Name), strings.ToLower(search)) {
			continue
		}
		matched = append(matched, u)
	}

	return &model.PaginatedUsers{
		Page:     1,
		PageSize: len(matched),
		Count:    len(matched),
		Users:    matched,
	}, nil
}

func (f *Fake) GetFileTypes(ctx context.Context) ([]model.FileType, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.FileType(nil), f.fileTypes...), nil
}

func (f *Fake) GetFormatRules(ctx context.Context) ([]model.Rule, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Rule(nil), f.formatRules...), nil
}

func (f *Fake) ModifyFormatRule(ctx context.Context, rules []model.Rule) ([]model.Rule, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.formatRules = append([]model.Rule(nil), rules...)
	return append([]model.Rule(nil), f.formatRules...), nil
}

func (f *Fake) GetLintingRules(ctx context.Context) ([]model.Rule, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Rule(nil), f.lintRules...), nil
}

func (f *Fake) ModifyLintingRule(ctx context.Context, rules []model.Rule) ([]model.Rule, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lintRules = append([]model.Rule(nil), rules...)
	return append([]model.Rule(nil), f.lintRules...), nil
}

func (f *Fake) FormatSnippet(ctx context.Context, id string) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	snippet, ok := f.snippets[id]
	if !ok {
		return "", apperror.NotFound("snippet", id)
	}
	// A stand-in for the real formatter: normalize line endings and trim
	// trailing whitespace per line.
	lines := strings.Split(strings.ReplaceAll(snippet.Content, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n"), nil
}

func (f *Fake) RunSnippet(ctx context.Context, id string, inputs []string) ([]string, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.snippets[id]; !ok {
		return nil, apperror.NotFound("snippet", id)
	}
	return []string{"Output from snippet execution"}, nil
}

func (f *Fake) GetTestCases(ctx context.Context, snippetID string) ([]model.TestCase, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	cases := make([]model.TestCase, 0)
	for _, tc := range f.testCases {
		if tc.SnippetID == snippetID {
			cases = append(cases, *tc)
		}
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].ID < cases[j].ID })
	return cases, nil
}

func (f *Fake) PostTestCase(ctx context.Context, testCase model.TestCase, snippetID string) (*model.TestCase, error) {
	if snippetID == "" {
		return nil, apperror.ValidationFailed("snippetId", "test case needs a snippet")
	}
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	stored := testCase
	if stored.ID == "" {
		stored.ID = xid.New().String()
	}
	stored.SnippetID = snippetID
	f.testCases[stored.ID] = &stored

	result := stored
	return &result, nil
}

func (f *Fake) RemoveTestCase(ctx context.Context, id string) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.testCases[id]; !ok {
		return "", apperror.NotFound("test case", id)
	}
	delete(f.testCases, id)
	return id, nil
}

func (f *Fake) TestSnippet(ctx context.Context, testCase model.TestCase) (model.TestVerdict, error) {
	if testCase.ID == "" {
		return model.TestFail, apperror.ValidationFailed("id", "test case ID is required")
	}
	if err := f.wait(ctx); err != nil {
		return model.TestFail, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.testCases[testCase.ID]; !ok {
		return model.TestFail, nil
	}
	return model.TestSuccess, nil
}

func (f *Fake) DownloadSnippet(ctx context.Context, id string, includeMetadata bool, dir string) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}

	f.mu.Lock()
	snippet, ok := f.snippets[id]
	if !ok {
		f.mu.Unlock()
		return "", apperror.NotFound("snippet", id)
	}
	if snippet.Owner != f.user.Email {
		f.mu.Unlock()
		return "", apperror.Forbidden("Only the owner can download this snippet.")
	}
	copied := *snippet
	f.mu.Unlock()

	extension := ".txt"
	if strings.EqualFold(copied.Language, "printscript") {
		extension = ".ps"
	}
	fileName := copied.Name
	if !strings.HasSuffix(fileName, extension) {
		fileName += extension
	}

	content := copied.Content
	if includeMetadata {
		content = fmt.Sprintf("// Name: %s\n// Language: %s\n// Version: %s\n//\n%s",
			copied.Name, copied.Language, copied.Version, copied.Content)
	}

	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("writing snippet file %s: %w", path, err)
	}
	return path, nil
}
