package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ingsis25/snippet-searcher/internal/apperror"
	"github.com/ingsis25/snippet-searcher/internal/client"
	"github.com/ingsis25/snippet-searcher/internal/model"
	"github.com/ingsis25/snippet-searcher/internal/normalize"
)

// Compile check: *Service satisfies the facade contract.
var _ SnippetOperations = (*Service)(nil)

// defaultRuleVersion is the printscript version the rule services are
// queried for. The backend hardcodes its rule sets per version and 1.1 is
// the one deployed everywhere.
const defaultRuleVersion = "1.1"

// ownerConfirmation is the literal answer the check-owner endpoint gives
// when the caller owns the snippet. Anything else means no.
const ownerConfirmation = "User is the owner"

// Identity is the authenticated user the facade acts as. Sub is the
// provider's subject claim (used as userId on listings), Email the address
// used as owner/fromEmail on create and share.
type Identity struct {
	Sub   string
	Email string
}

// Service is the live, network-backed facade. It owns nothing but wiring:
// one client per backend service, the caller's identity, and a logger.
// All shapes coming off the wire pass through the normalize package before
// they leave this type.
type Service struct {
	snippets *client.Client
	runner   *client.Client
	user     Identity
	logger   *slog.Logger
}

// NewService creates the live facade. snippets talks to the snippet/rule/
// test services, runner to the execution service. The session provider is
// the usual caller — it builds one Service per authenticated session.
func NewService(snippets, runner *client.Client, user Identity, logger *slog.Logger) *Service {
	return &Service{
		snippets: snippets,
		runner:   runner,
		user:     user,
		logger:   logger,
	}
}

// snippetPayload is the raw wire shape of a single snippet, shared by the
// create/get/update/share responses. Status casing and id type vary by
// backend version, hence the normalize types.
type snippetPayload struct {
	ID           normalize.FlexID `json:"id"`
	Name         string           `json:"name"`
	Content      string           `json:"content"`
	Language     string           `json:"language"`
	Extension    string           `json:"extension"`
	Version      string           `json:"version"`
	Status       string           `json:"status"`
	Owner        string           `json:"owner"`
	Role         string           `json:"role"`
	LintWarnings []string         `json:"lintWarnings"`
	Errors       []string         `json:"errors"`
}

func (s *Service) toSnippet(raw snippetPayload) *model.Snippet {
	compliance := normalize.Compliance(raw.Status, s.logger)
	warnings := raw.LintWarnings
	if warnings == nil {
		warnings = []string{}
	}
	return &model.Snippet{
		ID:           raw.ID.String(),
		Name:         raw.Name,
		Content:      raw.Content,
		Language:     raw.Language,
		Extension:    raw.Extension,
		Version:      raw.Version,
		Status:       compliance,
		Compliance:   compliance,
		Author:       raw.Owner,
		Owner:        raw.Owner,
		UserRole:     model.Role(raw.Role),
		LintWarnings: warnings,
		Errors:       raw.Errors,
	}
}

func (s *Service) ListSnippetDescriptors(ctx context.Context, page, pageSize int, snippetName string) (*model.PaginatedSnippets, error) {
	if s.user.Sub == "" {
		return nil, apperror.Unauthenticated("user not authenticated")
	}
	if page < 0 {
		return nil, apperror.ValidationFailed("page", "page must be zero or positive")
	}
	if pageSize < 1 {
		return nil, apperror.ValidationFailed("pageSize", "page size must be at least 1")
	}

	query := url.Values{}
	query.Set("userId", s.user.Sub)
	query.Set("page", strconv.Itoa(page))
	query.Set("pageSize", strconv.Itoa(pageSize))
	if snippetName != "" {
		query.Set("snippetName", snippetName)
	}

	var raw normalize.SnippetListResponse
	if err := s.snippets.Get(ctx, "/snippets/user", query, &raw); err != nil {
		return nil, fmt.Errorf("listing snippets: %w", err)
	}

	result := normalize.SnippetPage(raw, page, pageSize, s.logger)

	// The page-size invariant holds even against a misbehaving backend.
	if len(result.Snippets) > pageSize {
		s.logger.Warn("backend returned more snippets than requested, truncating",
			slog.Int("got", len(result.Snippets)),
			slog.Int("pageSize", pageSize),
		)
		result.Snippets = result.Snippets[:pageSize]
	}

	return &result, nil
}

func (s *Service) CreateSnippet(ctx context.Context, create model.CreateSnippet) (*model.Snippet, error) {
	if !s.snippets.HasTokenSource() {
		return nil, apperror.Unauthenticated("cannot create snippet without an access token")
	}
	switch {
	case strings.TrimSpace(create.Name) == "":
		return nil, apperror.ValidationFailed("name", "snippet name is required")
	case create.Content == "":
		return nil, apperror.ValidationFailed("content", "snippet content is required")
	case create.Language == "":
		return nil, apperror.ValidationFailed("language", "snippet language is required")
	case create.Extension == "":
		return nil, apperror.ValidationFailed("extension", "snippet extension is required")
	case create.Version == "":
		return nil, apperror.ValidationFailed("version", "snippet version is required")
	}

	body := map[string]string{
		"name":      create.Name,
		"content":   create.Content,
		"language":  create.Language,
		"extension": create.Extension,
		"version":   create.Version,
		"owner":     s.user.Email,
	}

	var raw snippetPayload
	if err := s.snippets.Post(ctx, "/snippets", body, &raw); err != nil {
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	snippet := s.toSnippet(raw)
	if len(snippet.Errors) > 0 {
		// Compilation errors ride inside a successful payload — the caller
		// decides how loudly to surface them.
		s.logger.Warn("snippet created with compilation errors",
			slog.String("id", snippet.ID),
			slog.Int("errors", len(snippet.Errors)),
		)
	}
	return snippet, nil
}

func (s *Service) GetSnippetByID(ctx context.Context, id string) (*model.Snippet, error) {
	// An empty id short-circuits to "absent" without a network call.
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}

	var raw snippetPayload
	if err := s.snippets.Get(ctx, "/snippets/"+url.PathEscape(id), nil, &raw); err != nil {
		return nil, fmt.Errorf("fetching snippet %s: %w", id, err)
	}
	return s.toSnippet(raw), nil
}

func (s *Service) UpdateSnippetByID(ctx context.Context, id string, update model.UpdateSnippet) (*model.Snippet, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.ValidationFailed("id", "snippet ID is required")
	}

	var raw snippetPayload
	if err := s.snippets.Put(ctx, "/snippets/"+url.PathEscape(id), update, &raw); err != nil {
		if errors.Is(err, apperror.ErrForbidden) {
			return nil, apperror.Forbidden("You don't have permission to edit this snippet. Viewers can only read.")
		}
		return nil, fmt.Errorf("updating snippet %s: %w", id, err)
	}
	return s.toSnippet(raw), nil
}

func (s *Service) DeleteSnippet(ctx context.Context, id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", apperror.ValidationFailed("id", "snippet ID is required")
	}

	confirmation, err := s.snippets.DoText(ctx, "POST", "/snippets/delete/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return "", fmt.Errorf("deleting snippet %s: %w", id, err)
	}
	return confirmation, nil
}

func (s *Service) ShareSnippet(ctx context.Context, snippetID, userEmail string, role model.Role) (*model.Snippet, error) {
	// Missing grantee is rejected locally, before any request goes out.
	if strings.TrimSpace(userEmail) == "" {
		return nil, apperror.ValidationFailed("userEmail", "User email not found")
	}
	if role == "" {
		role = model.RoleEditor
	}

	body := map[string]string{
		"fromEmail": s.user.Email,
		"toEmail":   userEmail,
		"role":      string(role),
	}

	var raw snippetPayload
	if err := s.snippets.Post(ctx, "/snippets/share/"+url.PathEscape(snippetID), body, &raw); err != nil {
		if errors.Is(err, apperror.ErrForbidden) {
			return nil, apperror.Forbidden("You do not have permission to share this snippet.")
		}
		return nil, fmt.Errorf("sharing snippet %s: %w", snippetID, err)
	}
	return s.toSnippet(raw), nil
}

// userPayload is the raw directory entry from the auth provider proxy.
type userPayload struct {
	ID    normalize.FlexID `json:"id"`
	Email string           `json:"email"`
}

func (s *Service) GetUserFriends(ctx context.Context, search string) (*model.PaginatedUsers, error) {
	query := url.Values{}
	if search != "" {
		query.Set("search", search)
	}

	var raw []userPayload
	if err := s.snippets.Get(ctx, "/auth0/users", query, &raw); err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}

	users := make([]model.User, 0, len(raw))
	for _, u := range raw {
		// The caller never shows up in their own share-target list.
		if u.Email == s.user.Email {
			continue
		}
		users = append(users, model.User{ID: u.ID.String(), Name: u.Email})
	}

	return &model.PaginatedUsers{
		Page:     1,
		PageSize: len(users),
		Count:    len(users),
		Users:    users,
	}, nil
}

func (s *Service) GetFileTypes(ctx context.Context) ([]model.FileType, error) {
	var raw []normalize.FileTypeResponse
	if err := s.snippets.Get(ctx, "/languages/all", nil, &raw); err != nil {
		// Unauthenticated callers get an empty language list, not an error —
		// the add-snippet screen renders before login completes.
		if apperror.StatusOf(err) == 401 {
			return []model.FileType{}, nil
		}
		return nil, fmt.Errorf("fetching file types: %w", err)
	}
	return normalize.FileTypes(raw, s.logger), nil
}

func (s *Service) GetFormatRules(ctx context.Context) ([]model.Rule, error) {
	return s.getRules(ctx, "/rules/format")
}

func (s *Service) ModifyFormatRule(ctx context.Context, rules []model.Rule) ([]model.Rule, error) {
	return s.modifyRules(ctx, "/rules/format", rules)
}

func (s *Service) GetLintingRules(ctx context.Context) ([]model.Rule, error) {
	return s.getRules(ctx, "/rules/lint")
}

func (s *Service) ModifyLintingRule(ctx context.Context, rules []model.Rule) ([]model.Rule, error) {
	return s.modifyRules(ctx, "/rules/lint", rules)
}

func (s *Service) getRules(ctx context.Context, path string) ([]model.Rule, error) {
	if !s.snippets.HasTokenSource() {
		return nil, apperror.Unauthenticated("cannot fetch rules without an access token")
	}

	query := url.Values{}
	query.Set("version", defaultRuleVersion)

	var rules []model.Rule
	if err := s.snippets.Get(ctx, path, query, &rules); err != nil {
		return nil, fmt.Errorf("fetching rules from %s: %w", path, err)
	}
	return rules, nil
}

func (s *Service) modifyRules(ctx context.Context, path string, rules []model.Rule) ([]model.Rule, error) {
	if !s.snippets.HasTokenSource() {
		return nil, apperror.Unauthenticated("cannot modify rules without an access token")
	}

	body := map[string]any{"rules": rules}
	var updated []model.Rule
	if err := s.snippets.Post(ctx, path, body, &updated); err != nil {
		return nil, fmt.Errorf("modifying rules at %s: %w", path, err)
	}
	return updated, nil
}

func (s *Service) FormatSnippet(ctx context.Context, id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", apperror.ValidationFailed("id", "snippet ID is required")
	}

	var result struct {
		Content string `json:"content"`
	}
	if err := s.snippets.Post(ctx, "/snippets/run/"+url.PathEscape(id)+"/format", nil, &result); err != nil {
		return "", fmt.Errorf("formatting snippet %s: %w", id, err)
	}
	return result.Content, nil
}

func (s *Service) RunSnippet(ctx context.Context, id string, inputs []string) ([]string, error) {
	snippet, err := s.GetSnippetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if snippet == nil {
		return nil, apperror.NotFound("snippet", id)
	}

	version := snippet.Version
	if version == "" {
		version = defaultRuleVersion
	}

	body := map[string]any{
		"version": version,
		"code":    snippet.Content,
	}
	if len(inputs) > 0 {
		body["inputs"] = inputs
	}

	var output []string
	if err := s.runner.Post(ctx, "/printscript/interpret", body, &output); err != nil {
		return nil, fmt.Errorf("running snippet %s: %w", id, err)
	}
	return output, nil
}

func (s *Service) GetTestCases(ctx context.Context, snippetID string) ([]model.TestCase, error) {
	var cases []model.TestCase
	if err := s.snippets.Get(ctx, "/tests/snippet/"+url.PathEscape(snippetID), nil, &cases); err != nil {
		return nil, fmt.Errorf("fetching test cases for snippet %s: %w", snippetID, err)
	}
	return cases, nil
}

func (s *Service) PostTestCase(ctx context.Context, testCase model.TestCase, snippetID string) (*model.TestCase, error) {
	if snippetID == "" {
		return nil, apperror.ValidationFailed("snippetId", "test case needs a snippet")
	}

	var created model.TestCase
	if err := s.snippets.Post(ctx, "/tests/snippet/"+url.PathEscape(snippetID), testCase, &created); err != nil {
		return nil, fmt.Errorf("saving test case for snippet %s: %w", snippetID, err)
	}
	return &created, nil
}

func (s *Service) RemoveTestCase(ctx context.Context, id string) (string, error) {
	confirmation, err := s.snippets.DoText(ctx, "DELETE", "/tests/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return "", fmt.Errorf("removing test case %s: %w", id, err)
	}
	return confirmation, nil
}

func (s *Service) TestSnippet(ctx context.Context, testCase model.TestCase) (model.TestVerdict, error) {
	if testCase.ID == "" {
		return model.TestFail, apperror.ValidationFailed("id", "test case ID is required")
	}

	result, err := s.snippets.DoText(ctx, "POST", "/tests/"+url.PathEscape(testCase.ID)+"/run", nil, nil)
	if err != nil {
		return model.TestFail, fmt.Errorf("running test case %s: %w", testCase.ID, err)
	}

	// Only the exact literal counts as a pass. "ERROR", "", anything else —
	// all of those are a fail, not an error.
	if result == string(model.TestSuccess) {
		return model.TestSuccess, nil
	}
	return model.TestFail, nil
}

// downloadPayload is the raw shape of GET /snippets/{id}/download.
type downloadPayload struct {
	Name     string `json:"name"`
	Content  string `json:"content"`
	Language string `json:"language"`
	Version  string `json:"version"`
}

// DownloadSnippet runs the two-step download protocol: a dedicated
// ownership probe first, the content fetch only on explicit confirmation.
// A non-owner never sees the content, not even transiently. Returns the
// path of the written file.
func (s *Service) DownloadSnippet(ctx context.Context, id string, includeMetadata bool, dir string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", apperror.ValidationFailed("id", "snippet ID is required")
	}

	answer, err := s.snippets.DoText(ctx, "POST", "/snippets/"+url.PathEscape(id)+"/check-owner", nil, nil)
	if err != nil {
		if apperror.StatusOf(err) == 400 || errors.Is(err, apperror.ErrForbidden) {
			return "", apperror.Forbidden("Only the owner can download this snippet.")
		}
		return "", fmt.Errorf("checking snippet ownership: %w", err)
	}
	if !strings.Contains(answer, ownerConfirmation) {
		return "", apperror.Forbidden("Only the owner can download this snippet.")
	}

	var raw downloadPayload
	if err := s.snippets.Get(ctx, "/snippets/"+url.PathEscape(id)+"/download", nil, &raw); err != nil {
		return "", fmt.Errorf("downloading snippet %s: %w", id, err)
	}

	extension := ".txt"
	if strings.EqualFold(raw.Language, "printscript") {
		extension = ".ps"
	}
	fileName := raw.Name
	if !strings.HasSuffix(fileName, extension) {
		fileName += extension
	}

	content := raw.Content
	if includeMetadata {
		header := strings.Join([]string{
			"// Name: " + raw.Name,
			"// Language: " + raw.Language,
			"// Version: " + raw.Version,
			"//",
		}, "\n")
		content = header + "\n" + content
	}

	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("writing snippet file %s: %w", path, err)
	}

	s.logger.Info("snippet downloaded",
		slog.String("id", id),
		slog.String("file", path),
	)
	return path, nil
}
