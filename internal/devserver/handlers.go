package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/ingsis25/snippet-searcher/internal/apperror"
)

// API holds the handler dependencies: storage, token signing and logging.
type API struct {
	store  *Store
	tokens *TokenService
	logger *slog.Logger
}

func NewAPI(store *Store, tokens *TokenService, logger *slog.Logger) *API {
	return &API{store: store, tokens: tokens, logger: logger}
}

// errorBody is the error shape the production services answer with; the
// client's status-mapping code parses exactly these fields.
type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.Any("error", err))
		}
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Message: message})
}

// writeText sends the plain-text confirmations a couple of endpoints use
// instead of JSON.
func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(text))
}

// writeOpError translates service errors into the response the real
// backend would produce for them.
func (a *API) writeOpError(w http.ResponseWriter, err error) {
	status := apperror.StatusOf(err)
	if status == 0 || status >= 500 {
		a.logger.Error("request failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// tokenResponse matches the OAuth2 token endpoint contract.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// handleToken implements POST /oauth/token for the password and
// client_credentials grants. The audience is accepted from the form body or
// the query string — some OAuth2 clients can only add extra parameters to
// the token URL itself.
func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form body")
		return
	}

	audience := r.FormValue("audience")
	if audience == "" {
		audience = r.URL.Query().Get("audience")
	}

	var userID, email string
	switch grant := r.FormValue("grant_type"); grant {
	case "password":
		user, err := a.store.UserByEmail(r.Context(), r.FormValue("username"))
		if err != nil {
			writeError(w, http.StatusForbidden, "Wrong email or password.")
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(r.FormValue("password"))) != nil {
			writeError(w, http.StatusForbidden, "Wrong email or password.")
			return
		}
		userID, email = "auth0|"+user.ID, user.Email

	case "client_credentials":
		if r.FormValue("client_id") == "" || r.FormValue("client_secret") == "" {
			writeError(w, http.StatusUnauthorized, "client authentication required")
			return
		}
		// Machine tokens act as the client itself, not a person.
		userID, email = "client|"+r.FormValue("client_id"), r.FormValue("client_id")+"@clients"

	default:
		writeError(w, http.StatusBadRequest, "unsupported grant_type "+grant)
		return
	}

	signed, err := a.tokens.Generate(userID, email)
	if err != nil {
		a.writeOpError(w, err)
		return
	}

	a.logger.Info("issued token",
		slog.String("sub", userID),
		slog.String("audience", audience),
	)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int(tokenLifetime.Seconds()),
	})
}

// snippetResponse is the wire shape for a single snippet. Status keeps the
// backend's raw casing on purpose.
type snippetResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Content      string   `json:"content"`
	Language     string   `json:"language"`
	Extension    string   `json:"extension"`
	Version      string   `json:"version"`
	Status       string   `json:"status"`
	Owner        string   `json:"owner"`
	Role         string   `json:"role"`
	LintWarnings []string `json:"lintWarnings"`
	Errors       []string `json:"errors"`
}

func toSnippetResponse(rec *snippetRecord, role string) snippetResponse {
	return snippetResponse{
		ID:           rec.ID,
		Name:         rec.Name,
		Content:      rec.Content,
		Language:     rec.Language,
		Extension:    rec.Extension,
		Version:      rec.Version,
		Status:       rec.Status,
		Owner:        rec.OwnerEmail,
		Role:         role,
		LintWarnings: []string{},
		Errors:       []string{},
	}
}

type snippetListResponse struct {
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
	Count    int               `json:"count"`
	Snippets []snippetResponse `json:"snippets"`
}

func (a *API) handleListSnippets(w http.ResponseWriter, r *http.Request) {
	who, _ := callerFromContext(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, err := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if err != nil || pageSize < 1 {
		pageSize = 10
	}

	records, roles, count, err := a.store.ListSnippetsForUser(
		r.Context(), who.Email, page, pageSize, r.URL.Query().Get("snippetName"))
	if err != nil {
		a.writeOpError(w, err)
		return
	}

	resp := snippetListResponse{
		Page:     page,
		PageSize: pageSize,
		Count:    count,
		Snippets: make([]snippetResponse, 0, len(records)),
	}
	for i := range records {
		resp.Snippets = append(resp.Snippets, toSnippetResponse(&records[i], roles[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

type createSnippetRequest struct {
	Name      string `json:"name"`
	Content   string `json:"content"`
	Language  string `json:"language"`
	Extension string `json:"extension"`
	Version   string `json:"version"`
	Owner     string `json:"owner"`
}

func (a *API) handleCreateSnippet(w http.ResponseWriter, r *http.Request) {
	who, _ := callerFromContext(r.Context())

	var req createSnippetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Name == "" || req.Language == "" {
		writeError(w, http.StatusBadRequest, "name and language are required")
		return
	}

	rec := snippetRecord{
		Name:       req.Name,
		Content:    req.Content,
		Language:   req.Language,
		Extension:  req.Extension,
		Version:    req.Version,
		OwnerEmail: who.Email,
	}
	if err := a.store.CreateSnippet(r.Context(), &rec); err != nil {
		a.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSnippetResponse(&rec, "Owner"))
}

// snippetWithRole loads a snippet and the caller's role on it, writing the
// error response itself when access fails. Callers bail out on nil.
func (a *API) snippetWithRole(w http.ResponseWriter, r *http.Request) (*snippetRecord, string) {
	who, _ := callerFromContext(r.Context())
	id := chi.URLParam(r, "id")

	rec, err := a.store.SnippetByID(r.Context(), id)
	if err != nil {
		a.writeOpError(w, err)
		return nil, ""
	}
	role, err := a.store.RoleFor(r.Context(), id, who.Email)
	if err != nil {
		a.writeOpError(w, err)
		return nil, ""
	}
	if role == "" {
		// Users without access cannot probe which ids exist.
		writeError(w, http.StatusNotFound, "snippet not found with id "+id)
		return nil, ""
	}
	return rec, role
}

func (a *API) handleGetSnippet(w http.ResponseWriter, r *http.Request) {
	rec, role := a.snippetWithRole(w, r)
	if rec == nil {
		return
	}
	writeJSON(w, http.StatusOK, toSnippetResponse(rec, role))
}

func (a *API) handleUpdateSnippet(w http.ResponseWriter, r *http.Request) {
	rec, role := a.snippetWithRole(w, r)
	if rec == nil {
		return
	}
	if role == "Viewer" {
		writeError(w, http.StatusForbidden, "viewers cannot edit snippets")
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := a.store.UpdateSnippetContent(r.Context(), rec.ID, req.Content); err != nil {
		a.writeOpError(w, err)
		return
	}

	rec.Content = req.Content
	rec.Status = "PENDING"
	writeJSON(w, http.StatusOK, toSnippetResponse(rec, role))
}

func (a *API) handleDeleteSnippet(w http.ResponseWriter, r *http.Request) {
	rec, role := a.snippetWithRole(w, r)
	if rec == nil {
		return
	}
	if role != "Owner" {
		writeError(w, http.StatusForbidden, "only the owner can delete a snippet")
		return
	}
	if err := a.store.DeleteSnippet(r.Context(), rec.ID); err != nil {
		a.writeOpError(w, err)
		return
	}
	writeText(w, http.StatusOK, "Snippet deleted successfully")
}

type shareRequest struct {
	FromEmail string `json:"fromEmail"`
	ToEmail   string `json:"toEmail"`
	Role      string `json:"role"`
}

func (a *API) handleShareSnippet(w http.ResponseWriter, r *http.Request) {
	rec, role := a.snippetWithRole(w, r)
	if rec == nil {
		return
	}
	if role != "Owner" {
		writeError(w, http.StatusForbidden, "only the owner can share a snippet")
		return
	}

	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.ToEmail == "" {
		writeError(w, http.StatusBadRequest, "toEmail is required")
		return
	}
	if req.Role == "" {
		req.Role = "Editor"
	}
	if err := a.store.ShareSnippet(r.Context(), rec.ID, req.ToEmail, req.Role); err != nil {
		a.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnippetResponse(rec, role))
}

// handleCheckOwner answers the pre-download ownership probe with a plain
// sentence rather than JSON, as the production service does.
func (a *API) handleCheckOwner(w http.ResponseWriter, r *http.Request) {
	who, _ := callerFromContext(r.Context())
	id := chi.URLParam(r, "id")

	rec, err := a.store.SnippetByID(r.Context(), id)
	if err != nil {
		a.writeOpError(w, err)
		return
	}
	if rec.OwnerEmail != who.Email {
		writeText(w, http.StatusBadRequest, "User is not the owner of the snippet")
		return
	}
	writeText(w, http.StatusOK, "User is the owner of the snippet")
}

func (a *API) handleDownloadSnippet(w http.ResponseWriter, r *http.Request) {
	who, _ := callerFromContext(r.Context())
	id := chi.URLParam(r, "id")

	rec, err := a.store.SnippetByID(r.Context(), id)
	if err != nil {
		a.writeOpError(w, err)
		return
	}
	if rec.OwnerEmail != who.Email {
		writeError(w, http.StatusForbidden, "only the owner can download a snippet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"name":     rec.Name,
		"content":  rec.Content,
		"language": rec.Language,
		"version":  rec.Version,
	})
}

// handleFormatSnippet applies a trivial formatter: trailing whitespace goes,
// a final newline appears. Enough to show edits flowing round-trip.
func (a *API) handleFormatSnippet(w http.ResponseWriter, r *http.Request) {
	rec, _ := a.snippetWithRole(w, r)
	if rec == nil {
		return
	}

	lines := strings.Split(rec.Content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	formatted := strings.Join(lines, "\n")
	if formatted != "" && !strings.HasSuffix(formatted, "\n") {
		formatted += "\n"
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": formatted})
}

func (a *API) handleGetRules(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rules, err := a.store.Rules(r.Context(), kind)
		if err != nil {
			a.writeOpError(w, err)
			return
		}
		if rules == nil {
			rules = []ruleRecord{}
		}
		writeJSON(w, http.StatusOK, rules)
	}
}

func (a *API) handleModifyRules(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Rules []ruleRecord `json:"rules"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		if err := a.store.ReplaceRules(r.Context(), kind, req.Rules); err != nil {
			a.writeOpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, req.Rules)
	}
}

type testCaseResponse struct {
	ID        string   `json:"id"`
	SnippetID string   `json:"snippetId"`
	Name      string   `json:"name"`
	Input     []string `json:"input"`
	Output    []string `json:"output"`
}

func toTestCaseResponse(rec *testCaseRecord) testCaseResponse {
	resp := testCaseResponse{
		ID:        rec.ID,
		SnippetID: rec.SnippetID,
		Name:      rec.Name,
		Input:     rec.Input,
		Output:    rec.Output,
	}
	if resp.Input == nil {
		resp.Input = []string{}
	}
	if resp.Output == nil {
		resp.Output = []string{}
	}
	return resp
}

func (a *API) handleListTestCases(w http.ResponseWriter, r *http.Request) {
	records, err := a.store.TestCasesForSnippet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeOpError(w, err)
		return
	}
	resp := make([]testCaseResponse, 0, len(records))
	for i := range records {
		resp = append(resp, toTestCaseResponse(&records[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCreateTestCase(w http.ResponseWriter, r *http.Request) {
	var req testCaseResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "test case name is required")
		return
	}

	rec := testCaseRecord{
		SnippetID: chi.URLParam(r, "id"),
		Name:      req.Name,
		Input:     req.Input,
		Output:    req.Output,
	}
	if err := a.store.CreateTestCase(r.Context(), &rec); err != nil {
		a.writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTestCaseResponse(&rec))
}

func (a *API) handleDeleteTestCase(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeleteTestCase(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeOpError(w, err)
		return
	}
	writeText(w, http.StatusOK, "Test deleted")
}

// handleRunTestCase interprets the test's snippet and compares the output
// line by line, answering with the literal verdict words the client parses.
func (a *API) handleRunTestCase(w http.ResponseWriter, r *http.Request) {
	tc, err := a.store.TestCaseByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeOpError(w, err)
		return
	}
	rec, err := a.store.SnippetByID(r.Context(), tc.SnippetID)
	if err != nil {
		a.writeOpError(w, err)
		return
	}

	got := interpret(rec.Content, tc.Input)
	if len(got) != len(tc.Output) {
		writeText(w, http.StatusOK, "fail")
		return
	}
	for i := range got {
		if got[i] != tc.Output[i] {
			writeText(w, http.StatusOK, "fail")
			return
		}
	}
	writeText(w, http.StatusOK, "success")
}

type directoryEntry struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.store.ListUsers(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		a.writeOpError(w, err)
		return
	}
	resp := make([]directoryEntry, 0, len(users))
	for _, u := range users {
		resp = append(resp, directoryEntry{ID: u.ID, Email: u.Email})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListLanguages answers with the raw, slightly messy catalogue the
// language service serves, version-in-name entries included.
func (a *API) handleListLanguages(w http.ResponseWriter, r *http.Request) {
	type language struct {
		ID        int    `json:"id"`
		Name      string `json:"name"`
		Extension string `json:"extension"`
		Version   string `json:"version"`
	}
	writeJSON(w, http.StatusOK, []language{
		{ID: 1, Name: "printscript", Extension: "ps", Version: "1.1"},
		{ID: 2, Name: "PrintScript 1.0", Extension: "ps", Version: ""},
		{ID: 3, Name: "python", Extension: "py", Version: "3.10"},
	})
}

type interpretRequest struct {
	Version string   `json:"version"`
	Code    string   `json:"code"`
	Inputs  []string `json:"inputs"`
}

func (a *API) handleInterpret(w http.ResponseWriter, r *http.Request) {
	var req interpretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	writeJSON(w, http.StatusOK, interpret(req.Code, req.Inputs))
}

var printlnPattern = regexp.MustCompile(`println\s*\(\s*(.*?)\s*\)\s*;?\s*$`)

// interpret is a canned stand-in for the real language runtime: each
// println of a literal echoes the literal, readInput consumes the next
// provided input. Anything else is ignored.
func interpret(code string, inputs []string) []string {
	output := []string{}
	next := 0
	for _, line := range strings.Split(code, "\n") {
		m := printlnPattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		arg := m[1]
		switch {
		case strings.Contains(arg, "readInput"):
			if next < len(inputs) {
				output = append(output, inputs[next])
				next++
			}
		case len(arg) >= 2 && (arg[0] == '"' || arg[0] == '\''):
			output = append(output, strings.Trim(arg, `"'`))
		default:
			output = append(output, arg)
		}
	}
	return output
}
