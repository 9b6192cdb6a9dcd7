package normalize

import (
	"log/slog"

	"github.com/ingsis25/snippet-searcher/internal/model"
)

// SnippetListEntry is the raw shape of one row in the GET /snippets/user
// response. Ids may be numeric, status uses the backend's own enum casing,
// and several fields are simply absent on older service versions.
type SnippetListEntry struct {
	ID           FlexID   `json:"id"`
	Name         string   `json:"name"`
	Language     string   `json:"language"`
	Extension    string   `json:"extension"`
	Version      string   `json:"version"`
	Owner        string   `json:"owner"`
	Status       string   `json:"status"`
	Role         string   `json:"role"`
	LintWarnings []string `json:"lintWarnings"`
}

// SnippetListResponse is the raw paginated payload from GET /snippets/user.
type SnippetListResponse struct {
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Count    int                `json:"count"`
	Snippets []SnippetListEntry `json:"snippets"`
}

// Snippet maps one raw list entry onto the client model. Content is never
// present in listings, the owner email fills both Author and Owner, the
// compliance enum is normalized into both Status and Compliance, and a
// missing lint-warning list becomes an empty slice rather than nil.
func Snippet(raw SnippetListEntry, logger *slog.Logger) model.Snippet {
	compliance := Compliance(raw.Status, logger)

	warnings := raw.LintWarnings
	if warnings == nil {
		warnings = []string{}
	}

	return model.Snippet{
		ID:           raw.ID.String(),
		Name:         raw.Name,
		Content:      "",
		Language:     raw.Language,
		Extension:    raw.Extension,
		Version:      raw.Version,
		Status:       compliance,
		Compliance:   compliance,
		Author:       raw.Owner,
		Owner:        raw.Owner,
		UserRole:     model.Role(raw.Role),
		LintWarnings: warnings,
	}
}

// SnippetPage maps the full paginated listing, falling back to the request's
// own page/pageSize when the backend omits them.
func SnippetPage(raw SnippetListResponse, page, pageSize int, logger *slog.Logger) model.PaginatedSnippets {
	snippets := make([]model.Snippet, 0, len(raw.Snippets))
	for _, entry := range raw.Snippets {
		snippets = append(snippets, Snippet(entry, logger))
	}

	result := model.PaginatedSnippets{
		Page:     raw.Page,
		PageSize: raw.PageSize,
		Count:    raw.Count,
		Snippets: snippets,
	}
	if result.Page == 0 && page != 0 {
		result.Page = page
	}
	if result.PageSize == 0 {
		result.PageSize = pageSize
	}
	return result
}
