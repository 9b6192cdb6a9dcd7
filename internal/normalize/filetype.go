package normalize

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/ingsis25/snippet-searcher/internal/model"
)

// FileTypeResponse is the raw shape of one entry from GET /languages/all.
type FileTypeResponse struct {
	Name      string `json:"name"`
	Extension string `json:"extension"`
	Version   string `json:"version"`
	ID        FlexID `json:"id"`
}

// versionPatterns is the ordered table of trailing-version shapes we accept
// inside a language name. First match wins, so the more specific "X.Y" forms
// come before plain "X", and the space-separated variants before the glued
// ones. Covers "PrintScript 1.1", "PrintScript1.1", "Python 3", "Python3",
// "JavaScript ES6" and "JavaScriptES6".
var versionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\s+(\d+\.\d+)$`),
	regexp.MustCompile(`(\d+\.\d+)$`),
	regexp.MustCompile(`\s+(\d+)$`),
	regexp.MustCompile(`(\d+)$`),
	regexp.MustCompile(`\s+([A-Z0-9]+)$`),
	regexp.MustCompile(`([A-Z0-9]+)$`),
}

// SplitLanguageVersion extracts a trailing version token from a language
// name. Returns the cleaned language, the version, and whether any pattern
// matched. "PrintScript 1.1" and "PrintScript1.1" both split to
// ("PrintScript", "1.1").
func SplitLanguageVersion(name string) (language, version string, ok bool) {
	for _, pattern := range versionPatterns {
		if m := pattern.FindStringSubmatch(name); m != nil {
			version = m[1]
			language = strings.TrimSpace(pattern.ReplaceAllString(name, ""))
			return language, version, true
		}
	}
	return strings.TrimSpace(name), "", false
}

// FileTypes maps the raw /languages/all payload onto the client model.
//
// For each entry: if the version field is empty, try to pull one out of the
// name via the pattern table. Entries still missing a language or a version
// afterwards are dropped silently (logged, not errored), and the survivors
// are deduplicated by (language, version) — the pair that uniquely
// determines an id.
func FileTypes(raw []FileTypeResponse, logger *slog.Logger) []model.FileType {
	result := make([]model.FileType, 0, len(raw))
	seen := make(map[string]bool, len(raw))

	for _, item := range raw {
		language := strings.TrimSpace(item.Name)
		version := strings.TrimSpace(item.Version)

		if version == "" {
			if lang, ver, ok := SplitLanguageVersion(language); ok {
				logger.Warn("version embedded in language name, splitting",
					slog.String("name", item.Name),
					slog.String("language", lang),
					slog.String("version", ver),
				)
				language, version = lang, ver
			}
		}

		if language == "" || version == "" {
			logger.Warn("dropping file type with unresolved language or version",
				slog.String("name", item.Name),
				slog.String("version", item.Version),
			)
			continue
		}

		key := language + "\x00" + version
		if seen[key] {
			continue
		}
		seen[key] = true

		result = append(result, model.FileType{
			Language:  language,
			Extension: item.Extension,
			Version:   version,
			ID:        item.ID.String(),
		})
	}

	return result
}
