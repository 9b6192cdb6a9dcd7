// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

// ComplianceStatus is the backend's verdict on whether a snippet conforms to
// the configured formatting/lint rules.
//
// The backend computes this asynchronously — the client only ever observes it.
// Backends are inconsistent about casing and separators ("NOT_COMPLIANT",
// "not-compliant", "Not_Compliant"); the normalize package maps everything
// onto these four canonical values.
type ComplianceStatus string

const (
	CompliancePending      ComplianceStatus = "pending"
	ComplianceFailed       ComplianceStatus = "failed"
	ComplianceNotCompliant ComplianceStatus = "not-compliant"
	ComplianceCompliant    ComplianceStatus = "compliant"
)

// Role is the caller's relationship to a snippet.
//
// RoleOwner is implicit for snippets the user created; Editor and Viewer are
// granted through sharing. An empty Role means the backend didn't report one.
type Role string

const (
	RoleOwner  Role = "Owner"
	RoleEditor Role = "Editor"
	RoleViewer Role = "Viewer"
)

// Snippet represents a saved code snippet with its language metadata.
//
// The `json:"..."` tags tell Go's encoding/json package how to serialize/deserialize
// this struct to/from JSON. Field notes:
//   - ID is always a string client-side, even when a backend hands us a number
//     (the normalize package coerces it).
//   - Author and Owner both carry the owner's email; some backend responses
//     only send "owner", so the normalizer fills both.
//   - Errors is only populated on create/update responses: the backend reports
//     compilation problems inside an otherwise successful payload, not as a
//     transport failure.
type Snippet struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Content      string           `json:"content"`
	Language     string           `json:"language"`
	Extension    string           `json:"extension"`
	Version      string           `json:"version"`
	Status       ComplianceStatus `json:"status"`
	Compliance   ComplianceStatus `json:"compliance,omitempty"`
	Author       string           `json:"author"`
	Owner        string           `json:"owner"`
	UserRole     Role             `json:"userRole,omitempty"`
	LintWarnings []string         `json:"lintWarnings"`
	Errors       []string         `json:"errors,omitempty"`
}

// CreateSnippet is the payload for creating a new snippet.
// All fields are required; the ops layer validates before issuing the request.
type CreateSnippet struct {
	Name      string `json:"name"`
	Content   string `json:"content"`
	Language  string `json:"language"`
	Extension string `json:"extension"`
	Version   string `json:"version"`
}

// UpdateSnippet is the payload for updating a snippet. Only the content can
// change — name, language and version are fixed at creation time.
type UpdateSnippet struct {
	Content string `json:"content"`
}

// PaginatedSnippets is one page of a user's snippet listing.
//
// Invariant: len(Snippets) <= PageSize. The backend is supposed to honour
// this, and the ops layer clamps defensively on the way through.
type PaginatedSnippets struct {
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	Count    int       `json:"count"`
	Snippets []Snippet `json:"snippets"`
}
