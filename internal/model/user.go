// Package model defines the data structures used throughout the application.
package model

// User is a directory entry from the auth provider, used only to pick a
// share target. Name carries the email — that's all the directory exposes.
// This client never mutates users.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PaginatedUsers is one page of a user-directory search.
type PaginatedUsers struct {
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Count    int    `json:"count"`
	Users    []User `json:"users"`
}
