package model

// FileType describes a language the platform can store and run: a
// (language, version, extension) triple with a unique id.
//
// Invariant: the (Language, Version) pair uniquely determines an ID.
// Some backends encode the version inside the language name ("PrintScript 1.1");
// the normalize package splits that apart before a FileType ever reaches here.
type FileType struct {
	Language  string `json:"language"`
	Extension string `json:"extension"`
	Version   string `json:"version"`
	ID        string `json:"id"`
}

// Rule is a single formatting or linting rule as exposed by the rule services.
// Value is nil for on/off rules and holds a number or string for parametrised
// ones (e.g. indent size).
type Rule struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"isActive"`
	Value   any    `json:"value,omitempty"`
}
