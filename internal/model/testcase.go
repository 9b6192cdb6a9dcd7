package model

// TestVerdict is the outcome of running a test case against a snippet.
//
// The run endpoint answers with the literal string "success" on a pass.
// Anything else — "fail", "ERROR", an empty body, an undecodable body —
// counts as a failure. There is never a diff, only the verdict.
type TestVerdict string

const (
	TestSuccess TestVerdict = "success"
	TestFail    TestVerdict = "fail"
)

// TestCase is a stored input/output expectation attached to a snippet.
type TestCase struct {
	ID        string   `json:"id"`
	SnippetID string   `json:"snippetId,omitempty"`
	Name      string   `json:"name"`
	Input     []string `json:"input"`
	Output    []string `json:"output"`
}
