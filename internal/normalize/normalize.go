// Package normalize absorbs every inconsistency the backends produce before
// data reaches the rest of the client: versions embedded in language names,
// compliance enums in random casings, ids that arrive as numbers.
//
// Everything here is a pure transform. Nothing in this package returns an
// error — absent or malformed optional fields degrade to documented defaults,
// and entries that can't be salvaged are dropped, never propagated as
// failures. Callers can rely on that: a normalizer never crashes a fetch.
package normalize

import (
	"encoding/json"
	"strings"
)

// FlexID is a snippet/file-type id that backends serialise as either a JSON
// string or a bare number. It always lands as a string client-side.
type FlexID string

// UnmarshalJSON accepts "42", 42 and null interchangeably.
func (f *FlexID) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if text == "null" || text == "" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexID(n.String())
		return nil
	}
	// Unknown shape: keep the raw text rather than failing the whole decode.
	*f = FlexID(strings.Trim(text, `"`))
	return nil
}

func (f FlexID) String() string { return string(f) }
