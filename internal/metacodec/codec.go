// Package metacodec implements the embedded agent-meta protocol: a task's
// free-text description may carry a JSON AgentMeta record appended after a
// sentinel line. Parse, Strip, and Embed are pure and total — they never
// panic and never return an error, matching the contract the board's other
// consumers (a UI, the board's own CRUD layer) rely on when round-tripping
// a description they don't otherwise understand.
package metacodec

import (
	"encoding/json"
	"strings"

	"github.com/agentboard/agentboard/internal/boardmodel"
)

// Sentinel delimits the user-visible description from the embedded meta
// block. Everything before the first occurrence is user-visible.
const Sentinel = "---agent-meta---"

// Parse locates the sentinel and JSON-decodes the suffix into an AgentMeta.
// It returns nil, false on any failure: no sentinel present, or the suffix
// is not valid JSON.
func Parse(description string) (*boardmodel.AgentMeta, bool) {
	idx := strings.Index(description, Sentinel)
	if idx < 0 {
		return nil, false
	}
	raw := strings.TrimSpace(description[idx+len(Sentinel):])
	if raw == "" {
		return nil, false
	}
	var meta boardmodel.AgentMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, false
	}
	return &meta, true
}

// Strip returns the user-visible prefix of description, trimmed of
// leading and trailing whitespace. If no sentinel is present, the whole string (also
// trimmed) is returned.
func Strip(description string) string {
	idx := strings.Index(description, Sentinel)
	if idx < 0 {
		return strings.TrimSpace(description)
	}
	return strings.TrimSpace(description[:idx])
}

// Embed strips any existing meta block from description, then appends the
// sentinel and the canonical JSON encoding of meta. A marshal failure
// (which cannot happen for a well-formed AgentMeta) degrades to embedding
// an empty object rather than returning an error, preserving totality.
func Embed(description string, meta boardmodel.AgentMeta) string {
	prefix := Strip(description)
	encoded, err := json.Marshal(meta)
	if err != nil {
		encoded = []byte("{}")
	}
	if prefix == "" {
		return Sentinel + "\n" + string(encoded)
	}
	return prefix + "\n" + Sentinel + "\n" + string(encoded)
}
