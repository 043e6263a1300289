// Package router implements the Router (component H): it selects which
// agent should handle a task.
package router

import (
	"strings"

	"github.com/agentboard/agentboard/internal/boardmodel"
)

// FallbackAgentID is used when the registry has no enabled agents at all.
const FallbackAgentID = "claude"

// Route picks an agent for a task per the precedence:
//  1. an explicit agent id embedded in the task's meta
//  2. the enabled agent whose keywords score highest against title+description
//  3. the enabled agent marked default
//  4. the first enabled agent
//  5. FallbackAgentID
func Route(meta *boardmodel.AgentMeta, title, strippedDescription string, agents []boardmodel.Agent) string {
	if meta != nil && meta.Agent != nil && *meta.Agent != "" {
		return *meta.Agent
	}

	haystack := strings.ToLower(title + " " + strippedDescription)

	enabled := make([]boardmodel.Agent, 0, len(agents))
	for _, a := range agents {
		if a.Enabled {
			enabled = append(enabled, a)
		}
	}

	bestIdx := -1
	bestScore := 0
	for i, a := range enabled {
		score := 0
		for _, kw := range a.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(haystack, strings.ToLower(kw)) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if bestScore > 0 && bestIdx >= 0 {
		return enabled[bestIdx].ID
	}

	for _, a := range enabled {
		if a.Default {
			return a.ID
		}
	}

	if len(enabled) > 0 {
		return enabled[0].ID
	}

	return FallbackAgentID
}
