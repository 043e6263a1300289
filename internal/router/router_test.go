package router

import (
	"testing"

	"github.com/agentboard/agentboard/internal/boardmodel"
)

func agent(id string, enabled, def bool, keywords ...string) boardmodel.Agent {
	return boardmodel.Agent{ID: id, Enabled: enabled, Default: def, Keywords: keywords}
}

func TestRouteHonorsExplicitMeta(t *testing.T) {
	explicit := "fixer"
	meta := &boardmodel.AgentMeta{Agent: &explicit}
	agents := []boardmodel.Agent{agent("claude", true, true, "go")}

	got := Route(meta, "fix the go bug", "", agents)
	if got != "fixer" {
		t.Errorf("expected explicit meta agent, got %s", got)
	}
}

func TestRouteScoresKeywordsCaseInsensitive(t *testing.T) {
	agents := []boardmodel.Agent{
		agent("writer", true, false, "docs"),
		agent("coder", true, false, "GO", "bug"),
	}

	got := Route(nil, "Fix the Go BUG", "", agents)
	if got != "coder" {
		t.Errorf("expected coder to win on keyword score, got %s", got)
	}
}

func TestRouteBreaksTiesByRegistryOrder(t *testing.T) {
	agents := []boardmodel.Agent{
		agent("first", true, false, "go"),
		agent("second", true, false, "go"),
	}

	got := Route(nil, "go task", "", agents)
	if got != "first" {
		t.Errorf("expected tie broken by registry order, got %s", got)
	}
}

func TestRouteFallsBackToDefaultWhenNoScore(t *testing.T) {
	agents := []boardmodel.Agent{
		agent("a", true, false, "nomatch"),
		agent("b", true, true, "alsonomatch"),
	}

	got := Route(nil, "unrelated task", "", agents)
	if got != "b" {
		t.Errorf("expected default agent, got %s", got)
	}
}

func TestRouteFallsBackToFirstEnabledWhenNoDefault(t *testing.T) {
	agents := []boardmodel.Agent{
		agent("a", true, false, "nomatch"),
		agent("b", true, false, "alsonomatch"),
	}

	got := Route(nil, "unrelated task", "", agents)
	if got != "a" {
		t.Errorf("expected first enabled agent, got %s", got)
	}
}

func TestRouteFallsBackToHardcodedWhenNoEnabledAgents(t *testing.T) {
	agents := []boardmodel.Agent{agent("a", false, false, "go")}

	got := Route(nil, "go task", "", agents)
	if got != FallbackAgentID {
		t.Errorf("expected hardcoded fallback, got %s", got)
	}
}

func TestRouteIgnoresDisabledAgents(t *testing.T) {
	agents := []boardmodel.Agent{
		agent("disabled", false, false, "go", "bug"),
		agent("enabled", true, true, "nomatch"),
	}

	got := Route(nil, "go bug", "", agents)
	if got != "enabled" {
		t.Errorf("expected disabled agent to be skipped, got %s", got)
	}
}
