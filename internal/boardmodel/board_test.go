package boardmodel

import "testing"

func TestIsValidAgentStatus(t *testing.T) {
	for _, s := range ValidAgentStatuses() {
		if !IsValidAgentStatus(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if IsValidAgentStatus(AgentStatus("bogus")) {
		t.Error("expected bogus status to be invalid")
	}
}

func TestIsValidSpecStatus(t *testing.T) {
	for _, s := range ValidSpecStatuses() {
		if !IsValidSpecStatus(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if IsValidSpecStatus(SpecStatus("bogus")) {
		t.Error("expected bogus status to be invalid")
	}
}

func TestCanTransitionSpecStatus(t *testing.T) {
	tests := []struct {
		from, to SpecStatus
		want     bool
	}{
		{SpecStatusNone, SpecStatusGenerating, true},
		{SpecStatusGenerating, SpecStatusReady, true},
		{SpecStatusGenerating, SpecStatusError, true},
		{SpecStatusError, SpecStatusGenerating, true},
		{SpecStatusReady, SpecStatusGenerating, false},
		{SpecStatusNone, SpecStatusReady, false},
	}
	for _, tt := range tests {
		if got := CanTransitionSpecStatus(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransitionSpecStatus(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestFindColumnByTitle(t *testing.T) {
	b := &Board{Columns: []Column{{ID: "1", Title: "Queue"}, {ID: "2", Title: "Agent WIP"}}}

	col, ok := b.FindColumnByTitle("queue")
	if !ok || col.ID != "1" {
		t.Fatalf("expected case-insensitive match, got ok=%v col=%+v", ok, col)
	}

	_, ok = b.FindColumnByTitle("Done")
	if ok {
		t.Error("expected Done to be absent")
	}
}
