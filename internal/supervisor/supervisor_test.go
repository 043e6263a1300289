package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/agentboard/agentboard/internal/boardmodel"
)

func TestRunSuccessExitZero(t *testing.T) {
	agent := boardmodel.Agent{ID: "echo", Cmd: "echo", Args: []string{"hello {prompt}"}}
	res := Run(context.Background(), agent, "world", t.TempDir(), nil, nil)

	if !res.Success {
		t.Errorf("expected success, got %+v", res)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", res.ExitCode)
	}
	if res.TimedOut {
		t.Error("expected TimedOut false")
	}
}

func TestRunCapturesStdout(t *testing.T) {
	agent := boardmodel.Agent{ID: "printf", Cmd: "sh", Args: []string{"-c", "printf 'x'"}}
	res := Run(context.Background(), agent, "", t.TempDir(), nil, nil)

	if res.Stdout != "x" {
		t.Errorf("expected stdout %q, got %q", "x", res.Stdout)
	}
}

func TestRunNonZeroExitIsNotSuccess(t *testing.T) {
	agent := boardmodel.Agent{ID: "false", Cmd: "sh", Args: []string{"-c", "exit 3"}}
	res := Run(context.Background(), agent, "", t.TempDir(), nil, nil)

	if res.Success {
		t.Error("expected success to be false for non-zero exit")
	}
	if res.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", res.ExitCode)
	}
}

func TestRunSubstitutesTimestamp(t *testing.T) {
	agent := boardmodel.Agent{ID: "echo", Cmd: "echo", Args: []string{"{timestamp}"}}
	res := Run(context.Background(), agent, "", t.TempDir(), nil, nil)

	if len(res.Stdout) < len("2006-01-02T15:04:05Z") {
		t.Errorf("expected an RFC3339 timestamp in stdout, got %q", res.Stdout)
	}
}

func TestRunMissingCommandFails(t *testing.T) {
	agent := boardmodel.Agent{ID: "nope", Cmd: "agentboard-definitely-not-a-real-binary"}
	res := Run(context.Background(), agent, "", t.TempDir(), nil, nil)

	if res.Success {
		t.Error("expected failure for missing binary")
	}
	if res.ExitCode != -1 {
		t.Errorf("expected exit code -1, got %d", res.ExitCode)
	}
}

func TestCappedBufferDropsExcess(t *testing.T) {
	buf := newCappedBuffer(4)
	n, err := buf.Write([]byte("abcdefgh"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 8 {
		t.Errorf("expected Write to report full len consumed, got %d", n)
	}
	if buf.String() != "abcd" {
		t.Errorf("expected truncation to 4 bytes, got %q", buf.String())
	}

	// Further writes past the cap are silently dropped.
	buf.Write([]byte("ignored"))
	if buf.String() != "abcd" {
		t.Errorf("expected buffer unchanged after cap reached, got %q", buf.String())
	}
}

func TestRunInvokesOnStartWithRealPID(t *testing.T) {
	agent := boardmodel.Agent{ID: "echo", Cmd: "echo", Args: []string{"hi"}}
	var gotPID int
	res := Run(context.Background(), agent, "", t.TempDir(), nil, func(pid int) { gotPID = pid })

	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if gotPID <= 0 {
		t.Errorf("expected onStart to receive a positive pid, got %d", gotPID)
	}
}

func TestRunHonorsExternalCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	agent := boardmodel.Agent{ID: "sleep", Cmd: "sleep", Args: []string{"5"}}
	start := time.Now()
	res := Run(ctx, agent, "", t.TempDir(), nil, nil)
	elapsed := time.Since(start)

	if !res.TimedOut {
		t.Error("expected TimedOut true")
	}
	if res.Success {
		t.Error("expected success false when killed")
	}
	if elapsed > 4*time.Second {
		t.Errorf("expected early termination, took %v", elapsed)
	}
}
