package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewDefaultsToInfoLevel(t *testing.T) {
	logger := New(Options{})
	if !logger.Enabled(nil, slog.LevelInfo) {
		t.Error("expected info level enabled by default")
	}
	if logger.Enabled(nil, slog.LevelDebug) {
		t.Error("expected debug level disabled by default")
	}
}

func TestVerboseEnablesDebug(t *testing.T) {
	logger := New(Options{Verbose: true})
	if !logger.Enabled(nil, slog.LevelDebug) {
		t.Error("expected debug level enabled when verbose")
	}
}

func TestQuietSuppressesInfo(t *testing.T) {
	logger := New(Options{Quiet: true})
	if logger.Enabled(nil, slog.LevelInfo) {
		t.Error("expected info level disabled when quiet")
	}
	if !logger.Enabled(nil, slog.LevelWarn) {
		t.Error("expected warn level enabled when quiet")
	}
}

func TestJSONOptionProducesJSONHandler(t *testing.T) {
	if _, ok := New(Options{JSON: true}).Handler().(*slog.JSONHandler); !ok {
		t.Error("expected New with JSON option to use a JSON handler")
	}

	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(handler)
	logger.Info("hello")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("expected JSON-formatted record, got %q", buf.String())
	}
}
