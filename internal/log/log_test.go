package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.expected)
		}
	}
}

func TestStringField(t *testing.T) {
	f := String("socket", "/run/fstokend/fstokend.sock")
	if f.Key != "socket" || f.Value != "/run/fstokend/fstokend.sock" {
		t.Errorf("String field incorrect: %+v", f)
	}
}

func TestErrField(t *testing.T) {
	f := Err(errors.New("malformed token"))
	if f.Key != "error" || f.Value != "malformed token" {
		t.Errorf("Err field incorrect: %+v", f)
	}

	f = Err(nil)
	if f.Key != "error" || f.Value != nil {
		t.Errorf("Err(nil) field incorrect: %+v", f)
	}
}

func TestNullLoggerIsNoopAndReturnsItself(t *testing.T) {
	logger := &nullLogger{}

	logger.Debug("test")
	logger.Info("test")
	logger.Warn("test")
	logger.Error("test")

	if child := logger.WithFields(String("request_id", "abc")); child != logger {
		t.Error("nullLogger.WithFields should return the same instance")
	}
}

func TestSimpleLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSimpleLogger(&buf, LevelInfo)

	logger.Debug("dispatching operation")
	if buf.Len() > 0 {
		t.Error("Debug should be filtered out at LevelInfo")
	}
}

func TestSimpleLoggerFormatsLevelMessageAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSimpleLogger(&buf, LevelInfo)

	logger.Info("broker listening", String("socket", "/run/fstokend/fstokend.sock"))
	output := buf.String()

	for _, want := range []string{"level=INFO", `msg="broker listening"`, "socket=/run/fstokend/fstokend.sock"} {
		if !strings.Contains(output, want) {
			t.Errorf("output %q missing %q", output, want)
		}
	}
}

func TestSimpleLoggerWarnAndError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSimpleLogger(&buf, LevelDebug)

	logger.Warn("accept failed")
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Error("Warn should log at WARN")
	}

	buf.Reset()
	logger.Error("startup failed")
	if !strings.Contains(buf.String(), "level=ERROR") {
		t.Error("Error should log at ERROR")
	}
}

func TestSimpleLoggerWithFieldsBindsPerConnectionField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSimpleLogger(&buf, LevelDebug)

	// Mirrors the broker's per-connection pattern: bind request_id once,
	// then log call-specific fields on top of it.
	conn := logger.WithFields(String("request_id", "9f86"))
	conn.Info("dispatching operation", String("kind", "Invoke"))

	output := buf.String()
	if !strings.Contains(output, "request_id=9f86") {
		t.Error("output should contain the bound request_id field")
	}
	if !strings.Contains(output, "kind=Invoke") {
		t.Error("output should contain the call-specific field")
	}
}

func TestDefaultLoggerIsNullUntilSet(t *testing.T) {
	defer SetLogger(nil)

	if _, ok := GetLogger().(*nullLogger); !ok {
		t.Error("default logger should be the null logger")
	}

	var buf bytes.Buffer
	SetLogger(NewSimpleLogger(&buf, LevelDebug))
	Info("dispatching operation")
	if !strings.Contains(buf.String(), "dispatching operation") {
		t.Error("package-level Info should reach the configured logger")
	}

	SetLogger(nil)
	if _, ok := GetLogger().(*nullLogger); !ok {
		t.Error("SetLogger(nil) should restore the null logger")
	}
}

func TestPackageLevelFunctionsRouteToAllLevels(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewSimpleLogger(&buf, LevelDebug))
	defer SetLogger(nil)

	Debug("debug")
	Info("info")
	Warn("warn")
	Error("error")

	output := buf.String()
	for _, level := range []string{"DEBUG", "INFO", "WARN", "ERROR"} {
		if !strings.Contains(output, "level="+level) {
			t.Errorf("expected a level=%s line, got %q", level, output)
		}
	}
}

func TestEnableDebugLoggingWritesToStderrAtDebug(t *testing.T) {
	defer SetLogger(nil)
	EnableDebugLogging()

	logger := GetLogger()
	if _, ok := logger.(*simpleLogger); !ok {
		t.Error("EnableDebugLogging should install a simpleLogger")
	}
}
