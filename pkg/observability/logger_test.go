package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry %q: %v", buf.String(), err)
	}
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		if buf.Len() > 0 {
			t.Error("Debug message should not be logged at Info level")
		}
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")

		entry := decodeEntry(t, &buf)
		if entry["level"] != "INFO" {
			t.Errorf("Expected level INFO, got %v", entry["level"])
		}
		if entry["msg"] != "info message" {
			t.Errorf("Expected message 'info message', got %v", entry["msg"])
		}
	})

	t.Run("warn and error logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Warn("warn message")
		if buf.Len() == 0 {
			t.Error("Warn message should be logged at Info level")
		}
		buf.Reset()
		logger.Error("error message")
		if buf.Len() == 0 {
			t.Error("Error message should be logged at Info level")
		}
	})
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("key", "value").
		WithFields(map[string]interface{}{"count": 42}).
		WithError(errors.New("boom")).
		Info("message")

	entry := decodeEntry(t, &buf)
	if entry["key"] != "value" {
		t.Errorf("Expected field 'key' to be 'value', got %v", entry["key"])
	}
	if entry["count"] != float64(42) {
		t.Errorf("Expected field 'count' to be 42, got %v", entry["count"])
	}
	if entry["error"] != "boom" {
		t.Errorf("Expected error 'boom', got %v", entry["error"])
	}

	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestLogger_Formatters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	tests := []struct {
		name string
		log  func()
		want string
	}{
		{"Debugf", func() { logger.Debugf("test %s %d", "string", 42) }, "test string 42"},
		{"Infof", func() { logger.Infof("test %d", 123) }, "test 123"},
		{"Warnf", func() { logger.Warnf("warning %s", "test") }, "warning test"},
		{"Errorf", func() { logger.Errorf("error %v", "test") }, "error test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log()
			if msg := decodeEntry(t, &buf)["msg"]; msg != tt.want {
				t.Errorf("Expected %q, got %v", tt.want, msg)
			}
		})
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Error("discarded")
	if logger.Level() != ErrorLevel {
		t.Errorf("Expected ErrorLevel, got %v", logger.Level())
	}
}

func TestContextHelpers(t *testing.T) {
	t.Run("GetLogger default", func(t *testing.T) {
		if GetLogger(context.Background()) == nil {
			t.Error("Expected a default logger")
		}
	})

	t.Run("FromContext", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(InfoLevel, &buf)

		ctx := WithLogger(context.Background(), logger)
		ctx = contextkeys.WithRequestID(ctx, "req-123")
		ctx = contextkeys.WithUserID(ctx, "user-456")

		if GetLogger(ctx) != logger {
			t.Error("Expected to retrieve the stored logger")
		}

		FromContext(ctx).Info("test message")

		entry := decodeEntry(t, &buf)
		if entry["request_id"] != "req-123" {
			t.Errorf("Expected request_id 'req-123', got %v", entry["request_id"])
		}
		if entry["user_id"] != "user-456" {
			t.Errorf("Expected user_id 'user-456', got %v", entry["user_id"])
		}
	})
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("LogLevel.String() = %v, want %v", got, tt.want)
			}
			if got := ParseLogLevel(tt.want); got != tt.level {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.want, got, tt.level)
			}
		})
	}

	if ParseLogLevel("verbose") != InfoLevel {
		t.Error("Unknown levels should fall back to info")
	}
}
