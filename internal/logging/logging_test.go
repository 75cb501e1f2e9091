package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"tg_weather_bot/internal/config"
)

func TestSetupUsesJSONFormatterInProduction(t *testing.T) {
	resetLogger()

	entry, err := Setup(config.Config{AppEnv: config.EnvProduction, LogLevel: "info"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	jsonFormatter, ok := entry.Logger.Formatter.(*logrus.JSONFormatter)
	if !ok {
		t.Fatalf("expected JSON formatter, got %T", entry.Logger.Formatter)
	}

	if jsonFormatter.FieldMap[logrus.FieldKeyTime] != "ts" {
		t.Fatalf("expected ts field for timestamps, got %q", jsonFormatter.FieldMap[logrus.FieldKeyTime])
	}
	if entry.Data["service"] != serviceName {
		t.Fatalf("expected service field, got %v", entry.Data["service"])
	}
	if entry.Data["env"] != config.EnvProduction {
		t.Fatalf("expected env field to be %q, got %v", config.EnvProduction, entry.Data["env"])
	}
}

func TestSetupUsesTextFormatterInDevelopment(t *testing.T) {
	resetLogger()

	entry, err := Setup(config.Config{AppEnv: config.EnvDevelopment, LogLevel: "debug"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := entry.Logger.Formatter.(*logrus.TextFormatter); !ok {
		t.Fatalf("expected Text formatter, got %T", entry.Logger.Formatter)
	}
	if entry.Data["env"] != config.EnvDevelopment {
		t.Fatalf("expected env field to be %q, got %v", config.EnvDevelopment, entry.Data["env"])
	}
}

func TestSetupRejectsInvalidLogLevel(t *testing.T) {
	resetLogger()

	if _, err := Setup(config.Config{AppEnv: config.EnvDevelopment, LogLevel: "loud"}); err == nil {
		t.Fatalf("expected error for invalid log level")
	}

	if baseLogger != nil {
		t.Fatalf("base logger should remain unset after failure")
	}
}

func TestBootHelpersUseBaseLogger(t *testing.T) {
	resetLogger()

	logger, hook := test.NewNullLogger()
	baseLogger = logger.WithFields(logrus.Fields{
		"service": serviceName,
		"env":     config.EnvDevelopment,
	})

	Info("bot starting", Fields{"event": "startup"})
	Error("boom", Fields{"error": "fail"})

	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Level != logrus.InfoLevel || entries[0].Data["event"] != "startup" {
		t.Fatalf("expected info level with startup event, got level=%s data=%v", entries[0].Level, entries[0].Data)
	}
	if entries[1].Level != logrus.ErrorLevel || entries[1].Data["error"] != "fail" {
		t.Fatalf("expected error level with error field, got level=%s data=%v", entries[1].Level, entries[1].Data)
	}
	if entries[1].Data["service"] != serviceName {
		t.Fatalf("expected base fields preserved, got %v", entries[1].Data)
	}
}

func TestWithContextUsesInjectedEntry(t *testing.T) {
	resetLogger()

	injected, injectedHook := test.NewNullLogger()
	global, globalHook := test.NewNullLogger()
	baseLogger = logrus.NewEntry(global)

	entry := logrus.NewEntry(injected).WithField("component", "lookup")
	WithContext(entry, Context{UserID: 42, ChatID: 43, City: " Kyiv ", RunID: "r1", Event: "lookup_record_error"}).Warn("ctx log")

	if len(globalHook.AllEntries()) != 0 {
		t.Fatalf("expected nothing on the base logger, got %d entries", len(globalHook.AllEntries()))
	}

	last := injectedHook.LastEntry()
	if last == nil {
		t.Fatalf("expected entry on injected logger")
	}
	want := Fields{
		"component": "lookup",
		"user_id":   int64(42),
		"chat_id":   int64(43),
		"city":      "Kyiv",
		"run_id":    "r1",
		"event":     "lookup_record_error",
	}
	for key, value := range want {
		if last.Data[key] != value {
			t.Fatalf("expected %s=%v, got %v", key, value, last.Data)
		}
	}
}

func TestWithContextNilEntryFallsBackToBase(t *testing.T) {
	resetLogger()

	logger, hook := test.NewNullLogger()
	baseLogger = logrus.NewEntry(logger)

	WithContext(nil, Context{Event: "boot"}).Info("fallback")

	if last := hook.LastEntry(); last == nil || last.Data["event"] != "boot" {
		t.Fatalf("expected base logger entry, got %v", last)
	}
}

func TestContextFieldsOmitsZeroValues(t *testing.T) {
	if fields := (Context{City: "  "}).Fields(); len(fields) != 0 {
		t.Fatalf("expected no fields, got %v", fields)
	}
}

func TestComponentTagsEntry(t *testing.T) {
	logger, hook := test.NewNullLogger()

	Component(logrus.NewEntry(logger), "scheduler").Info("tagged")

	if last := hook.LastEntry(); last == nil || last.Data["component"] != "scheduler" {
		t.Fatalf("expected component field, got %v", last)
	}
}

func TestLoggerInitializesDefault(t *testing.T) {
	resetLogger()

	entry := Logger()
	if entry == nil {
		t.Fatalf("expected default logger")
	}
	if entry.Data["service"] != serviceName || entry.Data["env"] != config.DefaultAppEnv {
		t.Fatalf("expected default base fields, got %v", entry.Data)
	}
	if _, ok := entry.Logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected JSON formatter by default, got %T", entry.Logger.Formatter)
	}
}
