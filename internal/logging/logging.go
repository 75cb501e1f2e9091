// Package logging configures logrus for the bot and builds the structured
// entries its components log through.
package logging

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tg_weather_bot/internal/config"
)

const serviceName = "weather-bot"

var baseLogger *logrus.Entry

// Fields is a shorthand alias for structured log fields.
type Fields = logrus.Fields

// Context identifies what a log line is about. Zero values are omitted.
type Context struct {
	UserID int64
	ChatID int64
	City   string
	RunID  string
	Event  string
}

// Fields returns the non-zero identifiers as log fields.
func (c Context) Fields() Fields {
	fields := Fields{}

	if c.UserID != 0 {
		fields["user_id"] = c.UserID
	}
	if c.ChatID != 0 {
		fields["chat_id"] = c.ChatID
	}
	if city := strings.TrimSpace(c.City); city != "" {
		fields["city"] = city
	}
	if runID := strings.TrimSpace(c.RunID); runID != "" {
		fields["run_id"] = runID
	}
	if event := strings.TrimSpace(c.Event); event != "" {
		fields["event"] = event
	}

	return fields
}

// WithContext attaches ctx to entry. A nil entry falls back to the base logger.
func WithContext(entry *logrus.Entry, ctx Context) *logrus.Entry {
	if entry == nil {
		entry = ensureLogger()
	}
	return entry.WithFields(ctx.Fields())
}

// Component tags entry with the subsystem that owns it.
func Component(entry *logrus.Entry, name string) *logrus.Entry {
	if entry == nil {
		entry = ensureLogger()
	}
	return entry.WithField("component", name)
}

// Setup builds the process logger from cfg and makes it the base logger.
func Setup(cfg config.Config) (*logrus.Entry, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	baseLogger = newBase(cfg, level)
	return baseLogger, nil
}

// Logger returns the base logger. Before Setup runs it is a JSON logger at
// info level, so boot failures are still structured.
func Logger() *logrus.Entry {
	return ensureLogger()
}

// Info logs through the base logger; used before component loggers exist.
func Info(msg string, fields Fields) {
	ensureLogger().WithFields(fields).Info(msg)
}

// Error logs through the base logger; used before component loggers exist.
func Error(msg string, fields Fields) {
	ensureLogger().WithFields(fields).Error(msg)
}

func ensureLogger() *logrus.Entry {
	if baseLogger == nil {
		baseLogger = newBase(config.Config{AppEnv: config.DefaultAppEnv}, logrus.InfoLevel)
	}
	return baseLogger
}

func newBase(cfg config.Config, level logrus.Level) *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(formatterFor(cfg))

	return logger.WithFields(Fields{
		"service": serviceName,
		"env":     cfg.AppEnv,
	})
}

// formatterFor picks human-readable text in development and JSON elsewhere.
func formatterFor(cfg config.Config) logrus.Formatter {
	fieldMap := logrus.FieldMap{
		logrus.FieldKeyTime:  "ts",
		logrus.FieldKeyMsg:   "msg",
		logrus.FieldKeyLevel: "level",
	}

	if cfg.IsDevelopment() {
		return &logrus.TextFormatter{
			FullTimestamp:          true,
			TimestampFormat:        time.RFC3339Nano,
			FieldMap:               fieldMap,
			DisableLevelTruncation: true,
		}
	}

	return &logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap:        fieldMap,
	}
}

func parseLevel(value string) (logrus.Level, error) {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", value, err)
	}

	return level, nil
}

// resetLogger clears the cached logger; used in tests.
func resetLogger() {
	baseLogger = nil
}
