// Package config defines the configuration contract and handles loading and validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken  = "TELEGRAM_TOKEN"
	KeyWeatherAPIKey  = "WEATHER_API_KEY"
	KeyWeatherAPIURL  = "WEATHER_API_URL"
	KeyWeatherLang    = "WEATHER_LANG"
	KeyWeatherTimeout = "WEATHER_TIMEOUT"
	KeyMongoURI       = "MONGO_URI"
	KeyMongoDB        = "MONGO_DB"
	KeyAppEnv         = "APP_ENV"
	KeyLogLevel       = "LOG_LEVEL"
	KeyHTTPPort       = "HTTP_PORT"
	KeyBroadcastCron  = "BROADCAST_CRON"
	KeyBroadcastCity  = "BROADCAST_CITY"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv         = EnvProduction
	DefaultLogLevel       = "info"
	DefaultHTTPPort       = 8080
	DefaultWeatherAPIURL  = "https://api.openweathermap.org/data/2.5/weather"
	DefaultWeatherLang    = "ua"
	DefaultWeatherTimeout = 10 * time.Second

	// Recommended database names by environment.
	DefaultMongoDBProd = "weather_bot"
	DefaultMongoDBDev  = "weather_bot_dev"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyWeatherAPIKey,
		Example:     "0123456789abcdef",
		Required:    true,
		Description: "OpenWeatherMap API key (appid).",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Required:    true,
		Description: "MongoDB connection string.",
		Notes:       "Must use the mongodb:// or mongodb+srv:// scheme.",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDBProd + " / " + DefaultMongoDBDev,
		Required:    true,
		Description: "MongoDB database name.",
		Notes:       "Recommended: production=" + DefaultMongoDBProd + ", development=" + DefaultMongoDBDev + ".",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP API and health port.",
	},
	{
		Key:         KeyWeatherAPIURL,
		Example:     DefaultWeatherAPIURL,
		Default:     DefaultWeatherAPIURL,
		Description: "Current-conditions endpoint of the weather provider.",
	},
	{
		Key:         KeyWeatherLang,
		Example:     DefaultWeatherLang,
		Default:     DefaultWeatherLang,
		Description: "Language of provider weather descriptions.",
	},
	{
		Key:         KeyWeatherTimeout,
		Example:     DefaultWeatherTimeout.String(),
		Default:     DefaultWeatherTimeout.String(),
		Description: "Timeout for a single weather provider request.",
	},
	{
		Key:         KeyBroadcastCron,
		Example:     "0 8 * * *",
		Description: "Cron schedule for broadcasting weather to every user.",
		Notes:       "Must be set together with " + KeyBroadcastCity + ".",
	},
	{
		Key:         KeyBroadcastCity,
		Example:     "Kyiv",
		Description: "City used by the scheduled broadcast.",
		Notes:       "Must be set together with " + KeyBroadcastCron + ".",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken  string
	WeatherAPIKey  string
	WeatherAPIURL  string
	WeatherLang    string
	WeatherTimeout time.Duration
	MongoURI       string
	MongoDB        string
	AppEnv         string
	LogLevel       string
	HTTPPort       int
	BroadcastCron  string
	BroadcastCity  string
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:         firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken:  strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		WeatherAPIKey:  strings.TrimSpace(os.Getenv(KeyWeatherAPIKey)),
		WeatherAPIURL:  firstNonEmpty(os.Getenv(KeyWeatherAPIURL), DefaultWeatherAPIURL),
		WeatherLang:    firstNonEmpty(os.Getenv(KeyWeatherLang), DefaultWeatherLang),
		WeatherTimeout: DefaultWeatherTimeout,
		MongoURI:       strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:        strings.TrimSpace(os.Getenv(KeyMongoDB)),
		LogLevel:       firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:       DefaultHTTPPort,
		BroadcastCron:  strings.TrimSpace(os.Getenv(KeyBroadcastCron)),
		BroadcastCity:  strings.TrimSpace(os.Getenv(KeyBroadcastCity)),
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}

	if cfg.WeatherAPIKey == "" {
		missing = append(missing, KeyWeatherAPIKey)
	}

	if cfg.MongoURI == "" {
		missing = append(missing, KeyMongoURI)
	}

	if cfg.MongoDB == "" {
		missing = append(missing, KeyMongoDB)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if err := validateMongoURI(cfg.MongoURI); err != nil {
		return Config{}, err
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	timeoutRaw := strings.TrimSpace(os.Getenv(KeyWeatherTimeout))
	if timeoutRaw != "" {
		timeout, parseErr := time.ParseDuration(timeoutRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyWeatherTimeout, parseErr)
		}
		if timeout <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyWeatherTimeout)
		}
		cfg.WeatherTimeout = timeout
	}

	if (cfg.BroadcastCron == "") != (cfg.BroadcastCity == "") {
		return Config{}, fmt.Errorf("%s and %s must be set together", KeyBroadcastCron, KeyBroadcastCity)
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// BroadcastEnabled reports whether a scheduled broadcast is configured.
func (c Config) BroadcastEnabled() bool {
	return c.BroadcastCron != "" && c.BroadcastCity != ""
}

// FormatRedacted renders the configuration with secrets masked so it can be
// printed or logged safely.
func FormatRedacted(cfg Config) string {
	lines := []string{
		"app_env: " + cfg.AppEnv,
		"log_level: " + cfg.LogLevel,
		"http_port: " + strconv.Itoa(cfg.HTTPPort),
		"telegram_token: " + maskSecret(cfg.TelegramToken),
		"weather_api_key: " + maskSecret(cfg.WeatherAPIKey),
		"weather_api_url: " + cfg.WeatherAPIURL,
		"weather_lang: " + cfg.WeatherLang,
		"weather_timeout: " + cfg.WeatherTimeout.String(),
		"mongo_uri: " + redactURI(cfg.MongoURI),
		"mongo_db: " + cfg.MongoDB,
	}

	if cfg.BroadcastEnabled() {
		lines = append(lines,
			"broadcast_cron: "+cfg.BroadcastCron,
			"broadcast_city: "+cfg.BroadcastCity,
		)
	}

	return strings.Join(lines, "\n")
}

func maskSecret(value string) string {
	if value == "" {
		return "(unset)"
	}
	if len(value) <= 4 {
		return "...redacted"
	}
	return value[:4] + "...redacted"
}

func redactURI(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "...redacted"
	}
	if parsed.User == nil {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}

func validateMongoURI(raw string) error {
	if strings.HasPrefix(raw, "mongodb://") || strings.HasPrefix(raw, "mongodb+srv://") {
		return nil
	}

	return fmt.Errorf("invalid %s: must start with mongodb:// or mongodb+srv://", KeyMongoURI)
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
