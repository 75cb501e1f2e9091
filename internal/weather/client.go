// Package weather fetches current conditions from OpenWeatherMap and renders
// them for chat delivery.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"tg_weather_bot/internal/config"
	"tg_weather_bot/internal/logging"
)

const (
	maxBodyBytes         = 1 << 20
	breakerName          = "openweather"
	breakerOpenTimeout   = 30 * time.Second
	breakerTripThreshold = 5
	unitsMetric          = "metric"
	codeOK               = "200"
)

var validate = validator.New()

// Client issues current-conditions requests to the weather provider. It is
// safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	apiKey     string
	lang       string
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Entry
}

// NewClient builds a Client from the weather settings in cfg. A nil httpClient
// gets one with cfg.WeatherTimeout.
func NewClient(cfg config.Config, httpClient *http.Client, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.WeatherAPIKey) == "" {
		return nil, errors.New("weather api key is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	rawURL := cfg.WeatherAPIURL
	if rawURL == "" {
		rawURL = config.DefaultWeatherAPIURL
	}
	baseURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse weather api url: %w", err)
	}

	lang := cfg.WeatherLang
	if lang == "" {
		lang = config.DefaultWeatherLang
	}

	if httpClient == nil {
		timeout := cfg.WeatherTimeout
		if timeout <= 0 {
			timeout = config.DefaultWeatherTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     cfg.WeatherAPIKey,
		lang:       lang,
		logger:     logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logging.Fields{
				"event":   "weather_breaker_state",
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("weather circuit breaker changed state")
		},
	})

	return c, nil
}

type rawResponse struct {
	statusCode int
	body       []byte
}

// currentConditions mirrors the provider fields the report needs. Pointers
// let validation tell a missing field apart from a zero reading.
type currentConditions struct {
	Cod     json.RawMessage `json:"cod"`
	Message json.RawMessage `json:"message"`
	Name    *string         `json:"name" validate:"required"`
	Sys     struct {
		Country *string `json:"country" validate:"required"`
	} `json:"sys"`
	Weather []struct {
		Description *string `json:"description" validate:"required"`
	} `json:"weather" validate:"required,min=1,dive"`
	Main struct {
		Temp      *float64 `json:"temp" validate:"required"`
		FeelsLike *float64 `json:"feels_like" validate:"required"`
		Humidity  *float64 `json:"humidity" validate:"required"`
		Pressure  *float64 `json:"pressure" validate:"required"`
	} `json:"main"`
	Wind struct {
		Speed *float64 `json:"speed" validate:"required"`
	} `json:"wind"`
	Clouds struct {
		All *float64 `json:"all" validate:"required"`
	} `json:"clouds"`
}

// Fetch looks up current conditions for city. Failures never escape as a Go
// error; they are carried in Result.Err so callers can still render and store
// the outcome.
func (c *Client) Fetch(ctx context.Context, city string) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	result := c.fetch(ctx, city)

	entry := c.logger.WithFields(logging.Fields{
		"event": "weather_lookup",
		"city":  city,
	})
	if result.Err != nil {
		entry.WithError(result.Err).Warn("weather lookup failed")
	} else {
		entry.Debug("weather lookup succeeded")
	}

	return result
}

func (c *Client) fetch(ctx context.Context, city string) Result {
	requestURL := c.requestURL(city)

	out, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, transportError(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		raw := rawResponse{statusCode: resp.StatusCode, body: body}
		if resp.StatusCode >= http.StatusInternalServerError {
			return raw, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return raw, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{City: city, Err: ErrUnavailable}
		}
		return Result{City: city, Err: err}
	}

	raw, ok := out.(rawResponse)
	if !ok {
		return Result{City: city, Err: fmt.Errorf("unexpected breaker result %T", out)}
	}

	if raw.statusCode < 200 || raw.statusCode >= 300 {
		return Result{City: city, Err: &StatusError{StatusCode: raw.statusCode, Body: string(raw.body)}}
	}

	report, err := parseReport(raw.body)
	if err != nil {
		return Result{City: city, Err: err}
	}

	return Result{City: city, Report: report}
}

func (c *Client) requestURL(city string) string {
	u := *c.baseURL
	query := u.Query()
	query.Set("q", city)
	query.Set("appid", c.apiKey)
	query.Set("units", unitsMetric)
	query.Set("lang", c.lang)
	u.RawQuery = query.Encode()
	return u.String()
}

// transportError drops the *url.Error wrapper, whose message carries the
// request URL and with it the api key.
func transportError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("request weather: %w", urlErr.Err)
	}
	return fmt.Errorf("request weather: %w", err)
}

func parseReport(body []byte) (Report, error) {
	var payload currentConditions
	if err := json.Unmarshal(body, &payload); err != nil {
		return Report{}, fmt.Errorf("decode response: %w", err)
	}

	if code := rawCode(payload.Cod); code != "" && code != codeOK {
		return Report{}, &ProviderError{Code: code, Message: rawMessage(payload.Message)}
	}

	if err := validate.Struct(payload); err != nil {
		return Report{}, fmt.Errorf("incomplete response: %w", err)
	}

	return Report{
		City:        *payload.Name,
		Country:     *payload.Sys.Country,
		Description: *payload.Weather[0].Description,
		Temperature: *payload.Main.Temp,
		FeelsLike:   *payload.Main.FeelsLike,
		Humidity:    *payload.Main.Humidity,
		WindSpeed:   *payload.Wind.Speed,
		Cloudiness:  *payload.Clouds.All,
		Pressure:    *payload.Main.Pressure,
	}, nil
}

// rawCode accepts the provider's cod as either a number or a string; it sends
// 200 on success and "404" on lookup errors.
func rawCode(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strings.TrimSpace(asString)
	}

	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber.String()
	}

	return string(raw)
}

func rawMessage(raw json.RawMessage) string {
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil && msg != "" {
		return msg
	}
	if len(raw) > 0 && string(raw) != "null" {
		return string(raw)
	}
	return "unknown provider error"
}
