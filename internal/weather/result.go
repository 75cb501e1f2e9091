package weather

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ErrUnavailable is reported while the circuit breaker is open and provider
// calls are short-circuited.
var ErrUnavailable = errors.New("weather provider unavailable")

// StatusError reports a non-success HTTP status from the provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("weather provider returned %d: %s", e.StatusCode, e.Body)
}

// ProviderError reports an application-level failure embedded in an otherwise
// successful response (the "cod"/"message" pair).
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("weather provider status %s: %s", e.Code, e.Message)
}

// Report holds the current conditions returned for a city.
type Report struct {
	City        string
	Country     string
	Description string
	Temperature float64
	FeelsLike   float64
	Humidity    float64
	WindSpeed   float64
	Cloudiness  float64
	Pressure    float64
}

// Format renders the report using the bot's fixed message template.
func (r Report) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Погода у місті %s, %s\n", r.City, r.Country)
	fmt.Fprintf(&b, "%s\n", r.Description)
	fmt.Fprintf(&b, "Температура: %s°C (відчувається як %s°C)\n", number(r.Temperature), number(r.FeelsLike))
	fmt.Fprintf(&b, "Вологість: %s%%\n", number(r.Humidity))
	fmt.Fprintf(&b, "Вітер: %s м/с\n", number(r.WindSpeed))
	fmt.Fprintf(&b, "Хмарність: %s%%\n", number(r.Cloudiness))
	fmt.Fprintf(&b, "Тиск: %s гПа", number(r.Pressure))
	return b.String()
}

// Result is the outcome of one lookup. Exactly one of Report (when Err is nil)
// or Err is meaningful.
type Result struct {
	City   string
	Report Report
	Err    error
}

// OK reports whether the lookup produced a report.
func (r Result) OK() bool {
	return r.Err == nil
}

// Text renders the user-facing message for either outcome.
func (r Result) Text() string {
	if r.Err == nil {
		return r.Report.Format()
	}

	var statusErr *StatusError
	var providerErr *ProviderError

	switch {
	case errors.Is(r.Err, ErrUnavailable):
		return "Сервіс погоди тимчасово недоступний, спробуйте пізніше."
	case errors.As(r.Err, &statusErr):
		return fmt.Sprintf("Помилка: %d %s - %s", statusErr.StatusCode, http.StatusText(statusErr.StatusCode), statusErr.Body)
	case errors.As(r.Err, &providerErr):
		return "Помилка: " + providerErr.Message
	default:
		return "Помилка при отриманні даних: " + r.Err.Error()
	}
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
