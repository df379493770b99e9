// Package weatherapi serves the weather forecast service over HTTP:
// the multi-city summary, per-city forecasts, liveness, Prometheus
// metrics and admin resets.
package weatherapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/haakond/weatherproof"
	"github.com/haakond/weatherproof/weather"
)

const serviceName = "weather-forecast-app"

// Handlers implements the HTTP endpoints over a weather.Service.
type Handlers struct {
	service *weather.Service
	logger  *zap.Logger
}

// NewHandlers builds the endpoint handlers. A nil logger disables
// logging.
func NewHandlers(service *weather.Service, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{service: service, logger: logger}
}

type errorBody struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"requestId,omitempty"`
}

func (h *Handlers) writeError(c *gin.Context, status int, errType, message string) {
	c.JSON(status, gin.H{"error": errorBody{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now().UTC(),
		RequestID: requestIDFrom(c),
	}})
}

// classify maps a service error to an HTTP status, an error type tag and
// a client-safe message.
func classify(err error) (int, string, string) {
	if errors.Is(err, weather.ErrUnknownCity) {
		return http.StatusNotFound, "NotFound", err.Error()
	}

	var werr *weatherproof.Error
	if errors.As(err, &werr) {
		switch werr.Type {
		case weatherproof.ErrorTypeRateLimitExceeded:
			return http.StatusTooManyRequests, string(werr.Type), "Request was rate limited, try again shortly"
		case weatherproof.ErrorTypeCircuitOpen:
			return http.StatusServiceUnavailable, string(werr.Type), "Weather provider temporarily unavailable"
		default:
			return http.StatusBadGateway, string(werr.Type), "Weather service temporarily unavailable"
		}
	}

	return http.StatusBadGateway, "WeatherServiceError", "Weather service temporarily unavailable"
}

type summaryResponse struct {
	*weather.Summary
	RequestID string `json:"requestId"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// GetWeather serves the all-cities forecast summary. A fully fresh
// summary is cacheable until its earliest entry expires; anything stale
// or degraded is marked no-store so intermediaries do not pin fallbacks.
func (h *Handlers) GetWeather(c *gin.Context) {
	summary := h.service.Summary(c.Request.Context())
	if summary.Status == "error" {
		h.writeError(c, http.StatusBadGateway, "WeatherServiceError", "Weather service temporarily unavailable")
		return
	}

	c.Header("Cache-Control", cacheControl(summary))
	c.JSON(http.StatusOK, summaryResponse{
		Summary:   summary,
		RequestID: requestIDFrom(c),
		Version:   weatherproof.Version,
		Service:   serviceName,
	})
}

func cacheControl(s *weather.Summary) string {
	if s.Status != "success" {
		return "no-store"
	}
	remaining := time.Duration(-1)
	now := time.Now()
	for i := range s.Cities {
		expiresAt := s.Cities[i].ExpiresAt
		if expiresAt == nil {
			continue
		}
		d := expiresAt.Sub(now)
		if d < 0 {
			d = 0
		}
		if remaining < 0 || d < remaining {
			remaining = d
		}
	}
	if remaining < 0 {
		return "no-store"
	}
	return fmt.Sprintf("public, max-age=%d", int(remaining.Seconds()))
}

// GetCityWeather serves one city's forecast. Stale or degraded data is
// still a 200 with the flags set; only a city with no data at all maps
// to an error status.
func (h *Handlers) GetCityWeather(c *gin.Context) {
	cityID := c.Param("city")
	cf, err := h.service.CityForecast(c.Request.Context(), cityID)
	if err != nil {
		status, errType, message := classify(err)
		h.writeError(c, status, errType, message)
		return
	}
	c.JSON(http.StatusOK, cf)
}

// ListCities serves the configured city set.
func (h *Handlers) ListCities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cities": h.service.Cities()})
}

type healthResponse struct {
	*weather.HealthStatus
	Version   string `json:"version"`
	Service   string `json:"service"`
	RequestID string `json:"requestId,omitempty"`
}

// GetHealth probes upstream liveness. The service stays healthy on a
// locally throttled probe; only an unreachable provider degrades it to
// a 503.
func (h *Handlers) GetHealth(c *gin.Context) {
	health := h.service.Health(c.Request.Context())
	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, healthResponse{
		HealthStatus: health,
		Version:      weatherproof.Version,
		Service:      serviceName,
		RequestID:    requestIDFrom(c),
	})
}

// ResetCity clears one city's breaker, limiter window and cached
// forecast.
func (h *Handlers) ResetCity(c *gin.Context) {
	cityID := c.Param("city")
	if err := h.service.Reset(c.Request.Context(), cityID); err != nil {
		status, errType, message := classify(err)
		h.writeError(c, status, errType, message)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset", "city": cityID})
}

type breakerStatus struct {
	Key                 string     `json:"key"`
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	OpenedAt            *time.Time `json:"openedAt,omitempty"`
	CooldownSeconds     float64    `json:"cooldownSeconds,omitempty"`
}

// GetBreakers serves a snapshot of every key's circuit breaker.
func (h *Handlers) GetBreakers(c *gin.Context) {
	snapshot := h.service.Client().BreakerSnapshot()
	out := make([]breakerStatus, 0, len(snapshot))
	for _, b := range snapshot {
		bs := breakerStatus{
			Key:                 b.Key,
			State:               b.State.String(),
			ConsecutiveFailures: b.ConsecutiveFailures,
			CooldownSeconds:     b.Cooldown.Seconds(),
		}
		if !b.OpenedAt.IsZero() {
			openedAt := b.OpenedAt
			bs.OpenedAt = &openedAt
		}
		out = append(out, bs)
	}
	c.JSON(http.StatusOK, gin.H{"breakers": out})
}
