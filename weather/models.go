// Package weather implements a multi-city weather forecast service on top
// of the weatherproof resilience core: it builds met.no provider requests,
// validates and transforms raw forecast payloads, and assembles per-city
// and summary views carrying the core's stale/degraded flags.
package weather

import (
	"fmt"
	"strings"
	"time"
)

// Condition is the normalized weather condition derived from a met.no
// symbol code.
type Condition string

const (
	ConditionClearSky     Condition = "clearsky"
	ConditionPartlyCloudy Condition = "partlycloudy"
	ConditionCloudy       Condition = "cloudy"
	ConditionLightRain    Condition = "lightrain"
	ConditionRain         Condition = "rain"
	ConditionHeavyRain    Condition = "heavyrain"
	ConditionLightSnow    Condition = "lightsnow"
	ConditionSnow         Condition = "snow"
	ConditionHeavySnow    Condition = "heavysnow"
	ConditionFog          Condition = "fog"
	ConditionThunderstorm Condition = "thunderstorm"
	ConditionUnknown      Condition = "unknown"
)

// City is one configured forecast location.
type City struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks the city definition.
func (c City) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("city ID cannot be empty")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("city %q: name cannot be empty", c.ID)
	}
	if strings.TrimSpace(c.Country) == "" {
		return fmt.Errorf("city %q: country cannot be empty", c.ID)
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("city %q: latitude must be between -90 and 90, got %v", c.ID, c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("city %q: longitude must be between -180 and 180, got %v", c.ID, c.Longitude)
	}
	return nil
}

// Temperature is a temperature reading with its unit.
type Temperature struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Forecast is tomorrow's forecast for one city, transformed from the raw
// met.no payload.
type Forecast struct {
	CityID      string      `json:"cityId"`
	CityName    string      `json:"cityName"`
	Country     string      `json:"country"`
	Date        string      `json:"date"`
	Temperature Temperature `json:"temperature"`
	Condition   Condition   `json:"condition"`
	Description string      `json:"description"`
	Icon        string      `json:"icon"`
	Humidity    *int        `json:"humidity,omitempty"`
	WindSpeed   *float64    `json:"windSpeed,omitempty"`
	UpdatedAt   time.Time   `json:"lastUpdated"`
}

// Validate checks the transformed forecast for completeness and plausible
// values.
func (f *Forecast) Validate() error {
	if strings.TrimSpace(f.Description) == "" {
		return fmt.Errorf("weather description cannot be empty")
	}
	if f.Temperature.Unit != "celsius" {
		return fmt.Errorf("unsupported temperature unit: %s", f.Temperature.Unit)
	}
	if f.Temperature.Value < -100 || f.Temperature.Value > 60 {
		return fmt.Errorf("temperature value %v°C seems unrealistic", f.Temperature.Value)
	}
	if f.Humidity != nil && (*f.Humidity < 0 || *f.Humidity > 100) {
		return fmt.Errorf("humidity must be between 0 and 100, got %d", *f.Humidity)
	}
	if f.WindSpeed != nil && *f.WindSpeed < 0 {
		return fmt.Errorf("wind speed cannot be negative, got %v", *f.WindSpeed)
	}
	return nil
}

// CityForecast is one city's slot in a summary: either a forecast with
// the core's freshness flags, or an error for that city alone.
type CityForecast struct {
	CityID   string    `json:"cityId"`
	Forecast *Forecast `json:"forecast,omitempty"`
	Stale    bool      `json:"stale"`
	Degraded bool      `json:"degraded"`
	// ExpiresAt is when the underlying cache entry stops being fresh.
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Summary is the assembled view over all configured cities. Status is
// "success" when every city resolved fresh, "degraded" when any city is
// stale, degraded or failed, and "error" when no city resolved at all.
type Summary struct {
	Timestamp   time.Time      `json:"timestamp"`
	CitiesCount int            `json:"citiesCount"`
	Cities      []CityForecast `json:"cities"`
	Status      string         `json:"status"`
}

// HealthStatus reports service liveness together with the result of the
// upstream provider probe.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Upstream  string    `json:"upstream"`
}
