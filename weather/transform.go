package weather

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// symbolConditions maps met.no symbol codes to normalized conditions.
// Day/night/polartwilight variants collapse onto the same condition.
var symbolConditions = map[string]Condition{
	"clearsky_day":           ConditionClearSky,
	"clearsky_night":         ConditionClearSky,
	"clearsky_polartwilight": ConditionClearSky,

	"fair_day":                   ConditionPartlyCloudy,
	"fair_night":                 ConditionPartlyCloudy,
	"fair_polartwilight":         ConditionPartlyCloudy,
	"partlycloudy_day":           ConditionPartlyCloudy,
	"partlycloudy_night":         ConditionPartlyCloudy,
	"partlycloudy_polartwilight": ConditionPartlyCloudy,

	"cloudy": ConditionCloudy,

	"lightrain":                      ConditionLightRain,
	"lightrainshowers_day":           ConditionLightRain,
	"lightrainshowers_night":         ConditionLightRain,
	"lightrainshowers_polartwilight": ConditionLightRain,
	"rain":                           ConditionRain,
	"rainshowers_day":                ConditionRain,
	"rainshowers_night":              ConditionRain,
	"rainshowers_polartwilight":      ConditionRain,
	"heavyrain":                      ConditionHeavyRain,
	"heavyrainshowers_day":           ConditionHeavyRain,
	"heavyrainshowers_night":         ConditionHeavyRain,
	"heavyrainshowers_polartwilight": ConditionHeavyRain,

	"lightsnow":                      ConditionLightSnow,
	"lightsnowshowers_day":           ConditionLightSnow,
	"lightsnowshowers_night":         ConditionLightSnow,
	"lightsnowshowers_polartwilight": ConditionLightSnow,
	"snow":                           ConditionSnow,
	"snowshowers_day":                ConditionSnow,
	"snowshowers_night":              ConditionSnow,
	"snowshowers_polartwilight":      ConditionSnow,
	"heavysnow":                      ConditionHeavySnow,
	"heavysnowshowers_day":           ConditionHeavySnow,
	"heavysnowshowers_night":         ConditionHeavySnow,
	"heavysnowshowers_polartwilight": ConditionHeavySnow,

	"lightrainandthunder": ConditionThunderstorm,
	"rainandthunder":      ConditionThunderstorm,
	"heavyrainandthunder": ConditionThunderstorm,
	"lightsnowandthunder": ConditionThunderstorm,
	"snowandthunder":      ConditionThunderstorm,
	"heavysnowandthunder": ConditionThunderstorm,

	"fog": ConditionFog,
}

var conditionDescriptions = map[Condition]string{
	ConditionClearSky:     "Clear sky",
	ConditionPartlyCloudy: "Partly cloudy",
	ConditionCloudy:       "Cloudy",
	ConditionLightRain:    "Light rain",
	ConditionRain:         "Rain",
	ConditionHeavyRain:    "Heavy rain",
	ConditionLightSnow:    "Light snow",
	ConditionSnow:         "Snow",
	ConditionHeavySnow:    "Heavy snow",
	ConditionFog:          "Fog",
	ConditionThunderstorm: "Thunderstorm",
	ConditionUnknown:      "Unknown conditions",
}

var conditionIcons = map[Condition]string{
	ConditionClearSky:     "clear_day",
	ConditionPartlyCloudy: "partly_cloudy_day",
	ConditionCloudy:       "cloudy",
	ConditionLightRain:    "light_rain",
	ConditionRain:         "rain",
	ConditionHeavyRain:    "heavy_rain",
	ConditionLightSnow:    "light_snow",
	ConditionSnow:         "snow",
	ConditionHeavySnow:    "heavy_snow",
	ConditionFog:          "fog",
	ConditionThunderstorm: "thunderstorm",
	ConditionUnknown:      "unknown",
}

// MapSymbol maps a met.no symbol code to a normalized condition. The API
// sometimes appends a numeric variant suffix ("rainshowers_day_2"); the
// suffix is stripped before lookup. Unrecognized codes map to
// ConditionUnknown.
func MapSymbol(symbolCode string) Condition {
	base := symbolCode
	if i := strings.LastIndex(symbolCode, "_"); i > 0 {
		if suffix := symbolCode[i+1:]; suffix != "" && isDigits(suffix) {
			base = symbolCode[:i]
		}
	}
	if c, ok := symbolConditions[base]; ok {
		return c
	}
	return ConditionUnknown
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Describe returns the human-readable description for a condition.
func Describe(c Condition) string {
	if d, ok := conditionDescriptions[c]; ok {
		return d
	}
	return conditionDescriptions[ConditionUnknown]
}

// Icon returns the frontend icon name for a condition.
func Icon(c Condition) string {
	if i, ok := conditionIcons[c]; ok {
		return i
	}
	return conditionIcons[ConditionUnknown]
}

// metnoResponse mirrors the subset of the met.no locationforecast compact
// payload the service consumes.
type metnoResponse struct {
	Properties struct {
		Timeseries []metnoEntry `json:"timeseries"`
	} `json:"properties"`
}

type metnoEntry struct {
	Time time.Time `json:"time"`
	Data struct {
		Instant struct {
			Details metnoDetails `json:"details"`
		} `json:"instant"`
		Next6Hours struct {
			Summary struct {
				SymbolCode string `json:"symbol_code"`
			} `json:"summary"`
		} `json:"next_6_hours"`
	} `json:"data"`
}

type metnoDetails struct {
	AirTemperature   *float64 `json:"air_temperature"`
	RelativeHumidity *float64 `json:"relative_humidity"`
	WindSpeed        *float64 `json:"wind_speed"`
}

// statusDocument is the minimal shape of the provider status endpoint.
// met.no reports last_update; test doubles often report status.
type statusDocument struct {
	Status     *string `json:"status"`
	LastUpdate *string `json:"last_update"`
}

// ValidatePayload checks that a raw upstream payload is one of the two
// document kinds the service fetches: a locationforecast response with a
// usable timeseries, or a provider status document. It is installed as
// the client's response validator, so a structurally broken payload is
// rejected as a validation failure and never cached.
func ValidatePayload(payload []byte) error {
	var probe metnoResponse
	if err := json.Unmarshal(payload, &probe); err != nil {
		return fmt.Errorf("payload is not a JSON document: %w", err)
	}
	if len(probe.Properties.Timeseries) > 0 {
		// Forecast document: require a temperature reading near the head
		// of the series.
		limit := len(probe.Properties.Timeseries)
		if limit > 5 {
			limit = 5
		}
		for _, entry := range probe.Properties.Timeseries[:limit] {
			if entry.Data.Instant.Details.AirTemperature != nil {
				return nil
			}
		}
		return fmt.Errorf("forecast payload has no air_temperature in leading timeseries entries")
	}

	var status statusDocument
	if err := json.Unmarshal(payload, &status); err == nil && (status.Status != nil || status.LastUpdate != nil) {
		return nil
	}
	return fmt.Errorf("payload is neither a forecast nor a status document")
}

// ParseForecast transforms a raw met.no payload into tomorrow's forecast
// for the given city. It prefers the entry closest to noon UTC tomorrow
// (10:00-14:00 window) for the most representative daytime reading and
// falls back to the first entry dated tomorrow.
func ParseForecast(payload []byte, city City, now time.Time) (*Forecast, error) {
	var resp metnoResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decoding forecast for %s: %w", city.ID, err)
	}
	if len(resp.Properties.Timeseries) == 0 {
		return nil, fmt.Errorf("no timeseries data for %s", city.ID)
	}

	tomorrow := now.UTC().AddDate(0, 0, 1)
	entry := selectTomorrowEntry(resp.Properties.Timeseries, tomorrow)
	if entry == nil {
		return nil, fmt.Errorf("no forecast available for %s on %s", city.ID, tomorrow.Format(time.DateOnly))
	}

	details := entry.Data.Instant.Details
	if details.AirTemperature == nil {
		return nil, fmt.Errorf("forecast entry for %s has no temperature", city.ID)
	}

	condition := MapSymbol(entry.Data.Next6Hours.Summary.SymbolCode)
	forecast := &Forecast{
		CityID:   city.ID,
		CityName: city.Name,
		Country:  city.Country,
		Date:     tomorrow.Format(time.DateOnly),
		Temperature: Temperature{
			Value: *details.AirTemperature,
			Unit:  "celsius",
		},
		Condition:   condition,
		Description: Describe(condition),
		Icon:        Icon(condition),
		UpdatedAt:   now.UTC(),
	}
	if details.RelativeHumidity != nil {
		humidity := int(*details.RelativeHumidity)
		forecast.Humidity = &humidity
	}
	if details.WindSpeed != nil {
		windSpeed := *details.WindSpeed
		forecast.WindSpeed = &windSpeed
	}

	if err := forecast.Validate(); err != nil {
		return nil, fmt.Errorf("forecast for %s failed validation: %w", city.ID, err)
	}
	return forecast, nil
}

// selectTomorrowEntry picks the timeseries entry used for tomorrow's
// forecast: the first entry in the 10:00-14:00 UTC window, else the first
// entry dated tomorrow.
func selectTomorrowEntry(series []metnoEntry, tomorrow time.Time) *metnoEntry {
	y, m, d := tomorrow.Date()
	var fallback *metnoEntry
	for i := range series {
		t := series[i].Time.UTC()
		ey, em, ed := t.Date()
		if ey != y || em != m || ed != d {
			continue
		}
		if t.Hour() >= 10 && t.Hour() <= 14 {
			return &series[i]
		}
		if fallback == nil {
			fallback = &series[i]
		}
	}
	return fallback
}
