package weather

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all weather service configuration.
type Config struct {
	Server   ServerConfig
	Provider ProviderConfig
	Cache    CacheConfig
	Logging  LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// ProviderConfig holds met.no provider configuration.
type ProviderConfig struct {
	// BaseURL is the met.no API root, overridable for tests and proxies.
	BaseURL string `envconfig:"WEATHER_BASE_URL" default:"https://api.met.no"`
	// CompanyWebsite goes into the User-Agent per the met.no terms.
	CompanyWebsite string `envconfig:"COMPANY_WEBSITE" default:"example.com"`
	// CitiesJSON is an optional JSON city list replacing the default
	// four European cities.
	CitiesJSON string `envconfig:"CITIES_CONFIG"`
}

// CacheConfig holds forecast cache configuration.
type CacheConfig struct {
	TTL time.Duration `envconfig:"CACHE_TTL" default:"1h"`
	// RedisAddr switches the cache from in-memory to Redis when set.
	RedisAddr      string `envconfig:"REDIS_ADDR"`
	RedisKeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"weather:"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Provider: ProviderConfig{
			BaseURL:        DefaultBaseURL,
			CompanyWebsite: DefaultCompanyWebsite,
		},
		Cache: CacheConfig{
			TTL:            time.Hour,
			RedisKeyPrefix: "weather:",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Cities resolves the configured city list: CitiesJSON when set, the
// default four European cities otherwise. A malformed CitiesJSON returns
// an error so the caller can log it and fall back to DefaultCities.
func (c *Config) Cities() ([]City, error) {
	if c.Provider.CitiesJSON == "" {
		return DefaultCities(), nil
	}
	return ParseCities(c.Provider.CitiesJSON)
}

// DefaultCities returns the built-in city list.
func DefaultCities() []City {
	return []City{
		{ID: "oslo", Name: "Oslo", Country: "Norway", Latitude: 59.9139, Longitude: 10.7522},
		{ID: "paris", Name: "Paris", Country: "France", Latitude: 48.8566, Longitude: 2.3522},
		{ID: "london", Name: "London", Country: "United Kingdom", Latitude: 51.5074, Longitude: -0.1278},
		{ID: "barcelona", Name: "Barcelona", Country: "Spain", Latitude: 41.3851, Longitude: 2.1734},
	}
}

// cityConfigJSON is the external city list format, with coordinates as a
// nested object.
type cityConfigJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Country     string `json:"country"`
	Coordinates struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"coordinates"`
}

// ParseCities parses a JSON city list in the CITIES_CONFIG format.
func ParseCities(raw string) ([]City, error) {
	var entries []cityConfigJSON
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("parsing cities config: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("cities config is empty")
	}
	cities := make([]City, 0, len(entries))
	for _, e := range entries {
		city := City{
			ID:        e.ID,
			Name:      e.Name,
			Country:   e.Country,
			Latitude:  e.Coordinates.Latitude,
			Longitude: e.Coordinates.Longitude,
		}
		if err := city.Validate(); err != nil {
			return nil, err
		}
		cities = append(cities, city)
	}
	return cities, nil
}
