package weather

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "https://api.met.no", cfg.Provider.BaseURL)
	assert.Equal(t, "example.com", cfg.Provider.CompanyWebsite)
	assert.Empty(t, cfg.Provider.CitiesJSON)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Empty(t, cfg.Cache.RedisAddr)
	assert.Equal(t, "weather:", cfg.Cache.RedisKeyPrefix)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("WEATHER_BASE_URL", "http://localhost:8081")
	t.Setenv("COMPANY_WEBSITE", "acme.example")
	t.Setenv("CACHE_TTL", "30m")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_DEV", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
	assert.Equal(t, "http://localhost:8081", cfg.Provider.BaseURL)
	assert.Equal(t, "acme.example", cfg.Provider.CompanyWebsite)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	t.Setenv("CACHE_TTL", "not a duration")

	_, err := Load()
	require.Error(t, err)

	cfg := LoadOrDefault()
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
}

func TestDefaultCities(t *testing.T) {
	cities := DefaultCities()
	require.Len(t, cities, 4)

	ids := make([]string, 0, len(cities))
	for _, city := range cities {
		ids = append(ids, city.ID)
		assert.NoError(t, city.Validate())
	}
	assert.Equal(t, []string{"oslo", "paris", "london", "barcelona"}, ids)

	oslo := cities[0]
	assert.Equal(t, "Oslo", oslo.Name)
	assert.Equal(t, "Norway", oslo.Country)
	assert.Equal(t, 59.9139, oslo.Latitude)
	assert.Equal(t, 10.7522, oslo.Longitude)
}

func TestParseCities(t *testing.T) {
	raw := `[
		{"id":"berlin","name":"Berlin","country":"Germany","coordinates":{"latitude":52.52,"longitude":13.405}},
		{"id":"madrid","name":"Madrid","country":"Spain","coordinates":{"latitude":40.4168,"longitude":-3.7038}}
	]`

	cities, err := ParseCities(raw)
	require.NoError(t, err)
	require.Len(t, cities, 2)

	assert.Equal(t, "berlin", cities[0].ID)
	assert.Equal(t, 52.52, cities[0].Latitude)
	assert.Equal(t, 13.405, cities[0].Longitude)
	assert.Equal(t, "madrid", cities[1].ID)
	assert.Equal(t, -3.7038, cities[1].Longitude)
}

func TestParseCitiesErrors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"malformed JSON", `[{`, "parsing cities config"},
		{"empty list", `[]`, "cities config is empty"},
		{"invalid latitude", `[{"id":"x","name":"X","country":"Y","coordinates":{"latitude":200,"longitude":0}}]`, "latitude must be between"},
		{"missing name", `[{"id":"x","country":"Y","coordinates":{"latitude":1,"longitude":1}}]`, "name cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCities(tt.raw)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigCities(t *testing.T) {
	t.Run("defaults when unset", func(t *testing.T) {
		cfg := Default()
		cities, err := cfg.Cities()
		require.NoError(t, err)
		assert.Len(t, cities, 4)
	})

	t.Run("parses configured list", func(t *testing.T) {
		cfg := Default()
		cfg.Provider.CitiesJSON = `[{"id":"berlin","name":"Berlin","country":"Germany","coordinates":{"latitude":52.52,"longitude":13.405}}]`
		cities, err := cfg.Cities()
		require.NoError(t, err)
		require.Len(t, cities, 1)
		assert.Equal(t, "berlin", cities[0].ID)
	})

	t.Run("propagates parse errors", func(t *testing.T) {
		cfg := Default()
		cfg.Provider.CitiesJSON = `nonsense`
		_, err := cfg.Cities()
		assert.Error(t, err)
	})
}
