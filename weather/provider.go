package weather

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultBaseURL is the met.no API root.
	DefaultBaseURL = "https://api.met.no"

	// DefaultCompanyWebsite is used in the User-Agent when no site is
	// configured. met.no terms require an identifying User-Agent.
	DefaultCompanyWebsite = "example.com"

	// HealthKey is the resource key for the provider status probe.
	HealthKey = "health"

	forecastPath = "/weatherapi/locationforecast/2.0/compact"
	statusPath   = "/weatherapi/locationforecast/2.0/status"

	cityKeyPrefix = "weather:"
)

// CityKey returns the resource key under which a city's forecast is
// cached and circuit-guarded.
func CityKey(cityID string) string {
	return cityKeyPrefix + cityID
}

// Provider maps resource keys to met.no requests for a fixed set of
// cities. Its BuildRequest method is the request builder handed to the
// resilience client.
type Provider struct {
	baseURL        string
	companyWebsite string
	cities         []City
	index          map[string]City
}

// NewProvider builds a provider for the given cities. Empty baseURL and
// companyWebsite fall back to the met.no defaults.
func NewProvider(baseURL, companyWebsite string, cities []City) (*Provider, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if companyWebsite == "" {
		companyWebsite = DefaultCompanyWebsite
	}
	if len(cities) == 0 {
		return nil, fmt.Errorf("at least one city must be configured")
	}

	index := make(map[string]City, len(cities))
	ordered := make([]City, 0, len(cities))
	for _, city := range cities {
		if err := city.Validate(); err != nil {
			return nil, err
		}
		if _, dup := index[city.ID]; dup {
			return nil, fmt.Errorf("duplicate city ID %q", city.ID)
		}
		index[city.ID] = city
		ordered = append(ordered, city)
	}

	return &Provider{
		baseURL:        strings.TrimRight(baseURL, "/"),
		companyWebsite: companyWebsite,
		cities:         ordered,
		index:          index,
	}, nil
}

// UserAgent returns the identifying User-Agent required by the met.no
// terms of service.
func (p *Provider) UserAgent() string {
	return fmt.Sprintf("weather-forecast-app/1.0 (+https://%s)", p.companyWebsite)
}

// Cities returns the configured cities in configuration order.
func (p *Provider) Cities() []City {
	out := make([]City, len(p.cities))
	copy(out, p.cities)
	return out
}

// City looks up a configured city by ID.
func (p *Provider) City(cityID string) (City, bool) {
	city, ok := p.index[cityID]
	return city, ok
}

// BuildRequest maps a resource key to an outgoing met.no request.
// City keys resolve to the compact location forecast for the city's
// coordinates; HealthKey resolves to the product status endpoint.
//
// Accept-Encoding is left unset so net/http keeps its transparent
// gzip handling.
func (p *Provider) BuildRequest(ctx context.Context, key string) (*http.Request, error) {
	var target string
	switch {
	case key == HealthKey:
		target = p.baseURL + statusPath
	case strings.HasPrefix(key, cityKeyPrefix):
		city, ok := p.index[strings.TrimPrefix(key, cityKeyPrefix)]
		if !ok {
			return nil, fmt.Errorf("unknown city key %q", key)
		}
		params := url.Values{}
		params.Set("lat", strconv.FormatFloat(city.Latitude, 'f', 4, 64))
		params.Set("lon", strconv.FormatFloat(city.Longitude, 'f', 4, 64))
		target = p.baseURL + forecastPath + "?" + params.Encode()
	default:
		return nil, fmt.Errorf("unknown resource key %q", key)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}
