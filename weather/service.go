package weather

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/haakond/weatherproof"
)

// ErrUnknownCity is returned for city IDs outside the configured set.
var ErrUnknownCity = errors.New("unknown city")

// Service assembles city forecasts on top of the resilience client. Every
// upstream interaction goes through the client, so forecasts inherit its
// caching, retries, circuit breaking and rate limiting per city.
type Service struct {
	client   *weatherproof.Client
	provider *Provider
	logger   *zap.Logger
}

// NewService builds a forecast service. A nil logger disables logging.
func NewService(client *weatherproof.Client, provider *Provider, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client:   client,
		provider: provider,
		logger:   logger,
	}
}

// Client exposes the underlying resilience client for observability
// endpoints (breaker snapshots, limiter state).
func (s *Service) Client() *weatherproof.Client {
	return s.client
}

// Cities returns the configured cities in configuration order.
func (s *Service) Cities() []City {
	return s.provider.Cities()
}

// CityForecast fetches and transforms tomorrow's forecast for one city.
// The returned CityForecast carries the client's stale and degraded flags
// so callers can tell a fresh forecast from a cached fallback.
func (s *Service) CityForecast(ctx context.Context, cityID string) (*CityForecast, error) {
	city, ok := s.provider.City(cityID)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownCity, cityID)
	}

	res, err := s.client.GetData(ctx, CityKey(cityID))
	if err != nil {
		s.logger.Warn("forecast fetch failed",
			zap.String("city", cityID),
			zap.Error(err))
		return nil, err
	}

	// Anchor the forecast date and UpdatedAt on the payload's fetch time
	// so a cached payload transforms identically on every read.
	forecast, err := ParseForecast(res.Payload, city, res.CreatedAt)
	if err != nil {
		s.logger.Warn("forecast transform failed",
			zap.String("city", cityID),
			zap.Bool("stale", res.Stale),
			zap.Error(err))
		return nil, err
	}

	expiresAt := res.ExpiresAt
	return &CityForecast{
		CityID:    cityID,
		Forecast:  forecast,
		Stale:     res.Stale,
		Degraded:  res.Degraded,
		ExpiresAt: &expiresAt,
	}, nil
}

// Summary fetches forecasts for all configured cities concurrently and
// assembles them into one view. Failures are captured per city rather
// than failing the whole summary.
func (s *Service) Summary(ctx context.Context) *Summary {
	cities := s.provider.Cities()
	slots := make([]CityForecast, len(cities))

	var wg sync.WaitGroup
	for i, city := range cities {
		wg.Add(1)
		go func(i int, cityID string) {
			defer wg.Done()
			cf, err := s.CityForecast(ctx, cityID)
			if err != nil {
				slots[i] = CityForecast{CityID: cityID, Error: err.Error()}
				return
			}
			slots[i] = *cf
		}(i, city.ID)
	}
	wg.Wait()

	resolved := 0
	clean := 0
	for i := range slots {
		if slots[i].Forecast == nil {
			continue
		}
		resolved++
		if !slots[i].Stale && !slots[i].Degraded {
			clean++
		}
	}

	status := "degraded"
	switch {
	case resolved == 0:
		status = "error"
	case clean == len(slots):
		status = "success"
	}

	return &Summary{
		Timestamp:   time.Now().UTC(),
		CitiesCount: len(slots),
		Cities:      slots,
		Status:      status,
	}
}

// Health probes the provider status endpoint with caching disabled so
// every probe reflects current upstream reachability. The probe still
// rides the client's retry and breaker policy. A locally throttled probe
// reports the service healthy with upstream unknown rather than down,
// since the limiter rejecting is not an upstream failure.
func (s *Service) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Upstream:  "up",
	}

	_, err := s.client.GetData(weatherproof.WithContextCacheDisabled(ctx), HealthKey)
	switch {
	case err == nil:
	case errors.Is(err, weatherproof.ErrRateLimitExceeded):
		status.Upstream = "throttled"
	default:
		status.Status = "degraded"
		status.Upstream = "down"
		s.logger.Warn("upstream health probe failed", zap.Error(err))
	}
	return status
}

// Reset clears one city's resilience state: its breaker, its rate limiter
// window and its cached forecast. The next request for the city goes to
// the provider unconditionally.
func (s *Service) Reset(ctx context.Context, cityID string) error {
	if _, ok := s.provider.City(cityID); !ok {
		return fmt.Errorf("%w %q", ErrUnknownCity, cityID)
	}
	key := CityKey(cityID)
	s.client.ResetBreaker(key)
	s.client.ResetRateLimit(key)
	s.client.InvalidateCache(ctx, key)
	s.logger.Info("city state reset", zap.String("city", cityID))
	return nil
}
