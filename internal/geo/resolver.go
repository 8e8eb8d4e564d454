package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Location is a coarse geographic position for an IP address.
type Location struct {
	City      string  `json:"city"`
	Region    string  `json:"region"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Resolver maps an IP address to a location.
type Resolver interface {
	Resolve(ctx context.Context, ip string) (*Location, error)
}

// HTTPResolver queries an ip-api.com style JSON endpoint and caches results
// in memory. Lookups for the same IP within the cache TTL never hit the
// network, which keeps login latency flat for repeat visitors.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
	cache   *ttlcache.Cache[string, *Location]
	logger  *slog.Logger
}

func NewHTTPResolver(baseURL string, timeout, cacheTTL time.Duration, log *slog.Logger) *HTTPResolver {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *Location](cacheTTL),
		ttlcache.WithDisableTouchOnHit[string, *Location](),
	)
	go cache.Start()

	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		cache:   cache,
		logger:  log,
	}
}

type resolveResponse struct {
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	Country    string  `json:"country"`
	RegionName string  `json:"regionName"`
	City       string  `json:"city"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
}

func (r *HTTPResolver) Resolve(ctx context.Context, ip string) (*Location, error) {
	if item := r.cache.Get(ip); item != nil {
		return item.Value(), nil
	}

	url := fmt.Sprintf("%s/%s", r.baseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build geo request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geo lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geo lookup returned status %d", resp.StatusCode)
	}

	var body resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode geo response: %w", err)
	}

	if body.Status != "success" {
		return nil, fmt.Errorf("geo lookup failed: %s", body.Message)
	}

	loc := &Location{
		City:      body.City,
		Region:    body.RegionName,
		Country:   body.Country,
		Latitude:  body.Lat,
		Longitude: body.Lon,
	}

	r.cache.Set(ip, loc, ttlcache.DefaultTTL)

	return loc, nil
}

// Stop shuts down the cache's expiry loop.
func (r *HTTPResolver) Stop() {
	r.cache.Stop()
}
