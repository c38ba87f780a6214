package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go-idv-capture/models"
)

// DefaultCountryCacheTTL bounds how long the reference country list is
// reused before it is fetched again.
const DefaultCountryCacheTTL = time.Hour

// CountryCache fetches the reference country list from the identity
// service and caches it with a TTL. The cache is an explicit object
// owned by whoever performs the lookup, with its own invalidation.
type CountryCache struct {
	baseURL    string
	httpClient *http.Client
	ttl        time.Duration
	now        func() time.Time

	mu        sync.Mutex
	countries []models.Country
	fetchedAt time.Time
}

func NewCountryCache(baseURL string, ttl time.Duration) *CountryCache {
	if ttl <= 0 {
		ttl = DefaultCountryCacheTTL
	}
	return &CountryCache{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		ttl: ttl,
		now: time.Now,
	}
}

// Countries returns the cached country list, refreshing it when the
// TTL has lapsed.
func (c *CountryCache) Countries(ctx context.Context) ([]models.Country, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.countries != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.countries, nil
	}

	countries, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	c.countries = countries
	c.fetchedAt = c.now()
	slog.Debug("Country list refreshed", "count", len(countries))
	return countries, nil
}

// Invalidate drops the cached list so the next lookup refetches.
func (c *CountryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.countries = nil
	c.fetchedAt = time.Time{}
}

func (c *CountryCache) fetch(ctx context.Context) ([]models.Country, error) {
	url := fmt.Sprintf("%s/v1/system/country", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create country request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute country request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("country lookup failed with status %d: %s", resp.StatusCode, string(body))
	}

	var countries []models.Country
	if err := json.NewDecoder(resp.Body).Decode(&countries); err != nil {
		return nil, fmt.Errorf("failed to decode country response: %w", err)
	}

	return countries, nil
}
