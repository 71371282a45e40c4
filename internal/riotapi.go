package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Platform regions grouped by their account-v1 routing host.
var riotRouting = map[string][]string{
	"americas": {"br1", "la1", "la2", "na1"},
	"asia":     {"jp1", "kr", "oc1", "sg2", "tw2", "vn2"},
	"europe":   {"eun1", "euw1", "tr1", "ru", "me1"},
	"esports":  {"esports"},
}

// Common shorthand and typos users type instead of the platform ids.
var regionCorrections = map[string]string{
	"euw":  "euw1",
	"eune": "eun1",
	"na":   "na1",
	"jp":   "jp1",
	"oce":  "oc1",
	"br":   "br1",
	"las":  "la2",
	"lan":  "la1",
	"tr":   "tr1",
	"me":   "me1",
	"eu1":  "euw1",
}

// NormalizeRegion lowercases, corrects common aliases and validates the
// region against the known platform set. ok is false for anything that
// cannot be routed; no API call should be made for such a region.
func NormalizeRegion(region string) (string, bool) {
	r := strings.ToLower(strings.TrimSpace(region))
	if corrected, found := regionCorrections[r]; found {
		r = corrected
	}
	for _, platforms := range riotRouting {
		for _, p := range platforms {
			if p == r {
				return r, true
			}
		}
	}
	return "", false
}

// routingValue maps a platform region to its continental routing group.
func routingValue(region string) (string, bool) {
	for route, platforms := range riotRouting {
		for _, p := range platforms {
			if p == region {
				return route, true
			}
		}
	}
	return "", false
}

// RiotAPIClient issues calls against the Riot HTTP API. Every call acquires
// a permit from the shared rate limiter before going to the wire and maps
// the response into the ErrNotFound / TransientError taxonomy.
type RiotAPIClient struct {
	limiter *RateLimiter
	keys    credentialSource
	cache   *CacheManager
	metrics *MetricsCollector
	logger  *Logger
	client  *http.Client

	// Base URL overrides for tests; empty means derive from region.
	accountBaseURL string
	leagueBaseURL  string
}

type credentialSource interface {
	Current(ctx context.Context) (string, error)
}

func NewRiotAPIClient(limiter *RateLimiter, keys *KeyProvider, cache *CacheManager, metrics *MetricsCollector, logger *Logger) *RiotAPIClient {
	return &RiotAPIClient{
		limiter: limiter,
		keys:    keys,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *RiotAPIClient) accountHost(region string) (string, bool) {
	if c.accountBaseURL != "" {
		return c.accountBaseURL, true
	}
	route, ok := routingValue(region)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("https://%s.api.riotgames.com", route), true
}

func (c *RiotAPIClient) leagueHost(region string) string {
	if c.leagueBaseURL != "" {
		return c.leagueBaseURL
	}
	return fmt.Sprintf("https://%s.api.riotgames.com", region)
}

func (c *RiotAPIClient) doRequest(ctx context.Context, endpoint, requestURL string) ([]byte, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, &TransientError{Op: endpoint, Err: err}
	}

	apiKey, err := c.keys.Current(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, transientf(endpoint, "build request: %v", err)
	}
	req.Header.Set("X-Riot-Token", apiKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("riot_api_request_failed").
			Component("riot_api").
			Operation(endpoint).
			Err(err).
			Log()
		return nil, &TransientError{Op: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordRequest(endpoint, time.Since(start), resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, transientf(endpoint, "read body: %v", err)
		}
		return body, nil

	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound

	case resp.StatusCode == http.StatusTooManyRequests:
		// The proactive limiter makes this rare, not impossible; other
		// processes or a window-boundary race can still trip the server.
		c.logger.Warn("riot_api_rate_limited").
			Component("riot_api").
			Operation(endpoint).
			Log()
		return nil, transientf(endpoint, "upstream rate limit (429)")

	default:
		c.logger.Error("riot_api_bad_status").
			Component("riot_api").
			Operation(endpoint).
			Meta("status", resp.StatusCode).
			Log()
		return nil, transientf(endpoint, "unexpected status %d", resp.StatusCode)
	}
}

// GetAccountByRiotID resolves a (gameName, tagLine, region) triple into the
// canonical account identity. An unroutable region is reported as ErrNotFound
// without touching the network.
func (c *RiotAPIClient) GetAccountByRiotID(ctx context.Context, gameName, tagLine, region string) (*AccountData, error) {
	platform, ok := NormalizeRegion(region)
	if !ok {
		c.logger.Warn("unroutable_region").
			Component("riot_api").
			Operation("account_by_riot_id").
			Meta("region", region).
			Log()
		return nil, ErrNotFound
	}

	cacheKey := ""
	if c.cache != nil {
		cacheKey = c.cache.Key("account_name", platform, gameName, tagLine)
		var cached AccountData
		if err := c.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	host, ok := c.accountHost(platform)
	if !ok {
		return nil, ErrNotFound
	}

	requestURL := fmt.Sprintf("%s/riot/account/v1/accounts/by-riot-id/%s/%s",
		host, url.PathEscape(gameName), url.PathEscape(tagLine))

	data, err := c.doRequest(ctx, "account_by_riot_id", requestURL)
	if err != nil {
		return nil, err
	}

	var result AccountData
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, transientf("account_by_riot_id", "decode payload: %v", err)
	}
	if result.PUUID == "" {
		return nil, transientf("account_by_riot_id", "payload missing puuid")
	}

	if c.cache != nil {
		c.cache.Set(ctx, cacheKey, result, 6*time.Hour)
	}
	return &result, nil
}

// GetLeagueEntriesByPUUID fetches current league entries for an account on
// its platform host. Responses are never cached: each fetch backs exactly
// one new snapshot row.
func (c *RiotAPIClient) GetLeagueEntriesByPUUID(ctx context.Context, puuid, region string) ([]LeagueEntry, error) {
	platform, ok := NormalizeRegion(region)
	if !ok {
		return nil, ErrNotFound
	}

	requestURL := fmt.Sprintf("%s/tft/league/v1/by-puuid/%s",
		c.leagueHost(platform), url.PathEscape(puuid))

	data, err := c.doRequest(ctx, "league_by_puuid", requestURL)
	if err != nil {
		return nil, err
	}

	var entries []LeagueEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, transientf("league_by_puuid", "decode payload: %v", err)
	}
	return entries, nil
}
