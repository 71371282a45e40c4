package internal

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// keyCacheTTL bounds how stale a credential may get. The side channel is
// rate-limit exempt, but re-reading it on literally every call is wasteful.
const keyCacheTTL = 60 * time.Second

// KeyProvider resolves the rotating Riot API credential from a remote text
// blob (a raw Gist URL). The credential is short-lived and replaced out of
// band, so it is fetched per call with a short TTL rather than configured
// once at startup.
type KeyProvider struct {
	url    string
	client *http.Client
	logger *Logger

	mu        sync.Mutex
	key       string
	fetchedAt time.Time
}

func NewKeyProvider(cfg *Config, logger *Logger) *KeyProvider {
	return &KeyProvider{
		url: cfg.RiotGistURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Current returns the credential, refreshing from the side channel when the
// cached value is older than the TTL. A fetch failure is a transient error;
// callers must not crash on it. The credential itself is never logged.
func (kp *KeyProvider) Current(ctx context.Context) (string, error) {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	if kp.key != "" && time.Since(kp.fetchedAt) < keyCacheTTL {
		return kp.key, nil
	}

	if kp.url == "" {
		return "", transientf("fetch api key", "no credential source configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, kp.url, nil)
	if err != nil {
		return "", transientf("fetch api key", "build request: %v", err)
	}

	resp, err := kp.client.Do(req)
	if err != nil {
		kp.logger.Error("api_key_fetch_failed").
			Component("credentials").
			Operation("fetch").
			Err(err).
			Log()
		return "", &TransientError{Op: "fetch api key", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		kp.logger.Error("api_key_fetch_bad_status").
			Component("credentials").
			Operation("fetch").
			Meta("status", resp.StatusCode).
			Log()
		return "", transientf("fetch api key", "unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transientf("fetch api key", "read body: %v", err)
	}

	key := strings.TrimSpace(string(body))
	if key == "" {
		return "", transientf("fetch api key", "credential source returned empty body")
	}

	kp.key = key
	kp.fetchedAt = time.Now()
	return key, nil
}
