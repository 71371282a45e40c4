package internal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type staticKeys struct {
	key string
	err error
}

func (s *staticKeys) Current(ctx context.Context) (string, error) {
	return s.key, s.err
}

func newTestRiotClient(baseURL string) *RiotAPIClient {
	return &RiotAPIClient{
		limiter:        NewRateLimiter([]RateLimit{{Requests: 1000, Window: time.Second}}, newTestLogger(), nil),
		keys:           &staticKeys{key: "test-key"},
		logger:         newTestLogger(),
		client:         &http.Client{Timeout: 5 * time.Second},
		accountBaseURL: baseURL,
		leagueBaseURL:  baseURL,
	}
}

func TestNormalizeRegion(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		ok       bool
	}{
		{"euw1", "euw1", true},
		{"EUW1", "euw1", true},
		{" na1 ", "na1", true},
		{"euw", "euw1", true},
		{"eune", "eun1", true},
		{"oce", "oc1", true},
		{"lan", "la1", true},
		{"las", "la2", true},
		{"kr", "kr", true},
		{"narnia", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := NormalizeRegion(tt.input)
		if got != tt.expected || ok != tt.ok {
			t.Errorf("NormalizeRegion(%q): expected (%q, %v), got (%q, %v)",
				tt.input, tt.expected, tt.ok, got, ok)
		}
	}
}

func TestRoutingValue(t *testing.T) {
	tests := []struct {
		region   string
		expected string
	}{
		{"br1", "americas"},
		{"na1", "americas"},
		{"euw1", "europe"},
		{"eun1", "europe"},
		{"kr", "asia"},
		{"jp1", "asia"},
	}

	for _, tt := range tests {
		got, ok := routingValue(tt.region)
		if !ok {
			t.Errorf("routingValue(%s): expected ok", tt.region)
			continue
		}
		if got != tt.expected {
			t.Errorf("routingValue(%s): expected %s, got %s", tt.region, tt.expected, got)
		}
	}
}

func TestGetAccountByRiotID_Success(t *testing.T) {
	var gotPath, gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Riot-Token")
		json.NewEncoder(w).Encode(AccountData{
			PUUID:    "puuid-123",
			GameName: "Player",
			TagLine:  "EUW",
		})
	}))
	defer server.Close()

	client := newTestRiotClient(server.URL)
	account, err := client.GetAccountByRiotID(context.Background(), "Player", "EUW", "euw1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if account.PUUID != "puuid-123" {
		t.Errorf("expected puuid-123, got %s", account.PUUID)
	}
	if gotPath != "/riot/account/v1/accounts/by-riot-id/Player/EUW" {
		t.Errorf("unexpected request path: %s", gotPath)
	}
	if gotToken != "test-key" {
		t.Errorf("expected credential header, got %q", gotToken)
	}
}

func TestGetAccountByRiotID_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestRiotClient(server.URL)
	_, err := client.GetAccountByRiotID(context.Background(), "Nobody", "XXX", "euw1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetAccountByRiotID_UnroutableRegionSkipsNetwork(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := newTestRiotClient(server.URL)
	_, err := client.GetAccountByRiotID(context.Background(), "Player", "EUW", "narnia")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unroutable region, got %v", err)
	}
	if called {
		t.Error("expected no network call for an unroutable region")
	}
}

func TestGetAccountByRiotID_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestRiotClient(server.URL)
	_, err := client.GetAccountByRiotID(context.Background(), "Player", "EUW", "euw1")
	if !IsTransient(err) {
		t.Errorf("expected a transient error for a 500, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("a 500 must not be conflated with not-found")
	}
}

func TestGetAccountByRiotID_RateLimitedIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestRiotClient(server.URL)
	_, err := client.GetAccountByRiotID(context.Background(), "Player", "EUW", "euw1")
	if !IsTransient(err) {
		t.Errorf("expected a transient error for a 429, got %v", err)
	}
}

func TestGetAccountByRiotID_MissingPUUIDRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(AccountData{GameName: "Player", TagLine: "EUW"})
	}))
	defer server.Close()

	client := newTestRiotClient(server.URL)
	_, err := client.GetAccountByRiotID(context.Background(), "Player", "EUW", "euw1")
	if !IsTransient(err) {
		t.Errorf("expected a payload without puuid to be rejected, got %v", err)
	}
}

func TestGetAccountByRiotID_CredentialFailurePropagates(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := newTestRiotClient(server.URL)
	client.keys = &staticKeys{err: transientf("fetch api key", "unexpected status 500")}

	_, err := client.GetAccountByRiotID(context.Background(), "Player", "EUW", "euw1")
	if !IsTransient(err) {
		t.Errorf("expected the credential failure to surface as transient, got %v", err)
	}
	if called {
		t.Error("expected no API call when the credential cannot be resolved")
	}
}

func TestGetLeagueEntriesByPUUID_Success(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode([]LeagueEntry{
			{QueueType: "RANKED_TFT", Tier: "DIAMOND", Rank: "II", LeaguePoints: 42, Wins: 100, Losses: 90},
			{QueueType: "RANKED_TFT_TURBO", Tier: "BLUE"},
		})
	}))
	defer server.Close()

	client := newTestRiotClient(server.URL)
	entries, err := client.GetLeagueEntriesByPUUID(context.Background(), "puuid-123", "euw1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gotPath != "/tft/league/v1/by-puuid/puuid-123" {
		t.Errorf("unexpected request path: %s", gotPath)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Tier != "DIAMOND" || entries[0].LeaguePoints != 42 {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
}

func TestGetLeagueEntriesByPUUID_EmptyList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	defer server.Close()

	client := newTestRiotClient(server.URL)
	entries, err := client.GetLeagueEntriesByPUUID(context.Background(), "puuid-123", "euw1")
	if err != nil {
		t.Fatalf("expected no error for an empty list, got %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected 0 entries, got %d", len(entries))
	}
}

func TestKeyProvider_FetchAndCache(t *testing.T) {
	fetches := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		w.Write([]byte("RGAPI-secret\n"))
	}))
	defer server.Close()

	kp := NewKeyProvider(&Config{RiotGistURL: server.URL}, newTestLogger())

	for i := 0; i < 3; i++ {
		key, err := kp.Current(context.Background())
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if key != "RGAPI-secret" {
			t.Errorf("expected trimmed key, got %q", key)
		}
	}

	if fetches != 1 {
		t.Errorf("expected one upstream fetch within the TTL, got %d", fetches)
	}
}

func TestKeyProvider_FailuresAreTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	kp := NewKeyProvider(&Config{RiotGistURL: server.URL}, newTestLogger())
	if _, err := kp.Current(context.Background()); !IsTransient(err) {
		t.Errorf("expected a transient error on a bad status, got %v", err)
	}

	kp = NewKeyProvider(&Config{}, newTestLogger())
	if _, err := kp.Current(context.Background()); !IsTransient(err) {
		t.Errorf("expected a transient error with no source configured, got %v", err)
	}
}

func TestKeyProvider_EmptyBodyRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("   \n"))
	}))
	defer server.Close()

	kp := NewKeyProvider(&Config{RiotGistURL: server.URL}, newTestLogger())
	if _, err := kp.Current(context.Background()); !IsTransient(err) {
		t.Errorf("expected an empty credential to be rejected, got %v", err)
	}
}
