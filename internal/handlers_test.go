package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthzHandler(t *testing.T) {
	handler := NewHealthzHandler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("expected body 'ok', got %q", rec.Body.String())
	}
}

func TestMetricsHandler(t *testing.T) {
	mc := NewMetricsCollector(newTestLogger())
	mc.RecordSyncOutcome(SyncOutcomeOK)
	handler := NewMetricsHandler(mc, newTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var snap MetricsSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("metrics response is not valid JSON: %v", err)
	}
	if snap.SyncOutcomes[SyncOutcomeOK] != 1 {
		t.Errorf("expected the recorded outcome in the snapshot, got %+v", snap.SyncOutcomes)
	}
}

func TestLeaderboardHandler_RequiresGuild(t *testing.T) {
	store := newMemStorage()
	handler := NewLeaderboardHandler(store, nil, newTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/leaderboard", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without a guild param, got %d", rec.Code)
	}
}

func TestLeaderboardHandler_ServesRows(t *testing.T) {
	store := newMemStorage()
	ctx := context.Background()

	store.accounts["puuid-1"] = &RiotAccount{RiotAccountID: "acc-1", PUUID: "puuid-1", GameName: "Alice", TagLine: "EUW", Region: "euw1"}
	store.accounts["puuid-2"] = &RiotAccount{RiotAccountID: "acc-2", PUUID: "puuid-2", GameName: "Bob", TagLine: "EUW", Region: "euw1"}
	store.TrackAccountForGuild(ctx, "guild-1", "acc-1")
	store.TrackAccountForGuild(ctx, "guild-1", "acc-2")
	store.AddRankSnapshot(ctx, "acc-1", LeagueEntry{QueueType: "RANKED_TFT", Tier: "GOLD", Rank: "II", LeaguePoints: 54})

	handler := NewLeaderboardHandler(store, nil, newTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/leaderboard?guild=guild-1", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var entries []leaderboardEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	byRiotID := make(map[string]leaderboardEntry)
	for _, e := range entries {
		byRiotID[e.RiotID] = e
	}

	ranked, ok := byRiotID["Alice#EUW"]
	if !ok {
		t.Fatal("expected Alice#EUW in the leaderboard")
	}
	if ranked.Tier != "GOLD" || ranked.LeaguePoints == nil || *ranked.LeaguePoints != 54 {
		t.Errorf("unexpected ranked entry: %+v", ranked)
	}

	unranked, ok := byRiotID["Bob#EUW"]
	if !ok {
		t.Fatal("expected Bob#EUW in the leaderboard")
	}
	if unranked.Tier != "" || unranked.LeaguePoints != nil {
		t.Errorf("expected the unranked entry to carry no rank fields: %+v", unranked)
	}
}

func TestLeaderboardHandler_ReadsThroughCache(t *testing.T) {
	store := newMemStorage()
	ctx := context.Background()
	store.accounts["puuid-1"] = &RiotAccount{RiotAccountID: "acc-1", PUUID: "puuid-1", GameName: "Alice", TagLine: "EUW", Region: "euw1"}
	store.TrackAccountForGuild(ctx, "guild-1", "acc-1")

	cache, backend := newTestCache(true)
	handler := NewLeaderboardHandler(store, cache, newTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/leaderboard?guild=guild-1", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if _, ok := backend.data["ladder:leaderboard:guild-1"]; !ok {
		t.Fatal("expected the response to be cached")
	}

	// Mutate the store; the cached answer should still be served.
	store.TrackAccountForGuild(ctx, "guild-1", "acc-2")
	store.accounts["puuid-2"] = &RiotAccount{RiotAccountID: "acc-2", PUUID: "puuid-2", GameName: "Bob", TagLine: "EUW", Region: "euw1"}

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/leaderboard?guild=guild-1", nil))

	var entries []leaderboardEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected the cached single-entry answer, got %d entries", len(entries))
	}
}

func TestLoggingMiddleware_CapturesStatusAndRequestID(t *testing.T) {
	mc := NewMetricsCollector(newTestLogger())
	middleware := NewLoggingMiddleware(newTestLogger(), mc)

	var seenRequestID string
	handler := middleware.Handler(func(w http.ResponseWriter, r *http.Request) {
		seenRequestID = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/leaderboard", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("expected the wrapped status to pass through, got %d", rec.Code)
	}
	if seenRequestID == "" {
		t.Error("expected a request id in the handler context")
	}

	snap := mc.Snapshot()
	if snap.RequestCount["/leaderboard"] != 1 {
		t.Errorf("expected the request to be counted, got %+v", snap.RequestCount)
	}
	if snap.APIErrors["/leaderboard"] != 1 {
		t.Errorf("expected the 4xx to count as an error, got %+v", snap.APIErrors)
	}
}

func TestGetRequestID_MissingIsEmpty(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("expected empty request id outside the middleware, got %q", id)
	}
}

func TestToLeaderboardEntries_Empty(t *testing.T) {
	entries := toLeaderboardEntries(nil)
	if entries == nil {
		t.Fatal("expected an empty slice, not nil, so the JSON stays an array")
	}
	if len(entries) != 0 {
		t.Errorf("expected 0 entries, got %d", len(entries))
	}
}

func TestLeaderboardEntry_OmitsUnsetRankFields(t *testing.T) {
	now := time.Now().UTC()
	rows := []LeaderboardRow{
		{Account: RiotAccount{GameName: "Alice", TagLine: "EUW", Region: "euw1"},
			Snapshot: &RankSnapshot{Tier: "GOLD", Division: "II", LeaguePoints: 54, RetrievedAt: now}},
		{Account: RiotAccount{GameName: "Bob", TagLine: "EUW", Region: "euw1"}},
	}

	data, err := json.Marshal(toLeaderboardEntries(rows))
	if err != nil {
		t.Fatal(err)
	}

	var decoded []map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}

	if _, ok := decoded[0]["leaguePoints"]; !ok {
		t.Error("expected leaguePoints for the ranked entry")
	}
	if _, ok := decoded[1]["leaguePoints"]; ok {
		t.Error("expected leaguePoints omitted for the unranked entry")
	}
}
