package internal

import (
	"testing"
	"time"
)

func TestMetrics_RecordRequest(t *testing.T) {
	mc := NewMetricsCollector(newTestLogger())

	mc.RecordRequest("account_by_riot_id", 120*time.Millisecond, 200)
	mc.RecordRequest("account_by_riot_id", 80*time.Millisecond, 200)
	mc.RecordRequest("league_by_puuid", 50*time.Millisecond, 404)

	snap := mc.Snapshot()

	if snap.RequestCount["account_by_riot_id"] != 2 {
		t.Errorf("expected 2 account requests, got %d", snap.RequestCount["account_by_riot_id"])
	}
	if snap.RequestCount["league_by_puuid"] != 1 {
		t.Errorf("expected 1 league request, got %d", snap.RequestCount["league_by_puuid"])
	}
	if snap.APIErrors["league_by_puuid"] != 1 {
		t.Errorf("expected the 404 to count as an error, got %d", snap.APIErrors["league_by_puuid"])
	}
	if snap.APIErrors["account_by_riot_id"] != 0 {
		t.Errorf("expected no errors for 200 responses, got %d", snap.APIErrors["account_by_riot_id"])
	}
}

func TestMetrics_CacheHitRate(t *testing.T) {
	mc := NewMetricsCollector(newTestLogger())

	mc.RecordCacheHit("ladder:account_name:euw1:a:b")
	mc.RecordCacheHit("ladder:account_name:euw1:a:b")
	mc.RecordCacheHit("ladder:leaderboard:guild-1")
	mc.RecordCacheMiss("ladder:leaderboard:guild-2")

	snap := mc.Snapshot()
	if snap.CacheHits != 3 || snap.CacheMisses != 1 {
		t.Errorf("expected 3 hits / 1 miss, got %d / %d", snap.CacheHits, snap.CacheMisses)
	}
	if snap.CacheHitRate != 75.0 {
		t.Errorf("expected 75%% hit rate, got %f", snap.CacheHitRate)
	}
}

func TestMetrics_SyncOutcomes(t *testing.T) {
	mc := NewMetricsCollector(newTestLogger())

	mc.RecordSyncOutcome(SyncOutcomeOK)
	mc.RecordSyncOutcome(SyncOutcomeOK)
	mc.RecordSyncOutcome(SyncOutcomeUnranked)
	mc.RecordSyncOutcome(SyncOutcomeFailed)

	snap := mc.Snapshot()
	if snap.SyncOutcomes[SyncOutcomeOK] != 2 {
		t.Errorf("expected 2 ok outcomes, got %d", snap.SyncOutcomes[SyncOutcomeOK])
	}
	if snap.SyncOutcomes[SyncOutcomeUnranked] != 1 {
		t.Errorf("expected 1 unranked outcome, got %d", snap.SyncOutcomes[SyncOutcomeUnranked])
	}
	if snap.SyncOutcomes[SyncOutcomeFailed] != 1 {
		t.Errorf("expected 1 failed outcome, got %d", snap.SyncOutcomes[SyncOutcomeFailed])
	}
}

func TestMetrics_LimiterWaits(t *testing.T) {
	mc := NewMetricsCollector(newTestLogger())

	for _, ms := range []int{0, 0, 10, 90} {
		mc.RecordLimiterWait(time.Duration(ms) * time.Millisecond)
	}

	snap := mc.Snapshot()
	if snap.AvgLimiterWaitMs != 25.0 {
		t.Errorf("expected average wait 25ms, got %f", snap.AvgLimiterWaitMs)
	}
	if snap.P95LimiterWaitMs != 10 {
		t.Errorf("expected p95 wait 10ms, got %d", snap.P95LimiterWaitMs)
	}
}

func TestCalculatePercentile(t *testing.T) {
	values := []int64{5, 1, 9, 3, 7}
	if got := calculatePercentile(values, 0.5); got != 5 {
		t.Errorf("expected median 5, got %d", got)
	}
	if got := calculatePercentile(values, 1.0); got != 9 {
		t.Errorf("expected max 9, got %d", got)
	}
	if got := calculatePercentile(nil, 0.95); got != 0 {
		t.Errorf("expected 0 for empty input, got %d", got)
	}
}
