package internal

import (
	"sort"
	"sync"
	"time"
)

type MetricsCollector struct {
	logger *Logger

	requestCount    map[string]int64
	requestDuration map[string][]int64
	apiErrors       map[string]int64
	cacheHits       int64
	cacheMisses     int64
	limiterWaits    []int64
	syncOutcomes    map[string]int64

	mu sync.RWMutex
}

// Sync outcome labels recorded by the sync service and runner.
const (
	SyncOutcomeOK       = "ok"
	SyncOutcomeUnranked = "unranked"
	SyncOutcomeFailed   = "failed"
)

func NewMetricsCollector(logger *Logger) *MetricsCollector {
	mc := &MetricsCollector{
		logger:          logger,
		requestCount:    make(map[string]int64),
		requestDuration: make(map[string][]int64),
		apiErrors:       make(map[string]int64),
		syncOutcomes:    make(map[string]int64),
	}

	go mc.startMetricsReporter()
	return mc
}

func (mc *MetricsCollector) RecordRequest(endpoint string, duration time.Duration, statusCode int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.requestCount[endpoint]++
	mc.requestDuration[endpoint] = append(mc.requestDuration[endpoint], duration.Milliseconds())

	if statusCode >= 400 {
		mc.apiErrors[endpoint]++
	}
}

func (mc *MetricsCollector) RecordCacheHit(key string) {
	mc.mu.Lock()
	mc.cacheHits++
	mc.mu.Unlock()

	mc.logger.Debug("cache_hit").
		Component("metrics").
		Operation("record_cache").
		Cache(true, key).
		Log()
}

func (mc *MetricsCollector) RecordCacheMiss(key string) {
	mc.mu.Lock()
	mc.cacheMisses++
	mc.mu.Unlock()

	mc.logger.Debug("cache_miss").
		Component("metrics").
		Operation("record_cache").
		Cache(false, key).
		Log()
}

func (mc *MetricsCollector) RecordLimiterWait(wait time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.limiterWaits = append(mc.limiterWaits, wait.Milliseconds())
}

func (mc *MetricsCollector) RecordSyncOutcome(outcome string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.syncOutcomes[outcome]++
}

// MetricsSnapshot is the JSON shape served by the /metrics handler.
type MetricsSnapshot struct {
	RequestCount     map[string]int64 `json:"request_count"`
	APIErrors        map[string]int64 `json:"api_errors"`
	CacheHits        int64            `json:"cache_hits"`
	CacheMisses      int64            `json:"cache_misses"`
	CacheHitRate     float64          `json:"cache_hit_rate_percent"`
	SyncOutcomes     map[string]int64 `json:"sync_outcomes"`
	AvgLimiterWaitMs float64          `json:"avg_limiter_wait_ms"`
	P95LimiterWaitMs int64            `json:"p95_limiter_wait_ms"`
}

func (mc *MetricsCollector) Snapshot() MetricsSnapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	snap := MetricsSnapshot{
		RequestCount: make(map[string]int64, len(mc.requestCount)),
		APIErrors:    make(map[string]int64, len(mc.apiErrors)),
		SyncOutcomes: make(map[string]int64, len(mc.syncOutcomes)),
		CacheHits:    mc.cacheHits,
		CacheMisses:  mc.cacheMisses,
		CacheHitRate: mc.calculateCacheHitRate(),
	}
	for k, v := range mc.requestCount {
		snap.RequestCount[k] = v
	}
	for k, v := range mc.apiErrors {
		snap.APIErrors[k] = v
	}
	for k, v := range mc.syncOutcomes {
		snap.SyncOutcomes[k] = v
	}
	snap.AvgLimiterWaitMs = calculateAverage(mc.limiterWaits)
	snap.P95LimiterWaitMs = calculatePercentile(mc.limiterWaits, 0.95)
	return snap
}

func (mc *MetricsCollector) startMetricsReporter() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		mc.reportMetrics()
	}
}

func (mc *MetricsCollector) reportMetrics() {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	totalRequests := sumMapValues(mc.requestCount)
	totalErrors := sumMapValues(mc.apiErrors)

	mc.logger.Info("metrics_report").
		Component("metrics").
		Operation("report").
		Meta("total_requests", totalRequests).
		Meta("total_errors", totalErrors).
		Meta("cache_hits", mc.cacheHits).
		Meta("cache_misses", mc.cacheMisses).
		Meta("cache_hit_rate_percent", mc.calculateCacheHitRate()).
		Meta("sync_outcomes", mc.syncOutcomes).
		Meta("avg_limiter_wait_ms", calculateAverage(mc.limiterWaits)).
		Log()
}

func (mc *MetricsCollector) calculateCacheHitRate() float64 {
	total := mc.cacheHits + mc.cacheMisses
	if total == 0 {
		return 0
	}
	return float64(mc.cacheHits) / float64(total) * 100
}

func sumMapValues(m map[string]int64) int64 {
	var total int64
	for _, v := range m {
		total += v
	}
	return total
}

func calculateAverage(values []int64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum int64
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

func calculatePercentile(values []int64, p float64) int64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}
