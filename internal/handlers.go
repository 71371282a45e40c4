package internal

import (
	"encoding/json"
	"net/http"
	"time"
)

const leaderboardCacheTTL = 60 * time.Second

type APIError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e APIError) Error() string {
	return e.Message
}

func writeError(w http.ResponseWriter, r *http.Request, err error, logger *Logger) {
	apiErr, ok := err.(APIError)
	if !ok {
		apiErr = APIError{Message: "Internal server error", Status: http.StatusInternalServerError}
	}

	requestID := GetRequestID(r.Context())

	logger.Error("api_error").
		Component("http").
		Operation("write_error").
		HTTP(r.Method, r.URL.Path, apiErr.Status).
		RequestID(requestID).
		Err(err).
		Log()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":     apiErr.Message,
		"status":    apiErr.Status,
		"requestId": requestID,
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, data interface{}, logger *Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("json_encode_failed").
			Component("http").
			Operation("write_json").
			RequestID(GetRequestID(r.Context())).
			Err(err).
			Log()
	}
}

func NewHealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func NewMetricsHandler(metrics *MetricsCollector, logger *Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, metrics.Snapshot(), logger)
	}
}

// leaderboardEntry is the wire shape of one leaderboard row.
type leaderboardEntry struct {
	RiotID       string     `json:"riotId"`
	Region       string     `json:"region"`
	Tier         string     `json:"tier,omitempty"`
	Division     string     `json:"division,omitempty"`
	LeaguePoints *int       `json:"leaguePoints,omitempty"`
	Wins         *int       `json:"wins,omitempty"`
	Losses       *int       `json:"losses,omitempty"`
	RetrievedAt  *time.Time `json:"retrievedAt,omitempty"`
}

func toLeaderboardEntries(rows []LeaderboardRow) []leaderboardEntry {
	entries := make([]leaderboardEntry, 0, len(rows))
	for _, row := range rows {
		e := leaderboardEntry{
			RiotID: row.Account.RiotID(),
			Region: row.Account.Region,
		}
		if row.Snapshot != nil {
			snap := *row.Snapshot
			e.Tier = snap.Tier
			e.Division = snap.Division
			e.LeaguePoints = &snap.LeaguePoints
			e.Wins = &snap.Wins
			e.Losses = &snap.Losses
			e.RetrievedAt = &snap.RetrievedAt
		}
		entries = append(entries, e)
	}
	return entries
}

// NewLeaderboardHandler serves the per-guild ladder, reading through the
// cache with a short TTL so a busy guild does not hammer the database.
func NewLeaderboardHandler(store Storage, cache *CacheManager, logger *Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guildID := r.URL.Query().Get("guild")
		if guildID == "" {
			writeError(w, r, APIError{Message: "guild is required", Status: http.StatusBadRequest}, logger)
			return
		}

		ctx := r.Context()
		cacheKey := ""
		if cache != nil {
			cacheKey = cache.LeaderboardKey(guildID)
			var cached []leaderboardEntry
			if err := cache.Get(ctx, cacheKey, &cached); err == nil {
				writeJSON(w, r, cached, logger)
				return
			}
		}

		rows, err := store.GuildLeaderboard(ctx, guildID)
		if err != nil {
			writeError(w, r, APIError{Message: "leaderboard query failed", Status: http.StatusInternalServerError}, logger)
			return
		}

		entries := toLeaderboardEntries(rows)
		if cache != nil {
			cache.Set(ctx, cacheKey, entries, leaderboardCacheTTL)
		}
		writeJSON(w, r, entries, logger)
	}
}
