package internal

import (
	"fmt"
	"time"
)

// AccountData is the payload of the Riot account-v1 endpoint.
type AccountData struct {
	PUUID    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

// LeagueEntry is one queue entry of the TFT league-v1 by-puuid endpoint.
type LeagueEntry struct {
	PUUID        string `json:"puuid"`
	QueueType    string `json:"queueType"`
	Tier         string `json:"tier"`
	Rank         string `json:"rank"`
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	HotStreak    bool   `json:"hotStreak"`
}

// RiotAccount is the durable record of an external account. PUUID is the
// stable key; game name and tag line change over time and must never be
// used to identify a row.
type RiotAccount struct {
	RiotAccountID string
	PUUID         string
	GameName      string
	TagLine       string
	Region        string
	CreatedAt     time.Time
	LastAPIUpdate time.Time
}

func (a *RiotAccount) RiotID() string {
	return fmt.Sprintf("%s#%s", a.GameName, a.TagLine)
}

// NameChange is one append-only rename record, written immediately before
// the owning RiotAccount row is updated in place.
type NameChange struct {
	HistoryID     string
	RiotAccountID string
	PUUID         string
	OldGameName   string
	NewGameName   string
	OldTagLine    string
	NewTagLine    string
	ChangedAt     time.Time
	ChangedBy     string
}

// RankSnapshot is one point-in-time capture of rank state. Rows are only
// ever inserted; the newest retrieved_at per account is "current rank".
type RankSnapshot struct {
	SnapshotID    string
	RiotAccountID string
	QueueType     string
	LeaguePoints  int
	Tier          string
	Division      string
	Wins          int
	Losses        int
	RetrievedAt   time.Time
}

// Player is a local profile, decoupled from any single Riot account.
type Player struct {
	PlayerID    string
	DisplayName string
	AddedAt     time.Time
}

// PlayerRiotAccountLink associates a Player with a RiotAccount. At most one
// active row may exist per (player, account) pair; unlinking deactivates the
// row and a later re-link creates a fresh one.
type PlayerRiotAccountLink struct {
	LinkID        string
	PlayerID      string
	RiotAccountID string
	IsPrimary     bool
	IsActive      bool
	LinkedAt      time.Time
	UnlinkedAt    *time.Time
}

// Guild is a Discord server the bot is present in.
type Guild struct {
	GuildID   string
	GuildName string
	OwnerID   string
	AddedAt   time.Time
}

// GuildTrackedAccount registers a Riot account for polling and display in
// one guild, independent of player linkage.
type GuildTrackedAccount struct {
	GuildID       string
	RiotAccountID string
	AddedAt       time.Time
}

// LeaderboardRow pairs an account with its latest snapshot for display.
// Snapshot is nil when the account has no ranked data yet.
type LeaderboardRow struct {
	Account  RiotAccount
	Snapshot *RankSnapshot
}
