package internal

import (
	"context"
)

// RiotAPI is the outbound boundary the sync service consumes.
type RiotAPI interface {
	GetAccountByRiotID(ctx context.Context, gameName, tagLine, region string) (*AccountData, error)
	GetLeagueEntriesByPUUID(ctx context.Context, puuid, region string) ([]LeagueEntry, error)
}

// Storage is the narrow CRUD contract between the sync protocol and the
// relational layer.
type Storage interface {
	UpsertRiotAccount(ctx context.Context, puuid, gameName, tagLine, region, changedBy string) (*RiotAccount, bool, error)
	GetRiotAccountByPUUID(ctx context.Context, puuid string) (*RiotAccount, error)
	AddRankSnapshot(ctx context.Context, riotAccountID string, entry LeagueEntry) (*RankSnapshot, error)
	LatestRankSnapshot(ctx context.Context, riotAccountID string) (*RankSnapshot, error)
	GetPlayerByID(ctx context.Context, playerID string) (*Player, error)
	UpdatePlayerDisplayName(ctx context.Context, playerID, newDisplayName, changedBy string) (bool, error)
	RegisterOrGetPlayerForAccount(ctx context.Context, displayName, riotAccountID string) (*Player, *PlayerRiotAccountLink, bool, error)
	LinkPlayerToRiotAccount(ctx context.Context, playerID, riotAccountID string, isPrimary bool) (*PlayerRiotAccountLink, error)
	DeactivateRiotLink(ctx context.Context, playerID, riotAccountID string) (bool, error)
	ActiveLinksForAccount(ctx context.Context, riotAccountID string) ([]PlayerRiotAccountLink, error)
	UpsertGuild(ctx context.Context, guildID, guildName, ownerID string) error
	TrackAccountForGuild(ctx context.Context, guildID, riotAccountID string) error
	UntrackAccountForGuild(ctx context.Context, guildID, riotAccountID string) (bool, error)
	ListTrackedAccounts(ctx context.Context) ([]RiotAccount, error)
	GuildLeaderboard(ctx context.Context, guildID string) ([]LeaderboardRow, error)
}

// EventPublisher fans sync results out to interested consumers. A nil
// publisher is valid; events are then dropped.
type EventPublisher interface {
	PublishRankUpdated(event RankUpdatedEvent) error
	PublishAccountRenamed(event AccountRenamedEvent) error
}

// RankSyncer is the slice of the sync service the periodic runner needs.
type RankSyncer interface {
	SyncRank(ctx context.Context, account *RiotAccount) (*RankSnapshot, error)
}
