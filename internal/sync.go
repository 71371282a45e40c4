package internal

import (
	"context"
	"errors"
)

// changedByAPISync marks rename history rows written by the sync path, as
// opposed to user-triggered changes.
const changedByAPISync = "SYSTEM_API_UPDATE"

// SyncService reconciles fetched Riot identities and ranks against storage.
// It owns the upsert-with-history protocol; the API client and the store are
// injected so command handlers, the runner and tests all share one wiring.
type SyncService struct {
	api     RiotAPI
	store   Storage
	events  EventPublisher
	logger  *Logger
	metrics *MetricsCollector

	queueType string
}

func NewSyncService(api RiotAPI, store Storage, events EventPublisher, logger *Logger, metrics *MetricsCollector, queueType string) *SyncService {
	if queueType == "" {
		queueType = "RANKED_TFT"
	}
	return &SyncService{
		api:       api,
		store:     store,
		events:    events,
		logger:    logger,
		metrics:   metrics,
		queueType: queueType,
	}
}

// SyncIdentity fetches the canonical identity for a riot id and upserts it
// keyed by PUUID. Names are never used as the lookup key; a rename is
// detected by the store and recorded as history before the row mutates.
// Calling twice with unchanged upstream data is a no-op beyond a freshness
// stamp.
func (s *SyncService) SyncIdentity(ctx context.Context, gameName, tagLine, region string) (*RiotAccount, error) {
	data, err := s.api.GetAccountByRiotID(ctx, gameName, tagLine, region)
	if err != nil {
		s.logger.Warn("identity_fetch_failed").
			Component("sync").
			Operation("sync_identity").
			Account("", gameName+"#"+tagLine, region).
			Err(err).
			Log()
		return nil, err
	}

	if data.GameName == "" || data.TagLine == "" {
		return nil, transientf("sync_identity", "incomplete account payload")
	}

	platform, ok := NormalizeRegion(region)
	if !ok {
		return nil, ErrNotFound
	}

	account, renamed, err := s.store.UpsertRiotAccount(ctx, data.PUUID, data.GameName, data.TagLine, platform, changedByAPISync)
	if err != nil {
		return nil, err
	}

	if renamed {
		s.logger.Info("account_renamed").
			Component("sync").
			Operation("sync_identity").
			Account(account.PUUID, account.RiotID(), account.Region).
			Log()
		if s.events != nil {
			if err := s.events.PublishAccountRenamed(AccountRenamedEvent{
				PUUID:    account.PUUID,
				GameName: account.GameName,
				TagLine:  account.TagLine,
				Region:   account.Region,
			}); err != nil {
				s.logger.Warn("rename_event_publish_failed").
					Component("sync").
					Operation("sync_identity").
					Err(err).
					Log()
			}
		}
	}

	return account, nil
}

// SyncRank fetches the account's league entries, picks the tracked queue
// and appends a snapshot row. An account without an entry for the tracked
// queue yields ErrNoRankedData, which is a terminal state, not a failure.
func (s *SyncService) SyncRank(ctx context.Context, account *RiotAccount) (*RankSnapshot, error) {
	entries, err := s.api.GetLeagueEntriesByPUUID(ctx, account.PUUID, account.Region)
	if err != nil {
		s.recordOutcome(SyncOutcomeFailed)
		return nil, err
	}

	var ranked *LeagueEntry
	for i := range entries {
		if entries[i].QueueType == s.queueType {
			ranked = &entries[i]
			break
		}
	}
	if ranked == nil {
		s.recordOutcome(SyncOutcomeUnranked)
		s.logger.Debug("no_ranked_entry").
			Component("sync").
			Operation("sync_rank").
			Account(account.PUUID, account.RiotID(), account.Region).
			Meta("queue_type", s.queueType).
			Log()
		return nil, ErrNoRankedData
	}

	snap, err := s.store.AddRankSnapshot(ctx, account.RiotAccountID, *ranked)
	if err != nil {
		s.recordOutcome(SyncOutcomeFailed)
		return nil, err
	}

	s.recordOutcome(SyncOutcomeOK)
	s.logger.Info("rank_snapshot_recorded").
		Component("sync").
		Operation("sync_rank").
		Account(account.PUUID, account.RiotID(), account.Region).
		Meta("tier", snap.Tier).
		Meta("division", snap.Division).
		Meta("league_points", snap.LeaguePoints).
		Log()

	if s.events != nil {
		if err := s.events.PublishRankUpdated(RankUpdatedEvent{
			PUUID:        account.PUUID,
			GameName:     account.GameName,
			TagLine:      account.TagLine,
			Region:       account.Region,
			QueueType:    snap.QueueType,
			Tier:         snap.Tier,
			Division:     snap.Division,
			LeaguePoints: snap.LeaguePoints,
			Wins:         snap.Wins,
			Losses:       snap.Losses,
			RetrievedAt:  snap.RetrievedAt,
		}); err != nil {
			s.logger.Warn("rank_event_publish_failed").
				Component("sync").
				Operation("sync_rank").
				Err(err).
				Log()
		}
	}

	return snap, nil
}

// RegisterPlayerWithRiotID runs the full registration: sync the identity,
// then register-or-get the linked player in one store transaction, so two
// concurrent registrations of the same account cannot both create a person.
// displayName may be empty, defaulting to the account's current game name.
func (s *SyncService) RegisterPlayerWithRiotID(ctx context.Context, gameName, tagLine, region, displayName string) (*Player, *RiotAccount, error) {
	account, err := s.SyncIdentity(ctx, gameName, tagLine, region)
	if err != nil {
		return nil, nil, err
	}

	name := displayName
	if name == "" {
		name = account.GameName
	}

	player, _, created, err := s.store.RegisterOrGetPlayerForAccount(ctx, name, account.RiotAccountID)
	if err != nil {
		return nil, nil, err
	}

	if !created {
		// Re-registering with an explicit name renames the profile; the old
		// name goes to history.
		if displayName != "" && displayName != player.DisplayName {
			if _, err := s.store.UpdatePlayerDisplayName(ctx, player.PlayerID, displayName, changedByAPISync); err != nil {
				return nil, nil, err
			}
			player.DisplayName = displayName
		}
		s.logger.Info("registration_already_linked").
			Component("sync").
			Operation("register_player").
			Account(account.PUUID, account.RiotID(), account.Region).
			Meta("player_id", player.PlayerID).
			Log()
		return player, account, nil
	}

	s.logger.Info("player_registered").
		Component("sync").
		Operation("register_player").
		Account(account.PUUID, account.RiotID(), account.Region).
		Meta("player_id", player.PlayerID).
		Meta("display_name", player.DisplayName).
		Log()

	return player, account, nil
}

// CurrentRank is the lookup used by command handlers: try a live sync
// first, fall back to the last stored snapshot when the fetch fails or the
// account is currently unranked. ErrNotFound means no data exists at all.
func (s *SyncService) CurrentRank(ctx context.Context, account *RiotAccount) (*RankSnapshot, bool, error) {
	snap, err := s.SyncRank(ctx, account)
	if err == nil {
		return snap, true, nil
	}
	if !errors.Is(err, ErrNoRankedData) && !IsTransient(err) {
		return nil, false, err
	}

	stored, storeErr := s.store.LatestRankSnapshot(ctx, account.RiotAccountID)
	if storeErr != nil {
		// Nothing stored either; surface the original condition.
		if errors.Is(storeErr, ErrNotFound) {
			return nil, false, err
		}
		return nil, false, storeErr
	}
	return stored, false, nil
}

func (s *SyncService) recordOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordSyncOutcome(outcome)
	}
}
