package internal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence boundary of the sync protocol. Every method is
// one logical operation in one transaction: a failure inside a method rolls
// the whole operation back. No live handle into storage ever escapes;
// methods return plain values loaded eagerly within the transaction.
type Store struct {
	db     *sql.DB
	logger *Logger
}

func NewStore(dm *DatabaseManager, logger *Logger) *Store {
	return &Store{db: dm.DB, logger: logger}
}

func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("tx_rollback_failed").
				Component("store").
				Operation(op).
				Err(rbErr).
				Log()
		}
		s.logger.Error("tx_failed").
			Component("store").
			Operation(op).
			Err(err).
			Log()
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

const riotAccountColumns = `riot_account_id, puuid, game_name, tag_line, region, created_at, last_api_update`

func scanRiotAccount(row interface{ Scan(...interface{}) error }) (*RiotAccount, error) {
	var a RiotAccount
	err := row.Scan(&a.RiotAccountID, &a.PUUID, &a.GameName, &a.TagLine, &a.Region, &a.CreatedAt, &a.LastAPIUpdate)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpsertRiotAccount reconciles a freshly fetched identity against storage,
// keyed by the stable PUUID. A new PUUID inserts a row; a known PUUID with a
// changed name writes one NameChange record before updating the account in
// place; an unchanged identity only bumps last_api_update. The row is locked
// for the duration so a concurrent sync of the same PUUID serializes behind
// this one instead of creating a duplicate.
func (s *Store) UpsertRiotAccount(ctx context.Context, puuid, gameName, tagLine, region, changedBy string) (*RiotAccount, bool, error) {
	var account *RiotAccount
	renamed := false

	err := s.withTx(ctx, "upsert_riot_account", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+riotAccountColumns+` FROM riot_accounts WHERE puuid = $1 FOR UPDATE`, puuid)

		existing, err := scanRiotAccount(row)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		now := time.Now().UTC()

		if existing == nil {
			account = &RiotAccount{
				RiotAccountID: uuid.NewString(),
				PUUID:         puuid,
				GameName:      gameName,
				TagLine:       tagLine,
				Region:        region,
				CreatedAt:     now,
				LastAPIUpdate: now,
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO riot_accounts (`+riotAccountColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				account.RiotAccountID, account.PUUID, account.GameName, account.TagLine,
				account.Region, account.CreatedAt, account.LastAPIUpdate)
			return err
		}

		if existing.GameName != gameName || existing.TagLine != tagLine {
			// History row first, then the in-place update.
			_, err := tx.ExecContext(ctx,
				`INSERT INTO riot_account_name_history
					(history_id, riot_account_id, puuid, old_game_name, new_game_name, old_tag_line, new_tag_line, changed_at, changed_by)
				 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				uuid.NewString(), existing.RiotAccountID, puuid,
				existing.GameName, gameName, existing.TagLine, tagLine, now, changedBy)
			if err != nil {
				return err
			}
			renamed = true
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE riot_accounts SET game_name = $1, tag_line = $2, last_api_update = $3 WHERE riot_account_id = $4`,
			gameName, tagLine, now, existing.RiotAccountID)
		if err != nil {
			return err
		}

		existing.GameName = gameName
		existing.TagLine = tagLine
		existing.LastAPIUpdate = now
		account = existing
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return account, renamed, nil
}

func (s *Store) GetRiotAccountByPUUID(ctx context.Context, puuid string) (*RiotAccount, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+riotAccountColumns+` FROM riot_accounts WHERE puuid = $1`, puuid)
	account, err := scanRiotAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return account, err
}

// AddRankSnapshot records one fetched league entry as a new history row.
// This is always an insert; snapshots form an append-only time series.
func (s *Store) AddRankSnapshot(ctx context.Context, riotAccountID string, entry LeagueEntry) (*RankSnapshot, error) {
	snap := &RankSnapshot{
		SnapshotID:    uuid.NewString(),
		RiotAccountID: riotAccountID,
		QueueType:     entry.QueueType,
		LeaguePoints:  entry.LeaguePoints,
		Tier:          entry.Tier,
		Division:      entry.Rank,
		Wins:          entry.Wins,
		Losses:        entry.Losses,
		RetrievedAt:   time.Now().UTC(),
	}

	err := s.withTx(ctx, "add_rank_snapshot", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO riot_account_lp_history
				(snapshot_id, riot_account_id, queue_type, league_points, tier, division, wins, losses, retrieved_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			snap.SnapshotID, snap.RiotAccountID, snap.QueueType, snap.LeaguePoints,
			snap.Tier, snap.Division, snap.Wins, snap.Losses, snap.RetrievedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

const snapshotColumns = `snapshot_id, riot_account_id, queue_type, league_points, tier, division, wins, losses, retrieved_at`

func scanSnapshot(row interface{ Scan(...interface{}) error }) (*RankSnapshot, error) {
	var sn RankSnapshot
	err := row.Scan(&sn.SnapshotID, &sn.RiotAccountID, &sn.QueueType, &sn.LeaguePoints,
		&sn.Tier, &sn.Division, &sn.Wins, &sn.Losses, &sn.RetrievedAt)
	if err != nil {
		return nil, err
	}
	return &sn, nil
}

// LatestRankSnapshot returns the row with the maximum retrieved_at for the
// account, or ErrNotFound when no snapshot exists yet.
func (s *Store) LatestRankSnapshot(ctx context.Context, riotAccountID string) (*RankSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM riot_account_lp_history
		 WHERE riot_account_id = $1 ORDER BY retrieved_at DESC LIMIT 1`, riotAccountID)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return snap, err
}

func (s *Store) GetPlayerByID(ctx context.Context, playerID string) (*Player, error) {
	var p Player
	err := s.db.QueryRowContext(ctx,
		`SELECT player_id, display_name, added_at FROM players WHERE player_id = $1`, playerID).
		Scan(&p.PlayerID, &p.DisplayName, &p.AddedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// RegisterOrGetPlayerForAccount is the registration entry point: it returns
// the player already linked to the account, or creates a Player profile and
// its primary active link, all in one transaction. The account row is
// locked first, so two concurrent registrations of the same account
// serialize here instead of both deciding "no links yet" and each creating
// a person. A failure at the link step rolls the player back too; no
// orphan profiles.
func (s *Store) RegisterOrGetPlayerForAccount(ctx context.Context, displayName, riotAccountID string) (*Player, *PlayerRiotAccountLink, bool, error) {
	var player *Player
	var link *PlayerRiotAccountLink
	created := false

	err := s.withTx(ctx, "register_player_for_account", func(tx *sql.Tx) error {
		var locked string
		err := tx.QueryRowContext(ctx,
			`SELECT riot_account_id FROM riot_accounts WHERE riot_account_id = $1 FOR UPDATE`,
			riotAccountID).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx,
			`SELECT `+linkColumns+` FROM player_riot_account_links
			 WHERE riot_account_id = $1 AND is_active = TRUE
			 ORDER BY linked_at LIMIT 1`, riotAccountID)
		existing, err := scanLink(row)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if existing != nil {
			var p Player
			err := tx.QueryRowContext(ctx,
				`SELECT player_id, display_name, added_at FROM players WHERE player_id = $1`,
				existing.PlayerID).Scan(&p.PlayerID, &p.DisplayName, &p.AddedAt)
			if err != nil {
				return err
			}
			player = &p
			link = existing
			return nil
		}

		now := time.Now().UTC()
		player = &Player{
			PlayerID:    uuid.NewString(),
			DisplayName: displayName,
			AddedAt:     now,
		}
		link = &PlayerRiotAccountLink{
			LinkID:        uuid.NewString(),
			PlayerID:      player.PlayerID,
			RiotAccountID: riotAccountID,
			IsPrimary:     true,
			IsActive:      true,
			LinkedAt:      now,
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO players (player_id, display_name, added_at) VALUES ($1,$2,$3)`,
			player.PlayerID, player.DisplayName, player.AddedAt)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO player_riot_account_links
				(link_id, player_id, riot_account_id, is_primary, is_active, linked_at)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			link.LinkID, link.PlayerID, link.RiotAccountID, link.IsPrimary, link.IsActive, link.LinkedAt)
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	return player, link, created, nil
}

// UpdatePlayerDisplayName renames a player and records the old name in the
// display-name history. Returns false without writing anything when the
// player is unknown or the name is unchanged.
func (s *Store) UpdatePlayerDisplayName(ctx context.Context, playerID, newDisplayName, changedBy string) (bool, error) {
	updated := false
	err := s.withTx(ctx, "update_player_display_name", func(tx *sql.Tx) error {
		var oldName string
		err := tx.QueryRowContext(ctx,
			`SELECT display_name FROM players WHERE player_id = $1 FOR UPDATE`, playerID).Scan(&oldName)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if oldName == newDisplayName {
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO player_display_name_history
				(history_id, player_id, old_display_name, new_display_name, changed_at, changed_by)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			uuid.NewString(), playerID, oldName, newDisplayName, time.Now().UTC(), changedBy)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE players SET display_name = $1 WHERE player_id = $2`, newDisplayName, playerID)
		if err != nil {
			return err
		}
		updated = true
		return nil
	})
	return updated, err
}

const linkColumns = `link_id, player_id, riot_account_id, is_primary, is_active, linked_at, unlinked_at`

func scanLink(row interface{ Scan(...interface{}) error }) (*PlayerRiotAccountLink, error) {
	var l PlayerRiotAccountLink
	var unlinkedAt sql.NullTime
	err := row.Scan(&l.LinkID, &l.PlayerID, &l.RiotAccountID, &l.IsPrimary, &l.IsActive, &l.LinkedAt, &unlinkedAt)
	if err != nil {
		return nil, err
	}
	if unlinkedAt.Valid {
		t := unlinkedAt.Time
		l.UnlinkedAt = &t
	}
	return &l, nil
}

// LinkPlayerToRiotAccount creates a new active link unless one already
// exists for the pair, in which case the existing link is returned. The
// pre-check alone cannot serialize two first-time linkers (there is no row
// to lock yet), so the insert leans on the partial unique index over active
// rows: the loser of the race inserts nothing and takes the winner's row.
// A deactivated link is never resurrected; the re-link is a fresh row.
func (s *Store) LinkPlayerToRiotAccount(ctx context.Context, playerID, riotAccountID string, isPrimary bool) (*PlayerRiotAccountLink, error) {
	var link *PlayerRiotAccountLink

	err := s.withTx(ctx, "link_player_riot_account", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+linkColumns+` FROM player_riot_account_links
			 WHERE player_id = $1 AND riot_account_id = $2 AND is_active = TRUE
			 FOR UPDATE`, playerID, riotAccountID)

		existing, err := scanLink(row)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if existing != nil {
			link = existing
			return nil
		}

		candidate := &PlayerRiotAccountLink{
			LinkID:        uuid.NewString(),
			PlayerID:      playerID,
			RiotAccountID: riotAccountID,
			IsPrimary:     isPrimary,
			IsActive:      true,
			LinkedAt:      time.Now().UTC(),
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO player_riot_account_links
				(link_id, player_id, riot_account_id, is_primary, is_active, linked_at)
			 VALUES ($1,$2,$3,$4,$5,$6)
			 ON CONFLICT (player_id, riot_account_id) WHERE is_active DO NOTHING`,
			candidate.LinkID, candidate.PlayerID, candidate.RiotAccountID, candidate.IsPrimary, candidate.IsActive, candidate.LinkedAt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			// A concurrent transaction linked the pair first.
			row := tx.QueryRowContext(ctx,
				`SELECT `+linkColumns+` FROM player_riot_account_links
				 WHERE player_id = $1 AND riot_account_id = $2 AND is_active = TRUE`,
				playerID, riotAccountID)
			winner, err := scanLink(row)
			if err != nil {
				return err
			}
			link = winner
			return nil
		}
		link = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// DeactivateRiotLink retires the active link for the pair: is_active goes
// false and unlinked_at is stamped. The row is kept; history is never
// deleted. Returns false when no active link exists.
func (s *Store) DeactivateRiotLink(ctx context.Context, playerID, riotAccountID string) (bool, error) {
	deactivated := false
	err := s.withTx(ctx, "deactivate_riot_link", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE player_riot_account_links
			 SET is_active = FALSE, unlinked_at = $1
			 WHERE player_id = $2 AND riot_account_id = $3 AND is_active = TRUE`,
			time.Now().UTC(), playerID, riotAccountID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deactivated = n > 0
		return nil
	})
	return deactivated, err
}

// ActiveLinksForAccount eagerly loads every active link pointing at the
// account. Callers get plain values, not a handle back into storage.
func (s *Store) ActiveLinksForAccount(ctx context.Context, riotAccountID string) ([]PlayerRiotAccountLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM player_riot_account_links
		 WHERE riot_account_id = $1 AND is_active = TRUE
		 ORDER BY linked_at`, riotAccountID)
	if err != nil {
		return nil, fmt.Errorf("active_links_for_account: %w", err)
	}
	defer rows.Close()

	var links []PlayerRiotAccountLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *l)
	}
	return links, rows.Err()
}

func (s *Store) UpsertGuild(ctx context.Context, guildID, guildName, ownerID string) error {
	return s.withTx(ctx, "upsert_guild", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO discord_servers (guild_id, guild_name, owner_id)
			 VALUES ($1,$2,$3)
			 ON CONFLICT (guild_id) DO UPDATE SET guild_name = $2, owner_id = $3`,
			guildID, guildName, ownerID)
		return err
	})
}

// TrackAccountForGuild registers an account for a guild's ladder. The pair
// is unique; tracking an already tracked account is a no-op.
func (s *Store) TrackAccountForGuild(ctx context.Context, guildID, riotAccountID string) error {
	return s.withTx(ctx, "track_account_for_guild", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO guild_tracked_accounts (guild_id, riot_account_id)
			 VALUES ($1,$2)
			 ON CONFLICT (guild_id, riot_account_id) DO NOTHING`,
			guildID, riotAccountID)
		return err
	})
}

func (s *Store) UntrackAccountForGuild(ctx context.Context, guildID, riotAccountID string) (bool, error) {
	removed := false
	err := s.withTx(ctx, "untrack_account_for_guild", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM guild_tracked_accounts WHERE guild_id = $1 AND riot_account_id = $2`,
			guildID, riotAccountID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = n > 0
		return nil
	})
	return removed, err
}

// ListTrackedAccounts returns the deduplicated set of accounts tracked by
// any guild; this is the periodic runner's work list.
func (s *Store) ListTrackedAccounts(ctx context.Context) ([]RiotAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT a.riot_account_id, a.puuid, a.game_name, a.tag_line, a.region, a.created_at, a.last_api_update
		 FROM riot_accounts a
		 JOIN guild_tracked_accounts g ON g.riot_account_id = a.riot_account_id
		 ORDER BY a.riot_account_id`)
	if err != nil {
		return nil, fmt.Errorf("list_tracked_accounts: %w", err)
	}
	defer rows.Close()

	var accounts []RiotAccount
	for rows.Next() {
		a, err := scanRiotAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// GuildLeaderboard returns each tracked account of the guild with its
// latest snapshot, ordered by league points descending. Accounts without
// any snapshot sort last with a nil snapshot.
func (s *Store) GuildLeaderboard(ctx context.Context, guildID string) ([]LeaderboardRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.riot_account_id, a.puuid, a.game_name, a.tag_line, a.region, a.created_at, a.last_api_update,
		        h.snapshot_id, h.queue_type, h.league_points, h.tier, h.division, h.wins, h.losses, h.retrieved_at
		 FROM guild_tracked_accounts g
		 JOIN riot_accounts a ON a.riot_account_id = g.riot_account_id
		 LEFT JOIN LATERAL (
			SELECT snapshot_id, queue_type, league_points, tier, division, wins, losses, retrieved_at
			FROM riot_account_lp_history
			WHERE riot_account_id = a.riot_account_id
			ORDER BY retrieved_at DESC
			LIMIT 1
		 ) h ON TRUE
		 WHERE g.guild_id = $1
		 ORDER BY h.league_points DESC NULLS LAST, a.game_name`, guildID)
	if err != nil {
		return nil, fmt.Errorf("guild_leaderboard: %w", err)
	}
	defer rows.Close()

	var board []LeaderboardRow
	for rows.Next() {
		var (
			a            RiotAccount
			snapshotID   sql.NullString
			queueType    sql.NullString
			leaguePoints sql.NullInt64
			tier         sql.NullString
			division     sql.NullString
			wins         sql.NullInt64
			losses       sql.NullInt64
			retrievedAt  sql.NullTime
		)
		err := rows.Scan(&a.RiotAccountID, &a.PUUID, &a.GameName, &a.TagLine, &a.Region, &a.CreatedAt, &a.LastAPIUpdate,
			&snapshotID, &queueType, &leaguePoints, &tier, &division, &wins, &losses, &retrievedAt)
		if err != nil {
			return nil, err
		}

		row := LeaderboardRow{Account: a}
		if snapshotID.Valid {
			row.Snapshot = &RankSnapshot{
				SnapshotID:    snapshotID.String,
				RiotAccountID: a.RiotAccountID,
				QueueType:     queueType.String,
				LeaguePoints:  int(leaguePoints.Int64),
				Tier:          tier.String,
				Division:      division.String,
				Wins:          int(wins.Int64),
				Losses:        int(losses.Int64),
				RetrievedAt:   retrievedAt.Time,
			}
		}
		board = append(board, row)
	}
	return board, rows.Err()
}
