package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// interactionTimeout bounds the work behind one slash command; Discord
// expects an edit to the deferred response well before this.
const interactionTimeout = 25 * time.Second

// DiscordBot is the chat-facing surface. Command handlers are thin: they
// defer the interaction, call the sync service or the store, and render the
// result. All tracking/linking semantics live below this layer.
type DiscordBot struct {
	session *discordgo.Session
	sync    *SyncService
	store   Storage
	events  *NATSClient
	logger  *Logger

	guildID  string
	commands []*discordgo.ApplicationCommand

	readyOnce sync.Once
	ready     chan struct{}
}

func NewDiscordBot(cfg *Config, syncService *SyncService, store Storage, events *NATSClient, logger *Logger) (*DiscordBot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	b := &DiscordBot{
		session: session,
		sync:    syncService,
		store:   store,
		events:  events,
		logger:  logger,
		guildID: cfg.DiscordGuildID,
		ready:   make(chan struct{}),
	}

	session.AddHandler(b.onReady)
	session.AddHandler(b.onGuildCreate)
	session.AddHandler(b.onInteraction)

	return b, nil
}

// Ready closes once the gateway session is up; the periodic runner gates
// its first tick on it.
func (b *DiscordBot) Ready() <-chan struct{} {
	return b.ready
}

func (b *DiscordBot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord connection: %w", err)
	}

	if err := b.registerCommands(); err != nil {
		return err
	}

	b.logger.Info("discord_connected").
		Component("discord").
		Operation("start").
		Meta("user", b.session.State.User.Username).
		Log()
	return nil
}

func (b *DiscordBot) Stop() error {
	for _, cmd := range b.commands {
		if err := b.session.ApplicationCommandDelete(b.session.State.User.ID, b.guildID, cmd.ID); err != nil {
			b.logger.Warn("command_delete_failed").
				Component("discord").
				Operation("stop").
				Meta("command", cmd.Name).
				Err(err).
				Log()
		}
	}
	return b.session.Close()
}

func (b *DiscordBot) commandDefinitions() []*discordgo.ApplicationCommand {
	riotIDOptions := []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "game_name",
			Description: "Riot game name (without the tag)",
			Required:    true,
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "tag_line",
			Description: "Riot tag line (without #)",
			Required:    true,
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "region",
			Description: "Platform region (e.g. euw1, na1, kr)",
			Required:    true,
		},
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        "register",
			Description: "Register a Riot account for TFT rank tracking",
			Options:     riotIDOptions,
		},
		{
			Name:        "rank",
			Description: "Show the current TFT rank of a registered account",
			Options:     riotIDOptions,
		},
		{
			Name:        "track",
			Description: "Add an account to this server's ladder",
			Options:     riotIDOptions,
		},
		{
			Name:        "untrack",
			Description: "Remove an account from this server's ladder",
			Options:     riotIDOptions,
		},
		{
			Name:        "unlink",
			Description: "Deactivate all player links to a Riot account",
			Options:     riotIDOptions,
		},
		{
			Name:        "refresh",
			Description: "Queue a background refresh for an account",
			Options:     riotIDOptions,
		},
		{
			Name:        "leaderboard",
			Description: "Show this server's TFT ladder",
		},
	}
}

func (b *DiscordBot) registerCommands() error {
	defs := b.commandDefinitions()
	registered := make([]*discordgo.ApplicationCommand, 0, len(defs))

	for _, cmd := range defs {
		created, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, b.guildID, cmd)
		if err != nil {
			return fmt.Errorf("register command %s: %w", cmd.Name, err)
		}
		registered = append(registered, created)
	}

	b.commands = registered
	b.logger.Info("commands_registered").
		Component("discord").
		Operation("register_commands").
		Meta("count", len(registered)).
		Log()
	return nil
}

func (b *DiscordBot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.readyOnce.Do(func() { close(b.ready) })
}

func (b *DiscordBot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := b.store.UpsertGuild(ctx, g.ID, g.Name, g.OwnerID); err != nil {
		b.logger.Error("guild_upsert_failed").
			Component("discord").
			Operation("guild_create").
			Guild(g.ID).
			Err(err).
			Log()
	}
}

func (b *DiscordBot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()

	name := i.ApplicationCommandData().Name
	switch name {
	case "register":
		b.handleRegister(ctx, s, i)
	case "rank":
		b.handleRank(ctx, s, i)
	case "track":
		b.handleTrack(ctx, s, i)
	case "untrack":
		b.handleUntrack(ctx, s, i)
	case "unlink":
		b.handleUnlink(ctx, s, i)
	case "refresh":
		b.handleRefresh(s, i)
	case "leaderboard":
		b.handleLeaderboard(ctx, s, i)
	}
}

func riotIDArgs(i *discordgo.InteractionCreate) (gameName, tagLine, region string) {
	for _, opt := range i.ApplicationCommandData().Options {
		switch opt.Name {
		case "game_name":
			gameName = opt.StringValue()
		case "tag_line":
			tagLine = opt.StringValue()
		case "region":
			region = opt.StringValue()
		}
	}
	return
}

func (b *DiscordBot) deferReply(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		b.logger.Warn("interaction_defer_failed").
			Component("discord").
			Operation("defer_reply").
			Err(err).
			Log()
	}
}

func (b *DiscordBot) editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		b.logger.Warn("interaction_edit_failed").
			Component("discord").
			Operation("edit_response").
			Err(err).
			Log()
	}
}

func (b *DiscordBot) handleRegister(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	gameName, tagLine, region := riotIDArgs(i)
	b.deferReply(s, i)

	player, account, err := b.sync.RegisterPlayerWithRiotID(ctx, gameName, tagLine, region, "")
	switch {
	case errors.Is(err, ErrNotFound):
		b.editResponse(s, i, fmt.Sprintf("Could not find **%s#%s** in region `%s`. Check the name, tag and region.", gameName, tagLine, region))
	case err != nil:
		b.editResponse(s, i, "The Riot API is not reachable right now, try again in a bit.")
	default:
		b.editResponse(s, i, fmt.Sprintf("**%s** is registered as player **%s**.", account.RiotID(), player.DisplayName))
	}
}

func (b *DiscordBot) handleRank(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	gameName, tagLine, region := riotIDArgs(i)
	b.deferReply(s, i)

	account, err := b.sync.SyncIdentity(ctx, gameName, tagLine, region)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			b.editResponse(s, i, fmt.Sprintf("**%s#%s** is not a known account in `%s`.", gameName, tagLine, region))
		} else {
			b.editResponse(s, i, "Could not reach the Riot API, try again later.")
		}
		return
	}

	snap, live, err := b.sync.CurrentRank(ctx, account)
	if err != nil {
		if errors.Is(err, ErrNoRankedData) {
			b.editResponse(s, i, fmt.Sprintf("**%s** has no ranked TFT data yet.", account.RiotID()))
		} else {
			b.editResponse(s, i, fmt.Sprintf("No rank data available for **%s** right now.", account.RiotID()))
		}
		return
	}

	suffix := ""
	if !live {
		suffix = fmt.Sprintf(" _(stored %s)_", snap.RetrievedAt.Format("2006-01-02 15:04 MST"))
	}
	b.editResponse(s, i, fmt.Sprintf("**%s** — %s %s, %d LP (%dW/%dL)%s",
		account.RiotID(), snap.Tier, snap.Division, snap.LeaguePoints, snap.Wins, snap.Losses, suffix))
}

func (b *DiscordBot) handleTrack(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	gameName, tagLine, region := riotIDArgs(i)
	b.deferReply(s, i)

	if i.GuildID == "" {
		b.editResponse(s, i, "This command only works inside a server.")
		return
	}

	account, err := b.sync.SyncIdentity(ctx, gameName, tagLine, region)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			b.editResponse(s, i, fmt.Sprintf("Could not find **%s#%s** in region `%s`.", gameName, tagLine, region))
		} else {
			b.editResponse(s, i, "Could not reach the Riot API, try again later.")
		}
		return
	}

	if err := b.store.TrackAccountForGuild(ctx, i.GuildID, account.RiotAccountID); err != nil {
		b.logger.Error("track_account_failed").
			Component("discord").
			Operation("track").
			Guild(i.GuildID).
			Account(account.PUUID, account.RiotID(), account.Region).
			Err(err).
			Log()
		b.editResponse(s, i, "Could not add the account to this server's ladder.")
		return
	}

	b.editResponse(s, i, fmt.Sprintf("**%s** is now on this server's ladder.", account.RiotID()))
}

func (b *DiscordBot) handleUntrack(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	gameName, tagLine, region := riotIDArgs(i)
	b.deferReply(s, i)

	if i.GuildID == "" {
		b.editResponse(s, i, "This command only works inside a server.")
		return
	}

	account, err := b.sync.SyncIdentity(ctx, gameName, tagLine, region)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			b.editResponse(s, i, fmt.Sprintf("Could not find **%s#%s** in region `%s`.", gameName, tagLine, region))
		} else {
			b.editResponse(s, i, "Could not reach the Riot API, try again later.")
		}
		return
	}

	removed, err := b.store.UntrackAccountForGuild(ctx, i.GuildID, account.RiotAccountID)
	if err != nil {
		b.editResponse(s, i, "Could not update this server's ladder.")
		return
	}
	if !removed {
		b.editResponse(s, i, fmt.Sprintf("**%s** was not on this server's ladder.", account.RiotID()))
		return
	}
	b.editResponse(s, i, fmt.Sprintf("**%s** removed from this server's ladder.", account.RiotID()))
}

func (b *DiscordBot) handleUnlink(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	gameName, tagLine, region := riotIDArgs(i)
	b.deferReply(s, i)

	account, err := b.sync.SyncIdentity(ctx, gameName, tagLine, region)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			b.editResponse(s, i, fmt.Sprintf("Could not find **%s#%s** in region `%s`.", gameName, tagLine, region))
		} else {
			b.editResponse(s, i, "Could not reach the Riot API, try again later.")
		}
		return
	}

	links, err := b.store.ActiveLinksForAccount(ctx, account.RiotAccountID)
	if err != nil {
		b.editResponse(s, i, "Could not look up player links.")
		return
	}
	if len(links) == 0 {
		b.editResponse(s, i, fmt.Sprintf("**%s** has no active player links.", account.RiotID()))
		return
	}

	var unlinked []string
	for _, link := range links {
		ok, err := b.store.DeactivateRiotLink(ctx, link.PlayerID, account.RiotAccountID)
		if err != nil {
			b.logger.Error("unlink_failed").
				Component("discord").
				Operation("unlink").
				Account(account.PUUID, account.RiotID(), account.Region).
				Err(err).
				Log()
			continue
		}
		if !ok {
			continue
		}
		name := link.PlayerID
		if player, err := b.store.GetPlayerByID(ctx, link.PlayerID); err == nil {
			name = player.DisplayName
		}
		unlinked = append(unlinked, name)
	}
	if len(unlinked) == 0 {
		b.editResponse(s, i, fmt.Sprintf("No links were deactivated for **%s**.", account.RiotID()))
		return
	}
	b.editResponse(s, i, fmt.Sprintf("Unlinked **%s** from %s. History is kept.", account.RiotID(), strings.Join(unlinked, ", ")))
}

func (b *DiscordBot) handleRefresh(s *discordgo.Session, i *discordgo.InteractionCreate) {
	gameName, tagLine, region := riotIDArgs(i)
	b.deferReply(s, i)

	if b.events == nil {
		b.editResponse(s, i, "Background refresh is not available.")
		return
	}

	task := SyncRequestTask{GameName: gameName, TagLine: tagLine, Region: region}
	if i.Member != nil && i.Member.User != nil {
		task.RequestedBy = i.Member.User.ID
	}

	if err := b.events.PublishSyncRequest(task); err != nil {
		b.editResponse(s, i, "Could not queue the refresh.")
		return
	}
	b.editResponse(s, i, fmt.Sprintf("Refresh queued for **%s#%s**.", gameName, tagLine))
}

func (b *DiscordBot) handleLeaderboard(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.deferReply(s, i)

	if i.GuildID == "" {
		b.editResponse(s, i, "This command only works inside a server.")
		return
	}

	rows, err := b.store.GuildLeaderboard(ctx, i.GuildID)
	if err != nil {
		b.editResponse(s, i, "Could not load the leaderboard.")
		return
	}
	if len(rows) == 0 {
		b.editResponse(s, i, "No accounts are tracked on this server yet. Use /track to add some.")
		return
	}

	content := "**TFT Ladder**\n"
	for idx, row := range rows {
		if idx >= 20 {
			break
		}
		if row.Snapshot != nil {
			content += fmt.Sprintf("%d. **%s** — %s %s, %d LP\n",
				idx+1, row.Account.RiotID(), row.Snapshot.Tier, row.Snapshot.Division, row.Snapshot.LeaguePoints)
		} else {
			content += fmt.Sprintf("%d. **%s** — no ranked data\n", idx+1, row.Account.RiotID())
		}
	}
	b.editResponse(s, i, content)
}
