// Package sentinel wires the exam-seat watcher together: the Discord
// client, the subscriber and invite engines, and the crawl loop.
package sentinel

import (
	"context"
	"log/slog"
	"time"

	"github.com/blackat5445/cisia-sentinel/sentinel/crawler"
	"github.com/blackat5445/cisia-sentinel/sentinel/database"
	"github.com/blackat5445/cisia-sentinel/sentinel/database/repositories"
	"github.com/blackat5445/cisia-sentinel/sentinel/donations"
	"github.com/blackat5445/cisia-sentinel/sentinel/enforcer"
	"github.com/blackat5445/cisia-sentinel/sentinel/exams"
	"github.com/blackat5445/cisia-sentinel/sentinel/github"
	"github.com/blackat5445/cisia-sentinel/sentinel/invites"
	"github.com/blackat5445/cisia-sentinel/sentinel/subscribers"
	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/paginator"
)

func New(cfg Config, version string, commit string) *Bot {
	return &Bot{
		Cfg:       cfg,
		Paginator: paginator.New(),
		Version:   version,
		Commit:    commit,
	}
}

type Bot struct {
	Cfg       Config
	Client    bot.Client
	Paginator *paginator.Manager
	Version   string
	Commit    string

	DB                   *database.DB
	SubscriberRepository repositories.SubscriberRepository
	ClaimRepository      repositories.ClaimRepository
	InviteRepository     repositories.InviteRepository

	Directory   *exams.Directory
	Store       *subscribers.Store
	Verifier    *subscribers.Verifier
	StarChecker *github.StarChecker
	Issuer      *invites.Issuer
	Enforcer    *enforcer.Enforcer
	Donations   *donations.Workflow
	Sessions    *donations.SessionManager
	Stats       *crawler.Stats
}

func (b *Bot) SetupBot(listeners ...bot.EventListener) error {
	client, err := disgo.New(b.Cfg.Bot.Token,
		bot.WithGatewayConfigOpts(gateway.WithIntents(gateway.IntentGuilds, gateway.IntentGuildMembers)),
		bot.WithCacheConfigOpts(cache.WithCaches(cache.FlagGuilds)),
		bot.WithEventListeners(b.Paginator),
		bot.WithEventListeners(listeners...),
	)
	if err != nil {
		return err
	}

	b.Client = client
	return nil
}

func (b *Bot) OnReady(_ *events.Ready) {
	slog.Info("CISIA sentinel is now ready",
		slog.String("version", b.Version),
		slog.String("commit", b.Commit))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.Client.SetPresence(ctx,
		gateway.WithWatchingActivity("testcisia.it for free seats"),
		gateway.WithOnlineStatus(discord.OnlineStatusOnline)); err != nil {
		slog.Error("Failed to set presence", slog.Any("error", err))
	}
}
