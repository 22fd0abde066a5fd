// Package handlers holds the gateway event listeners and the logging
// wrapper around command handlers.
package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/blackat5445/cisia-sentinel/sentinel"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
)

// MemberJoinHandler runs every guild join through the membership
// enforcer. Bots are ignored; everything else is admit-or-evict.
func MemberJoinHandler(b *sentinel.Bot) bot.EventListener {
	return bot.NewListenerFunc(func(e *events.GuildMemberJoin) {
		if e.Member.User.Bot {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		admitted, err := b.Enforcer.HandleJoin(ctx, e.GuildID, e.Member.User.ID, e.Member.EffectiveName())
		if err != nil {
			slog.Error("Join handling failed",
				slog.String("guild_id", e.GuildID.String()),
				slog.String("user_id", e.Member.User.ID.String()),
				slog.Any("error", err))
			return
		}
		slog.Info("Guild join handled",
			slog.String("guild_id", e.GuildID.String()),
			slog.String("user_id", e.Member.User.ID.String()),
			slog.Bool("admitted", admitted))
	})
}
