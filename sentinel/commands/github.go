package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blackat5445/cisia-sentinel/sentinel"
	"github.com/blackat5445/cisia-sentinel/sentinel/subscribers"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
)

var GitHub = discord.SlashCommandCreate{
	Name:        "github",
	Description: "⭐ Verify your GitHub star to unlock group invites",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:        "username",
			Description: "Your GitHub username",
			Required:    true,
		},
	},
}

func GitHubHandler(b *sentinel.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		handle := e.SlashCommandInteractionData().String("username")

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		err := b.Verifier.Verify(ctx, e.User().ID, handle)
		switch {
		case err == nil:
			return reply(e, fmt.Sprintf("✅ Verified! Thanks for the star, **%s**.\n"+
				"You can now request group invites with `/exam <code>`.",
				subscribers.NormalizeHandle(handle)))
		case errors.Is(err, subscribers.ErrNotStarred):
			return reply(e, fmt.Sprintf("You haven't starred the repo yet. Star %s and try again.",
				b.StarChecker.RepoURL()))
		case errors.Is(err, subscribers.ErrHandleClaimed):
			return reply(e, "That GitHub username is already linked to another subscriber.")
		case errors.Is(err, subscribers.ErrGateUnavailable):
			return reply(e, "GitHub is not answering right now. Please try again in a few minutes.")
		default:
			return reply(e, fmt.Sprintf("Verification failed: %s", err))
		}
	}
}
