package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blackat5445/cisia-sentinel/sentinel"
	"github.com/blackat5445/cisia-sentinel/sentinel/exams"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
)

var Start = discord.SlashCommandCreate{
	Name:        "start",
	Description: "🔔 Subscribe to exam seat alerts",
}

var Stop = discord.SlashCommandCreate{
	Name:        "stop",
	Description: "🔕 Unsubscribe from all alerts",
}

var Status = discord.SlashCommandCreate{
	Name:        "status",
	Description: "📋 Show your subscription and verification state",
}

func StartHandler(b *sentinel.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		user := e.User()
		created, err := b.Store.Subscribe(ctx, user.ID, user.Username, user.EffectiveName())
		if err != nil {
			return reply(e, fmt.Sprintf("Could not subscribe: %s", err))
		}

		if created {
			return reply(e, fmt.Sprintf(
				"Welcome! You're subscribed to seat alerts for **all** exams.\n"+
					"Next steps:\n"+
					"• Star %s and run `/github <your-username>` to verify\n"+
					"• Narrow your exams with `/exams`, e.g. `/exams TOLC-I, TOLC-E`\n"+
					"• Request a group invite with `/exam <code>` once verified",
				b.StarChecker.RepoURL()))
		}
		return reply(e, "You're already subscribed. `/status` shows your current setup.")
	}
}

func StopHandler(b *sentinel.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := b.Store.Unsubscribe(ctx, e.User().ID); err != nil {
			return reply(e, fmt.Sprintf("Could not unsubscribe: %s", err))
		}
		return reply(e, "Unsubscribed. Run `/start` whenever you want alerts again.")
	}
}

func StatusHandler(b *sentinel.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		sub, ok := b.Store.Get(e.User().ID)
		if !ok || !sub.Active {
			return reply(e, "You're not subscribed. Run `/start` to begin.")
		}

		var sb strings.Builder
		sb.WriteString("**Your subscription**\n")
		fmt.Fprintf(&sb, "Exams: %s\n", formatSelection(sub.Exams))
		if sub.Verified {
			fmt.Fprintf(&sb, "Verified: ✅ (github.com/%s)\n", sub.GithubHandle)
		} else {
			sb.WriteString("Verified: ❌ (star the repo and run `/github <username>`)\n")
		}
		if sub.Premium {
			sb.WriteString("Premium: ⭐ donator\n")
		} else if b.Donations.HasClaim(e.User().ID) {
			sb.WriteString("Premium: donation claim on file, awaiting review\n")
		}
		if sub.PreferredInterval > 0 {
			fmt.Fprintf(&sb, "Preferred interval: %d min\n", sub.PreferredInterval)
		}
		return reply(e, sb.String())
	}
}

func formatSelection(selection []string) string {
	if len(selection) == 0 {
		return "none"
	}
	for _, s := range selection {
		if s == string(exams.Wildcard) {
			return "all exams"
		}
	}
	return strings.Join(selection, ", ")
}
