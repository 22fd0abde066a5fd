package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blackat5445/cisia-sentinel/sentinel"
	"github.com/blackat5445/cisia-sentinel/sentinel/exams"
	"github.com/blackat5445/cisia-sentinel/sentinel/invites"
	"github.com/blackat5445/cisia-sentinel/sentinel/subscribers"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/snowflake/v2"
)

var Exams = discord.SlashCommandCreate{
	Name:        "exams",
	Description: "📚 Choose which exams you get alerts for",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:        "selection",
			Description: "Comma-separated exam codes, or ALL (empty shows the catalog)",
			Required:    false,
		},
	},
}

var Exam = discord.SlashCommandCreate{
	Name:        "exam",
	Description: "🎟️ Request an invite link to an exam group",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:        "exam",
			Description: "Exam code, e.g. TOLC-I (donators may use PREMIUM)",
			Required:    true,
		},
	},
}

var Interval = discord.SlashCommandCreate{
	Name:        "interval",
	Description: "⏱️ Set your preferred check interval (premium)",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionInt{
			Name:        "minutes",
			Description: "Minutes between checks, 1 to 60",
			Required:    true,
			MinValue:    intPtr(1),
			MaxValue:    intPtr(60),
		},
	},
}

func intPtr(v int) *int { return &v }

func ExamsHandler(b *sentinel.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		raw, ok := e.SlashCommandInteractionData().OptString("selection")
		if !ok || strings.TrimSpace(raw) == "" {
			return reply(e, catalogMessage(b, e.User().ID))
		}

		var selection []exams.Code
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			code, ok := exams.Resolve(part)
			if !ok {
				return reply(e, fmt.Sprintf("Unknown exam %q. Run `/exams` to see the catalog.", part))
			}
			if code == exams.Wildcard {
				selection = []exams.Code{exams.Wildcard}
				break
			}
			selection = append(selection, code)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := b.Store.SetExams(ctx, e.User().ID, selection); err != nil {
			return reply(e, fmt.Sprintf("Could not update your selection: %s", err))
		}

		names := make([]string, len(selection))
		for i, c := range selection {
			names[i] = string(c)
		}
		return reply(e, fmt.Sprintf("Got it, you'll be alerted for: %s", formatSelection(names)))
	}
}

func ExamHandler(b *sentinel.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		raw := e.SlashCommandInteractionData().String("exam")

		code, ok := exams.Resolve(raw)
		if !ok {
			if strings.EqualFold(strings.TrimSpace(raw), string(invites.Premium)) {
				code = invites.Premium
			} else {
				return reply(e, fmt.Sprintf("Unknown exam %q. Run `/exams` to see the catalog.", raw))
			}
		}
		if code == exams.Wildcard {
			return reply(e, "Pick one specific exam group to join, e.g. `/exam TOLC-I`.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		issued, err := b.Issuer.Issue(ctx, e.User().ID, code)
		switch {
		case err == nil:
			return reply(e, fmt.Sprintf(
				"Here's your invite to the **%s** group (valid %s, single use):\n%s",
				issued.Exam, invites.TTL, issued.URL))
		case errors.Is(err, invites.ErrNotAuthorized):
			return reply(e, fmt.Sprintf(
				"Invites require GitHub verification first. Star %s and run `/github <username>`.",
				b.StarChecker.RepoURL()))
		case errors.Is(err, invites.ErrPremiumOnly):
			return reply(e, "The premium group is for verified donators. See `/donate`.")
		case errors.Is(err, invites.ErrNoGroup):
			return reply(e, fmt.Sprintf("No group is set up for %s yet.", code))
		default:
			return reply(e, fmt.Sprintf("Could not create the invite: %s", err))
		}
	}
}

func IntervalHandler(b *sentinel.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		minutes := e.SlashCommandInteractionData().Int("minutes")

		if !b.Store.IsPremium(e.User().ID) {
			return reply(e, "Custom intervals are a premium perk. See `/donate`.")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := b.Store.SetInterval(ctx, e.User().ID, minutes); err != nil {
			if errors.Is(err, subscribers.ErrNotSubscribed) {
				return reply(e, "You're not subscribed. Run `/start` first.")
			}
			return reply(e, fmt.Sprintf("Could not set the interval: %s", err))
		}
		return reply(e, fmt.Sprintf("Preferred interval set to %d minutes.", minutes))
	}
}

func catalogMessage(b *sentinel.Bot, userID snowflake.ID) string {
	var sb strings.Builder
	sb.WriteString("**Available exams**\n")
	for _, code := range exams.All() {
		fmt.Fprintf(&sb, "• %s\n", code)
	}
	if sub, ok := b.Store.Get(userID); ok && sub.Active {
		fmt.Fprintf(&sb, "\nYour current selection: %s\n", formatSelection(sub.Exams))
	}
	sb.WriteString("\nSubscribe with `/exams TOLC-I, TOLC-E` or `/exams ALL`.")
	return sb.String()
}
