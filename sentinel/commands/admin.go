package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blackat5445/cisia-sentinel/sentinel"
	"github.com/blackat5445/cisia-sentinel/sentinel/donations"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/paginator"
)

const claimsPerPage = 5

var Claims = discord.SlashCommandCreate{
	Name:        "claims",
	Description: "🧾 Review pending donation claims (admin)",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "list",
			Description: "List pending claims and start a review session",
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "select",
			Description: "Pick a claim to review",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionInt{
					Name:        "id",
					Description: "Claim id from the list",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "review",
			Description: "Settle the selected claim",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "outcome",
					Description: "Review outcome",
					Required:    true,
					Choices: []discord.ApplicationCommandOptionChoiceString{
						{Name: "verified", Value: string(donations.OutcomeVerified)},
						{Name: "rejected", Value: string(donations.OutcomeRejected)},
					},
				},
			},
		},
	},
}

var Stats = discord.SlashCommandCreate{
	Name:        "stats",
	Description: "📈 Crawl statistics (admin)",
}

func ClaimsHandler(b *sentinel.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if e.User().ID != b.Cfg.Bot.AdminID {
			return reply(e, "This command is for the bot admin.")
		}

		data := e.SlashCommandInteractionData()
		switch *data.SubCommandName {
		case "list":
			return claimsList(b, e)
		case "select":
			return claimsSelect(b, e, int64(data.Int("id")))
		case "review":
			return claimsReview(b, e, donations.Outcome(data.String("outcome")))
		default:
			return reply(e, "Unknown subcommand.")
		}
	}
}

func claimsList(b *sentinel.Bot, e *handler.CommandEvent) error {
	pending := b.Donations.PendingClaims()
	if len(pending) == 0 {
		return reply(e, "No pending claims. 🎉")
	}

	b.Sessions.Begin(e.User().ID)

	totalPages := (len(pending) + claimsPerPage - 1) / claimsPerPage
	return b.Paginator.Create(e.Respond, paginator.Pages{
		ID:      e.ID().String(),
		Creator: e.User().ID,
		PageFunc: func(page int, embed *discord.EmbedBuilder) {
			start := page * claimsPerPage
			end := min(start+claimsPerPage, len(pending))

			var sb strings.Builder
			for _, c := range pending[start:end] {
				fmt.Fprintf(&sb, "**#%d** <@%s>\nTX: `%s`\nSubmitted: %s\n\n",
					c.ID, c.DiscordID, c.TxRef, c.SubmittedAt.Format("2006-01-02 15:04"))
			}
			sb.WriteString("Continue with `/claims select id:<n>`.")

			embed.
				SetTitle("🧾 Pending donation claims").
				SetDescription(sb.String()).
				SetColor(0x000000).
				SetFooter(fmt.Sprintf("Page %d/%d • Pending: %d", page+1, totalPages, len(pending)), "")
		},
		Pages:      totalPages,
		ExpireMode: paginator.ExpireModeAfterLastUsage,
	}, false)
}

func claimsSelect(b *sentinel.Bot, e *handler.CommandEvent, claimID int64) error {
	claim, ok := b.Donations.Claim(claimID)
	if !ok {
		return reply(e, fmt.Sprintf("No claim #%d on file.", claimID))
	}

	if err := b.Sessions.Select(e.User().ID, claimID); err != nil {
		return reply(e, err.Error())
	}

	return reply(e, fmt.Sprintf(
		"Reviewing claim **#%d**\nUser: <@%s>\nTX: `%s`\nSubmitted: %s\n\n"+
			"Settle it with `/claims review outcome:<verified|rejected>`.",
		claim.ID, claim.DiscordID, claim.TxRef, claim.SubmittedAt.Format("2006-01-02 15:04")))
}

func claimsReview(b *sentinel.Bot, e *handler.CommandEvent, outcome donations.Outcome) error {
	session, ok := b.Sessions.Current(e.User().ID)
	if !ok || session.State != donations.StateAwaitingOutcome {
		return reply(e, "No claim selected. Run `/claims list`, then `/claims select`.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	err := b.Donations.Review(ctx, session.ClaimID, outcome)
	b.Sessions.End(e.User().ID)

	switch {
	case err == nil:
		return reply(e, fmt.Sprintf("Claim #%d marked **%s**.", session.ClaimID, outcome))
	case errors.Is(err, donations.ErrAlreadyReviewed):
		return reply(e, fmt.Sprintf("Claim #%d was already reviewed.", session.ClaimID))
	case errors.Is(err, donations.ErrClaimNotFound):
		return reply(e, fmt.Sprintf("Claim #%d no longer exists.", session.ClaimID))
	default:
		return reply(e, fmt.Sprintf("Review failed: %s", err))
	}
}

func StatsHandler(b *sentinel.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		if e.User().ID != b.Cfg.Bot.AdminID {
			return reply(e, "This command is for the bot admin.")
		}

		snap := b.Stats.Snapshot()
		daily := b.Stats.Daily(7)

		var sb strings.Builder
		fmt.Fprintf(&sb, "Running since: %s\n", snap.StartedAt.Format("2006-01-02 15:04"))
		fmt.Fprintf(&sb, "Crawls: %d • Errors: %d • Seats found: %d\n", snap.TotalCrawls, snap.TotalErrors, snap.TotalSeatsFound)
		fmt.Fprintf(&sb, "Subscribers: %d active\n", b.Store.ActiveCount())
		if !snap.LastCrawlAt.IsZero() {
			fmt.Fprintf(&sb, "Last crawl: %s\n", snap.LastCrawlAt.Format("15:04:05"))
		}
		if snap.LastError != "" {
			fmt.Fprintf(&sb, "Last error: %s (%s)\n", snap.LastError, snap.LastErrorAt.Format("15:04:05"))
		}
		sb.WriteString("\n**Last 7 days**\n```\n")
		for _, d := range daily {
			fmt.Fprintf(&sb, "%s  crawls: %-4d errors: %d\n", d.Date, d.Crawls, d.Errors)
		}
		sb.WriteString("```")

		return e.CreateMessage(discord.NewMessageCreateBuilder().
			SetEmbeds(discord.NewEmbedBuilder().
				SetTitle("📈 Crawl statistics").
				SetDescription(sb.String()).
				SetColor(0x000000).
				Build()).
			SetEphemeral(true).
			Build())
	}
}
