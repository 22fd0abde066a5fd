package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/blackat5445/cisia-sentinel/sentinel"
	"github.com/blackat5445/cisia-sentinel/sentinel/donations"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
)

var Donate = discord.SlashCommandCreate{
	Name:        "donate",
	Description: "💰 Support the project and unlock the premium group",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:        "tx",
			Description: "Your USDT transaction reference, to claim a donation you already sent",
			Required:    false,
		},
	},
}

func DonateHandler(b *sentinel.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		tx, ok := e.SlashCommandInteractionData().OptString("tx")
		if !ok || tx == "" {
			return reply(e, fmt.Sprintf(
				"Donations keep the watcher running and get you into the premium group "+
					"(faster checks, your own interval).\n\n"+
					"USDT (TRC20): `%s`\n\n"+
					"After sending, run `/donate tx:<transaction id>` so we can verify it.",
				donations.USDTAddress))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		user := e.User()
		claim, err := b.Donations.SubmitClaim(ctx, user.ID, user.Username, tx)
		if err != nil {
			return reply(e, fmt.Sprintf("Could not record your claim: %s", err))
		}
		return reply(e, fmt.Sprintf(
			"Thank you! Claim **#%d** is recorded and awaiting review. "+
				"You'll get a DM with your premium invite once it's verified.", claim.ID))
	}
}
